package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// Emitter hands envelopes to whatever transport carries intents to the
// dispatcher. Emit must not block on the consumer.
type Emitter interface {
	Emit(ctx context.Context, env Envelope) error
}

type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSEmitter publishes envelopes to an SQS queue.
type SQSEmitter struct {
	client   sqsAPI
	queueURL string
}

// NewSQSEmitter creates an emitter around the provided SQS client.
func NewSQSEmitter(client sqsAPI, queueURL string) *SQSEmitter {
	if client == nil {
		panic("events: SQS client cannot be nil")
	}
	if queueURL == "" {
		panic("events: SQS queueURL cannot be empty")
	}
	return &SQSEmitter{client: client, queueURL: queueURL}
}

func (e *SQSEmitter) Emit(ctx context.Context, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("events: marshal envelope: %w", err)
	}
	_, err = e.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(e.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {DataType: aws.String("String"), StringValue: aws.String(env.EventType)},
		},
	})
	if err != nil {
		return fmt.Errorf("events: failed to send SQS message: %w", err)
	}
	return nil
}

// MemoryEmitter records envelopes in memory. Used for local runs and tests.
type MemoryEmitter struct {
	mu        sync.Mutex
	envelopes []Envelope
	// Err, when set, is returned from every Emit call.
	Err error
}

func NewMemoryEmitter() *MemoryEmitter {
	return &MemoryEmitter{}
}

func (m *MemoryEmitter) Emit(_ context.Context, env Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.envelopes = append(m.envelopes, env)
	return nil
}

// Envelopes returns a copy of everything emitted so far.
func (m *MemoryEmitter) Envelopes() []Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Envelope(nil), m.envelopes...)
}

// Types lists the event types emitted so far, in order.
func (m *MemoryEmitter) Types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.envelopes))
	for _, env := range m.envelopes {
		out = append(out, env.EventType)
	}
	return out
}
