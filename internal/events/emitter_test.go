package events

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

type mockSQS struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (m *mockSQS) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.inputs = append(m.inputs, params)
	if m.err != nil {
		return nil, m.err
	}
	return &sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil
}

func TestSQSEmitterSendsEnvelope(t *testing.T) {
	client := &mockSQS{}
	emitter := NewSQSEmitter(client, "https://sqs.local/intents")

	env, err := NewEnvelope("appt-1", "", LedgerSyncRequestedV1{Appointment: AppointmentSnapshot{AppointmentID: "appt-1"}})
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	if err := emitter.Emit(context.Background(), env); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if len(client.inputs) != 1 {
		t.Fatalf("expected one send, got %d", len(client.inputs))
	}
	in := client.inputs[0]
	if aws.ToString(in.QueueUrl) != "https://sqs.local/intents" {
		t.Fatalf("unexpected queue %q", aws.ToString(in.QueueUrl))
	}
	parsed, err := ParseEnvelope([]byte(aws.ToString(in.MessageBody)))
	if err != nil {
		t.Fatalf("body is not an envelope: %v", err)
	}
	if parsed.EventID != env.EventID {
		t.Fatalf("event id mismatch")
	}
	if aws.ToString(in.MessageAttributes["event_type"].StringValue) != TypeLedgerSync {
		t.Fatalf("missing event_type attribute")
	}
}

func TestSQSEmitterWrapsErrors(t *testing.T) {
	emitter := NewSQSEmitter(&mockSQS{err: errors.New("throttled")}, "q")
	env, _ := NewEnvelope("appt-1", "", LedgerSyncRequestedV1{})
	if err := emitter.Emit(context.Background(), env); err == nil {
		t.Fatal("expected error")
	}
}
