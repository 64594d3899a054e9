package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// dynamoSession is the table item: the record plus a partition key and a
// numeric TTL attribute.
type dynamoSession struct {
	SessionKey string `dynamodbav:"sessionKey"`
	Record
	TTL int64 `dynamodbav:"expiresAt"`
}

// DynamoSessionStore keeps sessions in a DynamoDB table keyed by sessionKey
// with TTL enabled on expiresAt. DynamoDB deletes expired items lazily, so
// Load also checks the expiry.
type DynamoSessionStore struct {
	client    dynamoAPI
	tableName string
	now       func() time.Time
	tracer    trace.Tracer
}

// NewDynamoSessionStore builds a store backed by the provided DynamoDB client.
func NewDynamoSessionStore(client dynamoAPI, tableName string) *DynamoSessionStore {
	if client == nil {
		panic("conversation: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("conversation: table name cannot be empty")
	}
	return &DynamoSessionStore{
		client:    client,
		tableName: tableName,
		now:       time.Now,
		tracer:    otel.Tracer("clinic.internal.conversation.sessions"),
	}
}

func dynamoSessionKey(clinicID, phone string) string {
	return clinicID + "#" + phone
}

func (s *DynamoSessionStore) Save(ctx context.Context, sess *Session) error {
	ctx, span := s.tracer.Start(ctx, "conversation.save_session")
	defer span.End()

	item, err := attributevalue.MarshalMap(dynamoSession{
		SessionKey: dynamoSessionKey(sess.ClinicID, sess.Phone),
		Record:     sess.Record(),
		TTL:        sess.ExpiresAt.Unix(),
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to marshal session: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to persist session: %w", err)
	}
	return nil
}

func (s *DynamoSessionStore) Load(ctx context.Context, clinicID, phone string) (*Session, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.load_session")
	defer span.End()

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		ConsistentRead: aws.Bool(true),
		Key: map[string]types.AttributeValue{
			"sessionKey": &types.AttributeValueMemberS{Value: dynamoSessionKey(clinicID, phone)},
		},
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to load session: %w", err)
	}
	if out.Item == nil {
		return nil, nil
	}

	var item dynamoSession
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to decode session: %w", err)
	}
	sess, err := SessionFromRecord(item.Record)
	if err != nil {
		return nil, err
	}
	if sess.Expired(s.now()) {
		return nil, nil
	}
	return sess, nil
}
