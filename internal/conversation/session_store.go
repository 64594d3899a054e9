package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// SessionStore persists conversation sessions. Load returns nil, nil when
// the session is absent or expired.
type SessionStore interface {
	Load(ctx context.Context, clinicID, phone string) (*Session, error)
	Save(ctx context.Context, sess *Session) error
}

func sessionKey(clinicID, phone string) string {
	return fmt.Sprintf("conversation:session:%s:%s", clinicID, phone)
}

// RedisSessionStore keeps sessions in Redis with the idle window as TTL.
type RedisSessionStore struct {
	redis  *redis.Client
	tracer trace.Tracer
}

// NewRedisSessionStore creates a Redis-backed session store.
func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	return &RedisSessionStore{
		redis:  client,
		tracer: otel.Tracer("clinic.internal.conversation.sessions"),
	}
}

func (s *RedisSessionStore) Save(ctx context.Context, sess *Session) error {
	ctx, span := s.tracer.Start(ctx, "conversation.save_session")
	defer span.End()

	data, err := json.Marshal(sess.Record())
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to marshal session: %w", err)
	}
	ttl := time.Until(sess.ExpiresAt)
	if ttl < time.Second {
		ttl = time.Second
	}
	if err := s.redis.Set(ctx, sessionKey(sess.ClinicID, sess.Phone), data, ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to persist session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Load(ctx context.Context, clinicID, phone string) (*Session, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.load_session")
	defer span.End()

	data, err := s.redis.Get(ctx, sessionKey(clinicID, phone)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to load session: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to decode session: %w", err)
	}
	return SessionFromRecord(rec)
}

// MemorySessionStore keeps sessions in process memory.
type MemorySessionStore struct {
	mu      sync.Mutex
	records map[string]Record
	now     func() time.Time
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{records: make(map[string]Record), now: time.Now}
}

func (m *MemorySessionStore) Save(_ context.Context, sess *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[sessionKey(sess.ClinicID, sess.Phone)] = sess.Record()
	return nil
}

func (m *MemorySessionStore) Load(_ context.Context, clinicID, phone string) (*Session, error) {
	m.mu.Lock()
	rec, ok := m.records[sessionKey(clinicID, phone)]
	m.mu.Unlock()
	if !ok {
		return nil, nil
	}
	sess, err := SessionFromRecord(rec)
	if err != nil {
		return nil, err
	}
	if sess.Expired(m.now()) {
		return nil, nil
	}
	return sess, nil
}
