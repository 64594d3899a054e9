package clinic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-scheduler/pkg/apperrors"
)

// Store provides persistence for clinic catalogs.
type Store struct {
	redis *redis.Client
}

// NewStore creates a new clinic catalog store.
func NewStore(redisClient *redis.Client) *Store {
	if redisClient == nil {
		panic("clinic: redis client cannot be nil")
	}
	return &Store{redis: redisClient}
}

func (s *Store) key(clinicID string) string {
	return fmt.Sprintf("clinic:config:%s", clinicID)
}

// Get retrieves a clinic catalog. Unknown clinics yield a NOT_FOUND error.
func (s *Store) Get(ctx context.Context, clinicID string) (*Config, error) {
	data, err := s.redis.Get(ctx, s.key(clinicID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.NotFound("clinic %q", clinicID)
	}
	if err != nil {
		return nil, fmt.Errorf("clinic: get config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("clinic: unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Set validates and saves a clinic catalog.
func (s *Store) Set(ctx context.Context, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("clinic: marshal config: %w", err)
	}

	if err := s.redis.Set(ctx, s.key(cfg.ClinicID), data, 0).Err(); err != nil {
		return fmt.Errorf("clinic: set config: %w", err)
	}

	return nil
}

// StaticSource serves catalogs from memory. Used by tests and local runs.
type StaticSource map[string]*Config

// Get implements the catalog lookup used by the scheduler.
func (s StaticSource) Get(_ context.Context, clinicID string) (*Config, error) {
	cfg, ok := s[clinicID]
	if !ok {
		return nil, apperrors.NotFound("clinic %q", clinicID)
	}
	return cfg, nil
}
