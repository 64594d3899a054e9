package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-scheduler/internal/clinic"
	appconfig "github.com/wolfman30/clinic-scheduler/internal/config"
	"github.com/wolfman30/clinic-scheduler/internal/conversation"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildPostgresPool connects to Postgres, or returns nil when no database
// is configured and the in-memory repositories should be used.
func BuildPostgresPool(ctx context.Context, cfg *appconfig.Config) (*pgxpool.Pool, error) {
	if cfg == nil || strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, nil
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	return pool, nil
}

// ConfigSource is the clinic catalog lookup shared by every component.
type ConfigSource interface {
	Get(ctx context.Context, clinicID string) (*clinic.Config, error)
}

// BuildClinicSource prefers a catalog file, then the Redis clinic store.
func BuildClinicSource(cfg *appconfig.Config, redisClient *redis.Client) (ConfigSource, error) {
	if path := strings.TrimSpace(cfg.ClinicCatalogFile); path != "" {
		cfgs, err := clinic.LoadFile(path)
		if err != nil {
			return nil, err
		}
		return clinic.NewStaticSource(cfgs), nil
	}
	if redisClient == nil {
		return nil, fmt.Errorf("bootstrap: clinic catalogs need redis or CLINIC_CATALOG_FILE")
	}
	return clinic.NewStore(redisClient), nil
}

// BuildSessionStore picks the conversation session backend.
func BuildSessionStore(cfg *appconfig.Config, redisClient *redis.Client, awsCfg *aws.Config) (conversation.SessionStore, error) {
	switch cfg.SessionBackend {
	case appconfig.SessionBackendDynamo:
		if awsCfg == nil {
			return nil, fmt.Errorf("bootstrap: dynamodb session backend needs aws config")
		}
		return conversation.NewDynamoSessionStore(dynamodb.NewFromConfig(*awsCfg), cfg.SessionTable), nil
	case appconfig.SessionBackendInMemory:
		return conversation.NewMemorySessionStore(), nil
	case appconfig.SessionBackendRedis, "":
		if redisClient == nil {
			return nil, fmt.Errorf("bootstrap: redis session backend needs REDIS_ADDR")
		}
		return conversation.NewRedisSessionStore(redisClient), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown session backend %q", cfg.SessionBackend)
	}
}
