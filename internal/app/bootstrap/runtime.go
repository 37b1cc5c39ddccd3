package bootstrap

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-booking-engine/internal/clinic"
	appconfig "github.com/wolfman30/clinic-booking-engine/internal/config"
	"github.com/wolfman30/clinic-booking-engine/internal/conversation"
	"github.com/wolfman30/clinic-booking-engine/pkg/logging"
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
		return nil
	}
	return client
}

// BuildPostgresPool opens the pgx pool, or returns nil when DATABASE_URL is
// unset and the in-memory stores should be used.
func BuildPostgresPool(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*pgxpool.Pool, error) {
	if cfg == nil || strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	logger.Info("postgres connected")
	return pool, nil
}

// BuildClinicStore returns the clinic config store when Redis is available.
func BuildClinicStore(redisClient *redis.Client) *clinic.Store {
	if redisClient == nil {
		return nil
	}
	return clinic.NewStore(redisClient)
}

// BuildSessionStore returns the Postgres-backed session store, sharing the
// pool through database/sql, or an in-memory store without a database.
func BuildSessionStore(pool *pgxpool.Pool, logger *logging.Logger) (conversation.SessionStore, *sql.DB) {
	if pool == nil {
		if logger != nil {
			logger.Warn("no database configured; conversation sessions are kept in memory")
		}
		return conversation.NewMemorySessionStore(), nil
	}
	db := stdlib.OpenDBFromPool(pool)
	return conversation.NewSQLSessionStore(db), db
}

// BuildTurnLocker serialises turns per session across replicas when Redis
// is available, and within the process otherwise.
func BuildTurnLocker(redisClient *redis.Client, cfg *appconfig.Config, logger *logging.Logger) conversation.TurnLocker {
	if redisClient == nil {
		return conversation.NewMemoryTurnLocker()
	}
	return conversation.NewRedisTurnLocker(redisClient, cfg.TurnLockTTL, logger)
}
