package bootstrap

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-booking-engine/internal/clinic"
	appconfig "github.com/wolfman30/clinic-booking-engine/internal/config"
	"github.com/wolfman30/clinic-booking-engine/internal/conversation"
	"github.com/wolfman30/clinic-booking-engine/internal/messaging"
	"github.com/wolfman30/clinic-booking-engine/pkg/logging"
)

// Runtime is the dependency graph shared by the API and the worker.
type Runtime struct {
	Config   *appconfig.Config
	Logger   *logging.Logger
	Registry *prometheus.Registry

	Pool        *pgxpool.Pool
	SQL         *sql.DB
	Redis       *redis.Client
	ClinicStore *clinic.Store
	Profiles    ProfileSource

	Core      *Core
	Queue     conversation.Queue
	Jobs      JobTracker
	Publisher *conversation.Publisher
	Manager   *conversation.SessionManager
}

// BuildRuntime connects storage and wires the booking core and the
// conversation pipeline. Missing Postgres or Redis degrade to in-memory
// implementations outside production.
func BuildRuntime(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (*Runtime, error) {
	if cfg == nil {
		return nil, errMissingConfig
	}
	if logger == nil {
		logger = logging.Default()
	}

	rt := &Runtime{Config: cfg, Logger: logger, Registry: prometheus.NewRegistry()}
	rt.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	pool, err := BuildPostgresPool(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if pool == nil && cfg.IsProduction() {
		return nil, fmt.Errorf("bootstrap: DATABASE_URL is required in production")
	}
	rt.Pool = pool

	rt.Redis = BuildRedisClient(ctx, cfg, logger, true)
	rt.ClinicStore = BuildClinicStore(rt.Redis)
	rt.Profiles = BuildProfileSource(rt.ClinicStore)

	rt.Core = BuildCore(cfg, pool, rt.Registry, logger)

	queue, jobs, err := BuildQueue(cfg, awsCfg, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Queue, rt.Jobs = queue, jobs
	rt.Publisher = conversation.NewPublisher(queue, jobs, logger)

	messenger, smsProvider, err := BuildOutboundMessenger(cfg, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}
	llm, llmProvider, err := BuildLLMClient(ctx, cfg, awsCfg, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}

	var sessions conversation.SessionStore
	sessions, rt.SQL = BuildSessionStore(pool, logger)

	rt.Manager, err = BuildSessionManager(cfg, ConversationDeps{
		Core:      rt.Core,
		Sessions:  sessions,
		Locker:    BuildTurnLocker(rt.Redis, cfg, logger),
		Profiles:  rt.Profiles,
		LLM:       llm,
		ModelID:   ModelID(cfg, llmProvider),
		Messenger: messenger,
		Notifier:  BuildHandoffNotifier(cfg, awsCfg, rt.Profiles, logger),
		Registry:  rt.Registry,
	}, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}

	logger.Info("runtime ready",
		"postgres", pool != nil,
		"redis", rt.Redis != nil,
		"memory_queue", cfg.UseMemoryQueue,
		"sms_provider", smsProvider,
		"llm_provider", llmProvider,
	)
	return rt, nil
}

// ProcessedTracker returns the webhook dedupe store, or nil without
// Postgres.
func (rt *Runtime) ProcessedTracker() messaging.ProcessedTracker {
	if rt.Core == nil || rt.Core.Processed == nil {
		return nil
	}
	return rt.Core.Processed
}

// HealthChecks returns a ping per configured backing store.
func (rt *Runtime) HealthChecks() map[string]func(context.Context) error {
	checks := map[string]func(context.Context) error{}
	if rt.Pool != nil {
		checks["postgres"] = rt.Pool.Ping
	}
	if rt.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return rt.Redis.Ping(ctx).Err() }
	}
	return checks
}

// Close releases storage connections.
func (rt *Runtime) Close() {
	if rt.SQL != nil {
		_ = rt.SQL.Close()
	}
	if rt.Pool != nil {
		rt.Pool.Close()
	}
	if rt.Redis != nil {
		_ = rt.Redis.Close()
	}
}
