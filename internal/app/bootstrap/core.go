package bootstrap

import (
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	appconfig "github.com/wolfman30/clinic-booking-engine/internal/config"
	"github.com/wolfman30/clinic-booking-engine/internal/events"
	"github.com/wolfman30/clinic-booking-engine/internal/observability/metrics"
	"github.com/wolfman30/clinic-booking-engine/internal/patients"
	"github.com/wolfman30/clinic-booking-engine/internal/procedures"
	"github.com/wolfman30/clinic-booking-engine/internal/scheduling"
	"github.com/wolfman30/clinic-booking-engine/pkg/logging"
)

const catalogCacheTTL = 5 * time.Minute

// Core is the booking core shared by the dashboard API and the
// conversation worker. Both paths go through the same Orchestrator, so they
// share one validator and one storage constraint.
type Core struct {
	Store    scheduling.Store
	Patients patients.Directory
	// Catalog is cached and feeds prompts and capability lookups.
	Catalog      procedures.Catalog
	Resolver     *scheduling.Resolver
	Orchestrator *scheduling.Orchestrator

	// Postgres-only pieces; nil when running on memory stores.
	Outbox    *events.OutboxStore
	Processed *events.ProcessedStore
}

// BuildCore wires the scheduling core on Postgres when a pool is given and
// on in-memory stores otherwise.
func BuildCore(cfg *appconfig.Config, pool *pgxpool.Pool, reg prometheus.Registerer, logger *logging.Logger) *Core {
	if logger == nil {
		logger = logging.Default()
	}
	step := scheduling.DefaultSlotStep
	if cfg != nil && cfg.SlotStepMinutes > 0 {
		step = cfg.SlotStepMinutes
	}

	core := &Core{}
	// The orchestrator snapshots prices, so it reads the catalog uncached.
	var priceSource procedures.Catalog
	if pool != nil {
		live := procedures.NewPostgresCatalog(pool)
		priceSource = live
		core.Store = scheduling.NewPostgresStore(pool)
		core.Patients = patients.NewPostgresDirectory(pool)
		core.Catalog = procedures.NewCachedCatalog(live, catalogCacheTTL)
		core.Outbox = events.NewOutboxStore(pool)
		core.Processed = events.NewProcessedStore(pool)
	} else {
		logger.Warn("no database configured; using in-memory scheduling stores")
		core.Store = scheduling.NewMemoryStore()
		core.Patients = patients.NewInMemoryDirectory()
		core.Catalog = procedures.NewInMemoryCatalog()
		priceSource = core.Catalog
	}

	var bookingMetrics *metrics.BookingMetrics
	if reg != nil {
		bookingMetrics = metrics.NewBookingMetrics(reg)
	}

	core.Resolver = scheduling.NewResolver(core.Store, step)
	core.Orchestrator = scheduling.NewOrchestrator(core.Store, core.Patients, priceSource,
		scheduling.WithSlotStep(step),
		scheduling.WithBookingMetrics(bookingMetrics),
		scheduling.WithLogger(logger),
	)
	return core
}

// BuildOutboxDeliverer returns the outbox poller, publishing to SQS when an
// events queue is configured and logging otherwise. It returns nil without
// an outbox.
func BuildOutboxDeliverer(cfg *appconfig.Config, outbox *events.OutboxStore, sqsClient *sqs.Client, logger *logging.Logger) *events.Deliverer {
	if outbox == nil {
		return nil
	}
	var handler events.DeliveryHandler = events.NewLogDeliveryHandler(logger)
	if cfg != nil && cfg.EventsQueueURL != "" && sqsClient != nil {
		handler = events.NewSQSDeliveryHandler(sqsClient, cfg.EventsQueueURL)
		logger.Info("outbox events published to sqs", "queue_url", cfg.EventsQueueURL)
	}
	return events.NewDeliverer(outbox, handler, logger)
}
