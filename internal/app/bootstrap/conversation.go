package bootstrap

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/prometheus/client_golang/prometheus"

	appconfig "github.com/wolfman30/clinic-booking-engine/internal/config"
	"github.com/wolfman30/clinic-booking-engine/internal/conversation"
	"github.com/wolfman30/clinic-booking-engine/internal/observability/metrics"
	"github.com/wolfman30/clinic-booking-engine/pkg/logging"
)

const memoryQueueBuffer = 256

var errMissingConfig = errors.New("bootstrap: config is required")

// JobTracker records and settles conversation job status.
type JobTracker interface {
	conversation.JobRecorder
	conversation.JobUpdater
}

// BuildQueue returns the inbound queue and job tracker. Development uses an
// in-process channel and memory jobs, so the API must run the worker itself.
func BuildQueue(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (conversation.Queue, JobTracker, error) {
	if cfg == nil {
		return nil, nil, errMissingConfig
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.UseMemoryQueue {
		logger.Info("using in-memory conversation queue")
		return conversation.NewMemoryQueue(memoryQueueBuffer), conversation.NewMemoryJobStore(), nil
	}
	if strings.TrimSpace(cfg.ConversationQueueURL) == "" {
		return nil, nil, fmt.Errorf("bootstrap: CONVERSATION_QUEUE_URL is required when USE_MEMORY_QUEUE=false")
	}
	queue := conversation.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.ConversationQueueURL)

	var jobs JobTracker
	if strings.TrimSpace(cfg.ConversationJobsTable) != "" {
		jobs = conversation.NewJobStore(dynamodb.NewFromConfig(awsCfg), cfg.ConversationJobsTable, logger)
	} else {
		logger.Warn("CONVERSATION_JOBS_TABLE not set; job status is kept in memory")
		jobs = conversation.NewMemoryJobStore()
	}
	return queue, jobs, nil
}

// ConversationDeps carries what the session manager needs beyond config.
type ConversationDeps struct {
	Core      *Core
	Sessions  conversation.SessionStore
	Locker    conversation.TurnLocker
	Profiles  ProfileSource
	LLM       conversation.LLMClient
	ModelID   string
	Messenger conversation.ReplyMessenger
	Notifier  conversation.HandoffNotifier
	Registry  prometheus.Registerer
}

// BuildSessionManager wires the tool-calling session manager over the
// booking core.
func BuildSessionManager(cfg *appconfig.Config, deps ConversationDeps, logger *logging.Logger) (*conversation.SessionManager, error) {
	if cfg == nil {
		return nil, errMissingConfig
	}
	if deps.Core == nil || deps.Sessions == nil || deps.LLM == nil || deps.Messenger == nil {
		return nil, fmt.Errorf("bootstrap: session manager requires core, sessions, llm and messenger")
	}
	if logger == nil {
		logger = logging.Default()
	}

	var cm *metrics.ConversationMetrics
	if deps.Registry != nil {
		cm = metrics.NewConversationMetrics(deps.Registry)
	}

	capOpts := []conversation.CapabilityOption{
		conversation.WithCapabilityMetrics(cm),
		conversation.WithCapabilityLogger(logger),
	}
	if deps.Notifier != nil {
		capOpts = append(capOpts, conversation.WithHandoffNotifier(deps.Notifier))
	}
	caps := conversation.NewCapabilities(deps.Core.Resolver, deps.Core.Orchestrator, deps.Core.Patients, deps.Core.Catalog, capOpts...)

	var profiles conversation.ProfileSource
	if deps.Profiles != nil {
		profiles = deps.Profiles
	}
	builder := conversation.NewContextBuilder(profiles, deps.Core.Catalog, deps.Core.Orchestrator, logger)

	opts := []conversation.ManagerOption{
		conversation.WithLLMTimeout(cfg.LLMTimeout),
		conversation.WithGatewayTimeout(cfg.GatewayTimeout),
		conversation.WithModel(deps.ModelID, int32(cfg.LLMMaxTokens)),
		conversation.WithManagerLogger(logger),
		conversation.WithConversationMetrics(cm),
	}
	if deps.Locker != nil {
		opts = append(opts, conversation.WithTurnLocker(deps.Locker))
	}

	return conversation.NewSessionManager(deps.Sessions, builder, caps, deps.LLM, deps.Messenger, opts...), nil
}

// BuildWorker returns the worker pool that drains the inbound queue.
func BuildWorker(cfg *appconfig.Config, manager *conversation.SessionManager, queue conversation.Queue, jobs JobTracker, logger *logging.Logger) *conversation.Worker {
	count := cfg.WorkerCount
	if count <= 0 {
		count = 1
	}
	return conversation.NewWorker(manager, queue, jobs, logger, conversation.WithWorkerCount(count))
}
