package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-booking-engine/internal/observability/metrics"
	"github.com/wolfman30/clinic-booking-engine/internal/patients"
	"github.com/wolfman30/clinic-booking-engine/internal/scheduling"
	"github.com/wolfman30/clinic-booking-engine/pkg/logging"
)

var conversationTracer = otel.Tracer("clinic.internal.conversation")

// GenericApology is the only failure text a patient ever receives.
const GenericApology = "Sorry, we're having trouble on our side right now. Please try again in a few minutes or call the clinic directly."

const (
	defaultLLMTimeout     = 30 * time.Second
	defaultGatewayTimeout = 15 * time.Second
	defaultMaxTokens      = 512
)

// Turn outcomes, also used as metric labels.
const (
	OutcomeReplied       = "replied"
	OutcomeApology       = "apology"
	OutcomeSuppressed    = "suppressed"
	OutcomeGatewayFailed = "gateway_failed"
)

// InboundMessage is one patient message routed to a clinic.
type InboundMessage struct {
	ClinicID  string    `json:"clinic_id"`
	Phone     string    `json:"phone"`
	To        string    `json:"to,omitempty"`
	Text      string    `json:"text"`
	MessageID string    `json:"message_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// TurnResult summarises what a turn did.
type TurnResult struct {
	Reply       string `json:"reply,omitempty"`
	Suppressed  bool   `json:"suppressed"`
	Outcome     string `json:"outcome"`
	Invocations int    `json:"invocations"`
	HandedOff   bool   `json:"handed_off"`
}

type turnState int

const (
	stateAwaitingModel turnState = iota
	stateExecutingCapabilities
	stateAwaitingFinalReply
	stateDone
)

func (s turnState) String() string {
	switch s {
	case stateAwaitingModel:
		return "awaiting_model"
	case stateExecutingCapabilities:
		return "executing_capabilities"
	case stateAwaitingFinalReply:
		return "awaiting_final_reply"
	default:
		return "done"
	}
}

// SessionManager runs one conversational turn per inbound message: at most
// one capability round followed by one final completion without tools.
type SessionManager struct {
	sessions       SessionStore
	locker         TurnLocker
	builder        *ContextBuilder
	caps           *Capabilities
	llm            LLMClient
	messenger      ReplyMessenger
	logger         *logging.Logger
	metrics        *metrics.ConversationMetrics
	model          string
	maxTokens      int32
	llmTimeout     time.Duration
	gatewayTimeout time.Duration
	now            func() time.Time
}

type ManagerOption func(*SessionManager)

func WithTurnLocker(l TurnLocker) ManagerOption {
	return func(m *SessionManager) {
		if l != nil {
			m.locker = l
		}
	}
}

func WithLLMTimeout(d time.Duration) ManagerOption {
	return func(m *SessionManager) {
		if d > 0 {
			m.llmTimeout = d
		}
	}
}

func WithGatewayTimeout(d time.Duration) ManagerOption {
	return func(m *SessionManager) {
		if d > 0 {
			m.gatewayTimeout = d
		}
	}
}

// WithModel sets the provider model id and output token cap.
func WithModel(modelID string, maxTokens int32) ManagerOption {
	return func(m *SessionManager) {
		m.model = modelID
		if maxTokens > 0 {
			m.maxTokens = maxTokens
		}
	}
}

func WithManagerLogger(logger *logging.Logger) ManagerOption {
	return func(m *SessionManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithConversationMetrics(cm *metrics.ConversationMetrics) ManagerOption {
	return func(m *SessionManager) { m.metrics = cm }
}

func NewSessionManager(sessions SessionStore, builder *ContextBuilder, caps *Capabilities, llm LLMClient, messenger ReplyMessenger, opts ...ManagerOption) *SessionManager {
	if sessions == nil || builder == nil || caps == nil || llm == nil || messenger == nil {
		panic("conversation: session manager dependencies cannot be nil")
	}
	m := &SessionManager{
		sessions:       sessions,
		locker:         NewMemoryTurnLocker(),
		builder:        builder,
		caps:           caps,
		llm:            llm,
		messenger:      messenger,
		logger:         logging.Default(),
		maxTokens:      defaultMaxTokens,
		llmTimeout:     defaultLLMTimeout,
		gatewayTimeout: defaultGatewayTimeout,
		now:            func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// HandleInbound processes one inbound message under the session lock. LLM
// failures end in GenericApology; a gateway failure returns an UpstreamError
// after the session is saved.
func (m *SessionManager) HandleInbound(ctx context.Context, msg InboundMessage) (TurnResult, error) {
	ctx, span := conversationTracer.Start(ctx, "conversation.handle_inbound")
	defer span.End()

	phone := patients.NormalizePhone(msg.Phone)
	text := strings.TrimSpace(msg.Text)
	if msg.ClinicID == "" || phone == "" {
		return TurnResult{}, errors.New("conversation: inbound message requires clinic and phone")
	}
	sessionID := SessionID(msg.ClinicID, phone)
	span.SetAttributes(attribute.String("clinic.clinic_id", msg.ClinicID), attribute.String("clinic.session_id", sessionID))
	logger := m.logger.With("session_id", sessionID, "clinic_id", msg.ClinicID)

	release, err := m.locker.Acquire(ctx, msg.ClinicID, phone)
	if err != nil {
		span.RecordError(err)
		return TurnResult{}, err
	}
	defer release()

	sess, err := m.loadOrCreate(ctx, msg.ClinicID, phone)
	if err != nil {
		span.RecordError(err)
		return TurnResult{}, err
	}

	if sess.HumanHandoff {
		sess.History = append(sess.History, ChatMessage{Role: ChatRoleUser, Content: text})
		sess.UpdatedAt = m.now()
		if err := m.sessions.Save(ctx, sess); err != nil {
			span.RecordError(err)
			return TurnResult{}, err
		}
		logger.Info("automated reply suppressed, session is with staff")
		m.metrics.ObserveTurn(OutcomeSuppressed)
		return TurnResult{Suppressed: true, Outcome: OutcomeSuppressed, HandedOff: true}, nil
	}

	system, messages := m.builder.Build(ctx, sess, text)
	reply, invocations := m.runProtocol(ctx, logger, sess, system, messages)

	result := TurnResult{Reply: reply, Outcome: OutcomeReplied, Invocations: invocations, HandedOff: sess.HumanHandoff}
	if reply == "" {
		result.Reply = GenericApology
		result.Outcome = OutcomeApology
	}

	sendErr := m.send(ctx, msg, phone, result.Reply)

	sess.History = append(sess.History,
		ChatMessage{Role: ChatRoleUser, Content: text},
		ChatMessage{Role: ChatRoleAssistant, Content: result.Reply},
	)
	sess.UpdatedAt = m.now()
	if err := m.sessions.Save(ctx, sess); err != nil {
		logger.Error("failed to save session", "error", err)
		if sendErr == nil {
			span.RecordError(err)
			m.metrics.ObserveTurn(result.Outcome)
			return result, fmt.Errorf("conversation: save session: %w", err)
		}
	}

	if sendErr != nil {
		logger.Error("messaging gateway failed", "error", sendErr)
		span.RecordError(sendErr)
		m.metrics.ObserveTurn(OutcomeGatewayFailed)
		result.Outcome = OutcomeGatewayFailed
		return result, &scheduling.UpstreamError{Service: "messaging", Err: sendErr}
	}

	m.metrics.ObserveTurn(result.Outcome)
	logger.Info("turn completed", "outcome", result.Outcome, "invocations", invocations, "handed_off", sess.HumanHandoff)
	return result, nil
}

// runProtocol drives the turn FSM and returns the final text ("" on any
// model failure) and the number of capabilities executed.
func (m *SessionManager) runProtocol(ctx context.Context, logger *logging.Logger, sess *Session, system []string, messages []ChatMessage) (string, int) {
	var (
		state   = stateAwaitingModel
		first   LLMResponse
		results []ToolResult
		final   string
	)

	for state != stateDone {
		logger.Debug("turn state", "state", state.String())
		switch state {
		case stateAwaitingModel:
			resp, err := m.complete(ctx, "initial", LLMRequest{
				Model:     m.model,
				System:    system,
				Messages:  messages,
				Tools:     m.caps.Specs(),
				MaxTokens: m.maxTokens,
			})
			if err != nil {
				logger.Error("language model call failed", "round", "initial", "error", err)
				state = stateDone
				continue
			}
			if len(resp.Invocations) == 0 {
				final = resp.Text
				state = stateDone
				continue
			}
			for i := range resp.Invocations {
				if resp.Invocations[i].ID == "" {
					resp.Invocations[i].ID = fmt.Sprintf("call-%d", i+1)
				}
			}
			first = resp
			state = stateExecutingCapabilities

		case stateExecutingCapabilities:
			// Capabilities run to completion even if the turn is abandoned.
			execCtx := context.WithoutCancel(ctx)
			for _, inv := range first.Invocations {
				content := m.caps.Execute(execCtx, sess, inv)
				results = append(results, ToolResult{InvocationID: inv.ID, Name: inv.Name, Content: content})
				logger.Debug("capability executed", "capability", inv.Name, "invocation_id", inv.ID)
			}
			state = stateAwaitingFinalReply

		case stateAwaitingFinalReply:
			followUp := make([]ChatMessage, 0, len(messages)+2)
			followUp = append(followUp, messages...)
			followUp = append(followUp,
				ChatMessage{Role: ChatRoleAssistant, Content: first.Text, Invocations: first.Invocations},
				ChatMessage{Role: ChatRoleTool, Results: results},
			)
			resp, err := m.complete(ctx, "final", LLMRequest{
				Model:     m.model,
				System:    system,
				Messages:  followUp,
				MaxTokens: m.maxTokens,
			})
			if err != nil {
				logger.Error("language model call failed", "round", "final", "error", err)
				state = stateDone
				continue
			}
			if len(resp.Invocations) > 0 {
				logger.Warn("ignoring invocations on final round", "count", len(resp.Invocations))
			}
			final = resp.Text
			state = stateDone
		}
	}

	return strings.TrimSpace(final), len(results)
}

func (m *SessionManager) complete(ctx context.Context, round string, req LLMRequest) (LLMResponse, error) {
	ctx, span := conversationTracer.Start(ctx, "conversation.llm_complete")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.llm_round", round), attribute.Int("clinic.llm_tools", len(req.Tools)))

	callCtx, cancel := context.WithTimeout(ctx, m.llmTimeout)
	defer cancel()

	start := time.Now()
	resp, err := m.llm.Complete(callCtx, req)
	status := "ok"
	if err != nil {
		status = "error"
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			status = "timeout"
		}
		span.RecordError(err)
	}
	m.metrics.ObserveLLM(round, status, time.Since(start).Seconds())
	return resp, err
}

func (m *SessionManager) send(ctx context.Context, msg InboundMessage, phone, body string) error {
	sendCtx, cancel := context.WithTimeout(ctx, m.gatewayTimeout)
	defer cancel()
	return m.messenger.SendReply(sendCtx, OutboundReply{
		ClinicID: msg.ClinicID,
		To:       phone,
		From:     msg.To,
		Body:     body,
		Metadata: map[string]string{"inbound_message_id": msg.MessageID},
	})
}

func (m *SessionManager) loadOrCreate(ctx context.Context, clinicID, phone string) (*Session, error) {
	sess, err := m.sessions.Load(ctx, clinicID, phone)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		return nil, err
	}
	now := m.now()
	return &Session{ClinicID: clinicID, Phone: phone, CreatedAt: now, UpdatedAt: now}, nil
}

// ReleaseHandoff returns a session to automated handling.
func (m *SessionManager) ReleaseHandoff(ctx context.Context, clinicID, phone string) error {
	phone = patients.NormalizePhone(phone)
	if clinicID == "" || phone == "" {
		return errors.New("conversation: release requires clinic and phone")
	}
	release, err := m.locker.Acquire(ctx, clinicID, phone)
	if err != nil {
		return err
	}
	defer release()

	sess, err := m.sessions.Load(ctx, clinicID, phone)
	if err != nil {
		return err
	}
	if !sess.HumanHandoff {
		return nil
	}
	sess.HumanHandoff = false
	sess.HandoffReason = ""
	sess.UpdatedAt = m.now()
	if err := m.sessions.Save(ctx, sess); err != nil {
		return err
	}
	m.logger.Info("handoff released", "session_id", sess.ID(), "clinic_id", clinicID)
	return nil
}
