package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/wolfman30/clinic-booking-engine/internal/patients"
	"github.com/wolfman30/clinic-booking-engine/internal/procedures"
	"github.com/wolfman30/clinic-booking-engine/internal/scheduling"
	"github.com/wolfman30/clinic-booking-engine/pkg/logging"
)

const (
	clinicA   = "clinic-a"
	phoneAna  = "+15550102000"
	phoneBeto = "+15550103000"
	monday    = "2024-06-10"
)

// turnFixture wires the real booking core to a scripted model.
type turnFixture struct {
	store     *scheduling.MemoryStore
	orch      *scheduling.Orchestrator
	resolver  *scheduling.Resolver
	patients  *patients.InMemoryDirectory
	catalog   *procedures.InMemoryCatalog
	consulta  procedures.Procedure
	sessions  *MemorySessionStore
	caps      *Capabilities
	builder   *ContextBuilder
	llm       *scriptedLLM
	messenger *recordingMessenger
	notifier  *recordingNotifier
	manager   *SessionManager
}

func newTurnFixture(t *testing.T, opts ...ManagerOption) *turnFixture {
	t.Helper()
	store := scheduling.NewMemoryStore()
	dir := patients.NewInMemoryDirectory()
	catalog := procedures.NewInMemoryCatalog()
	orch := scheduling.NewOrchestrator(store, dir, catalog, scheduling.WithLogger(logging.Discard()))
	resolver := scheduling.NewResolver(store, 30)

	var hours []scheduling.WorkingHours
	for day := time.Monday; day <= time.Friday; day++ {
		hours = append(hours, scheduling.WorkingHours{Weekday: day, Open: scheduling.NewClock(8, 0), Close: scheduling.NewClock(18, 0), Active: true})
	}
	if err := orch.SetWorkingHours(context.Background(), clinicA, hours); err != nil {
		t.Fatalf("SetWorkingHours: %v", err)
	}

	f := &turnFixture{
		store:     store,
		orch:      orch,
		resolver:  resolver,
		patients:  dir,
		catalog:   catalog,
		consulta:  catalog.Add(clinicA, "Consulta", 15000, 30),
		sessions:  NewMemorySessionStore(),
		llm:       &scriptedLLM{},
		messenger: &recordingMessenger{},
		notifier:  &recordingNotifier{},
	}
	dir.Add(clinicA, "Ana Souza", phoneAna)

	f.caps = NewCapabilities(resolver, orch, dir, catalog,
		WithHandoffNotifier(f.notifier),
		WithCapabilityLogger(logging.Discard()),
	)
	f.builder = NewContextBuilder(nil, procedures.NewCachedCatalog(catalog, time.Minute), orch, logging.Discard())
	f.manager = f.managerWith(f.llm, opts...)
	return f
}

// managerWith builds a manager over the fixture's state with a different model.
func (f *turnFixture) managerWith(llm LLMClient, opts ...ManagerOption) *SessionManager {
	opts = append([]ManagerOption{WithManagerLogger(logging.Discard()), WithModel("test-model", 256)}, opts...)
	return NewSessionManager(f.sessions, f.builder, f.caps, llm, f.messenger, opts...)
}

func (f *turnFixture) appointmentsOn(t *testing.T, date string) []scheduling.Appointment {
	t.Helper()
	list, err := f.store.ListAppointments(context.Background(), clinicA, mustDate(t, date))
	if err != nil {
		t.Fatalf("ListAppointments: %v", err)
	}
	return list
}

func mustDate(t *testing.T, s string) scheduling.Date {
	t.Helper()
	d, err := scheduling.ParseDate(s)
	if err != nil {
		t.Fatalf("ParseDate(%q): %v", s, err)
	}
	return d
}

func inbound(phone, text string) InboundMessage {
	return InboundMessage{ClinicID: clinicA, Phone: phone, To: "+15559990000", Text: text, Timestamp: time.Now()}
}

func invocation(id, name string, args map[string]any) ToolInvocation {
	raw, _ := json.Marshal(args)
	return ToolInvocation{ID: id, Name: name, Args: raw}
}

func decodeResult(t *testing.T, raw json.RawMessage) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode result %s: %v", raw, err)
	}
	return out
}

// scriptedLLM returns queued responses in order and records every request.
type scriptedLLM struct {
	mu        sync.Mutex
	responses []LLMResponse
	errs      map[int]error
	requests  []LLMRequest
}

func (s *scriptedLLM) script(responses ...LLMResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, responses...)
}

func (s *scriptedLLM) failOn(call int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errs == nil {
		s.errs = make(map[int]error)
	}
	s.errs[call] = err
}

func (s *scriptedLLM) Complete(_ context.Context, req LLMRequest) (LLMResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	call := len(s.requests)
	s.requests = append(s.requests, req)
	if err := s.errs[call]; err != nil {
		return LLMResponse{}, err
	}
	if len(s.responses) == 0 {
		return LLMResponse{}, errors.New("no scripted response")
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp, nil
}

func (s *scriptedLLM) calls() []LLMRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]LLMRequest(nil), s.requests...)
}

// funcLLM answers each request with a function, for concurrent tests.
type funcLLM func(LLMRequest) (LLMResponse, error)

func (fn funcLLM) Complete(_ context.Context, req LLMRequest) (LLMResponse, error) {
	return fn(req)
}

// blockingLLM waits for the call context to end.
type blockingLLM struct{}

func (blockingLLM) Complete(ctx context.Context, _ LLMRequest) (LLMResponse, error) {
	<-ctx.Done()
	return LLMResponse{}, ctx.Err()
}

type recordingMessenger struct {
	mu      sync.Mutex
	replies []OutboundReply
	err     error
}

func (m *recordingMessenger) SendReply(_ context.Context, reply OutboundReply) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, reply)
	return m.err
}

func (m *recordingMessenger) sent() []OutboundReply {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]OutboundReply(nil), m.replies...)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []HandoffEvent
	err    error
}

func (n *recordingNotifier) NotifyHandoff(_ context.Context, evt HandoffEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, evt)
	return n.err
}
