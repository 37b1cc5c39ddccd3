package conversation

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrSessionNotFound is returned by SessionStore.Load for a phone that has
// never written to the clinic.
var ErrSessionNotFound = errors.New("conversation: session not found")

// Session is the per (clinic, phone) conversational state.
type Session struct {
	ClinicID      string        `json:"clinic_id"`
	Phone         string        `json:"phone"`
	History       []ChatMessage `json:"history"`
	HumanHandoff  bool          `json:"human_handoff"`
	HandoffReason string        `json:"handoff_reason,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// SessionID is the correlation id used in logs and lock keys.
func SessionID(clinicID, phone string) string {
	return clinicID + ":" + phone
}

func (s *Session) ID() string { return SessionID(s.ClinicID, s.Phone) }

func (s *Session) clone() *Session {
	cp := *s
	cp.History = append([]ChatMessage(nil), s.History...)
	return &cp
}

// SessionStore persists sessions. Implementations are scoped by clinic.
type SessionStore interface {
	Load(ctx context.Context, clinicID, phone string) (*Session, error)
	Save(ctx context.Context, session *Session) error
}

// MemorySessionStore keeps sessions in process memory.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

var _ SessionStore = (*MemorySessionStore)(nil)

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]*Session)}
}

func (s *MemorySessionStore) Load(_ context.Context, clinicID, phone string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[SessionID(clinicID, phone)]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess.clone(), nil
}

func (s *MemorySessionStore) Save(_ context.Context, session *Session) error {
	if session == nil || session.ClinicID == "" || session.Phone == "" {
		return errors.New("conversation: session requires clinic and phone")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID()] = session.clone()
	return nil
}
