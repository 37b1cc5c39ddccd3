package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SQLSessionStore persists sessions to the conversation_sessions table.
type SQLSessionStore struct {
	db *sql.DB
}

var _ SessionStore = (*SQLSessionStore)(nil)

func NewSQLSessionStore(db *sql.DB) *SQLSessionStore {
	if db == nil {
		panic("conversation: sql db cannot be nil")
	}
	return &SQLSessionStore{db: db}
}

func (s *SQLSessionStore) Load(ctx context.Context, clinicID, phone string) (*Session, error) {
	var (
		raw  []byte
		sess = Session{ClinicID: clinicID, Phone: phone}
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT history, human_handoff, handoff_reason, created_at, updated_at
		 FROM conversation_sessions WHERE clinic_id = $1 AND phone = $2`,
		clinicID, phone,
	).Scan(&raw, &sess.HumanHandoff, &sess.HandoffReason, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("conversation: load session: %w", err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &sess.History); err != nil {
			return nil, fmt.Errorf("conversation: decode history: %w", err)
		}
	}
	return &sess, nil
}

func (s *SQLSessionStore) Save(ctx context.Context, session *Session) error {
	if session == nil || session.ClinicID == "" || session.Phone == "" {
		return errors.New("conversation: session requires clinic and phone")
	}
	history := session.History
	if history == nil {
		history = []ChatMessage{}
	}
	raw, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("conversation: encode history: %w", err)
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversation_sessions (clinic_id, phone, history, human_handoff, handoff_reason, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (clinic_id, phone) DO UPDATE SET
		   history = EXCLUDED.history,
		   human_handoff = EXCLUDED.human_handoff,
		   handoff_reason = EXCLUDED.handoff_reason,
		   updated_at = EXCLUDED.updated_at`,
		session.ClinicID, session.Phone, raw, session.HumanHandoff, session.HandoffReason, session.CreatedAt, session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("conversation: save session: %w", err)
	}
	return nil
}
