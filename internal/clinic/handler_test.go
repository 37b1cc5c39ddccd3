package clinic

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wolfman30/clinic-booking-engine/internal/tenancy"
	"github.com/wolfman30/clinic-booking-engine/pkg/logging"
)

type mockStore struct {
	profiles map[string]*Profile
}

func newMockStore() *mockStore {
	return &mockStore{profiles: make(map[string]*Profile)}
}

func (m *mockStore) Get(_ context.Context, clinicID string) (*Profile, error) {
	if p, ok := m.profiles[clinicID]; ok {
		cp := *p
		return &cp, nil
	}
	return DefaultProfile(clinicID), nil
}

func (m *mockStore) Set(_ context.Context, p *Profile) error {
	m.profiles[p.ClinicID] = p
	return nil
}

func withClinic(req *http.Request, clinicID string) *http.Request {
	return req.WithContext(tenancy.WithClinicID(req.Context(), clinicID))
}

func TestHandler_GetProfileDefault(t *testing.T) {
	h := NewHandler(newMockStore(), logging.Discard())

	rec := httptest.NewRecorder()
	h.GetProfile(rec, withClinic(httptest.NewRequest(http.MethodGet, "/v1/clinic", nil), "clinic-a"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var p Profile
	if err := json.NewDecoder(rec.Body).Decode(&p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.ClinicID != "clinic-a" {
		t.Fatalf("expected clinic-a, got %q", p.ClinicID)
	}
}

func TestHandler_UpdateProfilePartial(t *testing.T) {
	store := newMockStore()
	h := NewHandler(store, logging.Discard())

	body := []byte(`{"name":"Glow Clinic","tone":"clinical","notification_emails":["owner@glow.example"]}`)
	rec := httptest.NewRecorder()
	h.UpdateProfile(rec, withClinic(httptest.NewRequest(http.MethodPut, "/v1/clinic", bytes.NewReader(body)), "clinic-a"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	saved := store.profiles["clinic-a"]
	if saved == nil || saved.Name != "Glow Clinic" || saved.Tone != "clinical" {
		t.Fatalf("unexpected saved profile %+v", saved)
	}
	if saved.Timezone != "UTC" || !saved.HandoffAlerts {
		t.Fatalf("expected untouched fields to keep defaults, got %+v", saved)
	}
}

func TestHandler_RejectsMissingClinic(t *testing.T) {
	h := NewHandler(newMockStore(), logging.Discard())
	rec := httptest.NewRecorder()
	h.GetProfile(rec, httptest.NewRequest(http.MethodGet, "/v1/clinic", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandler_RejectsBadJSON(t *testing.T) {
	h := NewHandler(newMockStore(), logging.Discard())
	rec := httptest.NewRecorder()
	h.UpdateProfile(rec, withClinic(httptest.NewRequest(http.MethodPut, "/v1/clinic", bytes.NewReader([]byte("{"))), "clinic-a"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
