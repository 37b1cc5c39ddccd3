package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wolfman30/clinic-booking-engine/internal/clinic"
	"github.com/wolfman30/clinic-booking-engine/internal/conversation"
	httpmiddleware "github.com/wolfman30/clinic-booking-engine/internal/http/middleware"
	"github.com/wolfman30/clinic-booking-engine/pkg/logging"
)

type memoryProfiles struct {
	profiles map[string]*clinic.Profile
}

func (m *memoryProfiles) Get(_ context.Context, clinicID string) (*clinic.Profile, error) {
	if p, ok := m.profiles[clinicID]; ok {
		return p, nil
	}
	return clinic.DefaultProfile(clinicID), nil
}

func (m *memoryProfiles) Set(_ context.Context, p *clinic.Profile) error {
	m.profiles[p.ClinicID] = p
	return nil
}

type recordingReleaser struct {
	clinicID string
	phone    string
}

func (r *recordingReleaser) ReleaseHandoff(_ context.Context, clinicID, phone string) error {
	r.clinicID = clinicID
	r.phone = phone
	return nil
}

func newTestRouter(t *testing.T, mutate func(*Config)) (http.Handler, *recordingReleaser) {
	t.Helper()

	logger := logging.Discard()
	profiles := &memoryProfiles{profiles: map[string]*clinic.Profile{}}
	releaser := &recordingReleaser{}

	cfg := &Config{
		Logger:        logger,
		Clinic:        clinic.NewHandler(profiles, logger),
		Conversations: conversation.NewHandler(releaser, nil, logger),
		AuthDisabled:  true,
	}
	if mutate != nil {
		mutate(cfg)
	}
	return New(cfg), releaser
}

func TestRouterHealthEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var resp map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %v", resp["status"])
	}
}

func TestRouterHealthDegraded(t *testing.T) {
	router, _ := newTestRouter(t, func(cfg *Config) {
		cfg.HealthChecks = map[string]HealthCheck{
			"redis":    func(context.Context) error { return errors.New("connection refused") },
			"postgres": func(context.Context) error { return nil },
		}
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "redis") {
		t.Fatalf("expected failing check in body, got %s", rr.Body.String())
	}
	if strings.Contains(rr.Body.String(), "postgres") {
		t.Fatalf("healthy check should not be listed, got %s", rr.Body.String())
	}
}

func TestRouterMetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, func(cfg *Config) {
		cfg.MetricsHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("booking_attempts_total 1\n"))
		})
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "booking_attempts_total") {
		t.Fatalf("unexpected metrics response %d %q", rr.Code, rr.Body.String())
	}
}

func TestRouterRequiresClinicHeaderInDev(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/clinic", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without header, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/clinic", nil)
	req.Header.Set("X-Clinic-Id", "clinic-1")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with header, got %d: %s", rr.Code, rr.Body.String())
	}
	var p clinic.Profile
	if err := json.NewDecoder(rr.Body).Decode(&p); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if p.ClinicID != "clinic-1" {
		t.Fatalf("expected clinic-1 profile, got %q", p.ClinicID)
	}
}

func TestRouterJWTAuth(t *testing.T) {
	const secret = "test-secret"
	router, _ := newTestRouter(t, func(cfg *Config) {
		cfg.AuthDisabled = false
		cfg.JWTSecret = secret
	})

	// The dev header is ignored once auth is on.
	req := httptest.NewRequest(http.MethodGet, "/v1/clinic", nil)
	req.Header.Set("X-Clinic-Id", "clinic-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}

	claims := httpmiddleware.ClinicClaims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		ClinicID:         "clinic-2",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/v1/clinic", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "clinic-2") {
		t.Fatalf("expected clinic-2 profile, got %s", rr.Body.String())
	}
}

func TestRouterReleaseConversation(t *testing.T) {
	router, releaser := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/conversations/%2B15551234567/release", nil)
	req.Header.Set("X-Clinic-Id", "clinic-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code >= 300 {
		t.Fatalf("expected success, got %d: %s", rr.Code, rr.Body.String())
	}
	if releaser.clinicID != "clinic-1" || releaser.phone != "+15551234567" {
		t.Fatalf("unexpected release target %q %q", releaser.clinicID, releaser.phone)
	}
}

func TestRouterAPIRateLimit(t *testing.T) {
	router, _ := newTestRouter(t, func(cfg *Config) {
		cfg.APIRateLimit = 0.001
		cfg.APIBurst = 1
	})

	do := func() int {
		req := httptest.NewRequest(http.MethodGet, "/v1/clinic", nil)
		req.Header.Set("X-Clinic-Id", "clinic-1")
		req.RemoteAddr = "203.0.113.7:5000"
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr.Code
	}
	if code := do(); code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", code)
	}
	if code := do(); code != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", code)
	}
}

func TestRouterUnknownRoute(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/orgs", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}
