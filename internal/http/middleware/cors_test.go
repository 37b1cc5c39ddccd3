package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func corsRequest(method, origin, preflightMethod string) *http.Request {
	req := httptest.NewRequest(method, "/v1/appointments/appt-1", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	if preflightMethod != "" {
		req.Header.Set("Access-Control-Request-Method", preflightMethod)
	}
	return req
}

func TestCORSPreflight(t *testing.T) {
	cases := []struct {
		name    string
		origins []string
		origin  string
		method  string
		want    int
	}{
		{name: "dashboard reschedule", origins: []string{"https://admin.clinic.example"}, origin: "https://admin.clinic.example", method: http.MethodPatch, want: http.StatusNoContent},
		{name: "dashboard cancel", origins: []string{"https://admin.clinic.example"}, origin: "https://admin.clinic.example", method: http.MethodDelete, want: http.StatusNoContent},
		{name: "configured with trailing slash and caps", origins: []string{"https://Admin.Clinic.example/"}, origin: "https://admin.clinic.example", method: http.MethodPost, want: http.StatusNoContent},
		{name: "wildcard", origins: []string{"*"}, origin: "https://random.example", method: http.MethodGet, want: http.StatusNoContent},
		{name: "unlisted origin", origins: []string{"https://admin.clinic.example"}, origin: "https://evil.example", method: http.MethodDelete, want: http.StatusForbidden},
		{name: "unsupported method", origins: []string{"https://admin.clinic.example"}, origin: "https://admin.clinic.example", method: "TRACE", want: http.StatusMethodNotAllowed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			called := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })
			rec := httptest.NewRecorder()
			CORS(tc.origins)(next).ServeHTTP(rec, corsRequest(http.MethodOptions, tc.origin, tc.method))

			if called {
				t.Fatal("preflight must not reach the router")
			}
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
			if tc.want == http.StatusNoContent {
				if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tc.origin {
					t.Fatalf("expected allow origin %q, got %q", tc.origin, got)
				}
				if got := rec.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST, PUT, PATCH, DELETE" {
					t.Fatalf("unexpected allow methods %q", got)
				}
				if got := rec.Header().Get("Access-Control-Allow-Headers"); got != "Authorization, Content-Type, X-Clinic-Id" {
					t.Fatalf("unexpected allow headers %q", got)
				}
			}
		})
	}
}

func TestCORSSimpleRequests(t *testing.T) {
	mw := CORS([]string{"https://admin.clinic.example"})
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	rec := httptest.NewRecorder()
	mw(next).ServeHTTP(rec, corsRequest(http.MethodGet, "https://admin.clinic.example", ""))
	if rec.Code != http.StatusOK || rec.Header().Get("Access-Control-Allow-Origin") != "https://admin.clinic.example" {
		t.Fatalf("expected listed origin to pass with CORS headers, got %d %v", rec.Code, rec.Header())
	}
	if rec.Header().Get("Vary") != "Origin" {
		t.Fatalf("expected Vary: Origin, got %q", rec.Header().Get("Vary"))
	}

	rec = httptest.NewRecorder()
	mw(next).ServeHTTP(rec, corsRequest(http.MethodGet, "https://evil.example", ""))
	if rec.Code != http.StatusOK || rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("expected unlisted origin to get no CORS headers, got %v", rec.Header())
	}

	// A bare OPTIONS without a preflight method is an ordinary request.
	rec = httptest.NewRecorder()
	mw(next).ServeHTTP(rec, corsRequest(http.MethodOptions, "https://admin.clinic.example", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected OPTIONS without preflight headers to reach the handler, got %d", rec.Code)
	}
}
