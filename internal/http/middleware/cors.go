package middleware

import (
	"net/http"
	"slices"
	"strings"
)

// ClinicIDHeader carries the tenant in development mode.
const ClinicIDHeader = "X-Clinic-Id"

var (
	corsMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete}
	corsHeaders = []string{"Authorization", "Content-Type", ClinicIDHeader}
)

// CORS lets the clinic dashboard call /v1 from the listed origins. "*" admits
// any origin. Preflights stop here: an unlisted origin gets 403 and a method
// the API does not serve gets 405.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	origins := newOriginSet(allowedOrigins)
	methods := strings.Join(corsMethods, ", ")
	headers := strings.Join(corsHeaders, ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			allowed := origin != "" && origins.allows(origin)
			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}

			requested := r.Header.Get("Access-Control-Request-Method")
			if r.Method != http.MethodOptions || origin == "" || requested == "" {
				next.ServeHTTP(w, r)
				return
			}
			switch {
			case !allowed:
				w.WriteHeader(http.StatusForbidden)
			case !slices.Contains(corsMethods, strings.ToUpper(strings.TrimSpace(requested))):
				w.Header().Set("Allow", methods)
				w.WriteHeader(http.StatusMethodNotAllowed)
			default:
				w.Header().Set("Access-Control-Allow-Methods", methods)
				w.Header().Set("Access-Control-Allow-Headers", headers)
				w.Header().Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusNoContent)
			}
		})
	}
}

type originSet struct {
	any   bool
	exact map[string]struct{}
}

func newOriginSet(list []string) originSet {
	set := originSet{exact: map[string]struct{}{}}
	for _, origin := range list {
		origin = normalizeOrigin(origin)
		switch origin {
		case "":
		case "*":
			set.any = true
		default:
			set.exact[origin] = struct{}{}
		}
	}
	return set
}

func (s originSet) allows(origin string) bool {
	if s.any {
		return true
	}
	_, ok := s.exact[normalizeOrigin(origin)]
	return ok
}

// normalizeOrigin lower-cases and drops a trailing slash so
// "https://Admin.Clinic.com/" in config matches the browser's Origin.
func normalizeOrigin(origin string) string {
	return strings.TrimRight(strings.ToLower(strings.TrimSpace(origin)), "/")
}
