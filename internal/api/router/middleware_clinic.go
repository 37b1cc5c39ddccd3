package router

import (
	"net/http"

	httpmiddleware "github.com/wolfman30/clinic-booking-engine/internal/http/middleware"
)

// requireClinicID resolves the tenant for /v1 routes. Production requires a
// clinic JWT; with auth disabled the X-Clinic-Id header is trusted.
func requireClinicID(cfg *Config) func(http.Handler) http.Handler {
	if cfg.AuthDisabled {
		return httpmiddleware.HeaderClinicID
	}
	return httpmiddleware.ClinicAuth(cfg.JWTSecret)
}
