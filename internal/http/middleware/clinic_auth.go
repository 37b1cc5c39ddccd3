package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wolfman30/clinic-booking-engine/internal/tenancy"
)

// ClinicClaims is the token issued to a clinic's dashboard or integration.
type ClinicClaims struct {
	jwt.RegisteredClaims
	ClinicID string `json:"clinic_id"`
}

// ClinicAuth enforces an HMAC-signed JWT carrying a clinic_id claim and
// stores the clinic id in the request context.
func ClinicAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				writeJSONError(w, http.StatusUnauthorized, "auth not configured")
				return
			}
			auth := r.Header.Get("Authorization")
			if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
				writeJSONError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}
			tokenString := strings.TrimPrefix(auth, "Bearer ")
			claims := ClinicClaims{}
			token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				writeJSONError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			clinicID := strings.TrimSpace(claims.ClinicID)
			if clinicID == "" {
				writeJSONError(w, http.StatusUnauthorized, "token has no clinic")
				return
			}
			ctx := tenancy.WithClinicID(r.Context(), clinicID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// HeaderClinicID trusts the X-Clinic-Id header. Only for local development
// with auth disabled.
func HeaderClinicID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clinicID := strings.TrimSpace(r.Header.Get(ClinicIDHeader))
		if clinicID == "" {
			writeJSONError(w, http.StatusUnauthorized, "missing X-Clinic-Id header")
			return
		}
		next.ServeHTTP(w, r.WithContext(tenancy.WithClinicID(r.Context(), clinicID)))
	})
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
