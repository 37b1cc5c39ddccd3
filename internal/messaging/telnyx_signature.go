package messaging

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultTelnyxSignatureSkew bounds how old a signed Telnyx webhook may be.
const DefaultTelnyxSignatureSkew = 5 * time.Minute

// VerifyTelnyxSignature checks the Telnyx-Signature header, a hex HMAC-SHA256
// of "<timestamp>.<payload>" keyed with the webhook secret.
func VerifyTelnyxSignature(secret, timestamp, signature string, payload []byte, now time.Time, maxSkew time.Duration) error {
	if secret == "" {
		return errors.New("messaging: telnyx webhook secret not configured")
	}
	ts := strings.TrimSpace(timestamp)
	if ts == "" {
		return errors.New("messaging: missing telnyx signature timestamp")
	}
	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("messaging: invalid telnyx signature timestamp: %w", err)
	}
	if maxSkew <= 0 {
		maxSkew = DefaultTelnyxSignatureSkew
	}
	if diff := now.Sub(time.Unix(sec, 0)); diff > maxSkew || diff < -maxSkew {
		return fmt.Errorf("messaging: telnyx signature timestamp skew %s exceeds limit", diff)
	}
	actual := strings.ToLower(strings.TrimSpace(signature))
	if actual == "" {
		return errors.New("messaging: missing telnyx signature header")
	}
	if !hmac.Equal([]byte(signTelnyxPayload(secret, ts, payload)), []byte(actual)) {
		return errors.New("messaging: telnyx signature mismatch")
	}
	return nil
}

func signTelnyxPayload(secret, timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "." + string(payload)))
	return hex.EncodeToString(mac.Sum(nil))
}
