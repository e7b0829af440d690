// Package signature computes and verifies webhook payload signatures so
// receivers can authenticate deliveries.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Header carries the payload signature on every delivery.
const Header = "X-Idswyft-Signature"

// AttemptHeader carries the 1-based attempt counter so receivers can detect
// retries of the same delivery.
const AttemptHeader = "X-Idswyft-Delivery-Attempt"

const prefix = "sha256="

// Compute returns the signature header value for a payload:
// "sha256=" followed by the hex HMAC-SHA256 of the payload under the secret.
func Compute(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return prefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a received header value against the payload in constant time.
func Verify(secret string, payload []byte, header string) bool {
	expected := Compute(secret, payload)
	return hmac.Equal([]byte(expected), []byte(header))
}
