package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// verifyHMACSHA256Hex checks a hex-encoded HMAC-SHA256 signature over the
// payload. hmac.Equal keeps the comparison constant time.
func verifyHMACSHA256Hex(payload []byte, signatureHex, secret string) bool {
	sig := strings.TrimSpace(signatureHex)
	if sig == "" || strings.TrimSpace(secret) == "" {
		return false
	}

	decoded, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), decoded)
}

// hmacSHA256Hex computes the hex HMAC-SHA256 of msg with secret.
func hmacSHA256Hex(msg, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(msg))
	return hex.EncodeToString(mac.Sum(nil))
}

// equalConstantTime compares two hex digests without leaking length timing.
func equalConstantTime(a, b string) bool {
	ab, err := hex.DecodeString(strings.ToLower(strings.TrimSpace(a)))
	if err != nil {
		return false
	}
	bb, err := hex.DecodeString(strings.ToLower(strings.TrimSpace(b)))
	if err != nil {
		return false
	}
	return hmac.Equal(ab, bb)
}
