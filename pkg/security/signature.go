package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// AuthenticityToken is the payment gateway's webhook signature: the hex
// SHA-256 of secret + "-" + body.
func AuthenticityToken(secret string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(secret))
	h.Write([]byte("-"))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyAuthenticityToken compares the presented token in constant time.
func VerifyAuthenticityToken(secret string, body []byte, presented string) bool {
	if secret == "" || presented == "" {
		return false
	}
	expected := AuthenticityToken(secret, body)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(presented)))) == 1
}

// HMACSHA256 returns the hex HMAC-SHA256 of body.
func HMACSHA256(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMACSHA256 checks a "sha256=<hex>" style header value. The prefix is
// optional.
func VerifyHMACSHA256(secret string, body []byte, header string) bool {
	if secret == "" {
		return false
	}
	presented := strings.TrimSpace(header)
	presented = strings.TrimPrefix(presented, "sha256=")
	got, err := hex.DecodeString(presented)
	if err != nil || len(got) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), got)
}

// SHA256Hex fingerprints a payload.
func SHA256Hex(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
