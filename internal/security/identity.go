package security

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
)

// UnknownIdentity is used when no valid client IP can be derived from the
// request headers. Submissions still go through; they just share one
// rate-limit bucket.
const UnknownIdentity = "unknown"

// Salts for identifier hashing. Raw emails and IPs are never stored or
// logged; only these salted hashes are.
const (
	ipHashSalt    = "contact_form_ip"
	emailHashSalt = "contact_form_email"
	spanHashSalt  = "contact_form_span"
)

// ClientIP derives the rate-limit identity from proxy headers: the first
// X-Forwarded-For token when it is a valid IP literal, then X-Real-IP, then
// UnknownIdentity. The value is used only for rate limiting.
func ClientIP(headers http.Header) string {
	if xff := headers.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.SplitN(xff, ",", 2)[0])
		if isValidIP(first) {
			return first
		}
	}

	if xri := strings.TrimSpace(headers.Get("X-Real-Ip")); isValidIP(xri) {
		return xri
	}

	return UnknownIdentity
}

func isValidIP(s string) bool {
	return s != "" && net.ParseIP(s) != nil
}

func hashIdentifier(salt, value string) string {
	sum := sha256.Sum256([]byte(salt + ":" + value))
	return hex.EncodeToString(sum[:])
}

func HashIP(ip string) string {
	return hashIdentifier(ipHashSalt, ip)
}

func HashEmail(email string) string {
	return hashIdentifier(emailHashSalt, email)
}

// HashSpan hashes opaque correlation values (lead ids, idempotency inputs)
// with a salt distinct from the rate-limit identifiers.
func HashSpan(value string) string {
	return hashIdentifier(spanHashSalt, value)
}
