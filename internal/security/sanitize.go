package security

import "strings"

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#x27;",
	"/", "&#x2F;",
)

// EscapeHTML neutralizes HTML-significant characters in user-supplied text
// before storage, so stored values are inert in any HTML context while the
// literal content stays readable.
func EscapeHTML(text string) string {
	return htmlEscaper.Replace(text)
}

// SanitizeText trims and escapes a free-text form field.
func SanitizeText(text string) string {
	return EscapeHTML(strings.TrimSpace(text))
}

// SanitizeEmail normalizes an email address for storage and rate-limit
// keying. Email syntax is validated separately; angle brackets and quotes
// have no business in an address either way.
func SanitizeEmail(email string) string {
	return EscapeHTML(strings.ToLower(strings.TrimSpace(email)))
}
