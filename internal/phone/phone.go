// Package phone canonicalizes WhatsApp numbers so transport-prefixed and
// bare forms of the same number compare equal.
package phone

import "strings"

const transportPrefix = "whatsapp:"

// StripTransport removes the messaging-provider prefix, e.g.
// "whatsapp:+15551234567" -> "+15551234567".
func StripTransport(number string) string {
	return strings.TrimPrefix(strings.TrimSpace(number), transportPrefix)
}

// Normalize returns the canonical form: transport prefix dropped, every
// non-digit removed, then a leading "+" applied. Matching against stored
// numbers must be exact after normalization.
func Normalize(number string) string {
	s := StripTransport(number)

	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return ""
	}
	return "+" + digits
}

// WithTransport prepends the provider prefix expected on the wire.
func WithTransport(number string) string {
	if strings.HasPrefix(number, transportPrefix) {
		return number
	}
	return transportPrefix + number
}
