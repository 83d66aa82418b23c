package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces sensitive values in log output.
const RedactedValue = "[REDACTED]"

// sensitiveFragments mark keys whose values never reach the log: bearer
// tokens, signing secrets and database credentials.
var sensitiveFragments = []string{"secret", "token", "authorization", "password", "dsn"}

// IsSensitive reports whether key names a credential.
func IsSensitive(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, frag := range sensitiveFragments {
		if strings.Contains(key, frag) {
			return true
		}
	}
	return false
}

// MaskValue returns the placeholder for non-empty values.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskField builds an attribute that always hides a non-empty value. Empty
// values stay visible so a missing secret is obvious in startup logs.
func MaskField(key, value string) slog.Attr {
	return slog.String(key, MaskValue(value))
}

// redactAttr is applied by the handler to every attribute.
func redactAttr(attr slog.Attr) slog.Attr {
	if !IsSensitive(attr.Key) {
		return attr
	}
	if attr.Value.Kind() == slog.KindString {
		return slog.String(attr.Key, MaskValue(attr.Value.String()))
	}
	return slog.String(attr.Key, RedactedValue)
}
