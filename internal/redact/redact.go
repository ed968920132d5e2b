// Package redact masks key material and credentials before they reach logs.
package redact

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	redactedSecret = "[REDACTED_SECRET]"
	redactedKey    = "[REDACTED_KEY]"
)

// sensitiveFields are metadata names whose values are always masked.
var sensitiveFields = map[string]struct{}{
	"key":           {},
	"key_hex":       {},
	"passphrase":    {},
	"password":      {},
	"token":         {},
	"authorization": {},
	"secret":        {},
}

// identifierFields hold trace and span IDs, which are hex but not secret.
var identifierFields = map[string]struct{}{
	"trace_id":       {},
	"span_id":        {},
	"parent_span_id": {},
}

var (
	kvSecretRe = regexp.MustCompile(`(?i)((?:passphrase|password|token|secret|key)\s*[:=]\s*)(['"]?)([A-Za-z0-9+/=_\-]{8,})(['"]?)`)
	bearerRe   = regexp.MustCompile(`(?i)\b(bearer)\s+([A-Za-z0-9._~+/\-]{8,}=*)`)
	// A serialized key is 512 hex digits; shorter runs still leak rows of it.
	hexRunRe = regexp.MustCompile(`\b[0-9a-fA-F]{32,}\b`)
)

// String masks credentials and hex key material in free text.
func String(in string) string {
	if strings.TrimSpace(in) == "" {
		return in
	}
	masked := kvSecretRe.ReplaceAllString(in, `$1$2`+redactedSecret+`$4`)
	masked = bearerRe.ReplaceAllString(masked, `$1 `+redactedSecret)
	masked = hexRunRe.ReplaceAllString(masked, redactedKey)
	return masked
}

// Interface masks recognised sensitive values within nested structures. Raw
// byte slices are never logged, only their length.
func Interface(value any) any {
	switch v := value.(type) {
	case string:
		return String(v)
	case []byte:
		return fmt.Sprintf("[REDACTED_BYTES len=%d]", len(v))
	case fmt.Stringer:
		return String(v.String())
	case []string:
		return Slice(v)
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			out[i] = Interface(elem)
		}
		return out
	case map[string]string:
		return MapString(v)
	case map[string]any:
		return Map(v)
	default:
		return value
	}
}

// Map masks sensitive fields and values within a map of arbitrary values.
func Map(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		if IsSensitiveField(k) {
			out[k] = redactedSecret
			continue
		}
		if _, ok := identifierFields[strings.ToLower(k)]; ok {
			if _, isString := v.(string); isString {
				out[k] = v
				continue
			}
		}
		out[k] = Interface(v)
	}
	return out
}

// MapString masks sensitive fields and values within a string map.
func MapString(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		if IsSensitiveField(k) {
			out[k] = redactedSecret
			continue
		}
		out[k] = String(v)
	}
	return out
}

// Slice masks sensitive values within a slice of strings.
func Slice(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = String(v)
	}
	return out
}

// IsSensitiveField reports whether values stored under name are always
// masked. Matching ignores case and surrounding whitespace.
func IsSensitiveField(name string) bool {
	_, ok := sensitiveFields[strings.ToLower(strings.TrimSpace(name))]
	return ok
}
