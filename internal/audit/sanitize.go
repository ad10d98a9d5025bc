package audit

import "strings"

const (
	redactedPlaceholder = "[REDACTED]"
	maxDetailString     = 1000
	truncationSuffix    = "...[truncated]"
)

// sensitiveMarkers are matched as substrings of lower-cased detail keys. Any
// key containing one has its entire value replaced before persistence.
var sensitiveMarkers = []string{
	"password",
	"token",
	"secret",
	"api_key",
	"apikey",
	"authorization",
	"auth",
	"credential",
	"ssn",
	"credit_card",
	"card_number",
}

func sensitiveKey(key string) bool {
	key = strings.ToLower(key)
	for _, marker := range sensitiveMarkers {
		if strings.Contains(key, marker) {
			return true
		}
	}
	return false
}

// Sanitize returns a deep copy of details with sensitive values redacted and
// oversized strings truncated. The input is never mutated.
func Sanitize(details map[string]any) map[string]any {
	if details == nil {
		return nil
	}
	out := make(map[string]any, len(details))
	for key, value := range details {
		if sensitiveKey(key) {
			out[key] = redactedPlaceholder
			continue
		}
		out[key] = sanitizeValue(value)
	}
	return out
}

func sanitizeValue(value any) any {
	switch v := value.(type) {
	case string:
		if len(v) > maxDetailString {
			return v[:maxDetailString] + truncationSuffix
		}
		return v
	case map[string]any:
		return Sanitize(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = sanitizeValue(item)
		}
		return out
	default:
		return v
	}
}
