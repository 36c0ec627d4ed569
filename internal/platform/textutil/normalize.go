// Package textutil holds small string-cleaning helpers shared by the
// configuration loader.
package textutil

import "strings"

// CleanMap returns a copy of values with keys and values trimmed. Entries
// whose key trims to empty are dropped; an input with nothing left yields nil.
func CleanMap(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]string, len(values))
	for key, value := range values {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		out[key] = strings.TrimSpace(value)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// SplitCSV splits a comma-separated value into trimmed, non-empty parts.
// It never returns nil so callers can range and append without guards.
func SplitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
