package graph

import (
	"fmt"
	"regexp"
)

// Row value helpers. Neo4j returns loosely typed values; these keep the
// call sites tidy.

func getString(row map[string]any, key, defaultValue string) string {
	val, ok := row[key]
	if !ok || val == nil {
		return defaultValue
	}
	if str, ok := val.(string); ok {
		return str
	}
	return defaultValue
}

func getInt64(row map[string]any, key string, defaultValue int64) int64 {
	val, ok := row[key]
	if !ok || val == nil {
		return defaultValue
	}
	switch v := val.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return defaultValue
}

func getStringSlice(row map[string]any, key string) []string {
	val, ok := row[key]
	if !ok || val == nil {
		return []string{}
	}
	slice, ok := val.([]any)
	if !ok {
		return []string{}
	}
	result := make([]string, 0, len(slice))
	for _, v := range slice {
		if str, ok := v.(string); ok {
			result = append(result, str)
		}
	}
	return result
}

// Labels, relationship types and property names cannot be query parameters
// in Cypher, so anything interpolated into query text is validated first.

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier rejects names unsafe to interpolate into query text
func ValidIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("invalid identifier %q", name)
	}
	return nil
}
