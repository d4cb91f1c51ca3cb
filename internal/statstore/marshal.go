package statstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// marshalModeCounts converts the per-kind mode counts to JSON TEXT for the
// runs row. Go's json.Marshal sorts map keys alphabetically, so identical
// snapshots always serialize to identical TEXT.
func marshalModeCounts(counts map[string]int64) (string, error) {
	if len(counts) == 0 {
		return "{}", nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(counts); err != nil {
		return "", fmt.Errorf("marshal mode counts: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalModeCounts parses JSON TEXT to the per-kind mode counts map.
// Always returns a non-nil map.
func unmarshalModeCounts(data string) (map[string]int64, error) {
	counts := make(map[string]int64)
	if data == "" || data == "{}" {
		return counts, nil
	}
	if err := json.Unmarshal([]byte(data), &counts); err != nil {
		return nil, fmt.Errorf("unmarshal mode counts: %w", err)
	}
	return counts, nil
}

// marshalComponents converts "kind:name" references to a JSON array TEXT.
func marshalComponents(refs []string) (string, error) {
	if len(refs) == 0 {
		return "[]", nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(refs); err != nil {
		return "", fmt.Errorf("marshal components: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalComponents parses a JSON array TEXT to "kind:name" references.
// Returns an empty slice (not nil) for empty input.
func unmarshalComponents(data string) ([]string, error) {
	if data == "" || data == "[]" {
		return []string{}, nil
	}
	var refs []string
	if err := json.Unmarshal([]byte(data), &refs); err != nil {
		return nil, fmt.Errorf("unmarshal components: %w", err)
	}
	return refs, nil
}
