package store

import (
	"encoding/json"
	"fmt"
)

// Serialized blob columns (topic tags, run error lists, run metadata) share
// one versioned envelope so every call site encodes and decodes the same
// way. Bumping codecVersion is the migration point for the blob format.
const codecVersion = 1

type blobEnvelope struct {
	V    int             `json:"v"`
	Data json.RawMessage `json:"data"`
}

func encodeBlob(data any) (string, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to encode blob payload: %w", err)
	}
	out, err := json.Marshal(blobEnvelope{V: codecVersion, Data: raw})
	if err != nil {
		return "", fmt.Errorf("failed to encode blob envelope: %w", err)
	}
	return string(out), nil
}

func decodeBlob(s string, into any) error {
	var env blobEnvelope
	if err := json.Unmarshal([]byte(s), &env); err != nil {
		return fmt.Errorf("failed to decode blob envelope: %w", err)
	}
	if env.V != codecVersion {
		return fmt.Errorf("unsupported blob version %d", env.V)
	}
	if err := json.Unmarshal(env.Data, into); err != nil {
		return fmt.Errorf("failed to decode blob payload: %w", err)
	}
	return nil
}

// encodeStrings serializes a string list, returning "" for an empty list so
// the column stays NULL.
func encodeStrings(items []string) (string, error) {
	if len(items) == 0 {
		return "", nil
	}
	return encodeBlob(items)
}

func decodeStrings(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	var items []string
	if err := decodeBlob(s, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func encodeStringMap(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "", nil
	}
	return encodeBlob(m)
}

func decodeStringMap(s string) (map[string]string, error) {
	if s == "" {
		return nil, nil
	}
	var m map[string]string
	if err := decodeBlob(s, &m); err != nil {
		return nil, err
	}
	return m, nil
}
