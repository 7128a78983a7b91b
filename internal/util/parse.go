package util

import (
	"encoding/json"
	"fmt"

	"github.com/kaptinlin/jsonrepair"
)

// DecodeArguments parses a JSON object string into a map. Language models
// occasionally emit slightly malformed JSON (trailing commas, single quotes,
// unquoted keys), so a strict parse failure falls back to jsonrepair before
// giving up.
func DecodeArguments(s string) (map[string]any, error) {
	if s == "" {
		return map[string]any{}, nil
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(s), &args); err == nil {
		return args, nil
	}

	repaired, err := jsonrepair.JSONRepair(s)
	if err != nil {
		return nil, fmt.Errorf("failed to parse arguments: %w", err)
	}

	if err := json.Unmarshal([]byte(repaired), &args); err != nil {
		return nil, fmt.Errorf("failed to parse repaired arguments: %w", err)
	}

	return args, nil
}
