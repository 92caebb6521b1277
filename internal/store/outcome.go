package store

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EncodeOutcomes serializes an outcome list for storage. A nil or empty list
// encodes as an empty JSON array.
func EncodeOutcomes(outcomes []Outcome) ([]byte, error) {
	if outcomes == nil {
		outcomes = []Outcome{}
	}
	data, err := json.Marshal(outcomes)
	if err != nil {
		return nil, fmt.Errorf("marshaling outcomes: %w", err)
	}
	return data, nil
}

// DecodeOutcomes parses a stored outcome payload. Parsing is lenient:
// a payload that is not a JSON array yields no outcomes, and entries that are
// not objects or that lack entityID or field are dropped rather than
// rejected. Absent optional fields read back as empty strings.
func DecodeOutcomes(data []byte) []Outcome {
	if len(data) == 0 {
		return nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}

	outcomes := make([]Outcome, 0, len(raw))
	for _, entry := range raw {
		var o Outcome
		if err := json.Unmarshal(entry, &o); err != nil {
			continue
		}
		if strings.TrimSpace(o.EntityID) == "" || strings.TrimSpace(o.Field) == "" {
			continue
		}
		outcomes = append(outcomes, o)
	}

	if len(outcomes) == 0 {
		return nil
	}
	return outcomes
}
