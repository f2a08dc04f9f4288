package logrecord

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RejectedRecord describes why one element of a decoded batch was dropped.
type RejectedRecord struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// DecodeBatch accepts a JSON object or a JSON array of objects and
// normalizes each element independently (spec §4.A, §4.E). A malformed
// top-level payload is a ClientMalformed error; an invalid individual
// element is collected as a RejectedRecord and does not affect the rest of
// the batch.
func (n *Normalizer) DecodeBatch(body []byte) ([]*Record, []RejectedRecord, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil, fmt.Errorf("empty body")
	}

	var elements []json.RawMessage
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &elements); err != nil {
			return nil, nil, fmt.Errorf("invalid JSON array: %w", err)
		}
	} else {
		if !json.Valid(trimmed) {
			return nil, nil, fmt.Errorf("invalid JSON")
		}
		elements = []json.RawMessage{json.RawMessage(trimmed)}
	}

	accepted := make([]*Record, 0, len(elements))
	var rejected []RejectedRecord
	for i, raw := range elements {
		rec, err := n.Normalize(raw)
		if err != nil {
			rejected = append(rejected, RejectedRecord{Index: i, Reason: err.Error()})
			continue
		}
		accepted = append(accepted, rec)
	}

	return accepted, rejected, nil
}
