package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// DecodeEmbedded unmarshals a JSON field stored inside a row or document.
// Empty input leaves dst untouched. Malformed input is logged and reported
// as false so the caller keeps its default value; it never fails the read.
func DecodeEmbedded(logger *slog.Logger, entity, field string, raw []byte, dst any) bool {
	if len(raw) == 0 || string(raw) == "null" {
		return true
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("malformed embedded data",
			"entity", entity,
			"field", field,
			"error", fmt.Errorf("%w: %w", ErrMalformedEmbeddedData, err),
		)
		return false
	}
	return true
}

// EncodeEmbedded marshals a field for storage, substituting the empty
// value of its shape for nil.
func EncodeEmbedded(v any) ([]byte, error) {
	switch t := v.(type) {
	case map[string]any:
		if t == nil {
			return []byte("{}"), nil
		}
	case []string:
		if t == nil {
			return []byte("[]"), nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling embedded field: %w", err)
	}
	return b, nil
}
