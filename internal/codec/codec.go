// Package codec encodes and decodes record attribute maps to and from
// the stored snapshot payload. The payload is plain JSON: self-describing,
// stable under round-trip, and wide enough for the attribute value space
// (numbers, strings, booleans, nulls, nested structures, RFC3339
// timestamp strings). Pure transform, no side effects.
package codec

import (
	"encoding/json"
	"fmt"

	"github.com/annalist/annalist-backend/internal/common"
	"github.com/annalist/annalist-backend/internal/domain"
)

// Encode serializes an attribute map, dropping every key in exclude
// before writing.
func Encode(attrs domain.AttributeMap, exclude map[string]bool) ([]byte, error) {
	filtered := make(domain.AttributeMap, len(attrs))
	for k, v := range attrs {
		if exclude[k] {
			continue
		}
		filtered[k] = v
	}

	payload, err := json.Marshal(filtered)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return payload, nil
}

// Decode parses a stored payload back into an attribute map. A payload
// that cannot be parsed into a map fails with ErrCorruptPayload.
func Decode(payload []byte) (domain.AttributeMap, error) {
	var attrs domain.AttributeMap
	if err := json.Unmarshal(payload, &attrs); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCorruptPayload, err)
	}
	if attrs == nil {
		return nil, fmt.Errorf("%w: payload is not an object", common.ErrCorruptPayload)
	}
	return attrs, nil
}
