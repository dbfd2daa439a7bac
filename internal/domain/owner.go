package domain

import "fmt"

// AttributeMap is the live key/value state of a versioned record.
// Values are whatever the record exposes: strings, numbers, booleans,
// nulls, nested maps/slices, RFC3339 timestamp strings.
type AttributeMap map[string]any

// Clone returns a shallow copy of the map.
func (m AttributeMap) Clone() AttributeMap {
	out := make(AttributeMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// OwnerRef identifies the owning record of a version: a (type, id) pair.
// One version table serves many unrelated record types, so lookups are
// always keyed by the full pair.
type OwnerRef struct {
	Type string
	ID   string
}

// Key returns the canonical string form, used for per-owner locking.
func (r OwnerRef) Key() string {
	return fmt.Sprintf("%s:%s", r.Type, r.ID)
}

// Owner is the contract the versioning engine needs from a host record.
// The engine never creates or deletes the record itself; it borrows the
// attribute map for capture and revert, and delegates saving back to the
// record's own persistence layer.
type Owner interface {
	// Ref returns the stable (type, id) identity.
	Ref() OwnerRef
	// Attributes returns the current in-memory attribute state.
	Attributes() AttributeMap
	// SetAttributes applies a partial update in memory. Keys not present
	// in the map are left untouched.
	SetAttributes(attrs AttributeMap)
	// Persist durably saves the record.
	Persist() error
}
