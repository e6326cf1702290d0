package conversion

import (
	"encoding/json"
	"reflect"
)

// Fingerprint is the ordered tuple of metadata values extracted from a
// sidecar for the routing configuration's key list. Positions with no value
// hold nil. Its JSON encoding is used both for persistence and for duplicate
// grouping.
type Fingerprint []any

// FingerprintFrom extracts the criteria object and ordered value tuple for
// the given keys from a sidecar. Keys absent from the sidecar are left out of
// the criteria object but still occupy a nil slot in the tuple.
func FingerprintFrom(sidecar Sidecar, keys []string) (map[string]any, Fingerprint) {
	criteria := make(map[string]any)
	tuple := make(Fingerprint, 0, len(keys))
	for _, key := range keys {
		value, ok := sidecar[key]
		if ok {
			criteria[key] = value
			tuple = append(tuple, value)
		} else {
			tuple = append(tuple, nil)
		}
	}
	return criteria, tuple
}

// Equal reports deep equality of two tuples.
func (f Fingerprint) Equal(other Fingerprint) bool {
	return reflect.DeepEqual(f, other)
}

// Key returns the JSON encoding, usable as a map key for grouping.
func (f Fingerprint) Key() string {
	raw, err := json.Marshal(f)
	if err != nil {
		return ""
	}
	return string(raw)
}
