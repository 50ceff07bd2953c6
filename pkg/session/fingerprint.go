package session

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"time"
)

// Fingerprint is a lightweight digest of a session's attribute set (names
// plus a per-value hash) and its inactivity timeout. It exists purely to
// decide whether persisting is necessary and is never stored.
type Fingerprint struct {
	hashes      map[string]uint64
	maxInactive time.Duration
}

// FingerprintOf computes the fingerprint of an attribute map and timeout.
// Value identity is the hash of the value's canonical JSON encoding, so two
// structurally equal values always hash the same.
func FingerprintOf(attrs map[string]any, maxInactive time.Duration) Fingerprint {
	hashes := make(map[string]uint64, len(attrs))
	for name, value := range attrs {
		hashes[name] = hashValue(value)
	}
	return Fingerprint{hashes: hashes, maxInactive: maxInactive}
}

// Equal reports whether both fingerprints cover the same attribute names with
// the same per-value hashes and the same timeout.
func (f Fingerprint) Equal(other Fingerprint) bool {
	if f.maxInactive != other.maxInactive || len(f.hashes) != len(other.hashes) {
		return false
	}
	for name, h := range f.hashes {
		oh, ok := other.hashes[name]
		if !ok || oh != h {
			return false
		}
	}
	return true
}

func hashValue(value any) uint64 {
	h := fnv.New64a()
	b, err := json.Marshal(value)
	if err != nil {
		// Unencodable values still need a stable identity for dirty checking.
		fmt.Fprintf(h, "%#v", value)
		return h.Sum64()
	}
	h.Write(b)
	return h.Sum64()
}
