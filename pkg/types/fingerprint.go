package types

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
)

// Fingerprint returns a structural hash of the parts of an instance that,
// when changed, require the installed unit to be rewritten: the resolved
// command, the resolved environment and the bind target. Environment keys
// are sorted so the hash is stable across map iteration order.
func (si ServiceInstance) Fingerprint() string {
	h := sha256.New()
	h.Write([]byte(si.Command))
	h.Write([]byte{0})

	keys := make([]string, 0, len(si.Environment))
	for k := range si.Environment {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{'='})
		h.Write([]byte(si.Environment[k]))
		h.Write([]byte{0})
	}

	h.Write([]byte(si.Bind))
	return hex.EncodeToString(h.Sum(nil))
}
