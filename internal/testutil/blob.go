// Package testutil holds helpers shared by tests.
package testutil

import (
	"math/rand/v2"
)

// DefaultBlobSize is the size RandomBlob uses for a non-positive size.
const DefaultBlobSize = 512

// RandomBlob returns size bytes drawn from rng. A nil rng uses the global
// source.
func RandomBlob(rng *rand.Rand, size int) []byte {
	if size <= 0 {
		size = DefaultBlobSize
	}
	blob := make([]byte, size)
	for i := range blob {
		if rng != nil {
			blob[i] = byte(rng.UintN(256))
		} else {
			blob[i] = byte(rand.UintN(256))
		}
	}
	return blob
}
