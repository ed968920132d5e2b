package fbc

import (
	"math/rand"
	"testing"
)

// seededKey returns a deterministic permutation key for tests.
func seededKey(seed uint64) Key {
	r := rand.New(rand.NewSource(int64(seed)))
	return GenerateKeyFrom(r.Uint32)
}

func identityKey() Key {
	var k Key
	for i := range k {
		k[i] = byte(i)
	}
	return k
}

func randomBytes(t testing.TB, seed uint64, n int) []byte {
	t.Helper()
	r := rand.New(rand.NewSource(int64(seed)))
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(r.Uint32())
	}
	return out
}
