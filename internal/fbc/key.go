package fbc

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the length of a permutation key in bytes.
const KeySize = 256

// Argon2id parameters used by DeriveKey.
const (
	deriveTime    = 1
	deriveMemory  = 64 * 1024
	deriveThreads = 4
	deriveSeedLen = 32
)

var deriveInfo = []byte("fbcrypt permutation key v1")

// Key is a permutation of the 256 byte values. Every other part of the
// package assumes each value appears exactly once; nothing enforces it.
type Key [KeySize]byte

// GenerateKey returns a uniformly random permutation drawn from crypto/rand.
func GenerateKey() (Key, error) {
	return generateKeyFromReader(rand.Reader)
}

// GenerateKeyFrom shuffles the identity permutation with Fisher-Yates, drawing
// every index from next with Lemire's unbiased bounded method.
func GenerateKeyFrom(next func() uint32) Key {
	var k Key
	for i := range k {
		k[i] = byte(i)
	}
	for i := len(k) - 1; i > 0; i-- {
		j := lemireIndex(next, uint32(i+1))
		k[i], k[j] = k[j], k[i]
	}
	return k
}

// DeriveKey deterministically derives a permutation key from a passphrase.
// The passphrase is stretched with argon2id and the result is expanded with
// HKDF-SHA256 into the random stream that drives the shuffle.
func DeriveKey(passphrase, salt []byte) (Key, error) {
	seed := argon2.IDKey(passphrase, salt, deriveTime, deriveMemory, deriveThreads, deriveSeedLen)
	key, err := generateKeyFromReader(hkdf.New(sha256.New, seed, salt, deriveInfo))
	if err != nil {
		return Key{}, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

// ParseKey copies raw into a Key. Only the length is checked.
func ParseKey(raw []byte) (Key, error) {
	var k Key
	if len(raw) != KeySize {
		return k, ErrKeySize
	}
	copy(k[:], raw)
	return k, nil
}

// IsPermutation reports whether every byte value occurs exactly once in k.
func (k Key) IsPermutation() bool {
	var seen [KeySize]bool
	for _, v := range k {
		if seen[v] {
			return false
		}
		seen[v] = true
	}
	return true
}

// String returns the key as lowercase hex.
func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

func generateKeyFromReader(r io.Reader) (Key, error) {
	var (
		buf     [4]byte
		readErr error
	)
	next := func() uint32 {
		// After a failed read the shuffle still has to terminate; the
		// all-ones word is never rejected by lemireIndex.
		if readErr != nil {
			return ^uint32(0)
		}
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			readErr = err
			return ^uint32(0)
		}
		return binary.BigEndian.Uint32(buf[:])
	}
	k := GenerateKeyFrom(next)
	if readErr != nil {
		return Key{}, fmt.Errorf("read entropy: %w", readErr)
	}
	return k, nil
}

// lemireIndex returns an unbiased random index in [0, n) using Lemire's
// multiply-and-reject method.
func lemireIndex(next func() uint32, n uint32) int {
	prod := uint64(next()) * uint64(n)
	low := uint32(prod)
	if low < n {
		threshold := -n % n
		for low < threshold {
			prod = uint64(next()) * uint64(n)
			low = uint32(prod)
		}
	}
	return int(prod >> 32)
}
