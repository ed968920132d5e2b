// Package keyfile reads and writes FBC permutation keys on disk.
//
// A key file holds either the 256 raw key bytes or the key as 512 hex
// characters. Whitespace around hex keys is ignored.
package keyfile

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/RowanDark/fbcrypt/internal/fbc"
)

// Extension is appended to a data file path to find its default key file.
const Extension = ".k"

// HexSize is the length of a hex-armored key.
const HexSize = 2 * fbc.KeySize

// ErrFormat is returned when key data is neither raw nor hex.
var ErrFormat = errors.New("keyfile: expected 256 raw bytes or 512 hex characters")

// DefaultPath returns the key file path paired with a data file.
func DefaultPath(dataPath string) string {
	return dataPath + Extension
}

// Decode parses raw or hex key data.
func Decode(data []byte) (fbc.Key, error) {
	if len(data) == fbc.KeySize {
		return fbc.ParseKey(data)
	}
	trimmed := bytes.Join(bytes.Fields(data), nil)
	if len(trimmed) != HexSize {
		return fbc.Key{}, ErrFormat
	}
	raw := make([]byte, fbc.KeySize)
	if _, err := hex.Decode(raw, trimmed); err != nil {
		return fbc.Key{}, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return fbc.ParseKey(raw)
}

// Encode serializes key, as hex followed by a newline when armored.
func Encode(key fbc.Key, armored bool) []byte {
	if !armored {
		out := make([]byte, fbc.KeySize)
		copy(out, key[:])
		return out
	}
	out := make([]byte, HexSize+1)
	hex.Encode(out, key[:])
	out[HexSize] = '\n'
	return out
}

// Read loads the key stored at path.
func Read(path string) (fbc.Key, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fbc.Key{}, fmt.Errorf("read key file %s: %w", path, err)
	}
	key, err := Decode(data)
	if err != nil {
		return fbc.Key{}, fmt.Errorf("parse key file %s: %w", path, err)
	}
	return key, nil
}

// Write stores key at path with owner-only permissions. The file is written
// to a temporary name in the same directory and renamed into place.
func Write(path string, key fbc.Key, armored bool) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create key file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("chmod key file: %w", err)
	}
	if _, err := tmp.Write(Encode(key, armored)); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write key file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close key file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename key file: %w", err)
	}
	return nil
}
