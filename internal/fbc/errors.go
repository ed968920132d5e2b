package fbc

import "errors"

var (
	// ErrKeySize is returned by ParseKey when the input is not exactly KeySize bytes.
	ErrKeySize = errors.New("fbc: key must be exactly 256 bytes")

	// ErrShortCiphertext is returned when a ciphertext is too short to hold
	// the marker bytes of the configured number of rounds.
	ErrShortCiphertext = errors.New("fbc: ciphertext shorter than the configured rounds")

	// ErrMalformedFrame is returned when a multi-worker ciphertext cannot be
	// split back into blocks using its trailer.
	ErrMalformedFrame = errors.New("fbc: ciphertext frame cannot be partitioned")
)
