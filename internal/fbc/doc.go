// Package fbc implements the FBC byte-substitution cipher and its
// block-parallel framing.
//
// FBC substitutes every byte of a buffer through one of 256 row tables derived
// from a 256-byte permutation key. The row used for the next byte is chosen by
// a running selector that is advanced by the ciphertext of the byte just
// written, so every substitution depends on everything before it in the round.
// Each round appends one marker byte that records the selector, and later
// rounds substitute that marker too.
//
// # Basic Usage
//
//	c, err := fbc.New() // random key, one round, one worker
//	if err != nil {
//	    log.Fatal(err)
//	}
//	c.SetRuns(4)
//	c.SetThreads(8)
//
//	ciphertext := c.Encrypt(plaintext)
//	plaintext, err = c.Decrypt(ciphertext)
//
// # Output Size
//
// With one worker the ciphertext is len(plaintext)+runs bytes long. With N > 1
// workers the buffer is cut into N blocks, each block grows by runs bytes, and
// an 8-byte block-length trailer plus two obfuscation rounds are added:
// len(plaintext) + N*runs + 10 bytes.
//
// # Security
//
// FBC is not a vetted cipher. It provides no authentication and no integrity
// check. Decrypting with a different key, round count or worker count than was
// used to encrypt yields garbage without an error.
//
// # Thread Safety
//
// Encrypt and Decrypt may be called concurrently on a Cipher whose
// configuration is not changing. SetKey, SetRuns and SetThreads must not run
// while any Encrypt or Decrypt call on the same Cipher is in flight; callers
// serialize configuration changes themselves. Use WithParams to obtain
// per-request views that share the key tables instead of mutating a shared
// Cipher.
package fbc
