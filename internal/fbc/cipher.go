package fbc

// Cipher bundles a key, its tables and the round and worker counts used by
// Encrypt and Decrypt. The zero value is not usable; construct one with New
// or NewWithKey.
//
// Configuration setters must not be called while Encrypt or Decrypt is
// running on the same Cipher. See the package documentation.
type Cipher struct {
	key     Key
	tables  *Tables
	runs    int
	threads int
}

// New returns a Cipher with a freshly generated random key, one round and
// one worker.
func New() (*Cipher, error) {
	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	return NewWithKey(key), nil
}

// NewWithKey returns a Cipher for key with one round and one worker.
func NewWithKey(key Key) *Cipher {
	return &Cipher{
		key:     key,
		tables:  BuildTables(key),
		runs:    1,
		threads: 1,
	}
}

// Key returns a copy of the current key.
func (c *Cipher) Key() Key {
	return c.key
}

// SetKey replaces the key and rebuilds both table sets.
func (c *Cipher) SetKey(key Key) {
	c.key = key
	c.tables = BuildTables(key)
}

// Tables returns the tables derived from the current key. They are read-only.
func (c *Cipher) Tables() *Tables {
	return c.tables
}

// Runs returns the number of rounds applied per call.
func (c *Cipher) Runs() int {
	return c.runs
}

// SetRuns sets the number of rounds. Values below one are ignored and the
// previous setting is kept.
func (c *Cipher) SetRuns(runs int) {
	if runs > 0 {
		c.runs = runs
	}
}

// Threads returns the number of blocks processed in parallel.
func (c *Cipher) Threads() int {
	return c.threads
}

// SetThreads sets the number of parallel blocks. Values below one are
// ignored and the previous setting is kept.
func (c *Cipher) SetThreads(threads int) {
	if threads > 0 {
		c.threads = threads
	}
}

// WithParams returns a Cipher that shares c's key tables but uses its own
// round and worker counts. Values below one fall back to c's settings.
// Changing the copy never affects c.
func (c *Cipher) WithParams(runs, threads int) *Cipher {
	cp := *c
	cp.SetRuns(runs)
	cp.SetThreads(threads)
	return &cp
}

// Encrypt returns the ciphertext of data. data itself is left untouched.
func (c *Cipher) Encrypt(data []byte) []byte {
	if c.threads > 1 {
		return c.tables.encryptFramed(data, c.runs, c.threads)
	}
	out := make([]byte, len(data)+c.runs)
	copy(out, data)
	c.tables.encryptRounds(out, len(data), c.runs)
	return out
}

// Decrypt returns the plaintext of data. It only fails when data is too short
// or its framing cannot be split; a wrong key or wrong counts produce garbage
// without an error.
func (c *Cipher) Decrypt(data []byte) ([]byte, error) {
	if c.threads > 1 {
		return c.tables.decryptFramed(data, c.runs, c.threads)
	}
	if len(data) < c.runs {
		return nil, ErrShortCiphertext
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	n := c.tables.decryptRounds(buf, c.runs)
	return buf[:n], nil
}

// EncryptedLen returns the ciphertext length Encrypt produces for n bytes of
// plaintext under the current settings.
func (c *Cipher) EncryptedLen(n int) int {
	if c.threads > 1 {
		return n + c.threads*c.runs + FrameOverhead
	}
	return n + c.runs
}
