package fbc

import (
	"bytes"
	"sync"
	"testing"
)

func TestNewDefaults(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.Runs() != 1 || c.Threads() != 1 {
		t.Fatalf("expected runs=1 threads=1, got runs=%d threads=%d", c.Runs(), c.Threads())
	}
	if !c.Key().IsPermutation() {
		t.Fatal("New should generate a permutation key")
	}
}

func TestSettersIgnoreNonPositive(t *testing.T) {
	c := NewWithKey(seededKey(1))
	c.SetRuns(4)
	c.SetThreads(3)

	c.SetRuns(0)
	c.SetThreads(0)
	c.SetRuns(-2)
	c.SetThreads(-1)

	if c.Runs() != 4 {
		t.Fatalf("runs changed to %d", c.Runs())
	}
	if c.Threads() != 3 {
		t.Fatalf("threads changed to %d", c.Threads())
	}
}

func TestSetKeyRebuildsTables(t *testing.T) {
	first, second := seededKey(31), seededKey(32)
	c := NewWithKey(first)
	plaintext := []byte("attack at dawn, bring snacks")
	encrypted := c.Encrypt(plaintext)

	c.SetKey(second)
	if c.Key() != second {
		t.Fatal("Key did not return the new key")
	}
	wrong, err := c.Decrypt(encrypted)
	if err != nil {
		t.Fatalf("a wrong key must not be reported, got %v", err)
	}
	if bytes.Equal(wrong, plaintext) {
		t.Fatal("decrypting with a different key recovered the plaintext")
	}

	c.SetKey(first)
	decrypted, err := c.Decrypt(encrypted)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Fatal("restoring the key did not restore decryption")
	}
}

func TestWithParamsSharesTables(t *testing.T) {
	c := NewWithKey(seededKey(33))
	view := c.WithParams(5, 4)

	if view.Tables() != c.Tables() {
		t.Fatal("WithParams should share the key tables")
	}
	if view.Runs() != 5 || view.Threads() != 4 {
		t.Fatalf("view has runs=%d threads=%d", view.Runs(), view.Threads())
	}
	if c.Runs() != 1 || c.Threads() != 1 {
		t.Fatal("WithParams modified the original cipher")
	}

	fallback := view.WithParams(0, 0)
	if fallback.Runs() != 5 || fallback.Threads() != 4 {
		t.Fatal("zero parameters should keep the current settings")
	}
}

func TestMismatchedParametersAreNotDetected(t *testing.T) {
	c := NewWithKey(seededKey(34))
	c.SetRuns(2)
	plaintext := bytes.Repeat([]byte("mismatch "), 20)
	encrypted := c.Encrypt(plaintext)

	c.SetRuns(1)
	decrypted, err := c.Decrypt(encrypted)
	if err != nil {
		t.Fatalf("a wrong round count must not be reported, got %v", err)
	}
	if bytes.Equal(decrypted, plaintext) {
		t.Fatal("decrypting with fewer rounds recovered the plaintext")
	}
}

func TestEncryptedLen(t *testing.T) {
	c := NewWithKey(seededKey(35))
	for _, tc := range []struct{ runs, threads int }{{1, 1}, {3, 1}, {1, 2}, {4, 8}} {
		view := c.WithParams(tc.runs, tc.threads)
		for _, n := range []int{0, 1, 50, 999} {
			if got, want := len(view.Encrypt(make([]byte, n))), view.EncryptedLen(n); got != want {
				t.Fatalf("runs=%d threads=%d n=%d: EncryptedLen=%d, actual=%d", tc.runs, tc.threads, n, want, got)
			}
		}
	}
}

func TestConcurrentUse(t *testing.T) {
	c := NewWithKey(seededKey(36))
	c.SetRuns(2)
	c.SetThreads(4)

	var wg sync.WaitGroup
	errs := make(chan string, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			plaintext := randomBytes(t, uint64(i), 500+i)
			decrypted, err := c.Decrypt(c.Encrypt(plaintext))
			if err != nil || !bytes.Equal(decrypted, plaintext) {
				errs <- "concurrent round trip failed"
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for msg := range errs {
		t.Fatal(msg)
	}
}
