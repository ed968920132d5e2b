package env

import (
	"log"
	"os"
	"strings"
	"sync"
)

// Prefix is the current environment prefix; LegacyPrefix is still honoured
// with a deprecation warning.
const (
	Prefix       = "FBCRYPT_"
	LegacyPrefix = "FBC_"
)

var (
	warnLogger func(format string, args ...any) = log.Printf
	warnMu     sync.Mutex
	warnedKeys sync.Map
)

// Lookup returns the value of newKey if it exists. When the legacy oldKey is
// present it is returned instead and a deprecation warning is logged once.
func Lookup(newKey, oldKey string) (string, bool) {
	if v, ok := os.LookupEnv(newKey); ok {
		return v, true
	}
	if oldKey == "" {
		return "", false
	}
	if v, ok := os.LookupEnv(oldKey); ok {
		logDeprecated(oldKey, newKey)
		return v, true
	}
	return "", false
}

// Setting looks up a named setting such as "RUNS" under FBCRYPT_RUNS, falling
// back to FBC_RUNS. Surrounding whitespace is trimmed from the value.
func Setting(name string) (string, bool) {
	name = strings.ToUpper(name)
	v, ok := Lookup(Prefix+name, LegacyPrefix+name)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func logDeprecated(oldKey, newKey string) {
	warnMu.Lock()
	onceIface, _ := warnedKeys.LoadOrStore(oldKey, &sync.Once{})
	logger := warnLogger
	warnMu.Unlock()

	once := onceIface.(*sync.Once)
	once.Do(func() {
		logger("%s is deprecated; use %s", oldKey, newKey)
	})
}

// ResetWarningsForTesting clears the cached once guards so tests can verify
// warning behaviour deterministically.
func ResetWarningsForTesting() {
	warnMu.Lock()
	warnedKeys = sync.Map{}
	warnMu.Unlock()
}

// SetWarnLoggerForTesting swaps the logger used for warnings. The returned
// function restores the previous logger and should be deferred in tests.
func SetWarnLoggerForTesting(fn func(format string, args ...any)) (restore func()) {
	warnMu.Lock()
	previous := warnLogger
	warnLogger = fn
	warnMu.Unlock()
	return func() {
		warnMu.Lock()
		warnLogger = previous
		warnMu.Unlock()
	}
}
