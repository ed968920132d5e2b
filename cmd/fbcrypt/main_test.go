package main

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/RowanDark/fbcrypt/internal/fbc"
	"github.com/RowanDark/fbcrypt/internal/keyfile"
	"github.com/RowanDark/fbcrypt/internal/rpc"
)

// isolate points HOME and the working directory at a temp dir so no real
// configuration is picked up, and redirects stdout and stderr to files. The
// returned function reads what was written to stdout.
func isolate(t *testing.T) (dir string, stdout func() string) {
	t.Helper()
	dir = t.TempDir()
	t.Setenv("HOME", filepath.Join(dir, "home"))
	prevWD, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(prevWD) })

	outFile, err := os.Create(filepath.Join(t.TempDir(), "stdout"))
	if err != nil {
		t.Fatalf("create stdout: %v", err)
	}
	errFile, err := os.Create(filepath.Join(t.TempDir(), "stderr"))
	if err != nil {
		t.Fatalf("create stderr: %v", err)
	}
	origOut, origErr := os.Stdout, os.Stderr
	os.Stdout, os.Stderr = outFile, errFile
	t.Cleanup(func() {
		os.Stdout, os.Stderr = origOut, origErr
		_ = outFile.Close()
		_ = errFile.Close()
	})

	return dir, func() string {
		data, err := os.ReadFile(outFile.Name())
		if err != nil {
			t.Fatalf("read stdout: %v", err)
		}
		return string(data)
	}
}

func writeInput(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return data
}

var plaintext = []byte(strings.Repeat("The quick brown fox jumps over the lazy dog. ", 30))

func TestDispatchUsage(t *testing.T) {
	isolate(t)
	if code := dispatch([]string{"frobnicate"}); code != 2 {
		t.Fatalf("expected exit code 2 for unknown command, got %d", code)
	}
	if code := dispatch([]string{"config"}); code != 2 {
		t.Fatalf("expected exit code 2 for missing config subcommand, got %d", code)
	}
	if code := dispatch([]string{"version", "extra"}); code != 2 {
		t.Fatalf("expected exit code 2 for version arguments, got %d", code)
	}
}

func TestEncryptDecryptWithGeneratedKey(t *testing.T) {
	dir, _ := isolate(t)
	in := filepath.Join(dir, "data.txt")
	out := filepath.Join(dir, "data.fbc")
	back := filepath.Join(dir, "data.out")
	writeInput(t, in, plaintext)

	if code := runEncrypt([]string{"-f", in, "-o", out, "-r", "3", "-t", "4"}); code != 0 {
		t.Fatalf("encrypt exit code %d", code)
	}

	key, err := keyfile.Read(out + ".k")
	if err != nil {
		t.Fatalf("generated key not written: %v", err)
	}
	if !key.IsPermutation() {
		t.Fatal("generated key is not a permutation")
	}

	ciphertext := readFile(t, out)
	if want := len(plaintext) + 4*3 + fbc.FrameOverhead; len(ciphertext) != want {
		t.Fatalf("expected %d ciphertext bytes, got %d", want, len(ciphertext))
	}
	if !bytes.Equal(readFile(t, in), plaintext) {
		t.Fatal("input modified although -o was given")
	}

	if code := runDecrypt([]string{"-f", out, "-o", back, "-r", "3", "-t", "4"}); code != 0 {
		t.Fatalf("decrypt exit code %d", code)
	}
	if !bytes.Equal(readFile(t, back), plaintext) {
		t.Fatal("roundtrip failed")
	}
}

func TestEncryptInPlace(t *testing.T) {
	dir, _ := isolate(t)
	in := filepath.Join(dir, "notes.txt")
	writeInput(t, in, plaintext)
	if err := os.Chmod(in, 0o600); err != nil {
		t.Fatalf("chmod: %v", err)
	}

	if code := runEncrypt([]string{"-f", in}); code != 0 {
		t.Fatalf("encrypt exit code %d", code)
	}
	if bytes.Equal(readFile(t, in), plaintext) {
		t.Fatal("input was not overwritten")
	}
	info, err := os.Stat(in)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected mode 0600 to be kept, got %v", info.Mode().Perm())
	}
	if _, err := os.Stat(in + ".k"); err != nil {
		t.Fatalf("expected key next to input: %v", err)
	}

	if code := runDecrypt([]string{in}); code != 0 {
		t.Fatalf("decrypt exit code %d", code)
	}
	if !bytes.Equal(readFile(t, in), plaintext) {
		t.Fatal("in-place roundtrip failed")
	}
}

func TestPassphraseWithArmor(t *testing.T) {
	dir, _ := isolate(t)
	in := filepath.Join(dir, "msg.txt")
	out := filepath.Join(dir, "msg.b64")
	writeInput(t, in, plaintext)

	args := []string{"-passphrase", "open sesame", "-t", "3"}
	if code := runEncrypt(append([]string{"-f", in, "-o", out, "-armor", "base64"}, args...)); code != 0 {
		t.Fatalf("encrypt exit code %d", code)
	}
	if _, err := os.Stat(out + ".k"); !os.IsNotExist(err) {
		t.Fatal("no key file should be written for passphrase keys")
	}
	armored := readFile(t, out)
	if strings.ContainsAny(string(armored), "\x00\xff") {
		t.Fatal("armored output contains binary data")
	}

	for _, armor := range []string{"base64", "auto"} {
		back := filepath.Join(dir, "msg."+armor)
		if code := runDecrypt(append([]string{"-f", out, "-o", back, "-armor", armor}, args...)); code != 0 {
			t.Fatalf("decrypt with -armor %s exit code %d", armor, code)
		}
		if !bytes.Equal(readFile(t, back), plaintext) {
			t.Fatalf("roundtrip with -armor %s failed", armor)
		}
	}
}

func TestDecryptFailures(t *testing.T) {
	dir, _ := isolate(t)
	in := filepath.Join(dir, "junk.bin")
	writeInput(t, in, []byte{1, 2, 3})

	if code := runDecrypt([]string{"-f", in}); code != 1 {
		t.Fatalf("expected exit code 1 without a key file, got %d", code)
	}

	if code := runKeygen([]string{"-o", in + ".k"}); code != 0 {
		t.Fatalf("keygen exit code %d", code)
	}
	if code := runDecrypt([]string{"-f", in, "-t", "4"}); code != 1 {
		t.Fatalf("expected exit code 1 for a malformed frame, got %d", code)
	}
	if !bytes.Equal(readFile(t, in), []byte{1, 2, 3}) {
		t.Fatal("failed decrypt must not touch the input")
	}
}

func TestCipherUsageErrors(t *testing.T) {
	dir, _ := isolate(t)
	in := filepath.Join(dir, "x")
	writeInput(t, in, []byte("x"))

	tests := []struct {
		name string
		run  func([]string) int
		args []string
	}{
		{"encrypt_without_input", runEncrypt, nil},
		{"encrypt_bad_armor", runEncrypt, []string{"-f", in, "-armor", "rot13"}},
		{"encrypt_auto_armor", runEncrypt, []string{"-f", in, "-armor", "auto"}},
		{"remote_with_key", runEncrypt, []string{"-f", in, "-remote", "127.0.0.1:1", "-k", in + ".k"}},
		{"decrypt_extra_args", runDecrypt, []string{"-f", in, "extra"}},
		{"keygen_without_output", runKeygen, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := tt.run(tt.args); code != 2 {
				t.Fatalf("expected exit code 2, got %d", code)
			}
		})
	}
}

func TestKeygen(t *testing.T) {
	dir, stdout := isolate(t)
	path := filepath.Join(dir, "keys", "main.k")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	if code := runKeygen([]string{"-o", path, "-hex"}); code != 0 {
		t.Fatalf("keygen exit code %d", code)
	}
	if got := len(readFile(t, path)); got != keyfile.HexSize+1 {
		t.Fatalf("expected hex key file, got %d bytes", got)
	}
	if !strings.Contains(stdout(), "Wrote key to "+path) {
		t.Fatalf("unexpected output %q", stdout())
	}

	if code := runKeygen([]string{"-o", path}); code != 1 {
		t.Fatalf("expected refusal to overwrite, got %d", code)
	}
	if code := runKeygen([]string{"-o", path, "-force", "-passphrase", "pw"}); code != 0 {
		t.Fatalf("keygen -force exit code %d", code)
	}
	key, err := keyfile.Read(path)
	if err != nil {
		t.Fatalf("read key: %v", err)
	}
	derived, _ := fbc.DeriveKey([]byte("pw"), []byte("fbcrypt.v1"))
	if key != derived {
		t.Fatal("keygen -passphrase did not write the derived key")
	}
}

func TestAuditLogOmitsKeyMaterial(t *testing.T) {
	dir, _ := isolate(t)
	in := filepath.Join(dir, "audited.txt")
	logPath := filepath.Join(dir, "audit.jsonl")
	writeInput(t, in, plaintext)

	if code := runEncrypt([]string{"-f", in, "-o", in + ".fbc", "-log", logPath}); code != 0 {
		t.Fatalf("encrypt exit code %d", code)
	}
	key, err := keyfile.Read(in + ".fbc.k")
	if err != nil {
		t.Fatalf("read key: %v", err)
	}

	log := string(readFile(t, logPath))
	for _, want := range []string{`"event_type":"key_generated"`, `"event_type":"encrypt"`} {
		if !strings.Contains(log, want) {
			t.Fatalf("expected %s in audit log:\n%s", want, log)
		}
	}
	if strings.Contains(log, key.String()[:64]) {
		t.Fatal("key material leaked into the audit log")
	}
}

func TestRemoteRoundTrip(t *testing.T) {
	dir, _ := isolate(t)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	srv := rpc.NewGRPCServer(rpc.NewServer(fbc.NewWithKey(fbc.GenerateKeyFrom(counterSource()))), "cli-token", nil)
	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)
	addr := lis.Addr().String()

	in := filepath.Join(dir, "remote.txt")
	out := filepath.Join(dir, "remote.hex")
	back := filepath.Join(dir, "remote.out")
	writeInput(t, in, plaintext)

	remote := []string{"-remote", addr, "-token", "cli-token", "-r", "2", "-t", "5"}
	if code := runEncrypt(append([]string{"-f", in, "-o", out, "-armor", "hex"}, remote...)); code != 0 {
		t.Fatalf("remote encrypt exit code %d", code)
	}
	if _, err := os.Stat(out + ".k"); !os.IsNotExist(err) {
		t.Fatal("remote encryption must not write a local key")
	}
	if code := runDecrypt(append([]string{"-f", out, "-o", back, "-armor", "hex"}, remote...)); code != 0 {
		t.Fatalf("remote decrypt exit code %d", code)
	}
	if !bytes.Equal(readFile(t, back), plaintext) {
		t.Fatal("remote roundtrip failed")
	}

	if code := runEncrypt([]string{"-f", in, "-o", out, "-remote", addr, "-token", "wrong"}); code != 1 {
		t.Fatalf("expected exit code 1 with a bad token, got %d", code)
	}

	keyPath := filepath.Join(dir, "remote.k")
	if code := runKeygen([]string{"-o", keyPath, "-remote", addr, "-token", "cli-token"}); code != 0 {
		t.Fatalf("remote keygen exit code %d", code)
	}
	if key, err := keyfile.Read(keyPath); err != nil || !key.IsPermutation() {
		t.Fatalf("remote keygen wrote an invalid key: %v", err)
	}
}

func TestOpsAndConfigPrint(t *testing.T) {
	_, stdout := isolate(t)

	if code := runOps(nil); code != 0 {
		t.Fatalf("ops exit code %d", code)
	}
	listing := stdout()
	for _, name := range []string{"fbc_encrypt", "fbc_decrypt", "base64_encode", "hex_decode"} {
		if !strings.Contains(listing, name) {
			t.Fatalf("expected %s in ops listing:\n%s", name, listing)
		}
	}

	t.Setenv("FBCRYPT_TOKEN", "hidden-token")
	var buf bytes.Buffer
	if code := runConfigPrint(&buf); code != 0 {
		t.Fatalf("config print exit code %d", code)
	}
	if !strings.Contains(buf.String(), "runs: 1") {
		t.Fatalf("unexpected config output:\n%s", buf.String())
	}
	if strings.Contains(buf.String(), "hidden-token") {
		t.Fatal("config print leaked the server token")
	}
}

func TestConfigDefaultsApply(t *testing.T) {
	dir, _ := isolate(t)
	if err := os.WriteFile(filepath.Join(dir, "fbcrypt.yml"), []byte("runs: 4\nthreads: 2\narmor: hex\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	in := filepath.Join(dir, "cfg.txt")
	writeInput(t, in, plaintext)

	if code := runEncrypt([]string{"-f", in, "-o", in + ".fbc"}); code != 0 {
		t.Fatalf("encrypt exit code %d", code)
	}
	armored := readFile(t, in+".fbc")
	if want := 2 * (len(plaintext) + 2*4 + fbc.FrameOverhead); len(armored) != want {
		t.Fatalf("expected %d hex characters, got %d", want, len(armored))
	}
}

func counterSource() func() uint32 {
	var n uint32
	return func() uint32 {
		n = n*1664525 + 1013904223
		return n
	}
}

func TestConfigMigrate(t *testing.T) {
	dir, _ := isolate(t)
	legacy := filepath.Join(dir, "home", ".fbc", "config.yaml")
	if err := os.MkdirAll(filepath.Dir(legacy), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(legacy, []byte("runs: 5\n"), 0o644); err != nil {
		t.Fatalf("write legacy config: %v", err)
	}

	if code := runConfig([]string{"migrate"}); code != 0 {
		t.Fatalf("migrate exit code %d", code)
	}
	migrated := filepath.Join(dir, "home", ".fbcrypt", "config.yaml")
	if got := string(readFile(t, migrated)); got != "runs: 5\n" {
		t.Fatalf("unexpected migrated config %q", got)
	}
	if code := runConfig([]string{"migrate"}); code != 2 {
		t.Fatalf("expected refusal to overwrite, got %d", code)
	}
}
