package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/RowanDark/fbcrypt/internal/cipher"
	"github.com/RowanDark/fbcrypt/internal/config"
	"github.com/RowanDark/fbcrypt/internal/fbc"
	"github.com/RowanDark/fbcrypt/internal/keyfile"
	"github.com/RowanDark/fbcrypt/internal/logging"
	"github.com/RowanDark/fbcrypt/internal/rpc"
)

const armorAuto = "auto"

type cipherOptions struct {
	input      string
	output     string
	keyPath    string
	runs       int
	threads    int
	passphrase string
	salt       string
	armor      string
	remote     string
	token      string
	timeout    time.Duration
	logFile    string
}

// outputPath is -o, or the input itself when -o is absent.
func (o cipherOptions) outputPath() string {
	if o.output != "" {
		return o.output
	}
	return o.input
}

func parseCipherFlags(name string, args []string, cfg config.Config) (cipherOptions, bool) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts cipherOptions
	fs.StringVar(&opts.input, "f", "", "input file (required)")
	fs.StringVar(&opts.output, "o", "", "output file (defaults to overwriting the input)")
	fs.StringVar(&opts.keyPath, "k", cfg.KeyPath, "key file (defaults to <output>.k when encrypting, <input>.k when decrypting)")
	fs.IntVar(&opts.runs, "r", cfg.Runs, "number of rounds")
	fs.IntVar(&opts.threads, "t", cfg.Threads, "number of parallel blocks")
	fs.StringVar(&opts.passphrase, "passphrase", "", "derive the key from this passphrase instead of a key file")
	fs.StringVar(&opts.salt, "salt", cipher.DefaultSalt, "salt used with -passphrase")
	armorHelp := "text armor for the ciphertext: none, hex or base64"
	if name == "decrypt" {
		armorHelp = "text armor around the ciphertext: none, hex, base64 or auto"
	}
	fs.StringVar(&opts.armor, "armor", cfg.Armor, armorHelp)
	fs.StringVar(&opts.remote, "remote", "", "address of an fbcryptd daemon; its key is used instead of a local one")
	fs.StringVar(&opts.token, "token", cfg.Server.Token, "bearer token for -remote")
	fs.DurationVar(&opts.timeout, "timeout", 30*time.Second, "deadline for -remote calls")
	fs.StringVar(&opts.logFile, "log", cfg.LogFile, "append audit events to this file")
	if err := fs.Parse(args); err != nil {
		return opts, false
	}

	if opts.input == "" && fs.NArg() == 1 {
		opts.input = fs.Arg(0)
	} else if fs.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "%s: unexpected arguments: %s\n", name, strings.Join(fs.Args(), " "))
		return opts, false
	}
	if opts.input == "" {
		fmt.Fprintf(os.Stderr, "%s: -f is required\n", name)
		return opts, false
	}

	opts.armor = strings.ToLower(strings.TrimSpace(opts.armor))
	if !(name == "decrypt" && opts.armor == armorAuto) {
		if _, err := cipher.ParseArmor(opts.armor); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
			return opts, false
		}
	}

	if opts.remote != "" {
		explicit := map[string]bool{}
		fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })
		if explicit["k"] || opts.passphrase != "" {
			fmt.Fprintf(os.Stderr, "%s: -k and -passphrase cannot be combined with -remote\n", name)
			return opts, false
		}
	}
	return opts, true
}

func runEncrypt(args []string) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}
	opts, ok := parseCipherFlags("encrypt", args, cfg)
	if !ok {
		return 2
	}

	audit, err := openAudit(opts.logFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open audit log: %v\n", err)
		return 1
	}
	defer audit.Close()

	data, err := os.ReadFile(opts.input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read input: %v\n", err)
		return 1
	}

	ctx := context.Background()
	outPath := opts.outputPath()
	var out []byte
	if opts.remote != "" {
		out, err = remoteEncrypt(ctx, opts, data)
	} else {
		var c *fbc.Cipher
		c, err = encryptionCipher(opts, outPath, audit)
		if err == nil {
			out, err = armoredPipeline(c, cipher.Armor(opts.armor)).Execute(ctx, data)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "encrypt: %v\n", err)
		return 1
	}

	if err := writeFileAtomic(outPath, out); err != nil {
		fmt.Fprintf(os.Stderr, "write output: %v\n", err)
		return 1
	}
	audit.Record(logging.EventEncrypt, logging.DecisionAllow, map[string]any{
		"input":     opts.input,
		"output":    outPath,
		"bytes_in":  len(data),
		"bytes_out": len(out),
		"runs":      opts.runs,
		"threads":   opts.threads,
		"armor":     opts.armor,
		"remote":    opts.remote,
	})
	return 0
}

func runDecrypt(args []string) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}
	opts, ok := parseCipherFlags("decrypt", args, cfg)
	if !ok {
		return 2
	}

	audit, err := openAudit(opts.logFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open audit log: %v\n", err)
		return 1
	}
	defer audit.Close()

	data, err := os.ReadFile(opts.input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read input: %v\n", err)
		return 1
	}

	ctx := context.Background()
	var out []byte
	if opts.remote != "" {
		out, err = remoteDecrypt(ctx, opts, data)
	} else {
		var c *fbc.Cipher
		c, err = decryptionCipher(opts, audit)
		if err == nil {
			out, err = localDecrypt(ctx, c, opts.armor, data)
		}
	}
	if err != nil {
		if errors.Is(err, fbc.ErrShortCiphertext) || errors.Is(err, fbc.ErrMalformedFrame) {
			audit.Record(logging.EventFrameRejected, logging.DecisionDeny, map[string]any{
				"input":   opts.input,
				"runs":    opts.runs,
				"threads": opts.threads,
				"error":   err.Error(),
			})
		}
		fmt.Fprintf(os.Stderr, "decrypt: %v\n", err)
		return 1
	}

	outPath := opts.outputPath()
	if err := writeFileAtomic(outPath, out); err != nil {
		fmt.Fprintf(os.Stderr, "write output: %v\n", err)
		return 1
	}
	audit.Record(logging.EventDecrypt, logging.DecisionAllow, map[string]any{
		"input":     opts.input,
		"output":    outPath,
		"bytes_in":  len(data),
		"bytes_out": len(out),
		"runs":      opts.runs,
		"threads":   opts.threads,
		"remote":    opts.remote,
	})
	return 0
}

// armoredPipeline encrypts with c and then applies armor. Its reverse strips
// the armor and decrypts.
func armoredPipeline(c *fbc.Cipher, armor cipher.Armor) *cipher.Pipeline {
	steps := []cipher.OperationConfig{{
		Name:       "fbc_encrypt",
		Parameters: map[string]any{cipher.ParamCipher: c},
	}}
	if armor != cipher.ArmorNone && armor != "" {
		steps = append(steps, cipher.OperationConfig{Name: string(armor) + "_encode"})
	}
	return &cipher.Pipeline{Operations: steps, Reversible: true}
}

func localDecrypt(ctx context.Context, c *fbc.Cipher, armor string, data []byte) ([]byte, error) {
	if armor == armorAuto {
		stripped, _, err := cipher.StripArmor(ctx, data)
		if err != nil {
			return nil, err
		}
		data = stripped
		armor = string(cipher.ArmorNone)
	}
	reversed, err := armoredPipeline(c, cipher.Armor(armor)).Reverse()
	if err != nil {
		return nil, err
	}
	return reversed.Execute(ctx, data)
}

func encryptionCipher(opts cipherOptions, outPath string, audit *logging.AuditLogger) (*fbc.Cipher, error) {
	var (
		key fbc.Key
		err error
	)
	switch {
	case opts.passphrase != "":
		key, err = fbc.DeriveKey([]byte(opts.passphrase), []byte(opts.salt))
	case opts.keyPath != "":
		key, err = loadKey(opts.keyPath, audit)
	default:
		key, err = fbc.GenerateKey()
		if err != nil {
			return nil, err
		}
		keyPath := keyfile.DefaultPath(outPath)
		if err := keyfile.Write(keyPath, key, false); err != nil {
			return nil, fmt.Errorf("write key: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Wrote new key to %s\n", keyPath)
		audit.Record(logging.EventKeyGenerated, logging.DecisionInfo, map[string]any{"path": keyPath})
	}
	if err != nil {
		return nil, err
	}
	return newCipher(key, opts, audit), nil
}

func decryptionCipher(opts cipherOptions, audit *logging.AuditLogger) (*fbc.Cipher, error) {
	if opts.passphrase != "" {
		key, err := fbc.DeriveKey([]byte(opts.passphrase), []byte(opts.salt))
		if err != nil {
			return nil, err
		}
		return newCipher(key, opts, audit), nil
	}
	keyPath := opts.keyPath
	if keyPath == "" {
		keyPath = keyfile.DefaultPath(opts.input)
	}
	key, err := loadKey(keyPath, audit)
	if err != nil {
		return nil, err
	}
	return newCipher(key, opts, audit), nil
}

func loadKey(path string, audit *logging.AuditLogger) (fbc.Key, error) {
	key, err := keyfile.Read(path)
	if err != nil {
		return fbc.Key{}, err
	}
	audit.Record(logging.EventKeyLoaded, logging.DecisionInfo, map[string]any{"path": path})
	return key, nil
}

// newCipher warns about keys that are not permutations but still uses them.
func newCipher(key fbc.Key, opts cipherOptions, audit *logging.AuditLogger) *fbc.Cipher {
	if !key.IsPermutation() {
		fmt.Fprintln(os.Stderr, "warning: key is not a permutation of 0-255; decryption will not recover the input")
		audit.Record(logging.EventKeyNotPermutation, logging.DecisionInfo, nil)
	}
	c := fbc.NewWithKey(key)
	c.SetRuns(opts.runs)
	c.SetThreads(opts.threads)
	return c
}

func remoteEncrypt(ctx context.Context, opts cipherOptions, data []byte) ([]byte, error) {
	client, closeConn, err := rpc.Dial(opts.remote, opts.token)
	if err != nil {
		return nil, err
	}
	defer closeConn()

	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()
	out, err := client.Encrypt(ctx, data, opts.runs, opts.threads)
	if err != nil {
		return nil, err
	}
	return cipher.ApplyArmor(ctx, out, cipher.Armor(opts.armor))
}

func remoteDecrypt(ctx context.Context, opts cipherOptions, data []byte) ([]byte, error) {
	client, closeConn, err := rpc.Dial(opts.remote, opts.token)
	if err != nil {
		return nil, err
	}
	defer closeConn()

	if opts.armor == armorAuto {
		data, _, err = cipher.StripArmor(ctx, data)
	} else {
		data, err = cipher.RemoveArmor(ctx, data, cipher.Armor(opts.armor))
	}
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()
	return client.Decrypt(ctx, data, opts.runs, opts.threads)
}

func openAudit(path string) (*logging.AuditLogger, error) {
	if strings.TrimSpace(path) == "" {
		return logging.Discard("fbcrypt"), nil
	}
	return logging.NewAuditLogger("fbcrypt", logging.WithoutStdout(), logging.WithFile(path))
}

// writeFileAtomic replaces path via a temporary file in the same directory,
// keeping the mode of an existing file.
func writeFileAtomic(path string, data []byte) error {
	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
