package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/RowanDark/fbcrypt/internal/cipher"
	"github.com/RowanDark/fbcrypt/internal/config"
	"github.com/RowanDark/fbcrypt/internal/fbc"
	"github.com/RowanDark/fbcrypt/internal/keyfile"
	"github.com/RowanDark/fbcrypt/internal/logging"
	"github.com/RowanDark/fbcrypt/internal/rpc"
)

func runKeygen(args []string) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}

	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	out := fs.String("o", "", "path of the key file to write (required)")
	hexOut := fs.Bool("hex", false, "write the key as 512 hex characters instead of 256 raw bytes")
	force := fs.Bool("force", false, "overwrite an existing key file")
	passphrase := fs.String("passphrase", "", "derive the key from this passphrase")
	salt := fs.String("salt", cipher.DefaultSalt, "salt used with -passphrase")
	remote := fs.String("remote", "", "ask an fbcryptd daemon for the key")
	token := fs.String("token", cfg.Server.Token, "bearer token for -remote")
	logFile := fs.String("log", cfg.LogFile, "append audit events to this file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *out == "" && fs.NArg() == 1 {
		*out = fs.Arg(0)
	} else if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "keygen: unexpected arguments")
		return 2
	}
	if *out == "" {
		fmt.Fprintln(os.Stderr, "keygen: -o is required")
		return 2
	}
	if *remote != "" && *passphrase != "" {
		fmt.Fprintln(os.Stderr, "keygen: -passphrase cannot be combined with -remote")
		return 2
	}

	if !*force {
		if _, err := os.Stat(*out); err == nil {
			fmt.Fprintf(os.Stderr, "keygen: %s already exists; use -force to overwrite\n", *out)
			return 1
		} else if !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "keygen: %v\n", err)
			return 1
		}
	}

	audit, err := openAudit(*logFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open audit log: %v\n", err)
		return 1
	}
	defer audit.Close()

	var key fbc.Key
	source := "random"
	switch {
	case *passphrase != "":
		source = "passphrase"
		key, err = fbc.DeriveKey([]byte(*passphrase), []byte(*salt))
	case *remote != "":
		source = "remote"
		key, err = remoteKey(*remote, *token)
	default:
		key, err = fbc.GenerateKey()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "keygen: %v\n", err)
		return 1
	}

	if err := keyfile.Write(*out, key, *hexOut); err != nil {
		fmt.Fprintf(os.Stderr, "keygen: %v\n", err)
		return 1
	}
	audit.Record(logging.EventKeyGenerated, logging.DecisionInfo, map[string]any{
		"path":   *out,
		"source": source,
		"hex":    *hexOut,
	})
	fmt.Fprintf(os.Stdout, "Wrote key to %s\n", *out)
	return 0
}

func remoteKey(addr, token string) (fbc.Key, error) {
	client, closeConn, err := rpc.Dial(addr, token)
	if err != nil {
		return fbc.Key{}, err
	}
	defer closeConn()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return client.GenerateKey(ctx)
}
