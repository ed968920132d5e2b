package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/RowanDark/fbcrypt/internal/config"
)

func runConfig(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "config subcommand required (print, migrate)")
		return 2
	}

	switch args[0] {
	case "print":
		return runConfigPrint(os.Stdout)
	case "migrate":
		return runConfigMigrate()
	default:
		fmt.Fprintf(os.Stderr, "unknown config subcommand: %s\n", args[0])
		return 2
	}
}

func runConfigPrint(out io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}

	rendered, err := cfg.Render()
	if err != nil {
		fmt.Fprintf(os.Stderr, "render config: %v\n", err)
		return 1
	}
	_, _ = out.Write(rendered)
	return 0
}

func runConfigMigrate() int {
	legacyPath, err := config.LegacyConfigPath()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	data, err := os.ReadFile(legacyPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "no legacy config found at %s\n", legacyPath)
			return 2
		}
		fmt.Fprintf(os.Stderr, "read legacy config: %v\n", err)
		return 1
	}

	newPath, err := config.HomeConfigPath()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if err := os.MkdirAll(filepath.Dir(newPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "create config directory: %v\n", err)
		return 1
	}

	if _, err := os.Stat(newPath); err == nil {
		fmt.Fprintf(os.Stderr, "config already exists at %s; refusing to overwrite\n", newPath)
		return 2
	} else if !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "stat config: %v\n", err)
		return 1
	}

	if err := os.WriteFile(newPath, data, 0o600); err != nil {
		fmt.Fprintf(os.Stderr, "write config: %v\n", err)
		return 1
	}

	fmt.Fprintf(os.Stdout, "Migrated config to %s\n", newPath)
	return 0
}
