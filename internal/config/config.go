package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/RowanDark/fbcrypt/internal/env"
)

// Config captures the fbcrypt configuration resolved from defaults, optional
// files, and environment overrides.
type Config struct {
	Runs    int          `yaml:"runs"`
	Threads int          `yaml:"threads"`
	KeyPath string       `yaml:"key_path"`
	Armor   string       `yaml:"armor"`
	LogFile string       `yaml:"log_file"`
	Server  ServerConfig `yaml:"server"`
}

// ServerConfig controls fbcryptd.
type ServerConfig struct {
	Addr        string `yaml:"addr"`
	Token       string `yaml:"token"`
	MaxConns    int    `yaml:"max_conns"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Runs:    1,
		Threads: 1,
		KeyPath: "",
		Armor:   "none",
		LogFile: "",
		Server: ServerConfig{
			Addr:        "127.0.0.1:50061",
			Token:       "",
			MaxConns:    64,
			MetricsAddr: "",
		},
	}
}

// HomeConfigPath returns ~/.fbcrypt/config.yaml.
func HomeConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determine home directory: %w", err)
	}
	return filepath.Join(home, ".fbcrypt", "config.yaml"), nil
}

// LegacyConfigPath returns ~/.fbc/config.yaml, read when the current file is
// absent.
func LegacyConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determine home directory: %w", err)
	}
	return filepath.Join(home, ".fbc", "config.yaml"), nil
}

// Load resolves the configuration using defaults, configuration files, and
// environment overrides. The lookup order for configuration files is:
//  1. ~/.fbcrypt/config.yaml (or the legacy ~/.fbc/config.yaml)
//  2. ./fbcrypt.yml
//
// Environment variables prefixed with FBCRYPT_ (legacy FBC_) have the highest
// precedence.
func Load() (Config, error) {
	cfg := Default()

	if err := loadHomeConfig(&cfg); err != nil {
		return Config{}, err
	}
	if err := loadLocalConfig(&cfg); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings no command can run with.
func (c Config) Validate() error {
	switch c.Armor {
	case "none", "hex", "base64":
	default:
		return fmt.Errorf("invalid armor %q (want none, hex or base64)", c.Armor)
	}
	if c.Server.MaxConns < 0 {
		return fmt.Errorf("server.max_conns must not be negative")
	}
	return nil
}

func loadHomeConfig(cfg *Config) error {
	path, err := HomeConfigPath()
	if err != nil {
		// No home directory means no home config.
		return nil
	}
	found, err := loadFile(cfg, path)
	if err != nil || found {
		return err
	}

	legacyPath, err := LegacyConfigPath()
	if err != nil {
		return nil
	}
	found, err = loadFile(cfg, legacyPath)
	if found && err == nil {
		log.Println("Using legacy fbc config; run 'fbcrypt config migrate'")
	}
	return err
}

func loadLocalConfig(cfg *Config) error {
	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("determine working directory: %w", err)
	}
	_, err = loadFile(cfg, filepath.Join(wd, "fbcrypt.yml"))
	return err
}

func loadFile(cfg *Config, path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := applyFileConfig(cfg, data); err != nil {
		return true, fmt.Errorf("parse config %s: %w", path, err)
	}
	return true, nil
}

type fileConfig struct {
	Runs    *int              `yaml:"runs"`
	Threads *int              `yaml:"threads"`
	KeyPath *string           `yaml:"key_path"`
	Armor   *string           `yaml:"armor"`
	LogFile *string           `yaml:"log_file"`
	Server  *fileServerConfig `yaml:"server"`
}

type fileServerConfig struct {
	Addr        *string `yaml:"addr"`
	Token       *string `yaml:"token"`
	MaxConns    *int    `yaml:"max_conns"`
	MetricsAddr *string `yaml:"metrics_addr"`
}

func applyFileConfig(cfg *Config, data []byte) error {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return err
	}

	// Zero or negative counts are ignored like the cipher setters ignore them.
	if fc.Runs != nil && *fc.Runs > 0 {
		cfg.Runs = *fc.Runs
	}
	if fc.Threads != nil && *fc.Threads > 0 {
		cfg.Threads = *fc.Threads
	}
	if fc.KeyPath != nil {
		cfg.KeyPath = strings.TrimSpace(*fc.KeyPath)
	}
	if fc.Armor != nil {
		cfg.Armor = strings.ToLower(strings.TrimSpace(*fc.Armor))
	}
	if fc.LogFile != nil {
		cfg.LogFile = strings.TrimSpace(*fc.LogFile)
	}
	if fc.Server != nil {
		if fc.Server.Addr != nil {
			cfg.Server.Addr = strings.TrimSpace(*fc.Server.Addr)
		}
		if fc.Server.Token != nil {
			cfg.Server.Token = strings.TrimSpace(*fc.Server.Token)
		}
		if fc.Server.MaxConns != nil {
			cfg.Server.MaxConns = *fc.Server.MaxConns
		}
		if fc.Server.MetricsAddr != nil {
			cfg.Server.MetricsAddr = strings.TrimSpace(*fc.Server.MetricsAddr)
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if val, ok := env.Setting("RUNS"); ok {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			cfg.Runs = n
		}
	}
	if val, ok := env.Setting("THREADS"); ok {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			cfg.Threads = n
		}
	}
	if val, ok := env.Setting("KEY_FILE"); ok && val != "" {
		cfg.KeyPath = val
	}
	if val, ok := env.Setting("ARMOR"); ok && val != "" {
		cfg.Armor = strings.ToLower(val)
	}
	if val, ok := env.Setting("LOG_FILE"); ok && val != "" {
		cfg.LogFile = val
	}
	if val, ok := env.Setting("ADDR"); ok && val != "" {
		cfg.Server.Addr = val
	}
	if val, ok := env.Setting("TOKEN"); ok && val != "" {
		cfg.Server.Token = val
	}
	if val, ok := env.Setting("MAX_CONNS"); ok {
		if n, err := strconv.Atoi(val); err == nil && n >= 0 {
			cfg.Server.MaxConns = n
		}
	}
	if val, ok := env.Setting("METRICS_ADDR"); ok && val != "" {
		cfg.Server.MetricsAddr = val
	}
}

// Render returns the configuration as YAML. The server token is masked.
func (c Config) Render() ([]byte, error) {
	if c.Server.Token != "" {
		c.Server.Token = "********"
	}
	return yaml.Marshal(c)
}
