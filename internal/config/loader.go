package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables that override secrets from the file.
const (
	EnvStoreURI = "FUSILLADE_STORE_URI"
	EnvSMTPUser = "FUSILLADE_SMTP_USER"
	EnvSMTPPass = "FUSILLADE_SMTP_PASS"
)

// DefaultPath is the config file looked up when none is given.
const DefaultPath = "fusillade.yaml"

// LoadConfig reads the configuration file at path and applies defaults.
//
// The file format is determined by extension:
//   - .yaml, .yml -> YAML
//   - .json -> JSON
//
// When optional is true a missing file yields the defaults alone.
func LoadConfig(path string, optional bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, fs.ErrNotExist) {
			cfg := &Config{}
			ApplyDefaults(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := ParseConfig(data, path)
	if err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	return cfg, nil
}

// ParseConfig parses configuration data.
//
// The format is determined by the file extension in path, or defaults to YAML
// if the path is empty or has an unknown extension.
func ParseConfig(data []byte, path string) (*Config, error) {
	var cfg Config

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config (unknown format %s): %w", ext, err)
		}
	}

	return &cfg, nil
}

// ApplyDefaults fills unset fields with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Fusillade.Log == "" {
		cfg.Fusillade.Log = DefaultLogDir
	}
	if cfg.Fusillade.Src == "" {
		cfg.Fusillade.Src = DefaultSrcDir
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = DefaultDriver
	}
	if cfg.Store.Database == "" {
		cfg.Store.Database = DefaultDatabase
	}
	if cfg.Runner.Command == "" {
		cfg.Runner.Command = DefaultCommand
	}
	if cfg.Mailer.Transport.Port == 0 {
		cfg.Mailer.Transport.Port = DefaultSMTPPort
	}
	if cfg.Mailer.Subject == "" {
		cfg.Mailer.Subject = DefaultSubject
	}
	if cfg.Mailer.From == "" {
		cfg.Mailer.From = cfg.Mailer.Transport.Auth.User
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLogFormat
	}
}

// ApplyEnv overrides secrets with the environment variables found by lookup.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvStoreURI); ok && v != "" {
		cfg.Store.URI = v
	}
	if v, ok := lookup(EnvSMTPUser); ok && v != "" {
		if cfg.Mailer.From == "" || cfg.Mailer.From == cfg.Mailer.Transport.Auth.User {
			cfg.Mailer.From = v
		}
		cfg.Mailer.Transport.Auth.User = v
	}
	if v, ok := lookup(EnvSMTPPass); ok && v != "" {
		cfg.Mailer.Transport.Auth.Pass = v
	}
}
