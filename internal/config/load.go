package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML settings file and validates it. Unknown keys
// are fatal and carry a "did you mean" suggestion.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing settings file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("settings validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a settings file if it exists, otherwise returns the
// defaults.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads settings and applies the override chain:
// defaults -> settings file -> environment variables -> CLI flags.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Settings, error) {
	home := HomeDir(env.HomeDir)

	// 1. Settings path: CLI > env > <home>/settings.toml
	cfgPath := ""
	if home != "" {
		cfgPath = filepath.Join(home, SettingsFileName)
	}

	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	// 2. Settings file, or defaults when absent.
	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	// 3. Environment.
	if env.BFFURL != "" {
		cfg.Service.BFFURL = env.BFFURL
	}

	if env.LogLevel != "" {
		cfg.Logging.LogLevel = strings.ToLower(env.LogLevel)
	}

	// 4. CLI flags.
	if cli.Threads != nil {
		cfg.Transfers.Threads = *cli.Threads
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("settings validation: %w", err)
	}

	return settingsFrom(cfg, home, cfgPath)
}

// settingsFrom converts a validated Config into typed Settings.
func settingsFrom(cfg *Config, home, cfgPath string) (*Settings, error) {
	chunk, err := ParseSize(cfg.Transfers.ChunkSize)
	if err != nil {
		return nil, err
	}

	limit, err := ParseRate(cfg.Transfers.BandwidthLimit)
	if err != nil {
		return nil, err
	}

	s := &Settings{
		Service:         cfg.Service,
		HomeDir:         home,
		SettingsPath:    cfgPath,
		ChunkSize:       chunk,
		Threads:         cfg.Transfers.Threads,
		UploadBatchSize: cfg.Transfers.UploadBatchSize,
		BandwidthLimit:  limit,
		LogLevel:        cfg.Logging.LogLevel,
	}

	if home != "" {
		s.IdentityPath = filepath.Join(home, IdentityFileName)
	}

	durations := []struct {
		dst *time.Duration
		src string
	}{
		{&s.WarnWindow, cfg.Auth.WarnWindow},
		{&s.WatchdogInterval, cfg.Auth.WatchdogInterval},
		{&s.ConnectTimeout, cfg.Network.ConnectTimeout},
		{&s.DataTimeout, cfg.Network.DataTimeout},
	}

	for _, d := range durations {
		v, err := time.ParseDuration(d.src)
		if err != nil {
			return nil, fmt.Errorf("invalid duration %q: %w", d.src, err)
		}

		*d.dst = v
	}

	return s, nil
}
