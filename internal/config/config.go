// Package config loads pilotcli settings from settings.toml and applies the
// override chain: defaults, settings file, environment, CLI flags.
package config

import "time"

// Config is the decoded settings.toml. Durations and sizes are kept as the
// strings the user wrote; Resolve turns them into typed values.
type Config struct {
	Service   ServiceConfig   `toml:"service"`
	Transfers TransfersConfig `toml:"transfers"`
	Auth      AuthConfig      `toml:"auth"`
	Logging   LoggingConfig   `toml:"logging"`
	Network   NetworkConfig   `toml:"network"`
}

// ServiceConfig holds the platform base URLs and the OIDC client id.
type ServiceConfig struct {
	BFFURL           string `toml:"bff_url"`
	PortalURL        string `toml:"portal_url"`
	KeycloakURL      string `toml:"keycloak_url"`
	KeycloakRealmURL string `toml:"keycloak_realm_url"`
	UploadGreenURL   string `toml:"upload_green_url"`
	UploadCoreURL    string `toml:"upload_core_url"`
	DownloadGreenURL string `toml:"download_green_url"`
	DownloadCoreURL  string `toml:"download_core_url"`
	ClientID         string `toml:"client_id"`
}

// TransfersConfig controls upload chunking and parallelism.
type TransfersConfig struct {
	ChunkSize       string `toml:"chunk_size"`
	Threads         int    `toml:"threads"`
	UploadBatchSize int    `toml:"upload_batch_size"`
	BandwidthLimit  string `toml:"bandwidth_limit"`
}

// AuthConfig controls token refresh timing.
type AuthConfig struct {
	WarnWindow       string `toml:"warn_window"`
	WatchdogInterval string `toml:"watchdog_interval"`
}

// LoggingConfig controls the default log level.
type LoggingConfig struct {
	LogLevel string `toml:"log_level"`
}

// NetworkConfig controls HTTP timeouts.
type NetworkConfig struct {
	ConnectTimeout string `toml:"connect_timeout"`
	DataTimeout    string `toml:"data_timeout"`
}

// Settings is the fully resolved, typed configuration handed to the rest of
// the program.
type Settings struct {
	Service ServiceConfig

	HomeDir      string
	IdentityPath string
	SettingsPath string

	ChunkSize       int64
	Threads         int
	UploadBatchSize int
	BandwidthLimit  int64

	WarnWindow       time.Duration
	WatchdogInterval time.Duration

	LogLevel string

	ConnectTimeout time.Duration
	DataTimeout    time.Duration
}

// CLIOverrides holds values from command-line flags. Pointer fields are nil
// when the flag was not given.
type CLIOverrides struct {
	ConfigPath string
	Threads    *int
}
