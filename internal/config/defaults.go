package config

// Default values, layer 0 of the override chain.
const (
	defaultBaseURL          = "https://pilot.example.org"
	defaultClientID         = "pilotcli"
	defaultChunkSize        = "2MiB"
	defaultThreads          = 1
	defaultUploadBatchSize  = 100
	defaultBandwidthLimit   = "0"
	defaultWarnWindow       = "300s"
	defaultWatchdogInterval = "2s"
	defaultLogLevel         = "warn"
	defaultConnectTimeout   = "10s"
	defaultDataTimeout      = "60s"
)

// DefaultConfig returns a Config populated with all default values. It is
// also the decode target so unset keys keep their defaults.
func DefaultConfig() *Config {
	return &Config{
		Service:   defaultServiceConfig(),
		Transfers: defaultTransfersConfig(),
		Auth:      defaultAuthConfig(),
		Logging:   LoggingConfig{LogLevel: defaultLogLevel},
		Network: NetworkConfig{
			ConnectTimeout: defaultConnectTimeout,
			DataTimeout:    defaultDataTimeout,
		},
	}
}

func defaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		BFFURL:           defaultBaseURL + "/pilot/cli",
		PortalURL:        defaultBaseURL + "/pilot/portal",
		KeycloakURL:      defaultBaseURL + "/vre/auth/realms/pilot/protocol/openid-connect",
		KeycloakRealmURL: defaultBaseURL + "/vre/auth/realms/pilot",
		UploadGreenURL:   defaultBaseURL + "/pilot/upload/gr",
		UploadCoreURL:    defaultBaseURL + "/pilot/upload/core",
		DownloadGreenURL: defaultBaseURL + "/pilot/download/gr",
		DownloadCoreURL:  defaultBaseURL + "/pilot/download/core",
		ClientID:         defaultClientID,
	}
}

func defaultTransfersConfig() TransfersConfig {
	return TransfersConfig{
		ChunkSize:       defaultChunkSize,
		Threads:         defaultThreads,
		UploadBatchSize: defaultUploadBatchSize,
		BandwidthLimit:  defaultBandwidthLimit,
	}
}

func defaultAuthConfig() AuthConfig {
	return AuthConfig{
		WarnWindow:       defaultWarnWindow,
		WatchdogInterval: defaultWatchdogInterval,
	}
}
