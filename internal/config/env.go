package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig   = "PILOTCLI_CONFIG"
	EnvHome     = "PILOTCLI_HOME"
	EnvBFFURL   = "PILOTCLI_BFF_URL"
	EnvLogLevel = "PILOTCLI_LOG_LEVEL"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // PILOTCLI_CONFIG: settings file path
	HomeDir    string // PILOTCLI_HOME: directory holding config.ini
	BFFURL     string // PILOTCLI_BFF_URL
	LogLevel   string // PILOTCLI_LOG_LEVEL
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		HomeDir:    os.Getenv(EnvHome),
		BFFURL:     os.Getenv(EnvBFFURL),
		LogLevel:   os.Getenv(EnvLogLevel),
	}
}
