package config

import (
	"os"
	"path/filepath"
)

// Application directory name under the user's home.
const appDirName = ".pilotcli"

// File names inside the application directory.
const (
	IdentityFileName = "config.ini"
	SettingsFileName = "settings.toml"
)

// DefaultHomeDir returns ~/.pilotcli, or "" when the home directory cannot
// be determined.
func DefaultHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, appDirName)
}

// HomeDir returns override when set, otherwise DefaultHomeDir.
func HomeDir(override string) string {
	if override != "" {
		return override
	}

	return DefaultHomeDir()
}

// DefaultSettingsPath returns the settings file inside DefaultHomeDir.
func DefaultSettingsPath() string {
	dir := DefaultHomeDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, SettingsFileName)
}
