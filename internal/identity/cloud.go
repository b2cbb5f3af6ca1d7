package identity

import (
	"os"
	"path/filepath"
)

// CloudMarker is the file placed next to the executable in hosted
// deployments, where the home directory is managed by the platform.
const CloudMarker = ".pilotcli-cloud"

// CloudMode reports whether the running executable ships with CloudMarker.
func CloudMode() bool {
	exe, err := os.Executable()
	if err != nil {
		return false
	}

	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}

	return markerIn(filepath.Dir(exe))
}

func markerIn(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, CloudMarker))

	return err == nil
}
