//go:build !windows

package identity

import (
	"os"

	"github.com/pilotdata/pilotcli/internal/atomicfile"
)

// enforcePermissions sets dir to 0700 and file to 0600, reporting whether
// either had to change.
func enforcePermissions(dir, file string) (bool, error) {
	fixed := false

	for _, p := range []struct {
		path string
		mode os.FileMode
	}{
		{dir, atomicfile.DirPerms},
		{file, atomicfile.FilePerms},
	} {
		info, err := os.Stat(p.path)
		if err != nil {
			return fixed, err
		}

		if info.Mode().Perm() == p.mode {
			continue
		}

		if err := os.Chmod(p.path, p.mode); err != nil {
			return fixed, err
		}

		fixed = true
	}

	return fixed, nil
}
