package platform

import (
	"strings"

	"github.com/pilotdata/pilotcli/internal/clierr"
)

// Zone is one of the two storage tiers.
type Zone int

const (
	ZoneGreen Zone = 0
	ZoneCore  Zone = 1
)

// ParseZone accepts "green", "greenroom" and "core" in any case.
func ParseZone(s string) (Zone, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "green", "greenroom", "gr":
		return ZoneGreen, nil
	case "core":
		return ZoneCore, nil
	default:
		return 0, clierr.New(clierr.InvalidZone, "%q", s)
	}
}

// String returns the user-facing name.
func (z Zone) String() string {
	if z == ZoneCore {
		return "core"
	}

	return "green"
}

// Namespace returns the zone label the platform APIs expect.
func (z Zone) Namespace() string {
	if z == ZoneCore {
		return "core"
	}

	return "greenroom"
}

// Bucket returns the object-storage bucket of project in this zone.
func (z Zone) Bucket(project string) string {
	if z == ZoneCore {
		return "core-" + project
	}

	return "gr-" + project
}
