package platform

import (
	"net/url"
	"strings"

	"github.com/pilotdata/pilotcli/internal/config"
)

// Endpoints holds the base URL of every platform service.
type Endpoints struct {
	BFF      string
	Portal   string
	Upload   [2]string // by Zone
	Download [2]string // by Zone
}

// NewEndpoints reads the service section of the settings.
func NewEndpoints(s config.ServiceConfig) Endpoints {
	trim := func(u string) string { return strings.TrimRight(u, "/") }

	return Endpoints{
		BFF:      trim(s.BFFURL),
		Portal:   trim(s.PortalURL),
		Upload:   [2]string{trim(s.UploadGreenURL), trim(s.UploadCoreURL)},
		Download: [2]string{trim(s.DownloadGreenURL), trim(s.DownloadCoreURL)},
	}
}

// SingleHost points every service at base, for tests and single-gateway
// deployments.
func SingleHost(base string) Endpoints {
	base = strings.TrimRight(base, "/")

	return Endpoints{
		BFF:      base + "/bff",
		Portal:   base + "/portal",
		Upload:   [2]string{base + "/upload/gr", base + "/upload/core"},
		Download: [2]string{base + "/download/gr", base + "/download/core"},
	}
}

func (e Endpoints) bff(parts ...string) string {
	return join(e.BFF, parts...)
}

func (e Endpoints) upload(z Zone, parts ...string) string {
	return join(e.Upload[z], parts...)
}

func (e Endpoints) download(z Zone, parts ...string) string {
	return join(e.Download[z], parts...)
}

func join(base string, parts ...string) string {
	var b strings.Builder

	b.WriteString(base)

	for _, p := range parts {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(p))
	}

	return b.String()
}
