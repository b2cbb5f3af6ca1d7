package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), SettingsFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoad_ValidFullConfig(t *testing.T) {
	path := writeTestConfig(t, `
[service]
bff_url = "https://bff.test"
client_id = "cli-test"

[transfers]
chunk_size = "4MiB"
threads = 4
upload_batch_size = 50
bandwidth_limit = "10MB/s"

[auth]
warn_window = "120s"

[logging]
log_level = "debug"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://bff.test", cfg.Service.BFFURL)
	assert.Equal(t, "cli-test", cfg.Service.ClientID)
	assert.Equal(t, 4, cfg.Transfers.Threads)
	assert.Equal(t, "120s", cfg.Auth.WarnWindow)
	assert.Equal(t, "2s", cfg.Auth.WatchdogInterval, "unset keys keep defaults")
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := writeTestConfig(t, "[transfers\nthreads = ")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing settings file")
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeTestConfig(t, "[transfers]\nthreads = 0\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transfers.threads")
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestResolve_Layers(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(home, SettingsFileName), []byte(`
[service]
bff_url = "https://file.test"

[transfers]
threads = 2

[logging]
log_level = "info"
`), 0o600))

	threads := 6
	s, err := Resolve(
		EnvOverrides{HomeDir: home, BFFURL: "https://env.test", LogLevel: "ERROR"},
		CLIOverrides{Threads: &threads},
	)
	require.NoError(t, err)

	assert.Equal(t, "https://env.test", s.Service.BFFURL)
	assert.Equal(t, "error", s.LogLevel)
	assert.Equal(t, 6, s.Threads)
	assert.Equal(t, int64(2*humanize.MiByte), s.ChunkSize)
	assert.Equal(t, 300*time.Second, s.WarnWindow)
	assert.Equal(t, 2*time.Second, s.WatchdogInterval)
	assert.Equal(t, filepath.Join(home, IdentityFileName), s.IdentityPath)
}

func TestResolve_CLIConfigPathWins(t *testing.T) {
	envPath := writeTestConfig(t, "[transfers]\nthreads = 3\n")
	cliPath := writeTestConfig(t, "[transfers]\nthreads = 5\n")

	s, err := Resolve(
		EnvOverrides{HomeDir: t.TempDir(), ConfigPath: envPath},
		CLIOverrides{ConfigPath: cliPath},
	)
	require.NoError(t, err)
	assert.Equal(t, 5, s.Threads)
	assert.Equal(t, cliPath, s.SettingsPath)
}

func TestResolve_BandwidthLimitPerSecondSuffix(t *testing.T) {
	path := writeTestConfig(t, "[transfers]\nbandwidth_limit = \"1MiB/s\"\n")

	s, err := Resolve(EnvOverrides{HomeDir: t.TempDir()}, CLIOverrides{ConfigPath: path})
	require.NoError(t, err)
	assert.Equal(t, int64(humanize.MiByte), s.BandwidthLimit)
}
