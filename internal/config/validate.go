package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/dustin/go-humanize"
)

// Validation range constants.
const (
	minThreads          = 1
	maxThreads          = 32
	minUploadBatchSize  = 1
	maxUploadBatchSize  = 500
	minChunkBytes       = 256 * humanize.KiByte
	maxChunkBytes       = 512 * humanize.MiByte
	minWarnWindow       = 10 * time.Second
	minWatchdogInterval = 100 * time.Millisecond
	minConnectTimeout   = 1 * time.Second
	minDataTimeout      = 5 * time.Second
)

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true,
}

// Validate checks all settings values and returns every error found.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateService(&cfg.Service)...)
	errs = append(errs, validateTransfers(&cfg.Transfers)...)
	errs = append(errs, validateAuth(&cfg.Auth)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)

	return errors.Join(errs...)
}

func validateService(s *ServiceConfig) []error {
	var errs []error

	urls := []struct {
		key, val string
	}{
		{"bff_url", s.BFFURL},
		{"portal_url", s.PortalURL},
		{"keycloak_url", s.KeycloakURL},
		{"keycloak_realm_url", s.KeycloakRealmURL},
		{"upload_green_url", s.UploadGreenURL},
		{"upload_core_url", s.UploadCoreURL},
		{"download_green_url", s.DownloadGreenURL},
		{"download_core_url", s.DownloadCoreURL},
	}

	for _, u := range urls {
		if err := validateURL(u.val); err != nil {
			errs = append(errs, fmt.Errorf("service.%s: %w", u.key, err))
		}
	}

	if s.ClientID == "" {
		errs = append(errs, errors.New("service.client_id: must not be empty"))
	}

	return errs
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%q must be an http or https URL", raw)
	}

	if u.Host == "" {
		return fmt.Errorf("%q has no host", raw)
	}

	return nil
}

func validateTransfers(t *TransfersConfig) []error {
	var errs []error

	if t.Threads < minThreads || t.Threads > maxThreads {
		errs = append(errs, fmt.Errorf("transfers.threads: must be between %d and %d, got %d",
			minThreads, maxThreads, t.Threads))
	}

	if t.UploadBatchSize < minUploadBatchSize || t.UploadBatchSize > maxUploadBatchSize {
		errs = append(errs, fmt.Errorf("transfers.upload_batch_size: must be between %d and %d, got %d",
			minUploadBatchSize, maxUploadBatchSize, t.UploadBatchSize))
	}

	chunk, err := ParseSize(t.ChunkSize)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("transfers.chunk_size: %w", err))
	case chunk < minChunkBytes || chunk > maxChunkBytes:
		errs = append(errs, fmt.Errorf("transfers.chunk_size: must be between 256KiB and 512MiB, got %q", t.ChunkSize))
	}

	if _, err := ParseRate(t.BandwidthLimit); err != nil {
		errs = append(errs, fmt.Errorf("transfers.bandwidth_limit: %w", err))
	}

	return errs
}

func validateAuth(a *AuthConfig) []error {
	var errs []error

	if err := validateDuration(a.WarnWindow, minWarnWindow); err != nil {
		errs = append(errs, fmt.Errorf("auth.warn_window: %w", err))
	}

	if err := validateDuration(a.WatchdogInterval, minWatchdogInterval); err != nil {
		errs = append(errs, fmt.Errorf("auth.watchdog_interval: %w", err))
	}

	return errs
}

func validateLogging(l *LoggingConfig) []error {
	if !validLogLevels[l.LogLevel] {
		return []error{fmt.Errorf("logging.log_level: must be one of debug, info, warn, error; got %q", l.LogLevel)}
	}

	return nil
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	if err := validateDuration(n.ConnectTimeout, minConnectTimeout); err != nil {
		errs = append(errs, fmt.Errorf("network.connect_timeout: %w", err))
	}

	if err := validateDuration(n.DataTimeout, minDataTimeout); err != nil {
		errs = append(errs, fmt.Errorf("network.data_timeout: %w", err))
	}

	return errs
}

func validateDuration(s string, floor time.Duration) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	if d < floor {
		return fmt.Errorf("must be at least %s, got %s", floor, d)
	}

	return nil
}
