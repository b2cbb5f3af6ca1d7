package main

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/pilotdata/pilotcli/internal/ui"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect settings",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Display effective settings after all overrides",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	})

	return cmd
}

// configView is the JSON schema for `config show --json`.
type configView struct {
	SettingsFile     string `json:"settings_file"`
	IdentityFile     string `json:"identity_file"`
	BFFURL           string `json:"bff_url"`
	PortalURL        string `json:"portal_url"`
	KeycloakURL      string `json:"keycloak_url"`
	UploadGreenURL   string `json:"upload_green_url"`
	UploadCoreURL    string `json:"upload_core_url"`
	DownloadGreenURL string `json:"download_green_url"`
	DownloadCoreURL  string `json:"download_core_url"`
	ClientID         string `json:"client_id"`
	ChunkSize        int64  `json:"chunk_size"`
	Threads          int    `json:"threads"`
	UploadBatchSize  int    `json:"upload_batch_size"`
	BandwidthLimit   int64  `json:"bandwidth_limit"`
	WarnWindow       string `json:"warn_window"`
	WatchdogInterval string `json:"watchdog_interval"`
	LogLevel         string `json:"log_level"`
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	s := cc.Settings

	v := configView{
		SettingsFile:     s.SettingsPath,
		IdentityFile:     s.IdentityPath,
		BFFURL:           s.Service.BFFURL,
		PortalURL:        s.Service.PortalURL,
		KeycloakURL:      s.Service.KeycloakURL,
		UploadGreenURL:   s.Service.UploadGreenURL,
		UploadCoreURL:    s.Service.UploadCoreURL,
		DownloadGreenURL: s.Service.DownloadGreenURL,
		DownloadCoreURL:  s.Service.DownloadCoreURL,
		ClientID:         s.Service.ClientID,
		ChunkSize:        s.ChunkSize,
		Threads:          s.Threads,
		UploadBatchSize:  s.UploadBatchSize,
		BandwidthLimit:   s.BandwidthLimit,
		WarnWindow:       s.WarnWindow.String(),
		WatchdogInterval: s.WatchdogInterval.String(),
		LogLevel:         s.LogLevel,
	}

	if cc.Flags.JSON {
		return printJSON(cc.stdout, v)
	}

	limit := "unlimited"
	if v.BandwidthLimit > 0 {
		limit = ui.Size(v.BandwidthLimit) + "/s"
	}

	printTable(cc.stdout, []string{"KEY", "VALUE"}, [][]string{
		{"settings_file", v.SettingsFile},
		{"identity_file", v.IdentityFile},
		{"bff_url", v.BFFURL},
		{"portal_url", v.PortalURL},
		{"keycloak_url", v.KeycloakURL},
		{"upload_green_url", v.UploadGreenURL},
		{"upload_core_url", v.UploadCoreURL},
		{"download_green_url", v.DownloadGreenURL},
		{"download_core_url", v.DownloadCoreURL},
		{"client_id", v.ClientID},
		{"chunk_size", ui.Size(v.ChunkSize)},
		{"threads", strconv.Itoa(v.Threads)},
		{"upload_batch_size", strconv.Itoa(v.UploadBatchSize)},
		{"bandwidth_limit", limit},
		{"warn_window", v.WarnWindow},
		{"watchdog_interval", v.WatchdogInterval},
		{"log_level", v.LogLevel},
	})

	return nil
}
