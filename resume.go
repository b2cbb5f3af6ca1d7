package main

import (
	"log/slog"

	"github.com/spf13/cobra"
)

func newResumeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Continue an interrupted upload",
		Long: `Continue an upload from its resume manifest.

Chunks already on the server are checked against the local files and
skipped; a file whose content changed since the upload started fails with
INVALID_CHUNK_UPLOAD. The manifest is removed once every file is uploaded.`,
		Args: cobra.NoArgs,
		RunE: runResume,
	}

	addThreadFlag(cmd)
	cmd.Flags().StringP("resumable-manifest", "r", "", "resume manifest written by 'file upload'")
	_ = cmd.MarkFlagRequired("resumable-manifest")

	return cmd
}

func runResume(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	manifest, _ := cmd.Flags().GetString("resumable-manifest")

	if err := cc.login(); err != nil {
		return err
	}

	cc.Logger.Info("resume started", slog.String("manifest", manifest), slog.Int("threads", cc.Settings.Threads))

	sum, err := cc.driver(cc.Settings.Threads, false).Resume(cmd.Context(), manifest)

	return reportSummary(cc, sum, err)
}
