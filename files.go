package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/pilotdata/pilotcli/internal/clierr"
	"github.com/pilotdata/pilotcli/internal/platform"
	"github.com/pilotdata/pilotcli/internal/target"
	"github.com/pilotdata/pilotcli/internal/transfer"
	"github.com/pilotdata/pilotcli/internal/ui"
)

const defaultPageSize = 10

func newFileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "file",
		Short: "Upload, download and manage files",
	}

	cmd.AddCommand(newUploadCmd())
	cmd.AddCommand(newResumeCmd())
	cmd.AddCommand(newDownloadCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newMoveCmd())
	cmd.AddCommand(newTrashCmd())

	return cmd
}

func newFolderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "folder",
		Short: "Manage folders",
	}

	create := &cobra.Command{
		Use:   "create <project/root/path>",
		Short: "Create a folder and any missing parents",
		Args:  cobra.ExactArgs(1),
		RunE:  runFolderCreate,
	}
	addZoneFlag(create)

	cmd.AddCommand(create)

	return cmd
}

func addZoneFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("zone", "z", "green", "storage zone: green or core")
}

func addThreadFlag(cmd *cobra.Command) {
	cmd.Flags().IntP("thread", "t", 0, "number of parallel chunk uploads (default from settings)")
}

func zoneFlag(cmd *cobra.Command) (platform.Zone, error) {
	z, _ := cmd.Flags().GetString("zone")

	return platform.ParseZone(z)
}

func newUploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload <project/root/path> <local>...",
		Short: "Upload files or folders",
		Long: `Upload local files or folders into a platform folder.

The target is project/users/<name>/... or project/shared/<folder>/...
Missing folders below the namespace folder are created after confirmation.
Progress is recorded in a resume manifest; an interrupted or partly failed
upload continues with 'pilotcli file resume'.`,
		Args: cobra.MinimumNArgs(2),
		RunE: runUpload,
	}

	addZoneFlag(cmd)
	addThreadFlag(cmd)
	cmd.Flags().Bool("zip", false, "upload each folder as one zip archive")
	cmd.Flags().StringArrayP("tag", "g", nil, "tag to add to the uploaded files (repeatable)")
	cmd.Flags().StringP("attribute", "a", "", "JSON file of template attributes to attach")
	cmd.Flags().StringP("output-path", "o", transfer.DefaultManifestPath, "where to write the resume manifest")
	cmd.Flags().BoolP("yes", "y", false, "answer yes to every prompt")

	return cmd
}

func runUpload(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	zone, err := zoneFlag(cmd)
	if err != nil {
		return err
	}

	locals := args[1:]
	for _, l := range locals {
		if _, err := os.Stat(l); err != nil {
			return clierr.Wrap(clierr.InvalidPath, err, l)
		}
	}

	if err := cc.login(); err != nil {
		return err
	}

	zip, _ := cmd.Flags().GetBool("zip")
	tags, _ := cmd.Flags().GetStringArray("tag")
	attrs, _ := cmd.Flags().GetString("attribute")
	manifest, _ := cmd.Flags().GetString("output-path")
	yes, _ := cmd.Flags().GetBool("yes")

	opts := transfer.UploadOptions{
		Target:        args[0],
		Locals:        locals,
		Zone:          zone,
		Zip:           zip,
		Tags:          tags,
		AttributeFile: attrs,
		ManifestPath:  manifest,
		Operator:      cc.Auth.Username(),
	}

	cc.Logger.Info("upload started",
		slog.String("target", opts.Target),
		slog.Int("sources", len(locals)),
		slog.String("zone", zone.String()),
		slog.Int("threads", cc.Settings.Threads),
	)

	sum, err := cc.driver(cc.Settings.Threads, yes).Upload(cmd.Context(), opts)

	return reportSummary(cc, sum, err)
}

func reportSummary(cc *CLIContext, sum *transfer.Summary, err error) error {
	if sum == nil {
		return err
	}

	if cc.Flags.JSON {
		if jerr := printJSON(cc.stdout, sum); jerr != nil {
			return errors.Join(err, jerr)
		}
	} else {
		cc.Statusf("Uploaded %d files (%s)", sum.Uploaded, ui.Size(sum.Bytes))

		if sum.Failed > 0 {
			cc.Statusf(", %d failed", sum.Failed)
		}

		cc.Statusf(".\n")

		if sum.Kept {
			cc.Statusf("Resume manifest kept at %s.\n", sum.Manifest)
		}
	}

	return err
}

func newDownloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download <project/root/path>... <local-dir>",
		Short: "Download files or folders",
		Long: `Download platform files or folders into a local directory.

Folders and batches are zipped by the platform before download. With --zip
all items of one project and zone arrive as a single archive. With --geid
the arguments are item ids instead of paths.`,
		Args: cobra.MinimumNArgs(2),
		RunE: runDownload,
	}

	addZoneFlag(cmd)
	cmd.Flags().Bool("zip", false, "download all items as one archive")
	cmd.Flags().Bool("geid", false, "arguments are item ids")

	return cmd
}

func runDownload(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	zone, err := zoneFlag(cmd)
	if err != nil {
		return err
	}

	if err := cc.login(); err != nil {
		return err
	}

	zip, _ := cmd.Flags().GetBool("zip")
	byID, _ := cmd.Flags().GetBool("geid")

	opts := transfer.DownloadOptions{
		Paths:    args[:len(args)-1],
		Dest:     args[len(args)-1],
		Zone:     zone,
		Zip:      zip,
		ByID:     byID,
		Operator: cc.Auth.Username(),
	}

	written, err := cc.driver(1, false).Download(cmd.Context(), opts)

	if cc.Flags.JSON {
		if jerr := printJSON(cc.stdout, map[string][]string{"files": written}); jerr != nil {
			return errors.Join(err, jerr)
		}
	} else {
		for _, p := range written {
			cc.Statusf("Saved %s\n", p)
		}
	}

	return err
}

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <project/root/path>",
		Short: "List the contents of a folder",
		Args:  cobra.ExactArgs(1),
		RunE:  runList,
	}

	addZoneFlag(cmd)
	cmd.Flags().Int("page", 0, "first page to show (0-based)")
	cmd.Flags().Int("page-size", defaultPageSize, "items per page")
	cmd.Flags().Bool("detached", false, "show one page without prompting for more")

	return cmd
}

func runList(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	zone, err := zoneFlag(cmd)
	if err != nil {
		return err
	}

	page, _ := cmd.Flags().GetInt("page")
	size, _ := cmd.Flags().GetInt("page-size")
	detached, _ := cmd.Flags().GetBool("detached")

	if page < 0 || size < 1 {
		return clierr.New(clierr.InvalidPath, "--page must be >= 0 and --page-size >= 1")
	}

	if err := cc.login(); err != nil {
		return err
	}

	ops := target.NewOps(cc.Client, cc.Out, cc.Logger)

	for {
		res, err := ops.List(cmd.Context(), args[0], zone, platform.ListOptions{Page: page, PageSize: size})
		if err != nil {
			return err
		}

		if cc.Flags.JSON {
			return printJSON(cc.stdout, res)
		}

		printItems(cc.stdout, res.Items)

		last := res.NumOfPages == 0 || page >= res.NumOfPages-1
		if detached || last || cc.Terminal == nil {
			return nil
		}

		page++

		if !cc.Out.Confirm(fmt.Sprintf("Show page %d of %d?", page+1, res.NumOfPages)) {
			return nil
		}
	}
}

func newMoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "move <src> <dst>",
		Short: "Move or rename an item within a project",
		Args:  cobra.ExactArgs(2),
		RunE:  runMove,
	}

	addZoneFlag(cmd)

	return cmd
}

func runMove(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	zone, err := zoneFlag(cmd)
	if err != nil {
		return err
	}

	if err := cc.login(); err != nil {
		return err
	}

	item, err := target.NewOps(cc.Client, cc.Out, cc.Logger).Move(cmd.Context(), args[0], args[1], zone)
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		return printJSON(cc.stdout, item)
	}

	cc.Statusf("Moved %s to %s.\n", args[0], item.Path())

	return nil
}

func newTrashCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trash <path>...",
		Short: "Move items to the trash",
		Long: `Move items to the trash. With --permanent they are purged as well,
including items already in the trash.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runTrash,
	}

	addZoneFlag(cmd)
	cmd.Flags().Bool("permanent", false, "delete permanently")
	cmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")

	return cmd
}

func runTrash(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	zone, err := zoneFlag(cmd)
	if err != nil {
		return err
	}

	if err := cc.login(); err != nil {
		return err
	}

	permanent, _ := cmd.Flags().GetBool("permanent")
	yes, _ := cmd.Flags().GetBool("yes")

	return target.NewOps(cc.Client, cc.handler(yes), cc.Logger).Trash(cmd.Context(), args, zone, permanent)
}

func runFolderCreate(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	zone, err := zoneFlag(cmd)
	if err != nil {
		return err
	}

	if err := cc.login(); err != nil {
		return err
	}

	item, err := target.NewOps(cc.Client, cc.Out, cc.Logger).CreateFolder(cmd.Context(), args[0], zone)
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		return printJSON(cc.stdout, item)
	}

	cc.Statusf("Created %s.\n", fmt.Sprintf("%s/%s", item.ContainerCode, item.Path()))

	return nil
}
