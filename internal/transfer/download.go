package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pilotdata/pilotcli/internal/clierr"
	"github.com/pilotdata/pilotcli/internal/platform"
	"github.com/pilotdata/pilotcli/internal/target"
	"github.com/pilotdata/pilotcli/internal/ui"
)

// DownloadAPI is the part of the platform client the download engine uses.
type DownloadAPI interface {
	SearchItem(ctx context.Context, project string, zone platform.Zone, objectPath, status string) (*platform.Item, error)
	QueryByID(ctx context.Context, ids []string) ([]platform.Item, error)
	PrepareDownload(ctx context.Context, project string, zone platform.Zone, operator string, ids []string) (*platform.DownloadJob, error)
	DownloadStatus(ctx context.Context, zone platform.Zone, hashCode string) (*platform.DownloadJob, error)
	OpenDownload(ctx context.Context, zone platform.Zone, hashCode string) (*http.Response, error)
	OpenPresigned(ctx context.Context, presigned string) (*http.Response, error)
}

// Download modes of a task group.
const (
	ModeFile   = "file"
	ModeFolder = "folder"
	ModeBatch  = "batch"
)

// DownloadOptions is one download command.
type DownloadOptions struct {
	Paths    []string
	Dest     string
	Zone     platform.Zone
	Zip      bool
	ByID     bool
	Operator string
}

// Group is a set of items prepared and streamed as one download.
type Group struct {
	Project string
	Zone    platform.Zone
	Items   []platform.Item
	Size    int64
	Mode    string
}

// IDs returns the item ids of the group.
func (g *Group) IDs() []string {
	ids := make([]string, len(g.Items))
	for i, it := range g.Items {
		ids[i] = it.ID
	}

	return ids
}

// Downloader is the download engine.
type Downloader struct {
	api     DownloadAPI
	out     ui.Handler
	logger  *slog.Logger
	limiter *BandwidthLimiter

	pollInterval time.Duration
	sleep        func(context.Context, time.Duration) error
}

// NewDownloader creates a Downloader.
func NewDownloader(api DownloadAPI, out ui.Handler, limiter *BandwidthLimiter, logger *slog.Logger) *Downloader {
	return &Downloader{
		api:          api,
		out:          out,
		logger:       logger,
		limiter:      limiter,
		pollInterval: downloadPollInterval,
		sleep:        sleepCtx,
	}
}

// Download resolves, prepares and streams every requested item and returns
// the local paths written.
func (d *Downloader) Download(ctx context.Context, opts DownloadOptions) ([]string, error) {
	st, err := os.Stat(opts.Dest)
	if err != nil || !st.IsDir() {
		return nil, clierr.New(clierr.InvalidPath, "%s is not a directory", opts.Dest)
	}

	items, err := d.resolve(ctx, opts)
	if err != nil {
		return nil, err
	}

	var written []string

	for _, g := range Bucket(items, opts.Zip) {
		p, err := d.downloadGroup(ctx, g, opts)
		if err != nil {
			return written, err
		}

		written = append(written, p)
	}

	return written, nil
}

func (d *Downloader) resolve(ctx context.Context, opts DownloadOptions) ([]platform.Item, error) {
	if opts.ByID {
		items, err := d.api.QueryByID(ctx, opts.Paths)
		if err != nil {
			return nil, fmt.Errorf("looking up items: %w", err)
		}

		found := make(map[string]bool, len(items))
		for _, it := range items {
			found[it.ID] = true
		}

		for _, id := range opts.Paths {
			if !found[id] {
				return nil, clierr.New(clierr.ItemNotFound, "%s", id)
			}
		}

		return items, nil
	}

	items := make([]platform.Item, 0, len(opts.Paths))

	for _, p := range opts.Paths {
		t, err := target.ParseItemPath(p)
		if err != nil {
			return nil, err
		}

		item, err := d.api.SearchItem(ctx, t.ProjectCode, opts.Zone, t.ObjectPath(), platform.StatusActive)
		if err != nil {
			if errors.Is(err, platform.ErrNotFound) {
				return nil, clierr.New(clierr.ItemNotFound, "%s", t)
			}

			return nil, fmt.Errorf("searching %s: %w", t, err)
		}

		if item.ContainerCode == "" {
			item.ContainerCode = t.ProjectCode
		}

		item.Zone = opts.Zone
		items = append(items, *item)
	}

	return items, nil
}

// Bucket groups items by (project, zone) when zip is set; otherwise every
// item is its own group.
func Bucket(items []platform.Item, zip bool) []*Group {
	var groups []*Group

	index := map[string]*Group{}

	for _, it := range items {
		var g *Group

		if zip {
			key := fmt.Sprintf("%s/%d", it.ContainerCode, it.Zone)

			g = index[key]
			if g == nil {
				g = &Group{Project: it.ContainerCode, Zone: it.Zone}
				index[key] = g
				groups = append(groups, g)
			}
		} else {
			g = &Group{Project: it.ContainerCode, Zone: it.Zone}
			groups = append(groups, g)
		}

		g.Items = append(g.Items, it)
		g.Size += it.Size
	}

	for _, g := range groups {
		switch {
		case len(g.Items) > 1:
			g.Mode = ModeBatch
		case g.Items[0].IsFolder():
			g.Mode = ModeFolder
		default:
			g.Mode = ModeFile
		}
	}

	return groups
}

func (d *Downloader) downloadGroup(ctx context.Context, g *Group, opts DownloadOptions) (string, error) {
	d.logger.Info("preparing download",
		slog.String("project", g.Project),
		slog.String("zone", g.Zone.String()),
		slog.String("mode", g.Mode),
		slog.Int("items", len(g.Items)),
	)

	job, err := d.api.PrepareDownload(ctx, g.Project, g.Zone, opts.Operator, g.IDs())
	if err != nil {
		return "", fmt.Errorf("preparing download: %w", err)
	}

	if job.Payload.URL != "" && g.Mode == ModeFile {
		resp, err := d.api.OpenPresigned(ctx, job.Payload.URL)
		if err != nil {
			return "", clierr.Wrap(clierr.DownloadFail, err, g.Items[0].Name)
		}

		return d.stream(ctx, resp, opts.Dest, g.Items[0].Name)
	}

	name := archiveName(job.Payload.HashCode, g)
	d.out.Inform(fmt.Sprintf("Preparing %s", name))

	if err := d.waitReady(ctx, g.Zone, job); err != nil {
		return "", err
	}

	resp, err := d.api.OpenDownload(ctx, g.Zone, job.Payload.HashCode)
	if err != nil {
		return "", clierr.Wrap(clierr.DownloadFail, err, name)
	}

	return d.stream(ctx, resp, opts.Dest, name)
}

// waitReady polls until the job reaches SUCCEED or FAILED.
func (d *Downloader) waitReady(ctx context.Context, zone platform.Zone, job *platform.DownloadJob) error {
	hash := job.Payload.HashCode
	if hash == "" {
		return clierr.New(clierr.ServerError, "download prepared without a hash code")
	}

	status := job.Status

	for {
		switch status {
		case platform.JobSucceed:
			return nil
		case platform.JobFailed:
			return clierr.New(clierr.DownloadFail, "the platform could not prepare the download")
		}

		if err := d.sleep(ctx, d.pollInterval); err != nil {
			return err
		}

		next, err := d.api.DownloadStatus(ctx, zone, hash)
		if err != nil {
			return fmt.Errorf("polling download status: %w", err)
		}

		d.logger.Debug("download status", slog.String("status", next.Status))
		status = next.Status
	}
}

// archiveName takes the file name from the hash code's file_path claim,
// falling back to the item name.
func archiveName(hash string, g *Group) string {
	if fp := hashFilePath(hash); fp != "" {
		return path.Base(fp)
	}

	if g.Mode == ModeFile {
		return g.Items[0].Name
	}

	if g.Mode == ModeFolder {
		return g.Items[0].Name + ".zip"
	}

	return g.Project + ".zip"
}

type hashClaims struct {
	FilePath string `json:"file_path"`
	jwt.RegisteredClaims
}

func hashFilePath(hash string) string {
	if hash == "" {
		return ""
	}

	var claims hashClaims
	if _, _, err := jwt.NewParser().ParseUnverified(hash, &claims); err != nil {
		return ""
	}

	return claims.FilePath
}

// stream writes resp to a free name in dir through a .partial file and
// enforces Content-Length.
func (d *Downloader) stream(ctx context.Context, resp *http.Response, dir, name string) (string, error) {
	defer resp.Body.Close()

	dest, renamed, err := UniqueName(dir, name)
	if err != nil {
		return "", err
	}

	if renamed {
		d.out.Warn(fmt.Sprintf("%s exists, saving as %s", filepath.Join(dir, name), dest))
	}

	partial := dest + ".partial"

	f, err := os.OpenFile(partial, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", partial, err)
	}

	bar := d.out.Progress(filepath.Base(dest), max(resp.ContentLength, 0))

	w := d.limiter.WrapWriter(ctx, f)
	written, copyErr := io.Copy(w, &progressReader{r: resp.Body, bar: bar})
	closeErr := f.Close()

	if expected := resp.ContentLength; expected >= 0 && written != expected {
		bar.Abort()
		_ = os.Remove(partial)

		return "", clierr.New(clierr.DownloadSizeMismatch, "%s: expected %d bytes, got %d", name, expected, written)
	}

	if err := errors.Join(copyErr, closeErr); err != nil {
		bar.Abort()
		_ = os.Remove(partial)

		return "", clierr.Wrap(clierr.DownloadFail, err, name)
	}

	if err := os.Rename(partial, dest); err != nil {
		_ = os.Remove(partial)
		return "", fmt.Errorf("renaming %s: %w", partial, err)
	}

	bar.Done()

	d.logger.Info("downloaded", slog.String("path", dest), slog.Int64("bytes", written))

	return dest, nil
}

// UniqueName returns dir/name, or dir/"base (n).ext" with the smallest free
// n when name is taken.
func UniqueName(dir, name string) (string, bool, error) {
	candidate := filepath.Join(dir, name)

	free, err := isFree(candidate)
	if err != nil || free {
		return candidate, false, err
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	for n := 1; ; n++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, n, ext))

		free, err := isFree(candidate)
		if err != nil {
			return "", false, err
		}

		if free {
			return candidate, true, nil
		}
	}
}

func isFree(p string) (bool, error) {
	_, err := os.Lstat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}

	if err != nil {
		return false, fmt.Errorf("checking %s: %w", p, err)
	}

	return false, nil
}

type progressReader struct {
	r   io.Reader
	bar ui.Progress
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.bar.Add(int64(n))
	}

	return n, err
}
