package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Watchdog keeps credentials fresh while a transfer runs.
type Watchdog interface {
	Run(ctx context.Context)
}

// Driver runs whole upload, resume and download commands: it starts the
// token watchdog, delegates to the engines and owns the resume manifest.
type Driver struct {
	uploader   *Uploader
	downloader *Downloader
	watchdog   Watchdog
	threads    int
	logger     *slog.Logger
}

// NewDriver creates a Driver. watchdog may be nil.
func NewDriver(up *Uploader, down *Downloader, watchdog Watchdog, threads int, logger *slog.Logger) *Driver {
	return &Driver{
		uploader:   up,
		downloader: down,
		watchdog:   watchdog,
		threads:    max(threads, 1),
		logger:     logger,
	}
}

// Summary reports what an upload did.
type Summary struct {
	Uploaded int
	Failed   int
	Bytes    int64
	Manifest string
	// Kept is set when the manifest was left on disk for a later resume.
	Kept bool
}

// Upload runs one upload command end to end. On failure or interruption the
// manifest and any --zip archives stay on disk; on success both are removed.
func (d *Driver) Upload(ctx context.Context, opts UploadOptions) (*Summary, error) {
	pool := NewPool(d.threads)

	stop, err := d.startWatchdog(ctx, pool)
	if err != nil {
		return nil, err
	}
	defer stop()

	plan, err := d.uploader.Plan(ctx, opts)
	if err != nil {
		return nil, err
	}

	m, err := d.uploader.PreUpload(ctx, plan)
	if err != nil {
		plan.Close()
		return nil, err
	}

	manifestPath := plan.Opts.ManifestPath
	m.Archives = plan.releaseArchives()

	if err := m.Save(manifestPath); err != nil {
		removeArchives(m.Archives)
		return nil, err
	}

	d.logger.Debug("resume manifest written", slog.String("path", manifestPath))

	return d.finish(ctx, m, m.Sorted(), pool, manifestPath)
}

// Resume continues the upload described by the manifest at manifestPath.
func (d *Driver) Resume(ctx context.Context, manifestPath string) (*Summary, error) {
	m, err := LoadManifest(manifestPath)
	if err != nil {
		return nil, err
	}

	pool := NewPool(d.threads)

	stop, err := d.startWatchdog(ctx, pool)
	if err != nil {
		return nil, err
	}
	defer stop()

	files, err := d.uploader.PrepareResume(ctx, m)
	if err != nil {
		return nil, err
	}

	return d.finish(ctx, m, files, pool, manifestPath)
}

func (d *Driver) finish(ctx context.Context, m *Manifest, files []*FileObject, pool *Pool, manifestPath string) (*Summary, error) {
	results, attachErr := d.uploader.Stream(ctx, m, files, pool)

	s := &Summary{Manifest: manifestPath}

	var errs []error

	for _, r := range results {
		if r.Err != nil {
			s.Failed++
			errs = append(errs, r.Err)

			continue
		}

		s.Uploaded++
		s.Bytes += r.File.TotalSize
	}

	if ctx.Err() != nil {
		s.Kept = true
		err := fmt.Errorf("upload interrupted, resume with --resumable-manifest %s: %w", manifestPath, ctx.Err())

		return s, d.keep(m, manifestPath, err)
	}

	if s.Failed > 0 {
		s.Kept = true
		err := fmt.Errorf("%d of %d files failed, resume with --resumable-manifest %s: %w",
			s.Failed, len(results), manifestPath, errors.Join(errs...))

		return s, d.keep(m, manifestPath, err)
	}

	if attachErr != nil {
		s.Kept = true
		return s, d.keep(m, manifestPath, attachErr)
	}

	return s, m.Finish(manifestPath)
}

// keep rewrites the manifest so a later resume sees which files finished
// and whether attributes were attached.
func (d *Driver) keep(m *Manifest, manifestPath string, cause error) error {
	if err := m.Save(manifestPath); err != nil {
		d.logger.Warn("updating resume manifest failed", slog.String("path", manifestPath), slog.String("error", err.Error()))
		return errors.Join(cause, err)
	}

	return cause
}

// Download runs one download command.
func (d *Driver) Download(ctx context.Context, opts DownloadOptions) ([]string, error) {
	stop, err := d.startWatchdog(ctx, NewPool(1))
	if err != nil {
		return nil, err
	}
	defer stop()

	return d.downloader.Download(ctx, opts)
}

// startWatchdog runs the watchdog in the pool's reserved slot. The returned
// stop cancels it and waits for it to exit.
func (d *Driver) startWatchdog(ctx context.Context, pool *Pool) (func(), error) {
	if d.watchdog == nil {
		return func() {}, nil
	}

	release, err := pool.Reserve(ctx)
	if err != nil {
		return nil, err
	}

	wctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer release()

		d.watchdog.Run(wctx)
	}()

	return func() {
		cancel()
		<-done
	}, nil
}
