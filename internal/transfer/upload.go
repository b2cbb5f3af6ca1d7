// Package transfer is the file transfer engine: planning, pre-upload,
// parallel chunk streaming, completion and resume for uploads, and the
// prepare, poll and stream protocol for downloads.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/pilotdata/pilotcli/internal/archive"
	"github.com/pilotdata/pilotcli/internal/clierr"
	"github.com/pilotdata/pilotcli/internal/platform"
	"github.com/pilotdata/pilotcli/internal/target"
	"github.com/pilotdata/pilotcli/internal/ui"
)

const (
	defaultChunkSize     = 2 << 20
	defaultBatchSize     = 100
	activePollInterval   = 500 * time.Millisecond
	downloadPollInterval = time.Second
)

// UploadAPI is the part of the platform client the upload engine uses.
type UploadAPI interface {
	target.Items
	PreUpload(ctx context.Context, req *platform.PreUploadRequest) ([]platform.PreUploadResult, error)
	QueryByID(ctx context.Context, ids []string) ([]platform.Item, error)
	Resumable(ctx context.Context, project string, zone platform.Zone, objects []platform.ResumableObject) ([]platform.ResumableResult, error)
	PresignChunk(ctx context.Context, zone platform.Zone, ref platform.ChunkRef) (string, error)
	PutChunk(ctx context.Context, presigned, contentMD5 string, data []byte) error
	Complete(ctx context.Context, zone platform.Zone, req *platform.CompleteRequest) error
	AttributeTemplates(ctx context.Context, project string) ([]platform.AttributeTemplate, error)
	AttachAttributes(ctx context.Context, req *platform.AttachRequest) error
}

// UploadOptions is one upload command.
type UploadOptions struct {
	Target        string
	Locals        []string
	Zone          platform.Zone
	Zip           bool
	Tags          []string
	AttributeFile string
	ManifestPath  string
	Operator      string
}

// Uploader is the upload engine.
type Uploader struct {
	api       UploadAPI
	resolver  *target.Resolver
	out       ui.Handler
	logger    *slog.Logger
	limiter   *BandwidthLimiter
	chunkSize int64
	batchSize int

	pollInterval time.Duration
	sleep        func(context.Context, time.Duration) error
}

// UploaderConfig tunes an Uploader. Zero values take defaults.
type UploaderConfig struct {
	ChunkSize int64
	BatchSize int
	Limiter   *BandwidthLimiter
}

// NewUploader creates an Uploader.
func NewUploader(api UploadAPI, out ui.Handler, cfg UploaderConfig, logger *slog.Logger) *Uploader {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}

	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}

	return &Uploader{
		api:          api,
		resolver:     target.NewResolver(api, out, logger),
		out:          out,
		logger:       logger,
		limiter:      cfg.Limiter,
		chunkSize:    cfg.ChunkSize,
		batchSize:    cfg.BatchSize,
		pollInterval: activePollInterval,
		sleep:        sleepCtx,
	}
}

// localFile is one file found on disk. Dir is the slash-separated folder
// below the target the file lands in ("" for the target itself).
type localFile struct {
	Path string
	Dir  string
	Name string
	Size int64
}

// Plan is a validated upload that has not contacted the upload service yet.
type Plan struct {
	Opts       UploadOptions
	Target     target.Target
	Placement  *target.Placement
	Files      []localFile
	JobType    string
	Tags       []string
	Attributes []AttributeSet

	archives []string
}

// Close removes the --zip archives of a plan that never reached a saved
// manifest.
func (p *Plan) Close() {
	removeArchives(p.archives)
	p.archives = nil
}

// releaseArchives hands the archive directories to the caller, which keeps
// them until the upload finishes.
func (p *Plan) releaseArchives() []string {
	dirs := p.archives
	p.archives = nil

	return dirs
}

func removeArchives(dirs []string) {
	for _, d := range dirs {
		_ = os.RemoveAll(d)
	}
}

// Plan validates inputs, resolves the target (creating missing folders after
// confirmation) and drops duplicates the user agreed to skip.
func (u *Uploader) Plan(ctx context.Context, opts UploadOptions) (plan *Plan, err error) {
	if opts.ManifestPath == "" {
		opts.ManifestPath = DefaultManifestPath
	}

	t, err := target.IdentifyTargetFolder(opts.Target, false)
	if err != nil {
		return nil, err
	}

	plan = &Plan{Opts: opts, Target: t, JobType: platform.JobAsFile}

	defer func() {
		if err != nil {
			plan.Close()
		}
	}()

	if plan.Tags, err = ValidateTags(opts.Tags); err != nil {
		return nil, err
	}

	if opts.AttributeFile != "" {
		if plan.Attributes, err = u.loadAttributes(ctx, t.ProjectCode, opts.AttributeFile); err != nil {
			return nil, err
		}
	}

	if err := u.checkManifestPath(opts.ManifestPath); err != nil {
		return nil, err
	}

	if err := u.collect(ctx, plan); err != nil {
		return nil, err
	}

	if plan.Placement, err = u.resolver.AssemblePath(ctx, "", t, opts.Zone); err != nil {
		return nil, err
	}

	if plan.Placement.MustCreate {
		p := plan.Placement

		created, err := u.resolver.CreateFolders(ctx, t.ProjectCode, opts.Zone, p.Parent, p.ParentPath, p.Missing)
		if err != nil {
			return nil, err
		}

		p.Parent = created
		p.ParentPath = t.ObjectPath()

		return plan, nil
	}

	if err := u.dropDuplicates(ctx, plan); err != nil {
		return nil, err
	}

	return plan, nil
}

func (u *Uploader) loadAttributes(ctx context.Context, project, file string) ([]AttributeSet, error) {
	given, err := ReadAttributeFile(file)
	if err != nil {
		return nil, err
	}

	templates, err := u.api.AttributeTemplates(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("fetching attribute templates: %w", err)
	}

	return ValidateAttributes(given, templates)
}

func (u *Uploader) checkManifestPath(p string) error {
	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}

		return fmt.Errorf("checking manifest path: %w", err)
	}

	if !u.out.Confirm(fmt.Sprintf("Resume manifest %s already exists. Overwrite it?", p)) {
		return clierr.New(clierr.UploadCancel, "manifest %s kept", p)
	}

	return nil
}

// collect walks the local inputs. Zero-byte files are skipped with a warning.
func (u *Uploader) collect(ctx context.Context, plan *Plan) error {
	for _, local := range plan.Opts.Locals {
		st, err := os.Stat(local)
		if err != nil {
			return clierr.Wrap(clierr.InvalidPath, err, local)
		}

		switch {
		case st.IsDir() && plan.Opts.Zip:
			parent, err := filepath.Abs(filepath.Dir(plan.Opts.ManifestPath))
			if err != nil {
				return fmt.Errorf("archiving %s: %w", local, err)
			}

			info, err := archive.TempZip(ctx, local, parent)
			if err != nil {
				return fmt.Errorf("archiving %s: %w", local, err)
			}

			plan.archives = append(plan.archives, info.Dir)
			u.logger.Info("archived folder",
				slog.String("folder", local),
				slog.Int("files", info.Files),
				slog.Int64("bytes", info.Size),
			)

			if err := u.addFile(plan, info.Path, ""); err != nil {
				return err
			}
		case st.IsDir():
			plan.JobType = platform.JobAsFolder

			if err := u.walk(ctx, plan, local); err != nil {
				return err
			}
		default:
			if err := u.addFile(plan, local, ""); err != nil {
				return err
			}
		}
	}

	if len(plan.Files) == 0 {
		return clierr.New(clierr.FolderEmpty, "nothing to upload")
	}

	return nil
}

func (u *Uploader) walk(ctx context.Context, plan *Plan, root string) error {
	base := filepath.Base(filepath.Clean(root))
	if !target.ValidFolderName(base) {
		return clierr.New(clierr.InvalidFolderName, "%s", root)
	}

	return filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		if d.IsDir() {
			if p != root && !target.ValidFolderName(d.Name()) {
				return clierr.New(clierr.InvalidFolderName, "%s", p)
			}

			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, filepath.Dir(p))
		if err != nil {
			return err
		}

		return u.addFile(plan, p, path.Join(base, filepath.ToSlash(rel)))
	})
}

func (u *Uploader) addFile(plan *Plan, p, dir string) error {
	st, err := os.Stat(p)
	if err != nil {
		return clierr.Wrap(clierr.InvalidPath, err, p)
	}

	if st.Size() == 0 {
		u.out.Warn(fmt.Sprintf("skipping empty file %s", p))
		return nil
	}

	if dir == "." {
		dir = ""
	}

	plan.Files = append(plan.Files, localFile{Path: p, Dir: dir, Name: filepath.Base(p), Size: st.Size()})

	return nil
}

func (plan *Plan) objectPath(f localFile) string {
	return path.Join(plan.Target.ObjectPath(), f.Dir, f.Name)
}

// dropDuplicates removes files whose object path already exists. All
// duplicate cancels the upload; some duplicate asks first.
func (u *Uploader) dropDuplicates(ctx context.Context, plan *Plan) error {
	paths := make([]string, len(plan.Files))
	for i, f := range plan.Files {
		paths[i] = plan.objectPath(f)
	}

	dups, err := u.resolver.CheckDuplicates(ctx, plan.Target.ProjectCode, plan.Opts.Zone, paths)
	if err != nil {
		return err
	}

	if len(dups) == 0 {
		return nil
	}

	if len(dups) == len(paths) {
		return clierr.New(clierr.UploadCancel, "every file already exists in %s", plan.Target)
	}

	u.out.Warn("these files already exist and will be skipped:\n  " + strings.Join(dups, "\n  "))

	if !u.out.Confirm(fmt.Sprintf("Upload the remaining %d files?", len(paths)-len(dups))) {
		return clierr.New(clierr.UploadCancel, "duplicates found")
	}

	skip := make(map[string]bool, len(dups))
	for _, d := range dups {
		skip[d] = true
	}

	kept := plan.Files[:0]

	for i, f := range plan.Files {
		if !skip[paths[i]] {
			kept = append(kept, f)
		}
	}

	plan.Files = kept

	return nil
}

// PreUpload registers the plan's files in batches and returns the manifest.
func (u *Uploader) PreUpload(ctx context.Context, plan *Plan) (*Manifest, error) {
	m := &Manifest{
		ProjectCode:       plan.Target.ProjectCode,
		Operator:          plan.Opts.Operator,
		Zone:              plan.Opts.Zone,
		JobType:           plan.JobType,
		ParentFolderID:    plan.Placement.Parent.ID,
		CurrentFolderNode: plan.Target.ObjectPath(),
		Tags:              plan.Tags,
		Attributes:        plan.Attributes,
		ChunkSize:         u.chunkSize,
		FileObjects:       make(map[string]*FileObject, len(plan.Files)),
	}

	for start := 0; start < len(plan.Files); start += u.batchSize {
		batch := plan.Files[start:min(start+u.batchSize, len(plan.Files))]

		if err := u.preUploadBatch(ctx, plan, m, batch); err != nil {
			return nil, err
		}
	}

	u.logger.Info("pre-upload complete",
		slog.String("project", m.ProjectCode),
		slog.Int("files", len(m.FileObjects)),
	)

	return m, nil
}

func (u *Uploader) preUploadBatch(ctx context.Context, plan *Plan, m *Manifest, batch []localFile) error {
	req := &platform.PreUploadRequest{
		ProjectCode:       m.ProjectCode,
		Operator:          m.Operator,
		JobType:           m.JobType,
		Zone:              m.Zone.Namespace(),
		CurrentFolderNode: m.CurrentFolderNode,
		ParentFolderID:    m.ParentFolderID,
		FolderTags:        m.Tags,
		Data:              make([]platform.PreUploadFile, len(batch)),
	}

	if req.FolderTags == nil {
		req.FolderTags = []string{}
	}

	for i, f := range batch {
		req.Data[i] = platform.PreUploadFile{
			FileName:     f.Name,
			RelativePath: path.Dir(plan.objectPath(f)),
		}
	}

	results, err := u.api.PreUpload(ctx, req)
	if err != nil {
		return fmt.Errorf("pre-upload: %w", err)
	}

	if len(results) != len(batch) {
		return clierr.New(clierr.ServerError, "pre-upload returned %d results for %d files", len(results), len(batch))
	}

	for i, f := range batch {
		r := results[i]

		objectPath := r.ObjectPath()
		if objectPath == "" {
			objectPath = plan.objectPath(f)
		}

		m.FileObjects[r.Payload.ItemID] = &FileObject{
			ResumableID:    r.Payload.ResumableID,
			JobID:          r.JobID,
			ItemID:         r.Payload.ItemID,
			ObjectPath:     objectPath,
			ParentPath:     path.Dir(objectPath),
			FileName:       f.Name,
			LocalPath:      f.Path,
			TotalSize:      f.Size,
			TotalChunks:    ChunkCount(f.Size, u.chunkSize),
			UploadedChunks: map[int]Chunk{},
		}
	}

	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
