package transfer

import (
	"context"
	"crypto/md5" //nolint:gosec // the object store checks Content-MD5
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/pilotdata/pilotcli/internal/clierr"
	"github.com/pilotdata/pilotcli/internal/platform"
	"github.com/pilotdata/pilotcli/internal/ui"
)

// FileResult is the outcome of streaming one file.
type FileResult struct {
	File *FileObject
	Err  error
}

// ETag is the base64 MD5 of a chunk, as sent in Content-MD5.
func ETag(data []byte) string {
	sum := md5.Sum(data) //nolint:gosec // integrity, not security

	return base64.StdEncoding.EncodeToString(sum[:])
}

// chunkBounds returns the offset and length of chunk n (1-based).
func chunkBounds(n int, chunkSize, total int64) (int64, int) {
	off := int64(n-1) * chunkSize

	return off, int(min(chunkSize, total-off))
}

// Stream uploads files, up to pool.Threads() at a time. A failing file does
// not stop the others. After every file is done, attributes are attached to
// the first file of the manifest if it is uploaded by then.
func (u *Uploader) Stream(ctx context.Context, m *Manifest, files []*FileObject, pool *Pool) ([]FileResult, error) {
	results := make([]FileResult, len(files))

	var g errgroup.Group
	g.SetLimit(pool.Threads())

	for i, f := range files {
		g.Go(func() error {
			err := u.uploadOne(ctx, m, f, pool)
			results[i] = FileResult{File: f, Err: err}

			if err != nil {
				u.logger.Warn("upload failed",
					slog.String("file", f.LocalPath),
					slog.String("error", err.Error()),
				)
			}

			return nil
		})
	}

	_ = g.Wait()

	return results, u.attachFirst(ctx, m)
}

func (u *Uploader) uploadOne(ctx context.Context, m *Manifest, f *FileObject, pool *Pool) error {
	file, err := os.Open(f.LocalPath)
	if err != nil {
		return clierr.Wrap(clierr.UploadFail, err, f.LocalPath)
	}
	defer file.Close()

	st, err := file.Stat()
	if err != nil {
		return clierr.Wrap(clierr.UploadFail, err, f.LocalPath)
	}

	if st.Size() != f.TotalSize {
		return clierr.New(clierr.InvalidChunkUpload, "%s: size changed from %d to %d bytes", f.LocalPath, f.TotalSize, st.Size())
	}

	already, err := verifyRecorded(file, m.ChunkSize, f)
	if err != nil {
		return err
	}

	bar := u.out.Progress(f.FileName, f.TotalSize)
	bar.Add(already)
	atomic.StoreInt64(&f.Progress, already)

	if err := u.streamChunks(ctx, file, m, f, pool, bar); err != nil {
		bar.Abort()
		return err
	}

	if err := u.complete(ctx, m, f); err != nil {
		bar.Abort()
		return err
	}

	bar.Done()
	f.Uploaded = true

	u.logger.Info("file uploaded",
		slog.String("file", f.LocalPath),
		slog.String("object_path", f.ObjectPath),
		slog.Int64("bytes", f.TotalSize),
	)

	return nil
}

// verifyRecorded checks every chunk the server already holds against the
// local bytes before anything is sent, and returns their total size.
func verifyRecorded(r io.ReaderAt, chunkSize int64, f *FileObject) (int64, error) {
	nums := make([]int, 0, len(f.UploadedChunks))
	for n := range f.UploadedChunks {
		nums = append(nums, n)
	}

	sort.Ints(nums)

	var total int64

	for _, n := range nums {
		data, err := readChunk(r, n, chunkSize, f.TotalSize)
		if err != nil {
			return 0, clierr.Wrap(clierr.UploadFail, err, f.LocalPath)
		}

		if ETag(data) != f.UploadedChunks[n].Etag {
			return 0, clierr.New(clierr.InvalidChunkUpload, "%s: chunk %d differs from the uploaded part", f.LocalPath, n)
		}

		total += int64(len(data))
	}

	return total, nil
}

func readChunk(r io.ReaderAt, n int, chunkSize, total int64) ([]byte, error) {
	off, size := chunkBounds(n, chunkSize, total)
	if size <= 0 {
		return nil, fmt.Errorf("chunk %d is past the end of the file", n)
	}

	data := make([]byte, size)

	read, err := r.ReadAt(data, off)
	if err != nil && !(errors.Is(err, io.EOF) && read == size) {
		return nil, fmt.Errorf("reading chunk %d: %w", n, err)
	}

	return data, nil
}

// streamChunks submits every chunk not yet on the server and waits for all
// of them. The first failure cancels the chunks still queued.
func (u *Uploader) streamChunks(ctx context.Context, r io.ReaderAt, m *Manifest, f *FileObject, pool *Pool, bar ui.Progress) error {
	fileCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var futures []*Future

	for n := 1; n <= f.TotalChunks; n++ {
		if _, ok := f.UploadedChunks[n]; ok {
			continue
		}

		if fileCtx.Err() != nil {
			break
		}

		data, err := readChunk(r, n, m.ChunkSize, f.TotalSize)
		if err != nil {
			cancel()
			waitAll(futures)

			return clierr.Wrap(clierr.UploadFail, err, f.LocalPath)
		}

		ref := platform.ChunkRef{
			Bucket:      m.Zone.Bucket(m.ProjectCode),
			ItemID:      f.ItemID,
			ResumableID: f.ResumableID,
			Number:      n,
			Size:        len(data),
			ContentMD5:  ETag(data),
		}

		futures = append(futures, pool.Submit(fileCtx, func(ctx context.Context) error {
			if err := u.sendChunk(ctx, m.Zone, ref, data, f, bar); err != nil {
				cancel()
				return fmt.Errorf("chunk %d: %w", ref.Number, err)
			}

			return nil
		}))
	}

	if err := firstError(waitAll(futures)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		return clierr.Wrap(clierr.UploadFail, err, f.LocalPath)
	}

	return ctx.Err()
}

func (u *Uploader) sendChunk(ctx context.Context, zone platform.Zone, ref platform.ChunkRef, data []byte, f *FileObject, bar ui.Progress) error {
	if err := u.limiter.Wait(ctx, len(data)); err != nil {
		return err
	}

	presigned, err := u.api.PresignChunk(ctx, zone, ref)
	if err != nil {
		return err
	}

	if err := u.api.PutChunk(ctx, presigned, ref.ContentMD5, data); err != nil {
		return err
	}

	bar.Add(int64(len(data)))
	atomic.AddInt64(&f.Progress, int64(len(data)))

	return nil
}

func waitAll(futures []*Future) []error {
	errs := make([]error, 0, len(futures))

	for _, f := range futures {
		if err := f.Wait(); err != nil {
			errs = append(errs, err)
		}
	}

	return errs
}

// firstError prefers a real failure over the cancellations it caused.
func firstError(errs []error) error {
	for _, err := range errs {
		if !errors.Is(err, context.Canceled) {
			return err
		}
	}

	if len(errs) > 0 {
		return errs[0]
	}

	return nil
}

// complete finalizes the multipart upload and waits for the item to turn
// ACTIVE. There is no timeout; only ctx stops the wait.
func (u *Uploader) complete(ctx context.Context, m *Manifest, f *FileObject) error {
	err := u.api.Complete(ctx, m.Zone, &platform.CompleteRequest{
		ProjectCode:  m.ProjectCode,
		Operator:     m.Operator,
		JobID:        f.JobID,
		ItemID:       f.ItemID,
		ResumableID:  f.ResumableID,
		FileName:     f.FileName,
		TotalChunks:  f.TotalChunks,
		TotalSize:    f.TotalSize,
		RelativePath: f.ParentPath,
	})
	if err != nil {
		return clierr.Wrap(clierr.UploadFail, err, "completing "+f.LocalPath)
	}

	for {
		items, err := u.api.QueryByID(ctx, []string{f.ItemID})
		if err != nil {
			return fmt.Errorf("checking status of %s: %w", f.ObjectPath, err)
		}

		if len(items) == 0 {
			return clierr.New(clierr.UploadFail, "%s is no longer known to the platform", f.ObjectPath)
		}

		switch status := items[0].Status; status {
		case platform.StatusActive:
			return nil
		case platform.StatusRegistered:
		default:
			return clierr.New(clierr.UploadFail, "%s ended in status %s", f.ObjectPath, status)
		}

		if err := u.sleep(ctx, u.pollInterval); err != nil {
			return err
		}
	}
}

// attachFirst attaches the attribute sets to the first file of the manifest
// once that file is uploaded, in this run or an earlier one. It runs at most
// once per manifest.
func (u *Uploader) attachFirst(ctx context.Context, m *Manifest) error {
	if len(m.Attributes) == 0 || m.AttributesAttached {
		return nil
	}

	first := m.Sorted()[0]
	if !first.Uploaded {
		return nil
	}

	for _, set := range m.Attributes {
		err := u.api.AttachAttributes(ctx, &platform.AttachRequest{
			ItemID:       first.ItemID,
			Zone:         m.Zone.Namespace(),
			ProjectCode:  m.ProjectCode,
			ManifestID:   set.ManifestID,
			ManifestName: set.ManifestName,
			Attributes:   set.Attributes,
		})
		if err != nil {
			return fmt.Errorf("attaching %s to %s: %w", set.ManifestName, first.ObjectPath, err)
		}
	}

	m.AttributesAttached = true
	u.logger.Info("attributes attached", slog.String("object_path", first.ObjectPath))

	return nil
}

// PrepareResume keeps the files of m that are still REGISTERED and fills
// in the chunks the server already holds.
func (u *Uploader) PrepareResume(ctx context.Context, m *Manifest) ([]*FileObject, error) {
	files := m.Sorted()

	status := make(map[string]string, len(files))

	for start := 0; start < len(files); start += u.batchSize {
		batch := files[start:min(start+u.batchSize, len(files))]

		ids := make([]string, len(batch))
		for i, f := range batch {
			ids[i] = f.ItemID
		}

		items, err := u.api.QueryByID(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("checking upload status: %w", err)
		}

		for _, it := range items {
			status[it.ID] = it.Status
		}
	}

	var pending []*FileObject

	for _, f := range files {
		switch status[f.ItemID] {
		case platform.StatusRegistered:
			pending = append(pending, f)
		case platform.StatusActive:
			f.Uploaded = true
			u.out.Inform(fmt.Sprintf("%s is already uploaded", f.ObjectPath))
		default:
			u.out.Warn(fmt.Sprintf("%s is no longer registered, skipping", f.ObjectPath))
		}
	}

	for start := 0; start < len(pending); start += u.batchSize {
		if err := u.fetchChunks(ctx, m, pending[start:min(start+u.batchSize, len(pending))]); err != nil {
			return nil, err
		}
	}

	return pending, nil
}

func (u *Uploader) fetchChunks(ctx context.Context, m *Manifest, batch []*FileObject) error {
	objects := make([]platform.ResumableObject, len(batch))
	for i, f := range batch {
		objects[i] = platform.ResumableObject{ObjectPath: f.ObjectPath, ItemID: f.ItemID, ResumableID: f.ResumableID}
	}

	results, err := u.api.Resumable(ctx, m.ProjectCode, m.Zone, objects)
	if err != nil {
		return fmt.Errorf("fetching uploaded chunks: %w", err)
	}

	for _, r := range results {
		f, ok := m.FileObjects[r.ItemID]
		if !ok {
			continue
		}

		f.UploadedChunks = make(map[int]Chunk, len(r.ChunksInfo))

		for k, info := range r.ChunksInfo {
			n, err := strconv.Atoi(k)
			if err != nil {
				return clierr.New(clierr.ServerError, "chunk number %q", k)
			}

			f.UploadedChunks[n] = Chunk{Etag: info.Etag, Size: info.ChunkSize}
		}

		if err := checkChunkKeys(f); err != nil {
			return err
		}
	}

	return nil
}
