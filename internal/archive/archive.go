// Package archive builds the local zip archives uploaded with --zip.
package archive

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"
)

// Info summarizes a written archive.
type Info struct {
	Path  string
	Dir   string
	Files int
	Size  int64
}

// ZipDir writes every regular file below dir into a DEFLATE zip at dest.
// Entry names are relative to dir and use forward slashes. A partially
// written archive is removed on error.
func ZipDir(ctx context.Context, dir, dest string) (info *Info, err error) {
	f, err := os.Create(dest)
	if err != nil {
		return nil, fmt.Errorf("creating archive %s: %w", dest, err)
	}

	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(dest)
		}
	}()

	zw := zip.NewWriter(f)
	info = &Info{Path: dest}

	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}

		n, err := addFile(zw, p, filepath.ToSlash(rel))
		if err != nil {
			return fmt.Errorf("adding %s: %w", rel, err)
		}

		info.Files++
		info.Size += n

		return nil
	})
	if err != nil {
		return nil, err
	}

	if err = zw.Close(); err != nil {
		return nil, fmt.Errorf("finishing archive: %w", err)
	}

	if err = f.Close(); err != nil {
		return nil, fmt.Errorf("closing archive: %w", err)
	}

	return info, nil
}

// TempZip archives dir as <base>.zip inside a fresh directory created under
// parent (the system temp dir when parent is ""). The archive outlives the
// process; callers remove Info.Dir once it is no longer needed.
func TempZip(ctx context.Context, dir, parent string) (*Info, error) {
	tmp, err := os.MkdirTemp(parent, ".pilotcli-zip-")
	if err != nil {
		return nil, fmt.Errorf("creating archive dir: %w", err)
	}

	info, err := ZipDir(ctx, dir, filepath.Join(tmp, filepath.Base(filepath.Clean(dir))+".zip"))
	if err != nil {
		_ = os.RemoveAll(tmp)
		return nil, err
	}

	info.Dir = tmp

	return info, nil
}

func addFile(zw *zip.Writer, src, name string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	st, err := in.Stat()
	if err != nil {
		return 0, err
	}

	hdr, err := zip.FileInfoHeader(st)
	if err != nil {
		return 0, err
	}

	hdr.Name = name
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return 0, err
	}

	return io.Copy(w, in)
}
