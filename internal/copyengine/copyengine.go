// Package copyengine walks a source directory tree and copies it to a
// destination, reporting progress as it goes. The actual byte-copy of a
// single file is behind the narrow Copier capability so platform-specific
// copy strategies (e.g. one that preserves ACLs or uses reflinks) can be
// swapped in without touching the walk logic.
package copyengine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"oss.nandlabs.io/keephive/l3"
)

var logger = l3.Get()

// Progress reports cumulative copy progress. CopyDirectory's onProgress
// callback is invoked once per successfully copied or skipped file. Errors accumulates one message
// per skipped file; it never causes the walk itself to fail.
type Progress struct {
	BytesCopied  uint64
	FilesCopied  uint64
	FilesSkipped uint64
	CurrentFile  string
	Errors       []string
}

// Copier copies a single file from src to dst and returns the number of
// bytes written. Implementations are the only platform-specific seam in
// the copy engine.
type Copier interface {
	CopyFile(src, dst string) (int64, error)
}

// DefaultCopier copies files using plain os/io calls, preserving the
// source's file mode.
type DefaultCopier struct{}

// CopyFile implements Copier.
func (DefaultCopier) CopyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return 0, err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return 0, err
	}
	defer func() { _ = out.Close() }()

	n, err := io.Copy(out, in)
	if err != nil {
		return n, err
	}
	if err := out.Sync(); err != nil {
		return n, err
	}
	return n, out.Close()
}

// CopyDirectory recursively copies every file under src into dst, preserving
// the relative directory structure. A per-file copy error is logged and
// skipped rather than aborting the whole backup; directory-creation
// failures, errors from walking the source tree itself, and context
// cancellation are fatal to the walk.
func CopyDirectory(ctx context.Context, copier Copier, src, dst string, onProgress func(Progress)) (Progress, error) {
	var progress Progress

	err := filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		destPath := filepath.Join(dst, rel)

		if info.IsDir() {
			return os.MkdirAll(destPath, 0o755)
		}

		if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
			return err
		}

		n, copyErr := copier.CopyFile(path, destPath)
		if copyErr != nil {
			logger.WarnF("copyengine: skipping %s: %v", path, copyErr)
			progress.FilesSkipped++
			progress.Errors = append(progress.Errors, fmt.Sprintf("%s: %v", rel, copyErr))
			if onProgress != nil {
				onProgress(progress)
			}
			return nil
		}

		progress.BytesCopied += uint64(n)
		progress.FilesCopied++
		progress.CurrentFile = rel
		if onProgress != nil {
			onProgress(progress)
		}
		return nil
	})

	return progress, err
}
