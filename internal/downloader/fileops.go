package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/downtube/internal/downloader/progress"
	"github.com/italolelis/downtube/internal/logctx"
)

const (
	filePerm           = 0o644
	copyReportInterval = 100 * 1024 * 1024
	partialCopySuffix  = ".moving"
)

// removeIfExists deletes path, treating a missing file as success.
func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	return nil
}

// moveFile renames src to dst, copying across filesystems when a rename is not possible.
func moveFile(ctx context.Context, src, dst string) (int64, error) {
	info, err := os.Stat(src)
	if err != nil {
		return 0, err
	}

	if err := os.Rename(src, dst); err == nil {
		return info.Size(), nil
	}

	n, err := copyFile(ctx, src, dst, info.Size())
	if err != nil {
		return 0, err
	}

	if err := os.Remove(src); err != nil {
		logctx.LoggerFromContext(ctx).WarnContext(ctx, "failed to remove temporary file after copy", "file", src, "err", err)
	}

	return n, nil
}

// copyFile writes src next to dst first and renames it into place, so dst never holds a
// truncated file.
func copyFile(ctx context.Context, src, dst string, size int64) (int64, error) {
	logger := logctx.LoggerFromContext(ctx)

	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("failed to open temporary file: %w", err)
	}
	defer in.Close()

	tmp := filepath.Join(filepath.Dir(dst), "."+filepath.Base(dst)+partialCopySuffix)

	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePerm)
	if err != nil {
		return 0, fmt.Errorf("failed to create destination file: %w", err)
	}

	logger.DebugContext(ctx, "copying file into media dir", "file", dst, "file_size", humanize.IBytes(uint64(size)))

	pr := progress.NewReader(in, size, copyReportInterval, func(read, total int64) {
		logger.DebugContext(ctx, "copy progress",
			"file", dst,
			"copied", humanize.IBytes(uint64(read)),
			"total", humanize.IBytes(uint64(total)))
	})

	if _, err := io.Copy(out, pr); err != nil {
		out.Close()
		os.Remove(tmp)

		return 0, fmt.Errorf("failed to copy file: %w", err)
	}

	if err := out.Close(); err != nil {
		os.Remove(tmp)

		return 0, fmt.Errorf("failed to close destination file: %w", err)
	}

	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)

		return 0, fmt.Errorf("failed to rename copied file: %w", err)
	}

	return pr.BytesRead(), nil
}
