// Package reconcile removes media files that no catalog record or in-flight transfer accounts for.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/italolelis/downtube/internal/logctx"
	"github.com/italolelis/downtube/internal/mediapath"
)

// Result summarizes one reconciliation pass.
type Result struct {
	Scanned int
	Deleted []string
	Failed  int
}

// Reconcile deletes every media file in root whose name does not correspond to one of the
// expected stream URLs. Only files with the media extension are considered. Deletion is best
// effort: failures are logged and counted, and the pass continues.
func Reconcile(ctx context.Context, root string, expectedStreamURLs []string) (Result, error) {
	logger := logctx.LoggerFromContext(ctx)

	expected := make(map[string]struct{}, len(expectedStreamURLs))

	for _, u := range expectedStreamURLs {
		if name, ok := mediapath.FileNameFor(u); ok {
			expected[name] = struct{}{}
		}
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read media dir: %w", err)
	}

	var res Result

	for _, entry := range entries {
		if !entry.Type().IsRegular() || !strings.HasSuffix(entry.Name(), mediapath.Extension) {
			continue
		}

		res.Scanned++

		if _, ok := expected[entry.Name()]; ok {
			continue
		}

		path := filepath.Join(root, entry.Name())

		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.ErrorContext(ctx, "failed to delete orphan file", "file", path, "err", err)

			res.Failed++

			continue
		}

		logger.InfoContext(ctx, "deleted orphan file", "file", path)

		res.Deleted = append(res.Deleted, entry.Name())
	}

	return res, nil
}
