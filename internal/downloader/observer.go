package downloader

import (
	"context"

	"github.com/italolelis/downtube/internal/registry"
)

// Observer receives catalog row notifications. Calls are fire-and-forget and may arrive from
// any goroutine.
type Observer interface {
	NotifyRowsChanged(indices []int)
	NotifyProgress(index int, p registry.Progress, totalSize string)
	NotifyError(message string)
}

// Indexer maps a stream URL to the position of its record in the catalog.
type Indexer interface {
	IndexOfStreamURL(ctx context.Context, streamURL string) (int, bool)
}

// FilesystemGuard is held while a completion replaces a file in the media root.
type FilesystemGuard interface {
	Shared() func()
}
