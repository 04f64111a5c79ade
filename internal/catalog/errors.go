package catalog

import "fmt"

// DuplicateError is returned when a video is already in the catalog, either under the same
// source URL or under another source URL that resolved to the same stream.
type DuplicateError struct {
	SourceURL  string
	ExistingID int64
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("video already downloaded: %s (id %d)", e.SourceURL, e.ExistingID)
}
