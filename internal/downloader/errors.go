package downloader

import "fmt"

// FileIOError represents a failed filesystem operation while finalizing a download. These are
// logged and never stop the manager.
type FileIOError struct {
	Operation string // "delete", "move" or "resolve_path"
	Path      string
	Err       error
}

func (e *FileIOError) Error() string {
	return fmt.Sprintf("file %s failed for %s: %v", e.Operation, e.Path, e.Err)
}

func (e *FileIOError) Unwrap() error {
	return e.Err
}
