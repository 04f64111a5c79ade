// Package mediapath maps stream URLs to file names in the media directory.
package mediapath

import (
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

const (
	// TokenLength is the number of characters of the stream id used as the file name.
	TokenLength = 21
	// Extension is appended to every media file.
	Extension = ".mp4"

	idParam = "id"
)

// ErrUnresolvableFilename is returned when no file name can be derived from a stream URL.
var ErrUnresolvableFilename = errors.New("unable to derive file name from stream url")

// FileNameFor returns the local file name for streamURL. The name is the first TokenLength
// characters of the "id" query parameter followed by Extension. It reports false when the
// URL has no usable id.
func FileNameFor(streamURL string) (string, bool) {
	u, err := url.Parse(streamURL)
	if err != nil || u.RawQuery == "" {
		return "", false
	}

	// Malformed pairs are skipped; the id may still be usable.
	query, _ := url.ParseQuery(u.RawQuery)

	id := query.Get(idParam)
	if len(id) < TokenLength {
		return "", false
	}

	token := id[:TokenLength]
	if strings.ContainsAny(token, `/\`) || strings.Contains(token, "..") {
		return "", false
	}

	return token + Extension, true
}

// Resolver resolves stream URLs against a media root directory.
type Resolver struct {
	Root string
}

func NewResolver(root string) *Resolver {
	return &Resolver{Root: root}
}

// LocalPath returns the absolute path where streamURL is stored once downloaded.
func (r *Resolver) LocalPath(streamURL string) (string, error) {
	name, ok := FileNameFor(streamURL)
	if !ok {
		return "", ErrUnresolvableFilename
	}

	return filepath.Join(r.Root, name), nil
}

// Exists reports whether the file for streamURL is present in the media root.
func (r *Resolver) Exists(streamURL string) bool {
	path, err := r.LocalPath(streamURL)
	if err != nil {
		return false
	}

	info, err := os.Stat(path)

	return err == nil && info.Mode().IsRegular()
}
