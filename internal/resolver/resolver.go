// Package resolver turns a user-supplied source URL into a direct media stream URL.
package resolver

import (
	"context"
	"errors"
)

// ErrNoStream is returned when a source resolves but offers none of the supported qualities.
var ErrNoStream = errors.New("no supported stream quality available")

// Result is a resolved stream.
type Result struct {
	StreamURL string
	Title     string
}

// Resolver resolves source URLs.
type Resolver interface {
	Resolve(ctx context.Context, sourceURL string) (Result, error)
}

// Quality names a stream variant offered by a source.
type Quality string

const (
	HD720     Quality = "hd720"
	Medium360 Quality = "medium360"
	Small240  Quality = "small240"
)

// Preference is the order in which qualities are chosen, best first.
var Preference = []Quality{HD720, Medium360, Small240}

// SelectStream picks the most preferred quality present in streams.
func SelectStream(streams map[Quality]string) (string, bool) {
	for _, q := range Preference {
		if u, ok := streams[q]; ok && u != "" {
			return u, true
		}
	}

	return "", false
}
