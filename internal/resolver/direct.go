package resolver

import (
	"context"
	"fmt"
	"net/url"
	"path"
)

// Direct treats the source URL as the stream URL itself. It suits sources that already point
// at a media file.
type Direct struct{}

func (Direct) Resolve(_ context.Context, sourceURL string) (Result, error) {
	u, err := url.Parse(sourceURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return Result{}, fmt.Errorf("invalid source url %q", sourceURL)
	}

	return Result{StreamURL: sourceURL, Title: path.Base(u.Path)}, nil
}
