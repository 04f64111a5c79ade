// Package registry tracks in-flight downloads keyed by stream URL.
package registry

import (
	"sync"

	"github.com/italolelis/downtube/internal/transport"
)

// Progress is a completion fraction in [0,1]. When Known is false the total size is not
// known yet and the fraction must not be shown.
type Progress struct {
	Value float64
	Known bool
}

// Fraction computes progress from byte counts. A non-positive expected size yields an
// indeterminate progress.
func Fraction(written, expected int64) Progress {
	if expected <= 0 {
		return Progress{}
	}

	v := float64(written) / float64(expected)

	switch {
	case v < 0:
		v = 0
	case v > 1:
		v = 1
	}

	return Progress{Value: v, Known: true}
}

// Download is the transient state of one transfer.
type Download struct {
	StreamURL     string
	Handle        transport.Handle
	Progress      Progress
	Active        bool
	ResumeToken   *transport.ResumeToken
	BytesWritten  int64
	BytesExpected int64
}

// Registry maps stream URLs to downloads, with a reverse index from transfer handle.
type Registry struct {
	mu       sync.RWMutex
	byURL    map[string]*Download
	byHandle map[transport.Handle]string
}

func New() *Registry {
	return &Registry{
		byURL:    make(map[string]*Download),
		byHandle: make(map[transport.Handle]string),
	}
}

// Register adds d unless its stream URL is already present. It reports whether d was added.
func (r *Registry) Register(d Download) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byURL[d.StreamURL]; ok {
		return false
	}

	r.byURL[d.StreamURL] = &d
	if d.Handle != "" {
		r.byHandle[d.Handle] = d.StreamURL
	}

	return true
}

func (r *Registry) Lookup(streamURL string) (Download, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.byURL[streamURL]
	if !ok {
		return Download{}, false
	}

	return *d, true
}

func (r *Registry) LookupByHandle(h transport.Handle) (Download, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	url, ok := r.byHandle[h]
	if !ok {
		return Download{}, false
	}

	return *r.byURL[url], true
}

// Remove deletes the download for streamURL and returns what was removed.
func (r *Registry) Remove(streamURL string) (Download, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.byURL[streamURL]
	if !ok {
		return Download{}, false
	}

	delete(r.byURL, streamURL)
	delete(r.byHandle, d.Handle)

	return *d, true
}

// RemoveHandle deletes the download for streamURL only while it is still bound to h.
func (r *Registry) RemoveHandle(streamURL string, h transport.Handle) (Download, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.byURL[streamURL]
	if !ok || d.Handle != h {
		return Download{}, false
	}

	delete(r.byURL, streamURL)
	delete(r.byHandle, h)

	return *d, true
}

// Update applies fn to the download for streamURL under the write lock and returns the
// result. Changing the handle inside fn keeps the reverse index consistent. fn must not block.
func (r *Registry) Update(streamURL string, fn func(d *Download)) (Download, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.byURL[streamURL]
	if !ok {
		return Download{}, false
	}

	prev := d.Handle
	fn(d)
	d.StreamURL = streamURL

	if d.Handle != prev {
		delete(r.byHandle, prev)

		if d.Handle != "" {
			r.byHandle[d.Handle] = streamURL
		}
	}

	return *d, true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.byURL)
}

// StreamURLs returns the keys of every registered download, active or paused.
func (r *Registry) StreamURLs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	urls := make([]string, 0, len(r.byURL))
	for url := range r.byURL {
		urls = append(urls, url)
	}

	return urls
}

// Snapshot returns a copy of every download.
func (r *Registry) Snapshot() []Download {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Download, 0, len(r.byURL))
	for _, d := range r.byURL {
		out = append(out, *d)
	}

	return out
}
