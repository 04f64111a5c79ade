package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/italolelis/downtube/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFraction(t *testing.T) {
	tests := []struct {
		name     string
		written  int64
		expected int64
		want     Progress
	}{
		{name: "quarter", written: 250, expected: 1000, want: Progress{Value: 0.25, Known: true}},
		{name: "done", written: 1000, expected: 1000, want: Progress{Value: 1, Known: true}},
		{name: "unknown size", written: 250, expected: 0, want: Progress{}},
		{name: "negative size", written: 250, expected: -1, want: Progress{}},
		{name: "overshoot is clamped", written: 2000, expected: 1000, want: Progress{Value: 1, Known: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Fraction(tt.written, tt.expected))
		})
	}
}

func TestRegister_Idempotent(t *testing.T) {
	r := New()

	assert.True(t, r.Register(Download{StreamURL: "u1", Handle: "h1", Active: true}))
	assert.False(t, r.Register(Download{StreamURL: "u1", Handle: "h2", Active: true}))
	assert.Equal(t, 1, r.Len())

	d, ok := r.LookupByHandle("h1")
	require.True(t, ok)
	assert.Equal(t, "u1", d.StreamURL)

	_, ok = r.LookupByHandle("h2")
	assert.False(t, ok)
}

func TestLookup_ReturnsCopy(t *testing.T) {
	r := New()
	r.Register(Download{StreamURL: "u1", Handle: "h1", Active: true})

	d, ok := r.Lookup("u1")
	require.True(t, ok)

	d.Active = false

	again, _ := r.Lookup("u1")
	assert.True(t, again.Active)
}

func TestRemove(t *testing.T) {
	r := New()
	r.Register(Download{StreamURL: "u1", Handle: "h1"})

	removed, ok := r.Remove("u1")
	require.True(t, ok)
	assert.Equal(t, transport.Handle("h1"), removed.Handle)

	_, ok = r.Remove("u1")
	assert.False(t, ok)

	_, ok = r.LookupByHandle("h1")
	assert.False(t, ok)
	assert.Zero(t, r.Len())
}

func TestRemoveHandle_OnlyWhenBound(t *testing.T) {
	r := New()
	r.Register(Download{StreamURL: "u1", Handle: "h2"})

	_, ok := r.RemoveHandle("u1", "h1")
	assert.False(t, ok)
	assert.Equal(t, 1, r.Len())

	_, ok = r.RemoveHandle("u1", "h2")
	assert.True(t, ok)
	assert.Zero(t, r.Len())
}

func TestUpdate_RebindsHandle(t *testing.T) {
	r := New()
	r.Register(Download{StreamURL: "u1", Handle: "h1", Active: true})

	d, ok := r.Update("u1", func(d *Download) {
		d.Handle = "h2"
		d.Active = false
		d.StreamURL = "ignored"
	})
	require.True(t, ok)
	assert.Equal(t, "u1", d.StreamURL)
	assert.False(t, d.Active)

	_, ok = r.LookupByHandle("h1")
	assert.False(t, ok)

	_, ok = r.LookupByHandle("h2")
	assert.True(t, ok)

	_, ok = r.Update("missing", func(*Download) {})
	assert.False(t, ok)
}

func TestStreamURLsAndSnapshot(t *testing.T) {
	r := New()
	r.Register(Download{StreamURL: "u1", Handle: "h1", Active: true})
	r.Register(Download{StreamURL: "u2", Handle: "h2"})

	assert.ElementsMatch(t, []string{"u1", "u2"}, r.StreamURLs())
	assert.Len(t, r.Snapshot(), 2)
}

func TestConcurrentRegister(t *testing.T) {
	r := New()

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		added int
	)

	for i := 0; i < 50; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			if r.Register(Download{StreamURL: "same", Handle: transport.Handle(fmt.Sprint(i))}) {
				mu.Lock()
				added++
				mu.Unlock()
			}
		}(i)
	}

	wg.Wait()

	assert.Equal(t, 1, added)
	assert.Equal(t, 1, r.Len())
}
