package mediapath

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileNameFor(t *testing.T) {
	tests := []struct {
		name      string
		streamURL string
		want      string
		wantOK    bool
	}{
		{
			name:      "id is the only parameter",
			streamURL: "https://cdn.example.com/videoplayback?id=abcdefghijklmnopqrstu",
			want:      "abcdefghijklmnopqrstu.mp4",
			wantOK:    true,
		},
		{
			name:      "long id is truncated",
			streamURL: "https://cdn.example.com/videoplayback?itag=22&id=abcdefghijklmnopqrstuvwxyz&sig=x",
			want:      "abcdefghijklmnopqrstu.mp4",
			wantOK:    true,
		},
		{
			name:      "parameter order does not matter",
			streamURL: "https://cdn.example.com/videoplayback?sig=x&id=o-AB12cd34EF56gh78IJ90&itag=18",
			want:      "o-AB12cd34EF56gh78IJ9.mp4",
			wantOK:    true,
		},
		{
			name:      "malformed escape in another parameter",
			streamURL: "https://cdn.example.com/videoplayback?sig=%zz&id=abcdefghijklmnopqrstu",
			want:      "abcdefghijklmnopqrstu.mp4",
			wantOK:    true,
		},
		{
			name:      "semicolon in another parameter",
			streamURL: "https://cdn.example.com/videoplayback?id=abcdefghijklmnopqrstu&range=0;1000",
			want:      "abcdefghijklmnopqrstu.mp4",
			wantOK:    true,
		},
		{name: "malformed id", streamURL: "https://cdn.example.com/videoplayback?id=%zzcdefghijklmnopqrstu"},
		{name: "no query", streamURL: "https://cdn.example.com/videoplayback"},
		{name: "no id parameter", streamURL: "https://cdn.example.com/videoplayback?itag=22"},
		{name: "short id", streamURL: "https://cdn.example.com/videoplayback?id=abc"},
		{name: "empty id", streamURL: "https://cdn.example.com/videoplayback?id="},
		{name: "path separator", streamURL: "https://cdn.example.com/v?id=abcdefghij%2Fklmnopqrstu"},
		{name: "parent reference", streamURL: "https://cdn.example.com/v?id=..cdefghijklmnopqrstu"},
		{name: "not a url", streamURL: "://"},
		{name: "empty", streamURL: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FileNameFor(tt.streamURL)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolver_LocalPathAndExists(t *testing.T) {
	root := t.TempDir()
	r := NewResolver(root)

	stream := "https://cdn.example.com/videoplayback?id=abcdefghijklmnopqrstu"

	path, err := r.LocalPath(stream)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "abcdefghijklmnopqrstu.mp4"), path)

	assert.False(t, r.Exists(stream))

	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))
	assert.True(t, r.Exists(stream))

	_, err = r.LocalPath("https://cdn.example.com/videoplayback")
	assert.ErrorIs(t, err, ErrUnresolvableFilename)
	assert.False(t, r.Exists("https://cdn.example.com/videoplayback"))
}
