package resolver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectStream(t *testing.T) {
	tests := []struct {
		name    string
		streams map[Quality]string
		want    string
		wantOK  bool
	}{
		{
			name:    "prefers hd720",
			streams: map[Quality]string{Small240: "s", HD720: "hd", Medium360: "m"},
			want:    "hd",
			wantOK:  true,
		},
		{
			name:    "falls back to medium360",
			streams: map[Quality]string{Small240: "s", Medium360: "m"},
			want:    "m",
			wantOK:  true,
		},
		{
			name:    "falls back to small240",
			streams: map[Quality]string{Small240: "s", "hd1080": "x"},
			want:    "s",
			wantOK:  true,
		},
		{name: "ignores empty urls", streams: map[Quality]string{HD720: ""}},
		{name: "nothing supported", streams: map[Quality]string{"hd1080": "x"}},
		{name: "nil map"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SelectStream(tt.streams)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHTTPClient_Resolve(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/resolve", r.URL.Path)

		switch r.URL.Query().Get("url") {
		case "https://youtu.be/ok":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"title":   "A video",
				"streams": map[string]string{"medium360": "https://cdn/m", "small240": "https://cdn/s"},
			})
		case "https://youtu.be/none":
			_ = json.NewEncoder(w).Encode(map[string]any{"title": "x", "streams": map[string]string{}})
		default:
			w.WriteHeader(http.StatusUnprocessableEntity)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "video unavailable"})
		}
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, 5*time.Second)
	ctx := context.Background()

	res, err := c.Resolve(ctx, "https://youtu.be/ok")
	require.NoError(t, err)
	assert.Equal(t, Result{StreamURL: "https://cdn/m", Title: "A video"}, res)

	_, err = c.Resolve(ctx, "https://youtu.be/none")
	assert.ErrorIs(t, err, ErrNoStream)

	_, err = c.Resolve(ctx, "https://youtu.be/gone")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "video unavailable")
}

func TestDirect(t *testing.T) {
	res, err := Direct{}.Resolve(context.Background(), "https://cdn.example.com/media/clip.mp4?id=abcdefghijklmnopqrstu")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/media/clip.mp4?id=abcdefghijklmnopqrstu", res.StreamURL)
	assert.Equal(t, "clip.mp4", res.Title)

	_, err = Direct{}.Resolve(context.Background(), "not a url")
	assert.Error(t, err)
}

func TestInstrumentedResolver_NilTelemetry(t *testing.T) {
	r := NewInstrumentedResolver(Direct{}, nil)

	res, err := r.Resolve(context.Background(), "https://cdn.example.com/a.mp4")
	require.NoError(t, err)
	assert.Equal(t, "a.mp4", res.Title)
}
