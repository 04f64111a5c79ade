package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/italolelis/downtube/internal/storage"
	"github.com/italolelis/downtube/internal/storage/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepo(t *testing.T) *sqlite.VideoRepository {
	t.Helper()

	db, err := sqlite.InitDB(filepath.Join(t.TempDir(), "videos.db"))
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })

	return sqlite.NewVideoRepository(db)
}

func TestCreateAndGetVideo(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	created, err := repo.CreateVideo(ctx, "https://youtu.be/abc")
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Nil(t, created.StreamURL)
	assert.Equal(t, storage.Unwatched, created.WatchProgress)

	got, err := repo.GetVideo(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "https://youtu.be/abc", got.SourceURL)
	assert.False(t, got.IsResolved())
	assert.True(t, created.CreatedAt.Equal(got.CreatedAt))
}

func TestCreateVideo_DuplicateSourceURL(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	_, err := repo.CreateVideo(ctx, "https://youtu.be/abc")
	require.NoError(t, err)

	_, err = repo.CreateVideo(ctx, "https://youtu.be/abc")
	assert.Error(t, err)
}

func TestUpdateVideo(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	rec, err := repo.CreateVideo(ctx, "https://youtu.be/abc")
	require.NoError(t, err)

	stream := "https://cdn.example.com/videoplayback?id=abcdefghijklmnopqrstu"
	title := "A video"
	rec.StreamURL = &stream
	rec.Title = &title
	rec.WatchProgress = storage.PartiallyWatched

	require.NoError(t, repo.UpdateVideo(ctx, rec))

	got, err := repo.GetVideoByStreamURL(ctx, stream)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, "A video", got.DisplayTitle())
	assert.Equal(t, storage.PartiallyWatched, got.WatchProgress)

	bySource, err := repo.GetVideoBySourceURL(ctx, "https://youtu.be/abc")
	require.NoError(t, err)
	assert.Equal(t, stream, bySource.Stream())
}

func TestDeleteVideo(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	rec, err := repo.CreateVideo(ctx, "https://youtu.be/abc")
	require.NoError(t, err)

	require.NoError(t, repo.DeleteVideo(ctx, rec.ID))

	_, err = repo.GetVideo(ctx, rec.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.ErrorIs(t, repo.DeleteVideo(ctx, rec.ID), storage.ErrNotFound)
}

func TestGetVideos_Order(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	for _, u := range []string{"https://a", "https://b", "https://c"} {
		_, err := repo.CreateVideo(ctx, u)
		require.NoError(t, err)
	}

	videos, err := repo.GetVideos(ctx)
	require.NoError(t, err)
	require.Len(t, videos, 3)
	assert.Equal(t, "https://a", videos[0].SourceURL)
	assert.Equal(t, "https://b", videos[1].SourceURL)
	assert.Equal(t, "https://c", videos[2].SourceURL)
}

func TestGetVideo_NotFound(t *testing.T) {
	repo := newRepo(t)

	_, err := repo.GetVideoBySourceURL(context.Background(), "https://missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
