package feedcache_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/qepting91/reelfeed/internal/domain"
	"github.com/qepting91/reelfeed/internal/feedcache"
)

func samplePosts() []domain.Post {
	return []domain.Post{
		{ID: "v1", Author: "ann", Media: domain.VideoMedia{URL: "https://cdn/v1.m3u8", Duration: 30 * time.Second}, Likes: 10},
		{ID: "p1", Author: "bob", Media: domain.PhotoSet{ImageURLs: []string{"https://cdn/1.jpg"}}, Bookmarked: true},
	}
}

func sampleInteractions() domain.Interactions {
	return domain.Interactions{
		LikedIDs:      []string{"v1"},
		BookmarkedIDs: []string{"p1"},
		PlayCounts:    map[string]int{"v1": 3},
	}
}

func stores(t *testing.T) map[string]feedcache.Store {
	t.Helper()
	fs, err := feedcache.NewFileStore(filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err)
	sq, err := feedcache.NewSQLiteStore(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sq.Close() })

	out := map[string]feedcache.Store{
		"memory": feedcache.NewMemoryStore(),
		"file":   fs,
		"sqlite": sq,
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		rdb := feedcache.NewRedisClient(addr, "", 15)
		t.Cleanup(func() { _ = rdb.Close() })
		out["redis"] = feedcache.NewRedisStore(rdb, time.Minute)
	}
	return out
}

func TestCacheRoundTripPerStore(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := feedcache.New(store, nil)
			c.Invalidate(ctx)

			_, err := c.CachedPosts(ctx)
			require.ErrorIs(t, err, feedcache.ErrMiss)
			_, err = c.CachedInteractions(ctx)
			require.ErrorIs(t, err, feedcache.ErrMiss)

			require.NoError(t, c.CacheFeed(ctx, samplePosts(), sampleInteractions()))

			posts, err := c.CachedPosts(ctx)
			require.NoError(t, err)
			require.Equal(t, samplePosts(), posts)

			in, err := c.CachedInteractions(ctx)
			require.NoError(t, err)
			require.Equal(t, sampleInteractions(), in)

			c.Invalidate(ctx)
			_, err = c.CachedPosts(ctx)
			require.ErrorIs(t, err, feedcache.ErrMiss)
		})
	}
}

func TestCacheKeepsOnlyTheLatestSnapshot(t *testing.T) {
	ctx := context.Background()
	c := feedcache.New(feedcache.NewMemoryStore(), nil)

	require.NoError(t, c.CacheFeed(ctx, samplePosts(), sampleInteractions()))
	require.NoError(t, c.CacheFeed(ctx, samplePosts()[1:], domain.Interactions{}))

	posts, err := c.CachedPosts(ctx)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	require.Equal(t, "p1", posts[0].ID)

	in, err := c.CachedInteractions(ctx)
	require.NoError(t, err)
	require.Empty(t, in.LikedIDs)
}

func TestEmptySnapshotIsAMiss(t *testing.T) {
	ctx := context.Background()
	c := feedcache.New(feedcache.NewMemoryStore(), nil)

	require.NoError(t, c.CacheFeed(ctx, nil, sampleInteractions()))
	_, err := c.CachedPosts(ctx)
	require.ErrorIs(t, err, feedcache.ErrMiss)

	in, err := c.CachedInteractions(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"v1"}, in.LikedIDs)
}

func TestCorruptRecordIsAMiss(t *testing.T) {
	ctx := context.Background()
	store := feedcache.NewMemoryStore()
	require.NoError(t, store.Set(ctx, feedcache.DefaultKey, []byte("{not json")))

	c := feedcache.New(store, nil)
	_, err := c.CachedPosts(ctx)
	require.ErrorIs(t, err, feedcache.ErrMiss)
	_, err = c.CachedInteractions(ctx)
	require.ErrorIs(t, err, feedcache.ErrMiss)
}

type brokenStore struct{}

var errDisk = errors.New("disk on fire")

func (brokenStore) Get(context.Context, string) ([]byte, error) { return nil, errDisk }
func (brokenStore) Set(context.Context, string, []byte) error   { return errDisk }
func (brokenStore) Delete(context.Context, string) error        { return errDisk }

func TestStorageFailures(t *testing.T) {
	ctx := context.Background()
	c := feedcache.New(brokenStore{}, nil)

	_, err := c.CachedPosts(ctx)
	require.ErrorIs(t, err, feedcache.ErrMiss)
	require.NotErrorIs(t, err, errDisk)

	err = c.CacheFeed(ctx, samplePosts(), sampleInteractions())
	require.ErrorIs(t, err, errDisk)

	c.Invalidate(ctx)
}

func TestFileStoreMissingKey(t *testing.T) {
	fs, err := feedcache.NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = fs.Get(context.Background(), "nothing")
	require.ErrorIs(t, err, feedcache.ErrNotFound)
	require.NoError(t, fs.Delete(context.Background(), "nothing"))
}

func TestViewersDoNotShareSnapshots(t *testing.T) {
	ctx := context.Background()
	store := feedcache.NewMemoryStore()
	ann := feedcache.New(store, nil, feedcache.ForViewer("ann"))
	bob := feedcache.New(store, nil, feedcache.ForViewer("bob"))
	anon := feedcache.New(store, nil, feedcache.ForViewer(""))

	require.Equal(t, feedcache.DefaultKey+":ann", ann.Key())
	require.Equal(t, feedcache.DefaultKey, anon.Key())

	require.NoError(t, ann.CacheFeed(ctx, samplePosts(), sampleInteractions()))

	_, err := bob.CachedInteractions(ctx)
	require.ErrorIs(t, err, feedcache.ErrMiss)
	_, err = anon.CachedPosts(ctx)
	require.ErrorIs(t, err, feedcache.ErrMiss)

	in, err := ann.CachedInteractions(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"p1"}, in.BookmarkedIDs)

	bob.Invalidate(ctx)
	_, err = ann.CachedPosts(ctx)
	require.NoError(t, err)
}
