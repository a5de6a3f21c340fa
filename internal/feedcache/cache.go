package feedcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/qepting91/reelfeed/internal/domain"
)

// ErrMiss is the only error readers see: storage and decode failures are
// logged and folded into it.
var ErrMiss = errors.New("feed cache miss")

// DefaultKey is the stable record key. There is a single generation.
// Signed-in viewers get their own record under DefaultKey + ":" + viewer.
const DefaultKey = "reelfeed:feed-cache:v1"

type record struct {
	Posts        *[]domain.Post      `json:"posts,omitempty"`
	Interactions *interactionsRecord `json:"interactions,omitempty"`
	SavedAt      time.Time           `json:"saved_at"`
}

type interactionsRecord struct {
	Liked      []string       `json:"liked,omitempty"`
	Bookmarked []string       `json:"bookmarked,omitempty"`
	PlayCounts map[string]int `json:"play_counts,omitempty"`
}

type Cache struct {
	store  Store
	key    string
	logger *slog.Logger
}

type Option func(*Cache)

// ForViewer keeps likes and bookmarks of different accounts apart. An
// empty viewer leaves the shared key.
func ForViewer(viewer string) Option {
	return func(c *Cache) {
		if viewer != "" {
			c.key = DefaultKey + ":" + viewer
		}
	}
}

func New(store Store, logger *slog.Logger, opts ...Option) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cache{store: store, key: DefaultKey, logger: logger}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Cache) Key() string { return c.key }

// CacheFeed overwrites the stored snapshot. Callers typically run it in the
// background and only log the error.
func (c *Cache) CacheFeed(ctx context.Context, posts []domain.Post, in domain.Interactions) error {
	ps := append([]domain.Post(nil), posts...)
	rec := record{
		Posts: &ps,
		Interactions: &interactionsRecord{
			Liked:      in.LikedIDs,
			Bookmarked: in.BookmarkedIDs,
			PlayCounts: in.PlayCounts,
		},
		SavedAt: time.Now().UTC(),
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode feed cache: %w", err)
	}
	if err := c.store.Set(ctx, c.key, b); err != nil {
		return fmt.Errorf("write feed cache: %w", err)
	}
	return nil
}

func (c *Cache) CachedPosts(ctx context.Context) ([]domain.Post, error) {
	rec, err := c.read(ctx)
	if err != nil {
		return nil, err
	}
	if rec.Posts == nil || len(*rec.Posts) == 0 {
		return nil, ErrMiss
	}
	return *rec.Posts, nil
}

func (c *Cache) CachedInteractions(ctx context.Context) (domain.Interactions, error) {
	rec, err := c.read(ctx)
	if err != nil {
		return domain.Interactions{}, err
	}
	if rec.Interactions == nil {
		return domain.Interactions{}, ErrMiss
	}
	return domain.Interactions{
		LikedIDs:      rec.Interactions.Liked,
		BookmarkedIDs: rec.Interactions.Bookmarked,
		PlayCounts:    rec.Interactions.PlayCounts,
	}, nil
}

// Invalidate drops the snapshot. Failures are logged only.
func (c *Cache) Invalidate(ctx context.Context) {
	if err := c.store.Delete(ctx, c.key); err != nil {
		c.logger.Warn("feed cache invalidate failed", "err", err)
	}
}

func (c *Cache) read(ctx context.Context) (record, error) {
	var rec record
	b, err := c.store.Get(ctx, c.key)
	if errors.Is(err, ErrNotFound) {
		return rec, ErrMiss
	}
	if err != nil {
		c.logger.Warn("feed cache read failed", "err", err)
		return rec, ErrMiss
	}
	if err := json.Unmarshal(b, &rec); err != nil {
		c.logger.Warn("feed cache decode failed", "err", err)
		return rec, ErrMiss
	}
	return rec, nil
}
