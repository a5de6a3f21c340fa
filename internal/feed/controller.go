// Package feed turns a paginated remote feed into one continuously
// extending list, painting from the local cache until fresh data arrives.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/qepting91/reelfeed/internal/clock"
	"github.com/qepting91/reelfeed/internal/domain"
	"github.com/qepting91/reelfeed/internal/feedcache"
)

const (
	DefaultEndReachedInterval = time.Second
	cacheWriteTimeout         = 5 * time.Second
)

// View is an immutable snapshot for the presentation layer.
type View struct {
	Posts      []domain.Post
	FromCache  bool
	Loading    bool
	Refreshing bool
	HasMore    bool
	IsError    bool
	Err        string
}

type Controller struct {
	source             domain.FeedSource
	pinned             domain.PinnedSource
	cache              *feedcache.Cache
	clock              clock.Clock
	logger             *slog.Logger
	tracer             trace.Tracer
	endReachedInterval time.Duration

	mu             sync.Mutex
	mounted        bool
	cached         []domain.Post
	fresh          bool
	pinnedPosts    []domain.Post
	posts          []domain.Post
	nextPage       int
	hasMore        bool
	fetching       bool
	refreshing     bool
	gen            int
	err            error
	lastEndReached time.Time

	writes sync.WaitGroup
}

type Option func(*Controller)

func WithPinned(p domain.PinnedSource) Option {
	return func(c *Controller) { c.pinned = p }
}

func WithCache(cache *feedcache.Cache) Option {
	return func(c *Controller) { c.cache = cache }
}

func WithClock(clk clock.Clock) Option {
	return func(c *Controller) { c.clock = clk }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

func WithEndReachedInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.endReachedInterval = d
		}
	}
}

func NewController(source domain.FeedSource, opts ...Option) *Controller {
	c := &Controller{
		source:             source,
		clock:              clock.NewRealClock(),
		logger:             slog.Default(),
		tracer:             otel.Tracer("github.com/qepting91/reelfeed/internal/feed"),
		endReachedInterval: DefaultEndReachedInterval,
		nextPage:           1,
		hasMore:            true,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Mount reads the cache once so the list can be painted before the network
// answers. It does nothing once fresh data has been applied.
func (c *Controller) Mount(ctx context.Context) {
	c.mu.Lock()
	if c.mounted || c.fresh || c.cache == nil {
		c.mounted = true
		c.mu.Unlock()
		return
	}
	c.mounted = true
	c.mu.Unlock()

	posts, err := c.cache.CachedPosts(ctx)
	if err != nil {
		c.logger.Debug("no cached feed", "err", err)
		return
	}
	if in, err := c.cache.CachedInteractions(ctx); err == nil {
		posts = in.Apply(posts)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fresh {
		return
	}
	c.cached = posts
	c.logger.Info("painted feed from cache", "posts", len(posts))
}

// LoadNextPage fetches the page after the last applied one. It is a no-op
// while another fetch is in flight or after the server reported no more
// pages.
func (c *Controller) LoadNextPage(ctx context.Context) error {
	c.mu.Lock()
	if c.fetching || !c.hasMore {
		c.mu.Unlock()
		return nil
	}
	c.fetching = true
	page := c.nextPage
	gen := c.gen
	c.mu.Unlock()

	ctx, span := c.tracer.Start(ctx, "feed.LoadNextPage", trace.WithAttributes(attribute.Int("feed.page", page)))
	defer span.End()

	var pinned []domain.Post
	if page == 1 {
		pinned = c.fetchPinned(ctx)
	}
	p, err := c.source.FetchPage(ctx, page)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		// A refresh started meanwhile and owns the list now.
		c.logger.Debug("dropping superseded page", "page", page)
		return nil
	}
	c.fetching = false
	if err != nil {
		c.err = err
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Error("feed page fetch failed", "page", page, "err", err)
		return fmt.Errorf("fetch page %d: %w", page, err)
	}

	c.err = nil
	if page == 1 {
		c.pinnedPosts = pinned
	}
	c.posts = append(c.posts, p.Posts...)
	c.nextPage = page + 1
	c.hasMore = p.HasMore
	span.SetAttributes(attribute.Int("feed.posts", len(p.Posts)))

	if !c.fresh {
		c.fresh = true
		c.cached = nil
		c.writeCacheLocked()
	}
	return nil
}

// Refresh refetches from page 1. Concurrent refreshes collapse into the
// first one; a page load already in flight is discarded when it returns.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if c.refreshing {
		c.mu.Unlock()
		return nil
	}
	c.refreshing = true
	c.fetching = true
	c.gen++
	c.mu.Unlock()

	ctx, span := c.tracer.Start(ctx, "feed.Refresh")
	defer span.End()

	pinned := c.fetchPinned(ctx)
	p, err := c.source.FetchPage(ctx, 1)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshing = false
	c.fetching = false
	if err != nil {
		c.err = err
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Error("feed refresh failed", "err", err)
		return fmt.Errorf("refresh: %w", err)
	}

	c.err = nil
	c.pinnedPosts = pinned
	c.posts = append([]domain.Post(nil), p.Posts...)
	c.nextPage = 2
	c.hasMore = p.HasMore
	c.fresh = true
	c.cached = nil
	c.writeCacheLocked()
	return nil
}

// EndReached is wired to the list's scroll-edge callback. Calls closer
// together than the configured interval are dropped.
func (c *Controller) EndReached(ctx context.Context) error {
	c.mu.Lock()
	now := c.clock.Now()
	if !c.lastEndReached.IsZero() && now.Sub(c.lastEndReached) < c.endReachedInterval {
		c.mu.Unlock()
		return nil
	}
	c.lastEndReached = now
	c.mu.Unlock()
	return c.LoadNextPage(ctx)
}

// Invalidate is called after a post was deleted on the server. The cached
// snapshot is dropped and the list is rebuilt from page 1 rather than
// patched.
func (c *Controller) Invalidate(ctx context.Context) error {
	if c.cache != nil {
		c.writes.Wait()
		c.cache.Invalidate(ctx)
	}
	return c.Refresh(ctx)
}

// SyncInteractions merges the latest like, bookmark and play-count state
// into the loaded posts.
func (c *Controller) SyncInteractions(in domain.Interactions) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.posts = in.Apply(c.posts)
	c.pinnedPosts = in.Apply(c.pinnedPosts)
	if c.cached != nil {
		c.cached = in.Apply(c.cached)
	}
}

func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := View{
		Loading:    c.fetching,
		Refreshing: c.refreshing,
		HasMore:    c.hasMore,
		IsError:    c.err != nil,
	}
	if c.err != nil {
		v.Err = c.err.Error()
	}
	if !c.fresh {
		v.Posts = append([]domain.Post(nil), c.cached...)
		v.FromCache = len(c.cached) > 0
		return v
	}
	v.Posts = merge(c.pinnedPosts, c.posts)
	return v
}

// Close waits for background cache writes.
func (c *Controller) Close() {
	c.writes.Wait()
}

func (c *Controller) fetchPinned(ctx context.Context) []domain.Post {
	if c.pinned == nil {
		return nil
	}
	posts, err := c.pinned.FetchPinned(ctx)
	if err != nil {
		c.logger.Warn("pinned posts fetch failed", "err", err)
		return nil
	}
	return posts
}

func (c *Controller) writeCacheLocked() {
	if c.cache == nil {
		return
	}
	posts := append([]domain.Post(nil), c.posts...)
	c.writes.Add(1)
	go func() {
		defer c.writes.Done()
		ctx, cancel := context.WithTimeout(context.Background(), cacheWriteTimeout)
		defer cancel()
		if err := c.cache.CacheFeed(ctx, posts, interactionsOf(posts)); err != nil {
			c.logger.Warn("feed cache write failed", "err", err)
		}
	}()
}
