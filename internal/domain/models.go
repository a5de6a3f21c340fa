package domain

import (
	"context"
	"errors"
	"time"
)

// ErrRetryable marks failures worth another attempt (network errors, 5xx).
var ErrRetryable = errors.New("retryable")

// Post is the clean data structure shared by the feed, the cache and the
// autoplay coordinator.
type Post struct {
	ID         string    `json:"id"`
	Author     string    `json:"author"`
	Caption    string    `json:"caption,omitempty"`
	Media      Media     `json:"media"`
	Likes      int       `json:"likes"`
	Comments   int       `json:"comments"`
	Plays      int       `json:"plays"`
	Liked      bool      `json:"liked"`
	Bookmarked bool      `json:"bookmarked"`
	IsPinned   bool      `json:"is_pinned,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// IsVideo reports whether the post can be auto-played.
func (p Post) IsVideo() bool {
	v, ok := p.Media.(VideoMedia)
	return ok && v.URL != ""
}

// Page is one server response unit.
type Page struct {
	Posts   []Post `json:"posts"`
	Number  int    `json:"page"`
	HasMore bool   `json:"has_more"`
}

// Interactions is the per-viewer engagement snapshot merged into posts.
type Interactions struct {
	LikedIDs      []string       `json:"liked"`
	BookmarkedIDs []string       `json:"bookmarked"`
	PlayCounts    map[string]int `json:"play_counts"`
}

// Apply returns a copy of posts with the snapshot merged in.
func (in Interactions) Apply(posts []Post) []Post {
	liked := make(map[string]bool, len(in.LikedIDs))
	for _, id := range in.LikedIDs {
		liked[id] = true
	}
	saved := make(map[string]bool, len(in.BookmarkedIDs))
	for _, id := range in.BookmarkedIDs {
		saved[id] = true
	}

	out := make([]Post, len(posts))
	for i, p := range posts {
		p.Liked = liked[p.ID]
		p.Bookmarked = saved[p.ID]
		if n, ok := in.PlayCounts[p.ID]; ok && n > p.Plays {
			p.Plays = n
		}
		out[i] = p
	}
	return out
}

// FeedSource defines the interface for paginated feed fetching.
// Page numbers start at 1.
type FeedSource interface {
	FetchPage(ctx context.Context, page int) (Page, error)
}

// PinnedSource returns posts shown ahead of the paginated feed.
type PinnedSource interface {
	FetchPinned(ctx context.Context) ([]Post, error)
}

// ViewReporter receives scroll-view telemetry.
type ViewReporter interface {
	ReportView(ctx context.Context, postID string) error
	ReportViews(ctx context.Context, postIDs []string) error
}
