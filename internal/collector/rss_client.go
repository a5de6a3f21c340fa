package collector

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/qepting91/reelfeed/internal/domain"
)

// RSSClient pages through a video or photo RSS/Atom feed. The document is
// downloaded on page 1 and sliced for later pages.
type RSSClient struct {
	parser   *gofeed.Parser
	feedURL  string
	pageSize int

	mu    sync.Mutex
	items []domain.Post
}

func NewRSSClient(feedURL string, pageSize int) (*RSSClient, error) {
	if feedURL == "" {
		return nil, fmt.Errorf("RSS_URL is required for rss mode")
	}
	if pageSize <= 0 {
		pageSize = 10
	}
	return &RSSClient{parser: gofeed.NewParser(), feedURL: feedURL, pageSize: pageSize}, nil
}

func (rc *RSSClient) FetchPage(ctx context.Context, page int) (domain.Page, error) {
	if page == 1 {
		parsed, err := rc.parser.ParseURLWithContext(rc.feedURL, ctx)
		if err != nil {
			return domain.Page{}, fmt.Errorf("parse feed %s: %w", rc.feedURL, err)
		}
		posts := make([]domain.Post, 0, len(parsed.Items))
		for _, item := range parsed.Items {
			if p, ok := fromFeedItem(item); ok {
				posts = append(posts, p)
			}
		}
		rc.mu.Lock()
		rc.items = posts
		rc.mu.Unlock()
	}

	rc.mu.Lock()
	defer rc.mu.Unlock()
	return slicePage(rc.items, page, rc.pageSize), nil
}

func slicePage(all []domain.Post, page, size int) domain.Page {
	start := (page - 1) * size
	if start > len(all) {
		start = len(all)
	}
	end := start + size
	if end > len(all) {
		end = len(all)
	}
	return domain.Page{
		Posts:   append([]domain.Post(nil), all[start:end]...),
		Number:  page,
		HasMore: end < len(all),
	}
}

func fromFeedItem(item *gofeed.Item) (domain.Post, bool) {
	id := item.GUID
	if id == "" {
		id = item.Link
	}
	if id == "" {
		return domain.Post{}, false
	}

	p := domain.Post{ID: id, Caption: item.Title}
	if item.PublishedParsed != nil {
		p.CreatedAt = *item.PublishedParsed
	}
	if len(item.Authors) > 0 && item.Authors[0] != nil {
		p.Author = item.Authors[0].Name
	}

	thumb := ""
	if item.Image != nil {
		thumb = item.Image.URL
	}
	var photos []string
	for _, enc := range item.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		switch {
		case strings.HasPrefix(enc.Type, "video/"):
			v := domain.VideoMedia{URL: enc.URL, Thumbnail: thumb}
			if item.ITunesExt != nil {
				v.Duration = parseDuration(item.ITunesExt.Duration)
			}
			p.Media = v
			return p, true
		case strings.HasPrefix(enc.Type, "image/"):
			photos = append(photos, enc.URL)
		}
	}
	if len(photos) > 0 {
		p.Media = domain.PhotoSet{ImageURLs: photos}
		return p, true
	}
	p.Media = classifyMedia(item.Link, thumb)
	return p, true
}

// parseDuration reads iTunes durations: "SS", "MM:SS" or "HH:MM:SS".
func parseDuration(s string) time.Duration {
	if s == "" {
		return 0
	}
	var total int
	for _, part := range strings.Split(s, ":") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return 0
		}
		total = total*60 + n
	}
	return time.Duration(total) * time.Second
}
