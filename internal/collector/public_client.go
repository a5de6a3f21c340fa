package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/qepting91/reelfeed/internal/domain"
)

// PublicClient reads a subreddit through the unauthenticated JSON listing.
type PublicClient struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	userAgent  string
	baseURL    string
	subreddit  string
	limit      int
	cursors    *cursorTable
}

type redditListing struct {
	Data struct {
		After    string `json:"after"`
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Author      string  `json:"author"`
	URL         string  `json:"url"`
	Thumbnail   string  `json:"thumbnail"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	CreatedUTC  float64 `json:"created_utc"`
	Stickied    bool    `json:"stickied"`
	IsVideo     bool    `json:"is_video"`
	Media       *struct {
		RedditVideo *struct {
			HLSURL   string `json:"hls_url"`
			Duration int    `json:"duration"`
		} `json:"reddit_video"`
	} `json:"media"`
}

func NewPublicClient(userAgent, subreddit string, limit int) (*PublicClient, error) {
	if userAgent == "" {
		return nil, fmt.Errorf("user agent is required for public mode")
	}
	return &PublicClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		// Public JSON Limit: 1 req / 2 seconds (Stricter)
		limiter:   rate.NewLimiter(rate.Every(2*time.Second), 1),
		userAgent: userAgent,
		baseURL:   "https://www.reddit.com",
		subreddit: subreddit,
		limit:     limit,
		cursors:   newCursorTable(),
	}, nil
}

func (pc *PublicClient) FetchPage(ctx context.Context, page int) (domain.Page, error) {
	after, err := pc.cursors.token(page)
	if err != nil {
		return domain.Page{}, err
	}
	q := url.Values{}
	q.Set("limit", fmt.Sprint(pc.limit))
	if after != "" {
		q.Set("after", after)
	}
	listing, err := pc.get(ctx, fmt.Sprintf("%s/r/%s/new.json?%s", pc.baseURL, pc.subreddit, q.Encode()))
	if err != nil {
		return domain.Page{}, err
	}
	pc.cursors.set(page+1, listing.Data.After)

	out := domain.Page{Number: page, HasMore: listing.Data.After != ""}
	for _, child := range listing.Data.Children {
		if child.Data.Stickied {
			continue
		}
		out.Posts = append(out.Posts, child.Data.toPost())
	}
	return out, nil
}

func (pc *PublicClient) FetchPinned(ctx context.Context) ([]domain.Post, error) {
	listing, err := pc.get(ctx, fmt.Sprintf("%s/r/%s/hot.json?limit=5", pc.baseURL, pc.subreddit))
	if err != nil {
		return nil, err
	}
	var pinned []domain.Post
	for _, child := range listing.Data.Children {
		if child.Data.Stickied {
			pinned = append(pinned, child.Data.toPost())
		}
	}
	return pinned, nil
}

func (pc *PublicClient) get(ctx context.Context, u string) (*redditListing, error) {
	if err := pc.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", pc.userAgent)

	resp, err := pc.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reddit public access: %w: %w", domain.ErrRetryable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("reddit public access", resp.StatusCode)
	}

	var listing redditListing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, err
	}
	return &listing, nil
}

func (d redditPost) toPost() domain.Post {
	p := domain.Post{
		ID:        d.ID,
		Author:    d.Author,
		Caption:   d.Title,
		Likes:     d.Score,
		Comments:  d.NumComments,
		CreatedAt: time.Unix(int64(d.CreatedUTC), 0).UTC(),
	}
	if d.IsVideo && d.Media != nil && d.Media.RedditVideo != nil && d.Media.RedditVideo.HLSURL != "" {
		p.Media = domain.VideoMedia{
			URL:       d.Media.RedditVideo.HLSURL,
			Duration:  time.Duration(d.Media.RedditVideo.Duration) * time.Second,
			Thumbnail: d.Thumbnail,
		}
		return p
	}
	p.Media = classifyMedia(d.URL, d.Thumbnail)
	return p
}
