package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/loganintech/go-reddit/v2/reddit"
	"golang.org/x/time/rate"

	"github.com/qepting91/reelfeed/internal/domain"
)

// RedditClient serves a subreddit as the feed. Stickied posts are the
// pinned list.
type RedditClient struct {
	client    *reddit.Client
	limiter   *rate.Limiter
	subreddit string
	limit     int
	cursors   *cursorTable
}

func NewRedditClient(id, secret, user, pass, userAgent, subreddit string, limit int) (*RedditClient, error) {
	creds := reddit.Credentials{ID: id, Secret: secret, Username: user, Password: pass}

	client, err := reddit.NewClient(creds, reddit.WithUserAgent(userAgent))
	if err != nil {
		return nil, err
	}

	// API Rate Limit: ~60 reqs/min
	limiter := rate.NewLimiter(rate.Every(1*time.Second), 1)

	return &RedditClient{
		client:    client,
		limiter:   limiter,
		subreddit: subreddit,
		limit:     limit,
		cursors:   newCursorTable(),
	}, nil
}

func (rc *RedditClient) FetchPage(ctx context.Context, page int) (domain.Page, error) {
	after, err := rc.cursors.token(page)
	if err != nil {
		return domain.Page{}, err
	}
	if err := rc.limiter.Wait(ctx); err != nil {
		return domain.Page{}, err
	}

	posts, resp, err := rc.client.Subreddit.NewPosts(ctx, rc.subreddit, &reddit.ListOptions{Limit: rc.limit, After: after})
	if err != nil {
		return domain.Page{}, fmt.Errorf("authenticated api error: %w", err)
	}

	next := ""
	if resp != nil {
		next = resp.After
	}
	rc.cursors.set(page+1, next)

	out := domain.Page{Number: page, HasMore: next != ""}
	for _, p := range posts {
		if p.Stickied {
			continue
		}
		out.Posts = append(out.Posts, fromRedditPost(p))
	}
	return out, nil
}

func (rc *RedditClient) FetchPinned(ctx context.Context) ([]domain.Post, error) {
	if err := rc.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	posts, _, err := rc.client.Subreddit.HotPosts(ctx, rc.subreddit, &reddit.ListOptions{Limit: 5})
	if err != nil {
		return nil, fmt.Errorf("authenticated api error: %w", err)
	}
	var pinned []domain.Post
	for _, p := range posts {
		if p.Stickied {
			pinned = append(pinned, fromRedditPost(p))
		}
	}
	return pinned, nil
}

func fromRedditPost(p *reddit.Post) domain.Post {
	post := domain.Post{
		ID:         p.ID,
		Author:     p.Author,
		Caption:    p.Title,
		Media:      classifyMedia(p.URL, ""),
		Likes:      p.Score,
		Comments:   p.NumberOfComments,
		Liked:      p.Likes != nil && *p.Likes,
		Bookmarked: p.Saved,
	}
	if p.Created != nil {
		post.CreatedAt = p.Created.Time
	}
	return post
}
