package collector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/qepting91/reelfeed/internal/domain"
)

// MockClient implements every backend interface with fake data. Pages are
// stable for a given page number.
type MockClient struct {
	Pages    int
	PageSize int
	Latency  time.Duration
}

func NewMockClient() *MockClient {
	return &MockClient{Pages: 5, PageSize: 10, Latency: 300 * time.Millisecond}
}

func (mc *MockClient) FetchPage(ctx context.Context, page int) (domain.Page, error) {
	// Simulate network latency (nice for testing concurrency)
	select {
	case <-time.After(mc.Latency):
	case <-ctx.Done():
		return domain.Page{}, ctx.Err()
	}

	f := gofakeit.New(uint64(page))
	out := domain.Page{Number: page, HasMore: page < mc.Pages}
	if page > mc.Pages {
		return out, nil
	}
	for i := 0; i < mc.PageSize; i++ {
		out.Posts = append(out.Posts, fakePost(f, fmt.Sprintf("mock_%d_%d", page, i)))
	}
	return out, nil
}

func (mc *MockClient) FetchPinned(ctx context.Context) ([]domain.Post, error) {
	f := gofakeit.New(0)
	p := fakePost(f, "mock_pinned")
	return []domain.Post{p}, nil
}

func (mc *MockClient) ReportView(ctx context.Context, postID string) error {
	slog.Debug("mock view", "id", postID)
	return nil
}

func (mc *MockClient) ReportViews(ctx context.Context, postIDs []string) error {
	slog.Debug("mock views", "ids", postIDs)
	return nil
}

func fakePost(f *gofakeit.Faker, id string) domain.Post {
	p := domain.Post{
		ID:        id,
		Author:    f.Username(),
		Caption:   f.Phrase(),
		Likes:     f.Number(0, 5000),
		Comments:  f.Number(0, 300),
		Plays:     f.Number(0, 20000),
		Liked:     f.Bool(),
		CreatedAt: f.Date(),
	}
	if f.Number(0, 2) > 0 {
		p.Media = domain.VideoMedia{
			URL:      fmt.Sprintf("https://cdn.example.com/v/%s.m3u8", f.UUID()),
			Duration: time.Duration(f.Number(5, 90)) * time.Second,
		}
		return p
	}
	n := f.Number(1, 4)
	images := make([]string, 0, n)
	for i := 0; i < n; i++ {
		images = append(images, fmt.Sprintf("https://cdn.example.com/i/%s.jpg", f.UUID()))
	}
	p.Media = domain.PhotoSet{ImageURLs: images}
	return p
}
