package collector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/qepting91/reelfeed/internal/config"
	"github.com/qepting91/reelfeed/internal/domain"
)

type recordedRequest struct {
	Method string
	Path   string
	Auth   string
	Body   map[string]any
}

func newFeedServer(t *testing.T, status int) (*httptest.Server, func() []recordedRequest) {
	t.Helper()
	var mu sync.Mutex
	var reqs []recordedRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{Method: r.Method, Path: r.URL.Path, Auth: r.Header.Get("Authorization")}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&rec.Body)
		}
		mu.Lock()
		reqs = append(reqs, rec)
		mu.Unlock()

		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/feed":
			_, _ = w.Write([]byte(`{"posts":[
				{"id":"v1","media":{"type":"video","url":"https://cdn/v1.m3u8","duration":15000000000}},
				{"id":"p1","media":{"type":"photo","images":["https://cdn/a.jpg","https://cdn/b.jpg"]}}
			],"page":` + r.URL.Query().Get("page") + `,"has_more":true}`))
		case "/feed/pinned":
			_, _ = w.Write([]byte(`{"posts":[{"id":"pin","media":{"url":"https://cdn/pin.mp4"}}]}`))
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	t.Cleanup(srv.Close)

	return srv, func() []recordedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]recordedRequest(nil), reqs...)
	}
}

func TestAPIClientFetchPage(t *testing.T) {
	srv, _ := newFeedServer(t, http.StatusOK)
	ac, err := NewAPIClient(srv.URL, "", "test-agent", 10)
	require.NoError(t, err)

	page, err := ac.FetchPage(context.Background(), 2)
	require.NoError(t, err)
	require.Equal(t, 2, page.Number)
	require.True(t, page.HasMore)
	require.Len(t, page.Posts, 2)
	require.True(t, page.Posts[0].IsVideo())
	require.Equal(t, 15*time.Second, page.Posts[0].Media.(domain.VideoMedia).Duration)
	require.Equal(t, []string{"https://cdn/a.jpg", "https://cdn/b.jpg"}, page.Posts[1].Media.(domain.PhotoSet).ImageURLs)

	pinned, err := ac.FetchPinned(context.Background())
	require.NoError(t, err)
	require.Len(t, pinned, 1)
	require.True(t, pinned[0].IsVideo())
}

func TestAPIClientReportsViews(t *testing.T) {
	srv, requests := newFeedServer(t, http.StatusOK)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "viewer-7",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	ac, err := NewAPIClient(srv.URL+"/", token, "test-agent", 10)
	require.NoError(t, err)
	require.Equal(t, "viewer-7", ac.ViewerID())
	require.NotEmpty(t, ac.SessionID())

	ctx := context.Background()
	require.NoError(t, ac.ReportView(ctx, "p1"))
	require.NoError(t, ac.ReportViews(ctx, []string{"p1", "p2"}))

	reqs := requests()
	require.Len(t, reqs, 2)
	require.Equal(t, "/posts/p1/views", reqs[0].Path)
	require.Equal(t, http.MethodPost, reqs[0].Method)
	require.Equal(t, "Bearer "+token, reqs[0].Auth)
	require.Equal(t, "/posts/views", reqs[1].Path)
	require.Equal(t, []any{"p1", "p2"}, reqs[1].Body["post_ids"])
	require.Equal(t, "viewer-7", reqs[0].Body["viewer_id"])
	require.Equal(t, "viewer-7", reqs[1].Body["viewer_id"])
	require.Equal(t, "scroll", reqs[0].Body["source"])
}

func TestAPIClientClassifiesFailures(t *testing.T) {
	ctx := context.Background()

	srv, _ := newFeedServer(t, http.StatusServiceUnavailable)
	ac, err := NewAPIClient(srv.URL, "", "test-agent", 10)
	require.NoError(t, err)
	require.ErrorIs(t, ac.ReportView(ctx, "p1"), domain.ErrRetryable)

	srv, _ = newFeedServer(t, http.StatusNotFound)
	ac, err = NewAPIClient(srv.URL, "", "test-agent", 10)
	require.NoError(t, err)
	err = ac.ReportView(ctx, "p1")
	require.Error(t, err)
	require.NotErrorIs(t, err, domain.ErrRetryable)

	ac, err = NewAPIClient("http://127.0.0.1:1", "", "test-agent", 10)
	require.NoError(t, err)
	_, err = ac.FetchPage(ctx, 1)
	require.ErrorIs(t, err, domain.ErrRetryable)
}

func TestBackendCarriesViewer(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "viewer-7"}).SignedString([]byte("secret"))
	require.NoError(t, err)

	b, err := NewBackend(&config.Config{CollectorMode: "api", APIBaseURL: "http://feed.test", APIToken: token, PageSize: 10})
	require.NoError(t, err)
	require.Equal(t, "viewer-7", b.Viewer)

	b, err = NewBackend(&config.Config{CollectorMode: "mock", PageSize: 10})
	require.NoError(t, err)
	require.Empty(t, b.Viewer)
}
