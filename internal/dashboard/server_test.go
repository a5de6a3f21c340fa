package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/qepting91/reelfeed/internal/autoplay"
	"github.com/qepting91/reelfeed/internal/domain"
	"github.com/qepting91/reelfeed/internal/feed"
	"github.com/qepting91/reelfeed/internal/storage"
	"github.com/qepting91/reelfeed/internal/upload"
)

func testView() feed.View {
	return feed.View{
		Posts: []domain.Post{
			{ID: "pin", IsPinned: true, Media: domain.VideoMedia{URL: "https://cdn/p.mp4"}},
			{ID: "a", Media: domain.VideoMedia{URL: "https://cdn/a.mp4"}},
			{ID: "b", Media: domain.PhotoSet{ImageURLs: []string{"https://cdn/b.jpg"}}},
			{ID: "c"},
		},
		HasMore: true,
	}
}

func TestChartsRenderFromViewLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "views.json")
	in := make(chan storage.ViewRecord, 3)
	var wg sync.WaitGroup
	wg.Add(1)
	go (&storage.WriterService{FilePath: path}).Start(&wg, in)
	for _, rec := range storage.Records([]string{"a", "b", "a"}, 1, time.Now()) {
		in <- rec
	}
	close(in)
	wg.Wait()

	s := NewServer(path, Sources{Feed: testView})
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Views per Post")
	require.Contains(t, rec.Body.String(), "Media Mix")
}

func TestFeedAndAutoplayEndpoints(t *testing.T) {
	s := NewServer("", Sources{
		Feed:     testView,
		Autoplay: func() autoplay.State { return autoplay.State{CurrentPlayingID: "a", PreloadedIDs: []string{"pin"}} },
	})

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/feed", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var fr feedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fr))
	require.Equal(t, feedResponse{Posts: 4, Pinned: 1, HasMore: true}, fr)

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/autoplay", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"playing":"a","preloaded":["pin"]}`, rec.Body.String())
}

func TestMissingSources(t *testing.T) {
	s := NewServer("", Sources{})

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/feed", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := autoplay.NewMetrics(reg)
	m.ViewsReported.Add(3)

	s := NewServer("", Sources{Gatherer: reg})
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "reelfeed_views_reported_total 3")
}

func TestViewCountsAndMediaMix(t *testing.T) {
	ids, counts := viewCounts([]storage.ViewRecord{{PostID: "b"}, {PostID: "a"}, {PostID: "b"}})
	require.Equal(t, []string{"b", "a"}, ids)
	require.Equal(t, []int{2, 1}, counts)

	require.Equal(t, map[string]int{"video": 2, "photo": 1, "none": 1}, mediaMix(testView()))
}

type fakeUploads struct {
	canceled bool
	got      upload.Request
	body     string
	err      error
}

func (f *fakeUploads) Upload(ctx context.Context, req upload.Request) (string, error) {
	f.got = req
	b, _ := io.ReadAll(req.Body)
	f.body = string(b)
	if f.err != nil {
		return "", f.err
	}
	return "media/k.mp4", nil
}

func (f *fakeUploads) Cancel() { f.canceled = true }
func (f *fakeUploads) State() upload.State {
	return upload.State{Status: upload.Uploading, Progress: 0.5}
}

func TestUploadRoutes(t *testing.T) {
	fu := &fakeUploads{}
	s := NewServer("", Sources{Uploads: fu})

	req := httptest.NewRequest(http.MethodPost, "/api/uploads?name=clip.mp4", strings.NewReader("data"))
	req.Header.Set("Content-Type", "video/mp4")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.JSONEq(t, `{"key":"media/k.mp4"}`, rec.Body.String())
	require.Equal(t, "clip.mp4", fu.got.Name)
	require.Equal(t, int64(4), fu.got.Size)
	require.Equal(t, "data", fu.body)

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/uploads", nil))
	require.JSONEq(t, `{"status":"uploading","progress":0.5,"key":""}`, rec.Body.String())

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/uploads", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.True(t, fu.canceled)

	fu.err = upload.ErrCanceled
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/uploads?name=a.jpg", strings.NewReader("x")))
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/uploads", strings.NewReader("x")))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
