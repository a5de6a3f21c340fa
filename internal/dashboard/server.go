// Package dashboard serves charts over the view log plus live feed and
// autoplay snapshots.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/qepting91/reelfeed/internal/autoplay"
	"github.com/qepting91/reelfeed/internal/feed"
	"github.com/qepting91/reelfeed/internal/storage"
	"github.com/qepting91/reelfeed/internal/upload"
)

// Sources are read on every request. Any of them may be nil.
type Sources struct {
	Feed     func() feed.View
	Autoplay func() autoplay.State
	Uploads  Uploads
	Gatherer prometheus.Gatherer
}

// Uploads is satisfied by *upload.Uploader.
type Uploads interface {
	Upload(ctx context.Context, req upload.Request) (string, error)
	Cancel()
	State() upload.State
}

type Server struct {
	viewLog string
	src     Sources
	router  chi.Router
}

func NewServer(viewLog string, src Sources) *Server {
	s := &Server{viewLog: viewLog, src: src}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/", s.handleCharts)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Route("/api", func(r chi.Router) {
		r.Get("/feed", s.handleFeed)
		r.Get("/autoplay", s.handleAutoplay)
		if src.Uploads != nil {
			r.Get("/uploads", s.handleUploadState)
			r.Post("/uploads", s.handleUpload)
			r.Delete("/uploads", s.handleUploadCancel)
		}
	})
	if src.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(src.Gatherer, promhttp.HandlerOpts{}))
	}
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe runs until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, port string) error {
	srv := &http.Server{Addr: ":" + port, Handler: s, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) handleCharts(w http.ResponseWriter, r *http.Request) {
	views, err := storage.ReadViews(s.viewLog)
	if err != nil {
		slog.Warn("read view log", "path", s.viewLog, "err", err)
	}

	// 1. Views per post
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Views per Post"}),
		charts.WithInitializationOpts(opts.Initialization{Theme: types.ThemeWesteros}),
	)
	ids, counts := viewCounts(views)
	barY := make([]opts.BarData, len(counts))
	for i, v := range counts {
		barY[i] = opts.BarData{Value: v}
	}
	bar.SetXAxis(ids).AddSeries("Views", barY)

	// 2. Media mix of the loaded feed
	pie := charts.NewPie()
	pie.SetGlobalOptions(charts.WithTitleOpts(opts.Title{Title: "Media Mix"}))
	var mix map[string]int
	if s.src.Feed != nil {
		mix = mediaMix(s.src.Feed())
	}
	var pieItems []opts.PieData
	for _, k := range sortedKeys(mix) {
		pieItems = append(pieItems, opts.PieData{Name: k, Value: mix[k]})
	}
	pie.AddSeries("Posts", pieItems)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = bar.Render(w)
	_ = pie.Render(w)
}

type feedResponse struct {
	Posts      int    `json:"posts"`
	Pinned     int    `json:"pinned"`
	FromCache  bool   `json:"from_cache"`
	Loading    bool   `json:"loading"`
	Refreshing bool   `json:"refreshing"`
	HasMore    bool   `json:"has_more"`
	Error      string `json:"error,omitempty"`
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	if s.src.Feed == nil {
		http.Error(w, "feed not running", http.StatusServiceUnavailable)
		return
	}
	v := s.src.Feed()
	resp := feedResponse{
		Posts:      len(v.Posts),
		FromCache:  v.FromCache,
		Loading:    v.Loading,
		Refreshing: v.Refreshing,
		HasMore:    v.HasMore,
		Error:      v.Err,
	}
	for _, p := range v.Posts {
		if p.IsPinned {
			resp.Pinned++
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAutoplay(w http.ResponseWriter, r *http.Request) {
	if s.src.Autoplay == nil {
		http.Error(w, "autoplay not running", http.StatusServiceUnavailable)
		return
	}
	st := s.src.Autoplay()
	writeJSON(w, http.StatusOK, map[string]any{
		"playing":   st.CurrentPlayingID,
		"preloaded": st.PreloadedIDs,
	})
}

func (s *Server) handleUploadState(w http.ResponseWriter, r *http.Request) {
	st := s.src.Uploads.State()
	resp := map[string]any{"status": st.Status.String(), "progress": st.Progress, "key": st.Key}
	if st.Err != nil {
		resp["error"] = st.Err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleUpload streams the request body to object storage. The file name
// comes from the "name" query parameter.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" || r.ContentLength <= 0 {
		http.Error(w, "name and Content-Length are required", http.StatusBadRequest)
		return
	}
	key, err := s.src.Uploads.Upload(r.Context(), upload.Request{
		Name:        name,
		ContentType: r.Header.Get("Content-Type"),
		Size:        r.ContentLength,
		Body:        r.Body,
	})
	switch {
	case errors.Is(err, upload.ErrCanceled):
		http.Error(w, err.Error(), http.StatusConflict)
	case err != nil:
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		writeJSON(w, http.StatusCreated, map[string]string{"key": key})
	}
}

func (s *Server) handleUploadCancel(w http.ResponseWriter, r *http.Request) {
	s.src.Uploads.Cancel()
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response", "err", err)
	}
}

// viewCounts orders posts by views, most viewed first.
func viewCounts(views []storage.ViewRecord) ([]string, []int) {
	counts := make(map[string]int)
	for _, v := range views {
		counts[v.PostID]++
	}
	ids := sortedKeys(counts)
	sort.SliceStable(ids, func(i, j int) bool { return counts[ids[i]] > counts[ids[j]] })
	out := make([]int, len(ids))
	for i, id := range ids {
		out[i] = counts[id]
	}
	return ids, out
}

func mediaMix(v feed.View) map[string]int {
	mix := make(map[string]int)
	for _, p := range v.Posts {
		switch {
		case p.IsVideo():
			mix["video"]++
		case p.Media != nil:
			mix[p.Media.Kind()]++
		default:
			mix["none"]++
		}
	}
	return mix
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
