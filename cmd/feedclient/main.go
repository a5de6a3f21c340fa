package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"github.com/qepting91/reelfeed/internal/autoplay"
	"github.com/qepting91/reelfeed/internal/collector"
	"github.com/qepting91/reelfeed/internal/config"
	"github.com/qepting91/reelfeed/internal/dashboard"
	"github.com/qepting91/reelfeed/internal/feed"
	"github.com/qepting91/reelfeed/internal/feedcache"
	"github.com/qepting91/reelfeed/internal/ingest"
	"github.com/qepting91/reelfeed/internal/storage"
	"github.com/qepting91/reelfeed/internal/upload"
)

func main() {
	// 1. Setup
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.OTLPEndpoint != "" {
		shutdown, err := initOTEL(ctx, cfg.OTLPEndpoint)
		if err != nil {
			logger.Error("otel disabled", "err", err)
		} else {
			defer func() {
				c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = shutdown(c)
			}()
		}
	}

	// 2. Backend (Using Factory)
	backend, err := collector.NewBackend(cfg)
	if err != nil {
		logger.Error("Failed to initialize collector", "err", err)
		os.Exit(1)
	}
	logger.Info("Collector initialized", "mode", cfg.CollectorMode)
	if c, ok := backend.Views.(io.Closer); ok {
		defer c.Close()
	}

	store, closeStore, err := openStore(cfg)
	if err != nil {
		logger.Error("Failed to open feed cache", "backend", cfg.CacheBackend, "err", err)
		os.Exit(1)
	}
	defer closeStore()
	cache := feedcache.New(store, logger, feedcache.ForViewer(backend.Viewer))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// 3. Feed + autoplay
	ctrl := feed.NewController(backend.Feed,
		feed.WithPinned(backend.Pinned),
		feed.WithCache(cache),
		feed.WithLogger(logger),
		feed.WithEndReachedInterval(cfg.EndReachedInterval),
	)
	defer ctrl.Close()

	sink := newViewSink(cfg.ViewLog, logger)

	acfg := autoplay.DefaultConfig()
	acfg.AutoplayDebounce = cfg.AutoplayDebounce
	acfg.FlushDelay = cfg.ViewFlushDelay
	acfg.SessionWindow = cfg.SessionWindow
	coord := autoplay.New(backend.Views, acfg,
		autoplay.WithLogger(logger),
		autoplay.WithMetrics(autoplay.NewMetrics(reg)),
		autoplay.OnChange(func(s autoplay.State) {
			logger.Info("autoplay", "playing", s.CurrentPlayingID, "preload", s.PreloadedIDs)
		}),
		autoplay.OnReported(sink.report),
	)

	// 4. Dashboard
	src := dashboard.Sources{Feed: ctrl.View, Autoplay: coord.State, Gatherer: reg}
	if cfg.MinioEndpoint != "" {
		mc, err := upload.NewMinioClient(ctx, upload.Options{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			UseSSL:    cfg.MinioUseSSL,
			Bucket:    cfg.MinioBucket,
		})
		if err != nil {
			logger.Error("uploads disabled", "err", err)
		} else {
			up := upload.New(mc, cfg.MinioBucket, logger)
			up.OnError = func(err error) { logger.Warn("upload error", "err", err) }
			src.Uploads = up
		}
	}
	var serverWg sync.WaitGroup
	serverWg.Add(1)
	go func() {
		defer serverWg.Done()
		logger.Info("Starting Dashboard", "port", cfg.Port)
		if err := dashboard.NewServer(cfg.ViewLog, src).ListenAndServe(ctx, cfg.Port); err != nil {
			logger.Error("Dashboard failed", "err", err)
		}
	}()

	// 5. Cold start
	ctrl.Mount(ctx)
	if err := ctrl.LoadNextPage(ctx); err != nil {
		logger.Warn("first page failed", "err", err)
	}

	// SIGHUP pulls to refresh
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				if err := ctrl.Invalidate(ctx); err != nil {
					logger.Warn("refresh failed", "err", err)
				}
			}
		}
	}()

	// 6. Replay the scroll trace, if any
	steps, err := ingest.LoadTrace(cfg.TracePath)
	if err != nil {
		logger.Warn("no scroll trace", "path", cfg.TracePath, "err", err)
	} else {
		logger.Info("Replaying scroll trace", "steps", len(steps))
		replay(ctx, steps, ctrl, coord, logger)
	}

	// 7. Graceful Shutdown
	<-ctx.Done()
	logger.Info("Shutdown signal received")
	coord.Close()
	sink.close()
	serverWg.Wait()
	logger.Info("Shutdown complete")
}

func initOTEL(ctx context.Context, endpoint string) (func(context.Context) error, error) {
	exp, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("otel exporter: %w", err)
	}
	res, err := newResource(ctx)
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp), sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	return tp.Shutdown, nil
}

func newResource(ctx context.Context) (*resource.Resource, error) {
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName("reelfeed")))
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}
	return res, nil
}

func openStore(cfg *config.Config) (feedcache.Store, func(), error) {
	switch cfg.CacheBackend {
	case "memory":
		return feedcache.NewMemoryStore(), func() {}, nil
	case "file":
		fs, err := feedcache.NewFileStore(cfg.CacheDir)
		return fs, func() {}, err
	case "sqlite":
		s, err := feedcache.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case "redis":
		rdb := feedcache.NewRedisClient(cfg.RedisAddr, "", 0)
		return feedcache.NewRedisStore(rdb, cfg.RedisTTL), func() { _ = rdb.Close() }, nil
	}
	return nil, nil, errors.New("unknown CACHE_BACKEND: " + cfg.CacheBackend + " (use 'file', 'sqlite', 'redis' or 'memory')")
}

// replay feeds recorded viewport windows to the coordinator and asks for
// more posts when the window nears the end of the list.
func replay(ctx context.Context, steps []ingest.ScrollStep, ctrl *feed.Controller, coord *autoplay.Coordinator, logger *slog.Logger) {
	start := time.Now()
	for _, st := range steps {
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(start.Add(st.At))):
		}
		posts := ctrl.View().Posts
		coord.Visible(autoplay.ItemsInWindow(posts, st.First, st.Last))
		if st.Last >= len(posts)-3 {
			if err := ctrl.EndReached(ctx); err != nil {
				logger.Warn("next page failed", "err", err)
			}
		}
	}
}

// viewSink forwards reported views to the log writer. Reports that land
// after close are dropped.
type viewSink struct {
	mu     sync.Mutex
	closed bool
	batch  int
	ch     chan storage.ViewRecord
	wg     sync.WaitGroup
}

func newViewSink(path string, logger *slog.Logger) *viewSink {
	s := &viewSink{ch: make(chan storage.ViewRecord, 100)}
	writer := &storage.WriterService{FilePath: path, Logger: logger}
	s.wg.Add(1)
	go writer.Start(&s.wg, s.ch)
	return s
}

func (s *viewSink) report(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.batch++
	for _, rec := range storage.Records(ids, s.batch, time.Now().UTC()) {
		s.ch <- rec
	}
}

func (s *viewSink) close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	s.mu.Unlock()
	s.wg.Wait()
}
