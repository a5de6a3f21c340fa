// Package storage keeps an append-only log of reported views.
package storage

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ViewRecord is one line of the view log.
type ViewRecord struct {
	PostID   string    `json:"post_id"`
	Batch    int       `json:"batch"`
	ViewedAt time.Time `json:"viewed_at"`
}

// WriterService owns the log file; only Start writes to it.
type WriterService struct {
	FilePath string
	Logger   *slog.Logger
}

// Start drains input into the log as NDJSON until the channel is closed.
func (w *WriterService) Start(wg *sync.WaitGroup, input <-chan ViewRecord) {
	defer wg.Done()

	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if dir := filepath.Dir(w.FilePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Error("view log dir", "path", dir, "err", err)
		}
	}
	f, err := os.OpenFile(w.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		logger.Error("open view log", "path", w.FilePath, "err", err)
		// keep draining so producers never block
		for range input {
		}
		return
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for rec := range input {
		if err := enc.Encode(rec); err != nil {
			logger.Warn("write view record", "id", rec.PostID, "err", err)
		}
	}
}

// Records turns one reported batch into log lines sharing a timestamp.
func Records(ids []string, batch int, at time.Time) []ViewRecord {
	out := make([]ViewRecord, len(ids))
	for i, id := range ids {
		out[i] = ViewRecord{PostID: id, Batch: batch, ViewedAt: at}
	}
	return out
}

// ReadViews loads the log. A missing file is an empty log; malformed lines
// are skipped.
func ReadViews(path string) ([]ViewRecord, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open view log: %w", err)
	}
	defer f.Close()

	var out []ViewRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec ViewRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err == nil && rec.PostID != "" {
			out = append(out, rec)
		}
	}
	return out, scanner.Err()
}
