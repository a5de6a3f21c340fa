package storage

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWriterAppendsAndReadsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "views.json")
	at := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

	in := make(chan ViewRecord, 4)
	var wg sync.WaitGroup
	wg.Add(1)
	go (&WriterService{FilePath: path}).Start(&wg, in)

	for _, rec := range Records([]string{"a", "b"}, 1, at) {
		in <- rec
	}
	in <- ViewRecord{PostID: "c", Batch: 2, ViewedAt: at.Add(time.Second)}
	close(in)
	wg.Wait()

	got, err := ReadViews(path)
	require.NoError(t, err)
	require.Equal(t, []ViewRecord{
		{PostID: "a", Batch: 1, ViewedAt: at},
		{PostID: "b", Batch: 1, ViewedAt: at},
		{PostID: "c", Batch: 2, ViewedAt: at.Add(time.Second)},
	}, got)
}

func TestReadViewsSkipsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "views.json")
	require.NoError(t, os.WriteFile(path, []byte("{\"post_id\":\"a\",\"batch\":1}\nnot json\n{}\n"), 0o644))

	got, err := ReadViews(path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "a", got[0].PostID)
}

func TestReadViewsMissingFile(t *testing.T) {
	got, err := ReadViews(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	require.Empty(t, got)
}
