// Package ingest reads recorded scroll traces used to drive the client
// without a real viewport.
package ingest

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ScrollStep says that rows First..Last were on screen from At onwards.
type ScrollStep struct {
	At    time.Duration
	First int
	Last  int
}

// LoadTrace reads a CSV of at_ms,first_index,last_index. The first line is a
// header. Bad rows are skipped and the result is ordered by At.
func LoadTrace(path string) ([]ScrollStep, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseTrace(f)
}

func ParseTrace(src io.Reader) ([]ScrollStep, error) {
	// Wrap in BOM stripper
	r := csv.NewReader(stripBOM(src))
	r.FieldsPerRecord = -1

	var steps []ScrollStep
	line := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		line++
		if line == 1 {
			continue // Skip header
		}

		// Validation (Fail-Soft)
		if len(record) < 3 {
			continue
		}
		at, err1 := strconv.Atoi(strings.TrimSpace(record[0]))
		first, err2 := strconv.Atoi(strings.TrimSpace(record[1]))
		last, err3 := strconv.Atoi(strings.TrimSpace(record[2]))
		if err1 != nil || err2 != nil || err3 != nil || at < 0 || first < 0 || last < first {
			continue
		}

		steps = append(steps, ScrollStep{
			At:    time.Duration(at) * time.Millisecond,
			First: first,
			Last:  last,
		})
	}
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].At < steps[j].At })
	return steps, nil
}

func stripBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	rdr, _, err := br.ReadRune()
	if err != nil {
		return br
	}
	if rdr != '\uFEFF' {
		_ = br.UnreadRune()
	}
	return br
}
