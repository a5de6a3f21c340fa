package collector

import (
	"fmt"
	"sync"
)

// cursorTable maps the integer page cursor onto listing "after" tokens.
type cursorTable struct {
	mu    sync.Mutex
	after map[int]string
}

func newCursorTable() *cursorTable {
	return &cursorTable{after: map[int]string{1: ""}}
}

func (ct *cursorTable) token(page int) (string, error) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	if page == 1 {
		ct.after = map[int]string{1: ""}
		return "", nil
	}
	tok, ok := ct.after[page]
	if !ok {
		return "", fmt.Errorf("page %d requested before page %d", page, page-1)
	}
	return tok, nil
}

func (ct *cursorTable) set(page int, after string) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.after[page] = after
}
