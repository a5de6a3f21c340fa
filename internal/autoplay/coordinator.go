// Package autoplay decides which visible video plays and reports
// scroll-based views with per-session de-duplication.
package autoplay

import (
	"context"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/qepting91/reelfeed/internal/clock"
	"github.com/qepting91/reelfeed/internal/domain"
)

// VisibleItem is one entry of a viewport visibility callback.
type VisibleItem struct {
	Index           int
	ID              string
	IsVideo         bool
	VisibleFraction float64
}

// State is the autoplay decision. An empty CurrentPlayingID means nothing
// plays.
type State struct {
	CurrentPlayingID string
	PreloadedIDs     []string
}

type Config struct {
	AutoplayThreshold float64
	AutoplayDebounce  time.Duration
	DwellDelay        time.Duration
	FlushDelay        time.Duration
	SessionWindow     time.Duration
	CleanupHorizon    time.Duration
	CleanupDistance   int
	MaxPreloaded      int
	RetryBaseDelay    time.Duration
	RetryAttempts     int
}

func DefaultConfig() Config {
	return Config{
		AutoplayThreshold: 0.5,
		AutoplayDebounce:  50 * time.Millisecond,
		DwellDelay:        500 * time.Millisecond,
		FlushDelay:        time.Second,
		SessionWindow:     5 * time.Minute,
		CleanupHorizon:    24 * time.Hour,
		CleanupDistance:   3,
		MaxPreloaded:      1,
		RetryBaseDelay:    500 * time.Millisecond,
		RetryAttempts:     3,
	}
}

type Coordinator struct {
	cfg      Config
	reporter domain.ViewReporter
	clock    clock.Clock
	logger   *slog.Logger
	metrics  *Metrics

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	closed      bool
	focused     bool
	visible     []VisibleItem
	visibleIDs  map[string]int
	state       State
	decision    clock.Timer
	decisionSeq int
	onChange    func(State)

	dwell      map[string]*dwellTimer
	dwellSeq   int
	pending    []string
	pendingSet map[string]bool
	flush      clock.Timer
	flushSeq   int
	sessions   map[string]time.Time
	onReported func([]string)
	retries    map[int]clock.Timer
	retrySeq   int
}

type Option func(*Coordinator)

func WithClock(clk clock.Clock) Option {
	return func(c *Coordinator) { c.clock = clk }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

func WithMetrics(m *Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// OnChange is called outside the lock after every autoplay transition.
func OnChange(fn func(State)) Option {
	return func(c *Coordinator) { c.onChange = fn }
}

// OnReported is called with the ids accepted by the reporter.
func OnReported(fn func([]string)) Option {
	return func(c *Coordinator) { c.onReported = fn }
}

func New(reporter domain.ViewReporter, cfg Config, opts ...Option) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		cfg:        cfg,
		reporter:   reporter,
		clock:      clock.NewRealClock(),
		logger:     slog.Default(),
		ctx:        ctx,
		cancel:     cancel,
		focused:    true,
		visibleIDs: make(map[string]int),
		dwell:      make(map[string]*dwellTimer),
		pendingSet: make(map[string]bool),
		sessions:   make(map[string]time.Time),
		retries:    make(map[int]clock.Timer),
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = NewMetrics(nil)
	}
	return c
}

// Visible replaces the set of visible items. It is the viewport callback of
// the rendered list.
func (c *Coordinator) Visible(items []VisibleItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	sorted := append([]VisibleItem(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	next := make(map[string]int, len(sorted))
	for _, it := range sorted {
		next[it.ID] = it.Index
		if _, was := c.visibleIDs[it.ID]; !was {
			c.armDwellLocked(it)
		}
	}
	c.visible = sorted
	c.visibleIDs = next

	if len(sorted) > 0 {
		c.cancelFarTimersLocked(sorted[0].Index, sorted[len(sorted)-1].Index)
	}
	if c.focused {
		c.scheduleDecisionLocked()
	}
}

// SetFocused gates autoplay on the hosting screen being focused. Visibility
// is still tracked while unfocused.
func (c *Coordinator) SetFocused(focused bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.focused == focused {
		return
	}
	c.focused = focused
	if !focused {
		c.stopDecisionLocked()
		return
	}
	c.scheduleDecisionLocked()
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		CurrentPlayingID: c.state.CurrentPlayingID,
		PreloadedIDs:     slices.Clone(c.state.PreloadedIDs),
	}
}

// Close cancels every timer and in-flight report and resets the state.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.cancel()
	c.stopDecisionLocked()
	if c.flush != nil {
		c.flush.Stop()
		c.flush = nil
	}
	for id, d := range c.dwell {
		d.timer.Stop()
		delete(c.dwell, id)
	}
	for seq, t := range c.retries {
		t.Stop()
		delete(c.retries, seq)
	}
	c.metrics.PendingTimers.Set(0)
	c.visible = nil
	c.visibleIDs = make(map[string]int)
	c.state = State{}
	c.pending = nil
	c.pendingSet = make(map[string]bool)
	c.sessions = make(map[string]time.Time)
}

func (c *Coordinator) scheduleDecisionLocked() {
	c.stopDecisionLocked()
	seq := c.decisionSeq
	c.decision = c.clock.AfterFunc(c.cfg.AutoplayDebounce, func() { c.decide(seq) })
}

func (c *Coordinator) stopDecisionLocked() {
	if c.decision != nil {
		c.decision.Stop()
		c.decision = nil
	}
	c.decisionSeq++
}

func (c *Coordinator) decide(seq int) {
	c.mu.Lock()
	if c.closed || !c.focused || seq != c.decisionSeq {
		c.mu.Unlock()
		return
	}
	c.decision = nil

	playing := selectPlaying(c.visible, c.cfg.AutoplayThreshold)
	preload := selectPreload(c.visible, playing, c.cfg.MaxPreloaded)
	switched := playing != c.state.CurrentPlayingID
	changed := switched || !slices.Equal(preload, c.state.PreloadedIDs)
	c.state = State{CurrentPlayingID: playing, PreloadedIDs: preload}
	out := State{CurrentPlayingID: playing, PreloadedIDs: slices.Clone(preload)}
	hook := c.onChange
	c.mu.Unlock()

	if switched {
		c.metrics.AutoplayTransitions.Inc()
		c.logger.Debug("autoplay target changed", "id", playing)
	}
	if changed && hook != nil {
		hook(out)
	}
}

// selectPlaying picks the topmost sufficiently visible video. items must be
// sorted by index.
func selectPlaying(items []VisibleItem, threshold float64) string {
	for _, it := range items {
		if it.IsVideo && it.VisibleFraction >= threshold {
			return it.ID
		}
	}
	return ""
}

func selectPreload(items []VisibleItem, playing string, limit int) []string {
	if playing == "" || limit <= 0 {
		return nil
	}
	var out []string
	after := false
	for _, it := range items {
		if it.ID == playing {
			after = true
			continue
		}
		if after && it.IsVideo {
			out = append(out, it.ID)
			if len(out) == limit {
				break
			}
		}
	}
	return out
}

// ItemsInWindow builds a visibility callback payload for posts[first..last],
// all fully visible.
func ItemsInWindow(posts []domain.Post, first, last int) []VisibleItem {
	if first < 0 {
		first = 0
	}
	if last >= len(posts) {
		last = len(posts) - 1
	}
	var items []VisibleItem
	for i := first; i <= last; i++ {
		items = append(items, VisibleItem{
			Index:           i,
			ID:              posts[i].ID,
			IsVideo:         posts[i].IsVideo(),
			VisibleFraction: 1,
		})
	}
	return items
}
