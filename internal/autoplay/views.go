package autoplay

import (
	"time"

	"github.com/qepting91/reelfeed/internal/clock"
)

type dwellTimer struct {
	index int
	seq   int
	timer clock.Timer
}

func (c *Coordinator) armDwellLocked(it VisibleItem) {
	if _, ok := c.dwell[it.ID]; ok {
		return
	}
	c.dwellSeq++
	seq := c.dwellSeq
	id := it.ID
	c.dwell[id] = &dwellTimer{
		index: it.Index,
		seq:   seq,
		timer: c.clock.AfterFunc(c.cfg.DwellDelay, func() { c.dwellFired(id, seq) }),
	}
	c.metrics.PendingTimers.Set(float64(len(c.dwell)))
}

// cancelFarTimersLocked drops dwell timers of items more than
// CleanupDistance slots outside the visible window [lo, hi].
func (c *Coordinator) cancelFarTimersLocked(lo, hi int) {
	for id, d := range c.dwell {
		if d.index < lo-c.cfg.CleanupDistance || d.index > hi+c.cfg.CleanupDistance {
			d.timer.Stop()
			delete(c.dwell, id)
		}
	}
	c.metrics.PendingTimers.Set(float64(len(c.dwell)))
}

func (c *Coordinator) dwellFired(id string, seq int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.dwell[id]
	if c.closed || !ok || d.seq != seq {
		return
	}
	delete(c.dwell, id)
	c.metrics.PendingTimers.Set(float64(len(c.dwell)))

	if !c.pendingSet[id] {
		c.pendingSet[id] = true
		c.pending = append(c.pending, id)
	}
	if c.flush != nil {
		c.flush.Stop()
	}
	c.flushSeq++
	fseq := c.flushSeq
	c.flush = c.clock.AfterFunc(c.cfg.FlushDelay, func() { c.flushViews(fseq) })
}

func (c *Coordinator) flushViews(seq int) {
	c.mu.Lock()
	if c.closed || seq != c.flushSeq {
		c.mu.Unlock()
		return
	}
	c.flush = nil
	now := c.clock.Now()
	c.purgeSessionsLocked(now)

	var due []string
	for _, id := range c.pending {
		if last, ok := c.sessions[id]; ok && now.Sub(last) < c.cfg.SessionWindow {
			c.metrics.ViewsDeduped.Inc()
			continue
		}
		c.sessions[id] = now
		due = append(due, id)
	}
	c.pending = nil
	c.pendingSet = make(map[string]bool)
	hook := c.onReported
	c.mu.Unlock()

	if len(due) == 0 {
		return
	}
	if len(due) == 1 {
		policy := newRetryPolicy(c.clock, c.cfg.RetryBaseDelay, c.cfg.RetryAttempts)
		c.reportSingle(due[0], policy, func(err error) { c.delivered(due, "single", err, hook) })
		return
	}
	c.delivered(due, "batch", c.reporter.ReportViews(c.ctx, due), hook)
}

func (c *Coordinator) delivered(ids []string, kind string, err error, hook func([]string)) {
	if err != nil {
		c.metrics.ReportFailures.WithLabelValues(kind).Inc()
		c.logger.Warn("view report dropped", "ids", ids, "err", err)
		return
	}
	c.metrics.ViewsReported.Add(float64(len(ids)))
	if hook != nil {
		hook(ids)
	}
}

func (c *Coordinator) purgeSessionsLocked(now time.Time) {
	for id, last := range c.sessions {
		if now.Sub(last) > c.cfg.CleanupHorizon {
			delete(c.sessions, id)
		}
	}
}

// ClearSession forgets every counted view so each post can be reported
// again.
func (c *Coordinator) ClearSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions = make(map[string]time.Time)
}
