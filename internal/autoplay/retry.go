package autoplay

import (
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/qepting91/reelfeed/internal/clock"
	"github.com/qepting91/reelfeed/internal/domain"
)

// newRetryPolicy allows attempts calls in total, waiting base, 2*base, ...
// between them. Elapsed time is measured on clk.
func newRetryPolicy(clk clock.Clock, base time.Duration, attempts int) backoff.BackOff {
	if attempts < 1 {
		attempts = 1
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = base << uint(attempts)
	b.MaxElapsedTime = 0
	b.Clock = clk
	b.Reset()
	return backoff.WithMaxRetries(b, uint64(attempts-1))
}

// reportSingle calls ReportView and, after a retryable failure, arms the
// next attempt on the coordinator clock. done runs once with the final
// result unless Close drops the pending attempt first.
func (c *Coordinator) reportSingle(id string, policy backoff.BackOff, done func(error)) {
	err := c.reporter.ReportView(c.ctx, id)
	if err == nil || !errors.Is(err, domain.ErrRetryable) {
		done(err)
		return
	}
	next := policy.NextBackOff()
	if next == backoff.Stop {
		done(err)
		return
	}
	c.logger.Debug("view report failed, retrying", "id", id, "in", next, "err", err)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.retrySeq++
	seq := c.retrySeq
	c.retries[seq] = c.clock.AfterFunc(next, func() {
		c.mu.Lock()
		_, ok := c.retries[seq]
		delete(c.retries, seq)
		c.mu.Unlock()
		if ok {
			c.reportSingle(id, policy, done)
		}
	})
}
