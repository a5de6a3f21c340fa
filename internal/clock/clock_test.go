package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStubClockFiresInDeadlineOrder(t *testing.T) {
	c := NewStubClock()
	start := c.Now()

	var fired []string
	c.AfterFunc(300*time.Millisecond, func() { fired = append(fired, "c") })
	c.AfterFunc(100*time.Millisecond, func() { fired = append(fired, "a") })
	c.AfterFunc(100*time.Millisecond, func() { fired = append(fired, "b") })
	require.Equal(t, 3, c.Pending())

	c.Advance(200 * time.Millisecond)
	require.Equal(t, []string{"a", "b"}, fired)
	require.Equal(t, start.Add(200*time.Millisecond), c.Now())

	c.Advance(100 * time.Millisecond)
	require.Equal(t, []string{"a", "b", "c"}, fired)
	require.Zero(t, c.Pending())
}

func TestStubClockStop(t *testing.T) {
	c := NewStubClock()
	fired := false
	tm := c.AfterFunc(time.Second, func() { fired = true })

	require.True(t, tm.Stop())
	require.False(t, tm.Stop())
	c.Advance(2 * time.Second)
	require.False(t, fired)
}

func TestStubClockTimersArmedByCallbacks(t *testing.T) {
	c := NewStubClock()
	var at []time.Duration
	start := c.Now()

	c.AfterFunc(100*time.Millisecond, func() {
		at = append(at, c.Now().Sub(start))
		c.AfterFunc(100*time.Millisecond, func() { at = append(at, c.Now().Sub(start)) })
		c.AfterFunc(time.Second, func() { at = append(at, c.Now().Sub(start)) })
	})

	c.Advance(500 * time.Millisecond)
	require.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, at)
	require.Equal(t, 1, c.Pending())
}

func TestRealClock(t *testing.T) {
	c := NewRealClock()
	done := make(chan struct{})
	c.AfterFunc(time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
	require.WithinDuration(t, time.Now(), c.Now(), time.Second)
}
