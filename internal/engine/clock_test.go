package engine

import (
	"sync"
	"testing"
	"time"
)

// manualClock deixa o teste liberar cada suspensão do scheduler na mão,
// na ordem em que foram pedidas, sem dormir de verdade.
type manualClock struct {
	mu      sync.Mutex
	now     time.Time
	delays  []time.Duration
	waiters []chan time.Time
	arrived chan struct{}
}

func newManualClock() *manualClock {
	return &manualClock{
		now:     time.Unix(1_700_000_000, 0),
		arrived: make(chan struct{}, 128),
	}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.delays = append(c.delays, d)
	c.waiters = append(c.waiters, ch)
	c.mu.Unlock()
	c.arrived <- struct{}{}
	return ch
}

// fire espera o scheduler chegar na próxima suspensão e a libera.
func (c *manualClock) fire(t *testing.T) {
	t.Helper()
	select {
	case <-c.arrived:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the scheduler to sleep")
	}
	c.mu.Lock()
	ch := c.waiters[0]
	c.waiters = c.waiters[1:]
	now := c.now
	c.mu.Unlock()
	ch <- now
}

func (c *manualClock) recordedDelays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.delays))
	copy(out, c.delays)
	return out
}

func TestManualClockReleasesInOrder(t *testing.T) {
	c := newManualClock()
	first := c.After(time.Second)
	second := c.After(time.Minute)

	c.fire(t)
	select {
	case <-first:
	default:
		t.Fatal("first waiter not released")
	}
	select {
	case <-second:
		t.Fatal("second waiter released early")
	default:
	}
	c.fire(t)
	select {
	case <-second:
	default:
		t.Fatal("second waiter not released")
	}
}
