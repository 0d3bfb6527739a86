package clustering

import (
	"sync"
	"time"
)

// clock is the logical cluster time: the local clock shifted by the offset
// to the oldest member, learned during push/pull exchanges with it. The
// oldest member runs on its own clock, so all members converge on it.
type clock struct {
	mut    sync.RWMutex
	offset time.Duration
	now    func() time.Time
}

func newClock() *clock {
	return &clock{now: time.Now}
}

func (c *clock) Now() time.Time {
	c.mut.RLock()
	defer c.mut.RUnlock()

	return c.now().Add(c.offset)
}

func (c *clock) Offset() time.Duration {
	c.mut.RLock()
	defer c.mut.RUnlock()

	return c.offset
}

// sync adjusts the offset so that Now matches the remote cluster time.
func (c *clock) sync(remote time.Time) {
	c.mut.Lock()
	defer c.mut.Unlock()

	c.offset = remote.Sub(c.now())
}

func (c *clock) reset() {
	c.mut.Lock()
	defer c.mut.Unlock()

	c.offset = 0
}
