package host

import (
	"sync"
	"time"
)

// TimeSource supplies wall-clock time to the host.
type TimeSource interface {
	Now() time.Time
}

// SystemTime reads the system clock.
type SystemTime struct{}

// Now returns time.Now.
func (SystemTime) Now() time.Time {
	return time.Now()
}

// Clock assigns ledger sequences and ledger timestamps.
//
// Sequences start at 1 and increase by one per applied transaction.
// Timestamps are unix seconds from the TimeSource, clamped so that they
// never go backwards even if the wall clock does.
//
// Safe for concurrent use; in practice only Run advances it.
type Clock struct {
	mu        sync.Mutex
	ledger    int64
	timestamp uint64
}

// NewClock returns a clock whose first Next returns ledger 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt resumes a clock after ledger with the given last timestamp.
func NewClockAt(ledger int64, timestamp uint64) *Clock {
	return &Clock{ledger: ledger, timestamp: timestamp}
}

// Next advances to the next ledger and stamps it with now, clamped to the
// last timestamp.
func (c *Clock) Next(now time.Time) (ledger int64, timestamp uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ledger++
	if s := now.Unix(); s > 0 && uint64(s) > c.timestamp {
		c.timestamp = uint64(s)
	}
	return c.ledger, c.timestamp
}

// Current returns the last assigned ledger and timestamp.
func (c *Clock) Current() (ledger int64, timestamp uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ledger, c.timestamp
}

// Observe moves the clock forward to a ledger applied elsewhere, such as
// a logged transaction during restore.
func (c *Clock) Observe(ledger int64, timestamp uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ledger > c.ledger {
		c.ledger = ledger
	}
	if timestamp > c.timestamp {
		c.timestamp = timestamp
	}
}
