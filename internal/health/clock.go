package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/beevik/ntp"

	"swarmorch/internal/check"
)

const (
	DefaultClockInterval  = 60 * time.Second
	DefaultClockThreshold = 500 * time.Millisecond
)

// Clock provides the current time.
// Production: SystemClock
// Testing: adapter/fake.Clock
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

type ClockPhase uint8

const (
	ClockUnchecked ClockPhase = iota + 1
	ClockInSync
	ClockSkewed
	ClockQueryFailed
)

func (p ClockPhase) String() string {
	switch p {
	case ClockUnchecked:
		return "unchecked"
	case ClockInSync:
		return "in_sync"
	case ClockSkewed:
		return "skewed"
	case ClockQueryFailed:
		return "query_failed"
	default:
		return "unknown"
	}
}

// Transition moves to the next phase. Nothing returns to unchecked.
func (p ClockPhase) Transition(to ClockPhase) ClockPhase {
	ok := to != ClockUnchecked && p != 0
	check.Assertf(ok, "clock transition: %s -> %s", p, to)
	if !ok {
		return p
	}
	return to
}

type ClockStatus struct {
	Offset    time.Duration
	Phase     ClockPhase
	Error     string
	CheckedAt time.Time
}

// QueryFunc measures the local clock's offset against server.
type QueryFunc func(server string) (time.Duration, error)

// ClockChecker periodically measures the control plane's clock offset
// against an NTP server.
type ClockChecker struct {
	mu        sync.RWMutex
	status    ClockStatus
	server    string
	interval  time.Duration
	threshold time.Duration
	clock     Clock
	query     QueryFunc
}

func NewClockChecker(server string, threshold time.Duration, clock Clock) *ClockChecker {
	check.Assert(server != "", "health.NewClockChecker: server must not be empty")
	check.Assert(clock != nil, "health.NewClockChecker: clock must not be nil")
	if threshold <= 0 {
		threshold = DefaultClockThreshold
	}
	return &ClockChecker{
		status:    ClockStatus{Phase: ClockUnchecked},
		server:    server,
		interval:  DefaultClockInterval,
		threshold: threshold,
		clock:     clock,
		query:     queryNTP,
	}
}

func queryNTP(server string) (time.Duration, error) {
	resp, err := ntp.Query(server)
	if err != nil {
		return 0, err
	}
	if err := resp.Validate(); err != nil {
		return 0, err
	}
	return resp.ClockOffset, nil
}

// Run checks immediately and then on every interval until ctx is done.
func (c *ClockChecker) Run(ctx context.Context) {
	c.Check()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Check()
		}
	}
}

// Check performs one measurement.
func (c *ClockChecker) Check() {
	offset, err := c.query(c.server)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if err != nil {
		c.status = ClockStatus{
			Phase:     c.status.Phase.Transition(ClockQueryFailed),
			Error:     err.Error(),
			CheckedAt: now,
		}
		return
	}

	next := ClockSkewed
	if offset.Abs() < c.threshold {
		next = ClockInSync
	}
	c.status = ClockStatus{Offset: offset, Phase: c.status.Phase.Transition(next), CheckedAt: now}
}

func (c *ClockChecker) Status() ClockStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Problem describes a skewed clock or a failed query. An unchecked or
// in-sync clock has no problem.
func (c *ClockChecker) Problem() string {
	s := c.Status()
	switch s.Phase {
	case ClockSkewed:
		return fmt.Sprintf("control-plane clock offset %s exceeds %s", s.Offset, c.threshold)
	case ClockQueryFailed:
		return fmt.Sprintf("clock check against %s failed: %s", c.server, s.Error)
	default:
		return ""
	}
}
