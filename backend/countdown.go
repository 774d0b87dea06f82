package backend

import (
	"context"
	"sync"
	"time"

	log "gopkg.in/inconshreveable/log15.v2"
)

// defaultReleaseDelay is the countdown target used when no release is scheduled.
const defaultReleaseDelay = 24 * time.Hour

const countdownInterval = time.Second

// ReleaseCountdown is the time left until the next scheduled release.
type ReleaseCountdown struct {
	Target    time.Time     `json:"target"`
	Remaining TimeRemaining `json:"remaining"`
	Elapsed   bool          `json:"elapsed"`
}

// Countdown tracks the next release and the release countdowns of upcoming loaded products.
type Countdown struct {
	source   ProductSource
	products func() []Product
	logger   log.Logger

	mutex        sync.Mutex
	target       time.Time
	hasTarget    bool
	remaining    TimeRemaining
	crossed      bool // a refetch has been issued for target
	productTimes map[int32]TimeRemaining
}

// NewCountdown creates a Countdown. products is called on every tick to get the currently loaded products.
func NewCountdown(source ProductSource, products func() []Product, logger log.Logger) *Countdown {
	return &Countdown{
		source:       source,
		products:     products,
		logger:       logger,
		productTimes: make(map[int32]TimeRemaining),
	}
}

// RefreshTarget fetches the next release after now and makes it the countdown target. When nothing is
// scheduled the target is now + 24h. On failure the old target is kept and is not refetched again.
func (c *Countdown) RefreshTarget(ctx context.Context, now time.Time) {
	next, ok, err := c.source.NextReleaseTime(ctx, now)

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if err != nil {
		c.logger.Error("Error fetching next release", "error", err)
		return
	}
	if !ok {
		next = now.Add(defaultReleaseDelay)
	}

	c.target = next
	c.hasTarget = true
	c.remaining = TimeRemainingUntil(next, now)
	c.crossed = false
}

// Tick recomputes all countdowns as of now. When the release target has been reached it refetches the next
// release once for that crossing.
func (c *Countdown) Tick(ctx context.Context, now time.Time) {
	times := make(map[int32]TimeRemaining)
	for _, p := range c.products() {
		if p.IsUpcoming(now) {
			times[p.ID] = TimeRemainingUntil(*p.ReleaseTime, now)
		}
	}

	c.mutex.Lock()
	c.productTimes = times
	refetch := false
	if c.hasTarget {
		c.remaining = TimeRemainingUntil(c.target, now)
		if c.remaining.IsElapsed() && !c.crossed {
			c.crossed = true
			refetch = true
		}
	}
	c.mutex.Unlock()

	if refetch {
		c.RefreshTarget(ctx, now)
	}
}

// Run calls Tick every second until ctx is canceled.
func (c *Countdown) Run(ctx context.Context) {
	ticker := time.NewTicker(countdownInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			c.Tick(ctx, t)
		}
	}
}

// Release returns the next release countdown. Remaining is reported as zero once the target is reached.
func (c *Countdown) Release() (ReleaseCountdown, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.hasTarget {
		return ReleaseCountdown{}, false
	}

	rc := ReleaseCountdown{Target: c.target, Remaining: c.remaining}
	if c.remaining.IsElapsed() {
		rc.Remaining = TimeRemaining{}
		rc.Elapsed = true
	}
	return rc, true
}

// ProductTimes returns a copy of the per-product countdowns.
func (c *Countdown) ProductTimes() map[int32]TimeRemaining {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	times := make(map[int32]TimeRemaining, len(c.productTimes))
	for id, tr := range c.productTimes {
		times[id] = tr
	}
	return times
}
