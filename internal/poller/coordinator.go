package poller

import (
	"context"
	"sync"
	"time"

	"github.com/HerbHall/drivewatch/internal/drive"
	"github.com/HerbHall/drivewatch/internal/event"
	"go.uber.org/zap"
)

// DefaultInterval is the poll cadence when none is configured.
const DefaultInterval = 30 * time.Second

// backoffBase seeds the exponential backoff applied after an Unavailable
// cycle. The backoff doubles per consecutive failure and is capped at the
// poll interval, so a flapping appliance is never polled faster than usual
// and never slower than one interval.
const backoffBase = 2 * time.Second

// CredentialUpdater is the slice of the session manager the coordinator
// exposes to the configuration layer.
type CredentialUpdater interface {
	UpdateCredentials(creds drive.Credentials)
}

// Coordinator owns the poll loop: it triggers cycles on a fixed interval,
// enforces the single-in-flight-cycle invariant, and publishes every
// completed snapshot on the event bus. It is an explicitly owned object with
// Start/Stop lifecycle; multiple independent appliances get one each.
type Coordinator struct {
	agg    *Aggregator
	creds  CredentialUpdater
	bus    *event.Bus
	logger *zap.Logger

	mu           sync.Mutex
	interval     time.Duration
	last         Snapshot
	hasLast      bool
	polling      bool
	reauthRaised bool
	backoff      time.Duration

	refreshCh chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewCoordinator creates a coordinator around the aggregator. interval <= 0
// selects DefaultInterval.
func NewCoordinator(agg *Aggregator, creds CredentialUpdater, bus *event.Bus, interval time.Duration, logger *zap.Logger) *Coordinator {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Coordinator{
		agg:       agg,
		creds:     creds,
		bus:       bus,
		logger:    logger,
		interval:  interval,
		refreshCh: make(chan struct{}, 1),
	}
}

// Start begins the polling loop. Returns immediately; the first cycle runs
// right away.
func (c *Coordinator) Start(ctx context.Context) {
	c.ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		c.runCycle()

		timer := time.NewTimer(c.nextWait())
		defer timer.Stop()

		for {
			select {
			case <-c.ctx.Done():
				return
			case <-c.refreshCh:
				c.runCycle()
			case <-timer.C:
				c.runCycle()
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(c.nextWait())
		}
	}()
}

// Stop cancels the loop and waits for it. An in-flight cycle is abandoned:
// its snapshot is never published.
func (c *Coordinator) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

// RequestRefresh asks for a cycle outside the normal timer. Subject to the
// same mutual-exclusion rule; redundant requests coalesce.
func (c *Coordinator) RequestRefresh() {
	select {
	case c.refreshCh <- struct{}{}:
	default:
	}
}

// UpdateInterval changes the poll cadence. Takes effect when the next tick
// is scheduled, never mid-cycle.
func (c *Coordinator) UpdateInterval(interval time.Duration) {
	if interval <= 0 {
		return
	}
	c.mu.Lock()
	c.interval = interval
	c.mu.Unlock()
	c.logger.Info("poll interval updated", zap.Duration("interval", interval))
}

// UpdateCredentials swaps credentials on the session manager and re-arms the
// reauthentication signal so a renewed failure is reported again.
func (c *Coordinator) UpdateCredentials(creds drive.Credentials) {
	c.creds.UpdateCredentials(creds)
	c.mu.Lock()
	c.reauthRaised = false
	c.backoff = 0
	c.mu.Unlock()
	c.RequestRefresh()
}

// LastSnapshot returns the most recently published snapshot, or an
// Unavailable placeholder before the first cycle completes.
func (c *Coordinator) LastSnapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasLast {
		return Placeholder()
	}
	return c.last
}

// Subscribe registers a callback invoked with each published snapshot.
// Returns an unsubscribe function.
func (c *Coordinator) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	return c.bus.Subscribe(event.TopicSnapshotPublished, func(_ context.Context, e event.Event) {
		if snap, ok := e.Payload.(Snapshot); ok {
			fn(snap)
		}
	})
}

// runCycle executes one cycle unless another is already in flight.
func (c *Coordinator) runCycle() {
	c.mu.Lock()
	if c.polling {
		c.mu.Unlock()
		c.logger.Debug("cycle already in flight, trigger dropped")
		return
	}
	c.polling = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.polling = false
		c.mu.Unlock()
	}()

	start := time.Now()
	snap := c.agg.RunCycle(c.ctx)

	if c.ctx.Err() != nil {
		// Teardown while the cycle was suspended: abandon, publish nothing.
		c.logger.Debug("cycle abandoned on shutdown", zap.String("cycle_id", snap.CycleID))
		return
	}

	cyclesTotal.WithLabelValues(string(snap.Status)).Inc()
	cycleDuration.Observe(time.Since(start).Seconds())

	c.mu.Lock()
	c.last = snap
	c.hasLast = true

	raiseReauth := snap.AuthRequired && !c.reauthRaised
	if snap.AuthRequired {
		c.reauthRaised = true
	} else if snap.Status != StatusUnavailable {
		c.reauthRaised = false
	}

	if snap.Status == StatusUnavailable {
		if c.backoff == 0 {
			c.backoff = backoffBase
		} else if c.backoff < c.interval {
			c.backoff *= 2
		}
	} else {
		c.backoff = 0
	}
	c.mu.Unlock()

	c.logger.Info("cycle completed",
		zap.String("cycle_id", snap.CycleID),
		zap.String("status", string(snap.Status)),
		zap.Duration("duration", time.Since(start)),
		zap.Int("resources", len(snap.Payloads)),
		zap.Int("failures", len(snap.Errors)),
	)

	// Publish unconditionally, Unavailable included, so subscribers can
	// represent "no data" explicitly.
	c.bus.Publish(c.ctx, event.Event{Topic: event.TopicSnapshotPublished, Payload: snap})

	if raiseReauth {
		c.logger.Warn("reauthentication required", zap.String("cycle_id", snap.CycleID))
		c.bus.Publish(c.ctx, event.Event{Topic: event.TopicReauthRequired, Payload: snap})
	}
}

// nextWait picks the delay before the next automatic cycle: the configured
// interval, shortened by the failure backoff when the appliance is down.
func (c *Coordinator) nextWait() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.backoff > 0 && c.backoff < c.interval {
		return c.backoff
	}
	return c.interval
}
