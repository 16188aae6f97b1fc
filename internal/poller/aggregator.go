package poller

import (
	"context"
	"errors"

	"github.com/HerbHall/drivewatch/internal/drive"
	"go.uber.org/zap"
)

// Fetcher reads one resource using the current session.
// Implemented by *drive.Client.
type Fetcher interface {
	Fetch(ctx context.Context, res drive.Resource) (any, error)
}

// Sessions is the slice of the session manager the aggregator needs.
type Sessions interface {
	EnsureSession(ctx context.Context) (*drive.Session, error)
	Invalidate()
}

// Aggregator runs one poll cycle: session check, fan-out over the resource
// set, merge into a snapshot. It owns snapshot construction for the duration
// of the cycle; nothing partial ever escapes.
type Aggregator struct {
	sessions  Sessions
	fetcher   Fetcher
	resources []drive.Resource
	logger    *zap.Logger
}

// NewAggregator creates an aggregator over the given resource set. Resources
// must be ordered core-first (drive.DefaultResources already is).
func NewAggregator(sessions Sessions, fetcher Fetcher, resources []drive.Resource, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		sessions:  sessions,
		fetcher:   fetcher,
		resources: resources,
		logger:    logger,
	}
}

// RunCycle executes one complete cycle and returns the snapshot. It never
// returns an error: every failure mode is folded into the snapshot status.
//
// Re-authentication policy: the first Unauthorized this cycle invalidates
// the session and performs exactly one re-login; already-fetched resources
// are kept and the failed resource is retried. A second Unauthorized in the
// same cycle is terminal (credentials are gone, not a token race).
func (a *Aggregator) RunCycle(ctx context.Context) Snapshot {
	snap := newSnapshot()

	if _, err := a.sessions.EnsureSession(ctx); err != nil {
		return a.unavailable(snap, "session", err)
	}

	reloggedIn := false
	coreFailed := false
	optionalFailed := false

	for i := 0; i < len(a.resources); i++ {
		if ctx.Err() != nil {
			return a.unavailable(snap, "cycle", ctx.Err())
		}

		res := a.resources[i]
		payload, err := a.fetcher.Fetch(ctx, res)
		if err == nil {
			snap.Payloads[res.ID] = payload
			delete(snap.Errors, res.ID)
			continue
		}

		if drive.IsUnauthorized(err) {
			if reloggedIn {
				// Second auth failure in one cycle: credentials were
				// revoked or changed, not a transient token race.
				snap.Errors[res.ID] = err.Error()
				snap.Status = StatusUnavailable
				snap.AuthRequired = true
				a.logger.Warn("second auth failure in cycle, giving up",
					zap.String("cycle_id", snap.CycleID),
					zap.String("resource", res.ID),
				)
				return snap
			}
			reloggedIn = true
			reloginsTotal.Inc()
			a.sessions.Invalidate()
			if _, err := a.sessions.EnsureSession(ctx); err != nil {
				return a.unavailable(snap, res.ID, err)
			}
			i-- // retry this resource with the fresh session
			continue
		}

		// Per-resource isolation: one bad endpoint never aborts the rest.
		resourceFailures.WithLabelValues(res.ID).Inc()
		snap.Errors[res.ID] = err.Error()
		if res.Core {
			coreFailed = true
		} else {
			optionalFailed = true
		}
		a.logger.Debug("resource fetch failed",
			zap.String("cycle_id", snap.CycleID),
			zap.String("resource", res.ID),
			zap.Bool("core", res.Core),
			zap.Error(err),
		)
	}

	switch {
	case coreFailed:
		snap.Status = StatusUnavailable
	case optionalFailed:
		snap.Status = StatusDegraded
	default:
		snap.Status = StatusOk
	}
	return snap
}

// unavailable finalizes a snapshot that could not complete its fetches.
func (a *Aggregator) unavailable(snap Snapshot, key string, err error) Snapshot {
	snap.Status = StatusUnavailable
	snap.Errors[key] = err.Error()
	snap.AuthRequired = drive.IsInvalidCredentials(err)

	var ae *drive.AuthError
	if errors.As(err, &ae) {
		a.logger.Warn("cycle unavailable",
			zap.String("cycle_id", snap.CycleID),
			zap.String("kind", string(ae.Kind)),
			zap.Error(err),
		)
	} else {
		a.logger.Warn("cycle unavailable",
			zap.String("cycle_id", snap.CycleID),
			zap.Error(err),
		)
	}
	return snap
}
