// Package poller drives periodic polling of the appliance and turns each
// cycle into one atomic snapshot for downstream consumers.
package poller

import (
	"time"

	"github.com/google/uuid"
)

// Status is the overall health of one snapshot.
type Status string

const (
	// StatusOk means every resource in the set was fetched successfully.
	StatusOk Status = "ok"
	// StatusDegraded means all core resources succeeded but at least one
	// optional resource failed.
	StatusDegraded Status = "degraded"
	// StatusUnavailable means a core resource failed or no session could
	// be established.
	StatusUnavailable Status = "unavailable"
)

// Snapshot is the result of one complete poll cycle. It is built privately
// by the aggregator and published as one unit: subscribers never observe a
// mix of data from different cycles.
type Snapshot struct {
	CycleID   string    `json:"cycle_id"`
	Timestamp time.Time `json:"timestamp"`
	Status    Status    `json:"status"`

	// Payloads maps resource ID to its parsed payload. A resource that
	// failed this cycle is absent here and recorded in Errors instead.
	Payloads map[string]any `json:"payloads"`
	// Errors maps resource ID to the failure that made it absent.
	Errors map[string]string `json:"errors,omitempty"`

	// AuthRequired is set when the failure is credential-level, i.e. the
	// user must reauthenticate. Distinct from a transient outage.
	AuthRequired bool `json:"auth_required,omitempty"`
}

func newSnapshot() Snapshot {
	return Snapshot{
		CycleID:   uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Payloads:  make(map[string]any),
		Errors:    make(map[string]string),
	}
}

// Placeholder returns the snapshot reported before the first cycle completes.
func Placeholder() Snapshot {
	return Snapshot{
		CycleID:   uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Status:    StatusUnavailable,
		Payloads:  map[string]any{},
		Errors:    map[string]string{"_": "no cycle completed yet"},
	}
}
