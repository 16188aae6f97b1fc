package poller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/HerbHall/drivewatch/internal/drive"
	"go.uber.org/zap"
)

// fakeSessions scripts EnsureSession outcomes: errs are consumed one per
// call, nil entries (and calls past the script) succeed. A persistent error
// overrides the script until cleared.
type fakeSessions struct {
	mu            sync.Mutex
	ensureCalls   int
	invalidates   int
	errs          []error
	persistentErr error
}

func (f *fakeSessions) EnsureSession(_ context.Context) (*drive.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensureCalls++
	if f.persistentErr != nil {
		return nil, f.persistentErr
	}
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &drive.Session{Token: "tok", CreatedAt: time.Now()}, nil
}

func (f *fakeSessions) Invalidate() {
	f.mu.Lock()
	f.invalidates++
	f.mu.Unlock()
}

func (f *fakeSessions) counts() (ensures, invalidates int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ensureCalls, f.invalidates
}

type fetchResult struct {
	payload any
	err     error
}

// fakeFetcher pops one scripted result per fetch of a resource; calls past
// the script succeed with a canned payload.
type fakeFetcher struct {
	mu      sync.Mutex
	results map[string][]fetchResult
	calls   map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		results: make(map[string][]fetchResult),
		calls:   make(map[string]int),
	}
}

func (f *fakeFetcher) script(resource string, results ...fetchResult) {
	f.mu.Lock()
	f.results[resource] = append(f.results[resource], results...)
	f.mu.Unlock()
}

func (f *fakeFetcher) Fetch(_ context.Context, res drive.Resource) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[res.ID]++
	if queue := f.results[res.ID]; len(queue) > 0 {
		r := queue[0]
		f.results[res.ID] = queue[1:]
		return r.payload, r.err
	}
	return map[string]string{"resource": res.ID}, nil
}

func (f *fakeFetcher) callCount(resource string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[resource]
}

func testResources() []drive.Resource {
	return []drive.Resource{
		{ID: "device", Path: "/device", Core: true},
		{ID: "storage", Path: "/storage", Core: true},
		{ID: "shares", Path: "/shares"},
	}
}

func unauthorized(resource string) error {
	return &drive.FetchError{Resource: resource, Kind: drive.FetchUnauthorized, Status: 401}
}

func TestRunCycleAllOk(t *testing.T) {
	sessions := &fakeSessions{}
	fetcher := newFakeFetcher()
	agg := NewAggregator(sessions, fetcher, testResources(), zap.NewNop())

	snap := agg.RunCycle(context.Background())

	if snap.Status != StatusOk {
		t.Errorf("status = %q, want %q", snap.Status, StatusOk)
	}
	if len(snap.Payloads) != 3 {
		t.Errorf("payloads = %d, want 3", len(snap.Payloads))
	}
	if len(snap.Errors) != 0 {
		t.Errorf("errors = %v, want none", snap.Errors)
	}
	if snap.CycleID == "" {
		t.Error("cycle ID is empty")
	}
}

func TestRunCycleOptionalFailureDegrades(t *testing.T) {
	sessions := &fakeSessions{}
	fetcher := newFakeFetcher()
	fetcher.script("shares", fetchResult{err: &drive.FetchError{
		Resource: "shares", Kind: drive.FetchMalformed,
	}})
	agg := NewAggregator(sessions, fetcher, testResources(), zap.NewNop())

	snap := agg.RunCycle(context.Background())

	if snap.Status != StatusDegraded {
		t.Errorf("status = %q, want %q", snap.Status, StatusDegraded)
	}
	if _, ok := snap.Payloads["shares"]; ok {
		t.Error("failed resource present in payloads")
	}
	if _, ok := snap.Errors["shares"]; !ok {
		t.Error("failed resource missing from errors")
	}
	// Other resources are unaffected by the failure.
	if _, ok := snap.Payloads["device"]; !ok {
		t.Error("device payload missing")
	}
	if _, ok := snap.Payloads["storage"]; !ok {
		t.Error("storage payload missing")
	}
	if snap.AuthRequired {
		t.Error("AuthRequired set for a parse failure")
	}
}

func TestRunCycleCoreFailureUnavailable(t *testing.T) {
	sessions := &fakeSessions{}
	fetcher := newFakeFetcher()
	fetcher.script("device", fetchResult{err: &drive.FetchError{
		Resource: "device", Kind: drive.FetchNetwork, Status: 502,
	}})
	agg := NewAggregator(sessions, fetcher, testResources(), zap.NewNop())

	snap := agg.RunCycle(context.Background())

	if snap.Status != StatusUnavailable {
		t.Errorf("status = %q, want %q", snap.Status, StatusUnavailable)
	}
	// Remaining resources are still fetched: per-resource isolation.
	if fetcher.callCount("storage") != 1 || fetcher.callCount("shares") != 1 {
		t.Error("core failure aborted the remaining fetches")
	}
}

func TestRunCycleReloginRecovers(t *testing.T) {
	sessions := &fakeSessions{}
	fetcher := newFakeFetcher()
	fetcher.script("storage", fetchResult{err: unauthorized("storage")})
	agg := NewAggregator(sessions, fetcher, testResources(), zap.NewNop())

	snap := agg.RunCycle(context.Background())

	if snap.Status != StatusOk {
		t.Errorf("status = %q, want %q", snap.Status, StatusOk)
	}
	ensures, invalidates := sessions.counts()
	if ensures != 2 {
		t.Errorf("EnsureSession calls = %d, want 2 (initial + one re-login)", ensures)
	}
	if invalidates != 1 {
		t.Errorf("Invalidate calls = %d, want 1", invalidates)
	}
	if fetcher.callCount("storage") != 2 {
		t.Errorf("storage fetches = %d, want 2 (failed then retried)", fetcher.callCount("storage"))
	}
	// The resource fetched before the auth failure is kept, not refetched.
	if fetcher.callCount("device") != 1 {
		t.Errorf("device fetches = %d, want 1", fetcher.callCount("device"))
	}
	if len(snap.Payloads) != 3 {
		t.Errorf("payloads = %d, want 3", len(snap.Payloads))
	}
}

func TestRunCycleSecondUnauthorizedTerminal(t *testing.T) {
	sessions := &fakeSessions{}
	fetcher := newFakeFetcher()
	fetcher.script("device", fetchResult{err: unauthorized("device")})
	fetcher.script("storage", fetchResult{err: unauthorized("storage")})
	agg := NewAggregator(sessions, fetcher, testResources(), zap.NewNop())

	snap := agg.RunCycle(context.Background())

	if snap.Status != StatusUnavailable {
		t.Errorf("status = %q, want %q", snap.Status, StatusUnavailable)
	}
	if !snap.AuthRequired {
		t.Error("AuthRequired = false, want true after second auth failure")
	}
	ensures, _ := sessions.counts()
	if ensures != 2 {
		t.Errorf("EnsureSession calls = %d, want 2 (never more than one re-login per cycle)", ensures)
	}
	// The cycle ends at the second auth failure.
	if fetcher.callCount("shares") != 0 {
		t.Error("fetching continued past the terminal auth failure")
	}
}

func TestRunCycleSessionFailureSkipsFetches(t *testing.T) {
	sessions := &fakeSessions{errs: []error{
		&drive.AuthError{Kind: drive.AuthNetwork},
	}}
	fetcher := newFakeFetcher()
	agg := NewAggregator(sessions, fetcher, testResources(), zap.NewNop())

	snap := agg.RunCycle(context.Background())

	if snap.Status != StatusUnavailable {
		t.Errorf("status = %q, want %q", snap.Status, StatusUnavailable)
	}
	if snap.AuthRequired {
		t.Error("AuthRequired set for a network failure")
	}
	for id, n := range fetcher.calls {
		if n != 0 {
			t.Errorf("resource %s fetched %d times without a session", id, n)
		}
	}
}

func TestRunCycleInvalidCredentialsSetsAuthRequired(t *testing.T) {
	sessions := &fakeSessions{errs: []error{
		&drive.AuthError{Kind: drive.AuthInvalidCredentials, Status: 401},
	}}
	fetcher := newFakeFetcher()
	agg := NewAggregator(sessions, fetcher, testResources(), zap.NewNop())

	snap := agg.RunCycle(context.Background())

	if snap.Status != StatusUnavailable {
		t.Errorf("status = %q, want %q", snap.Status, StatusUnavailable)
	}
	if !snap.AuthRequired {
		t.Error("AuthRequired = false, want true for rejected credentials")
	}
}

func TestRunCycleReloginFailureUnavailable(t *testing.T) {
	sessions := &fakeSessions{errs: []error{
		nil, // initial session succeeds
		&drive.AuthError{Kind: drive.AuthInvalidCredentials, Status: 403},
	}}
	fetcher := newFakeFetcher()
	fetcher.script("storage", fetchResult{err: unauthorized("storage")})
	agg := NewAggregator(sessions, fetcher, testResources(), zap.NewNop())

	snap := agg.RunCycle(context.Background())

	if snap.Status != StatusUnavailable {
		t.Errorf("status = %q, want %q", snap.Status, StatusUnavailable)
	}
	if !snap.AuthRequired {
		t.Error("AuthRequired = false, want true when re-login is rejected")
	}
}
