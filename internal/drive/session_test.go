package drive

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// newTestSessionManager disables login pacing so tests run instantly.
func newTestSessionManager(m *mockAppliance) *SessionManager {
	client := NewClient(m.credentials(), 5*time.Second)
	sm := NewSessionManager(client, m.credentials(), zap.NewNop())
	sm.limiter = rate.NewLimiter(rate.Inf, 0)
	return sm
}

func TestEnsureSessionLogsInOnce(t *testing.T) {
	m := newMockAppliance(t)
	sm := newTestSessionManager(m)

	for i := 0; i < 3; i++ {
		session, err := sm.EnsureSession(context.Background())
		if err != nil {
			t.Fatalf("EnsureSession() #%d error = %v", i, err)
		}
		if session.Token == "" {
			t.Fatal("EnsureSession() returned empty token")
		}
	}
	if m.loginCount != 1 {
		t.Errorf("login count = %d, want 1 (session should be reused)", m.loginCount)
	}
}

func TestInvalidateForcesRelogin(t *testing.T) {
	m := newMockAppliance(t)
	sm := newTestSessionManager(m)

	if _, err := sm.EnsureSession(context.Background()); err != nil {
		t.Fatalf("EnsureSession() error = %v", err)
	}
	sm.Invalidate()
	if _, err := sm.EnsureSession(context.Background()); err != nil {
		t.Fatalf("EnsureSession() after Invalidate error = %v", err)
	}
	if m.loginCount != 2 {
		t.Errorf("login count = %d, want 2", m.loginCount)
	}
}

func TestEnsureSessionPropagatesAuthError(t *testing.T) {
	m := newMockAppliance(t)
	m.loginStatus = 401
	sm := newTestSessionManager(m)

	_, err := sm.EnsureSession(context.Background())
	if !IsInvalidCredentials(err) {
		t.Fatalf("EnsureSession() error = %v, want invalid credentials", err)
	}

	// A failed login must not leave a usable session behind.
	m.loginStatus = 0
	if _, err := sm.EnsureSession(context.Background()); err != nil {
		t.Fatalf("EnsureSession() after recovery error = %v", err)
	}
	if m.loginCount != 2 {
		t.Errorf("login count = %d, want 2", m.loginCount)
	}
}

func TestUpdateCredentialsForcesFreshLogin(t *testing.T) {
	m := newMockAppliance(t)
	sm := newTestSessionManager(m)

	if _, err := sm.EnsureSession(context.Background()); err != nil {
		t.Fatalf("EnsureSession() error = %v", err)
	}

	m.username = "operator"
	m.password = "rotated"
	newCreds := m.credentials()
	sm.UpdateCredentials(newCreds)

	if got := sm.Credentials(); got != newCreds {
		t.Errorf("Credentials() = %+v, want %+v", got, newCreds)
	}
	if _, err := sm.EnsureSession(context.Background()); err != nil {
		t.Fatalf("EnsureSession() after credential update error = %v", err)
	}
	if m.loginCount != 2 {
		t.Errorf("login count = %d, want 2", m.loginCount)
	}
}

func TestEnsureSessionSingleFlight(t *testing.T) {
	m := newMockAppliance(t)
	sm := newTestSessionManager(m)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = sm.EnsureSession(context.Background())
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("caller %d: EnsureSession() error = %v", i, err)
		}
	}
	if m.loginCount != 1 {
		t.Errorf("login count = %d, want 1 (concurrent callers must share one login)", m.loginCount)
	}
}
