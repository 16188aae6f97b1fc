package drive

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// loginInterval paces login attempts. The appliance rate-limits its login
// endpoint with HTTP 429, so back-to-back re-logins across cycles must wait.
const loginInterval = 5 * time.Second

// SessionManager owns the authenticated transport state. It is the only
// component that logs in or marks the session invalid; the aggregator and
// fetcher treat the session as read-only within a cycle.
type SessionManager struct {
	client  *Client
	limiter *rate.Limiter
	logger  *zap.Logger

	mu         sync.Mutex
	creds      Credentials
	session    *Session
	valid      bool
	refreshing chan struct{} // non-nil while a login is in flight
}

// NewSessionManager creates a manager around the given client and initial
// credentials.
func NewSessionManager(client *Client, creds Credentials, logger *zap.Logger) *SessionManager {
	return &SessionManager{
		client:  client,
		limiter: rate.NewLimiter(rate.Every(loginInterval), 1),
		logger:  logger,
		creds:   creds,
	}
}

// EnsureSession returns a currently valid session, logging in if none exists
// or the held one was invalidated. Concurrent callers that find a refresh in
// flight await its completion instead of issuing duplicate login calls.
func (m *SessionManager) EnsureSession(ctx context.Context) (*Session, error) {
	for {
		m.mu.Lock()
		if m.valid && m.session != nil {
			s := m.session
			m.mu.Unlock()
			return s, nil
		}
		if m.refreshing != nil {
			done := m.refreshing
			m.mu.Unlock()
			select {
			case <-done:
			case <-ctx.Done():
				return nil, &AuthError{Kind: AuthNetwork, Err: ctx.Err()}
			}
			// Re-check: the refresh may have failed.
			m.mu.Lock()
			if m.valid && m.session != nil {
				s := m.session
				m.mu.Unlock()
				return s, nil
			}
			m.mu.Unlock()
			return nil, &AuthError{Kind: AuthNetwork, Err: errRefreshFailed}
		}

		done := make(chan struct{})
		m.refreshing = done
		creds := m.creds
		m.mu.Unlock()

		session, err := m.login(ctx, creds)

		m.mu.Lock()
		m.refreshing = nil
		close(done)
		if err != nil {
			m.mu.Unlock()
			return nil, err
		}
		// A credential update that raced the login wins: the session we
		// just created belongs to the old credentials.
		if m.creds != creds {
			m.mu.Unlock()
			continue
		}
		m.session = session
		m.valid = true
		m.mu.Unlock()
		return session, nil
	}
}

var errRefreshFailed = &refreshFailedError{}

type refreshFailedError struct{}

func (*refreshFailedError) Error() string { return "session refresh by another caller failed" }

func (m *SessionManager) login(ctx context.Context, creds Credentials) (*Session, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, &AuthError{Kind: AuthNetwork, Err: err}
	}

	start := time.Now()
	session, err := m.client.Login(ctx, creds)
	if err != nil {
		m.logger.Warn("appliance login failed",
			zap.String("host", creds.Host),
			zap.String("username", creds.Username),
			zap.Error(err),
		)
		return nil, err
	}

	m.logger.Info("appliance login succeeded",
		zap.String("host", creds.Host),
		zap.Duration("duration", time.Since(start)),
	)
	return session, nil
}

// Invalidate marks the held session invalid without touching credentials.
// Called when a fetch reports an auth-failure response.
func (m *SessionManager) Invalidate() {
	m.mu.Lock()
	m.valid = false
	m.mu.Unlock()
}

// UpdateCredentials swaps the credential set atomically and forces the next
// EnsureSession to perform a fresh login. A cycle already in flight keeps
// using the session it started with.
func (m *SessionManager) UpdateCredentials(creds Credentials) {
	m.mu.Lock()
	m.creds = creds
	m.valid = false
	m.session = nil
	m.mu.Unlock()
	m.logger.Info("credentials updated, next cycle will re-login",
		zap.String("host", creds.Host),
		zap.String("username", creds.Username),
	)
}

// Credentials returns the current credential set.
func (m *SessionManager) Credentials() Credentials {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creds
}
