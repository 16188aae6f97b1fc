package drive

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"
)

const (
	csrfPath  = "/api/auth/csrf"
	loginPath = "/api/auth/login"

	userAgent = "drivewatch/0.1"

	csrfHeader = "X-Csrf-Token"
)

// Credentials identify one appliance login. They are replaced wholesale on
// update, never mutated in place.
type Credentials struct {
	Host      string
	Username  string
	Password  string
	VerifyTLS bool
}

// Validate checks that the credential fields required for login are present.
func (c Credentials) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("credentials: host is required")
	}
	if c.Username == "" {
		return fmt.Errorf("credentials: username is required")
	}
	if c.Password == "" {
		return fmt.Errorf("credentials: password is required")
	}
	return nil
}

// BaseURL normalizes the host into a full https base URL.
func (c Credentials) BaseURL() string {
	host := strings.TrimRight(c.Host, "/")
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "https://" + host
	}
	return host
}

// Session is the authenticated transport state: the cookie jar held by the
// client plus the CSRF token echoed on every request. Both are set together
// on successful login or not at all.
type Session struct {
	Token     string
	CreatedAt time.Time
}

// Client wraps the UniFi Drive local REST API. Login installs a fresh cookie
// jar and CSRF token; Fetch performs one authenticated read.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration

	mu      sync.Mutex
	baseURL string
	token   string
}

// NewClient creates a client for the given credentials. The TLS-verify flag
// comes from configuration; most appliances ship self-signed certificates.
func NewClient(creds Credentials, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	c := &Client{timeout: timeout}
	c.configure(creds)
	return c
}

// configure rebuilds the transport for a credential set. The cookie jar is
// replaced so no stale session cookie survives a credential change.
func (c *Client) configure(creds Credentials) {
	jar, _ := cookiejar.New(nil)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseURL = creds.BaseURL()
	c.token = ""
	c.httpClient = &http.Client{
		Timeout: c.timeout,
		Jar:     jar,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				MinVersion:         tls.VersionTLS12,
				InsecureSkipVerify: !creds.VerifyTLS, //nolint:gosec // G402: appliances use self-signed certs; verify_tls opts in
			},
		},
	}
}

// Login performs the two-step CSRF login protocol and returns the new
// session. A failed login leaves no partial state behind: the token is only
// stored alongside the cookie the appliance set.
func (c *Client) Login(ctx context.Context, creds Credentials) (*Session, error) {
	if err := creds.Validate(); err != nil {
		return nil, &AuthError{Kind: AuthProtocol, Err: err}
	}
	c.configure(creds)

	token, err := c.fetchCSRF(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(map[string]string{
		"username": creds.Username,
		"password": creds.Password,
	})
	if err != nil {
		return nil, &AuthError{Kind: AuthProtocol, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base()+loginPath, bytes.NewReader(payload))
	if err != nil {
		return nil, &AuthError{Kind: AuthProtocol, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(csrfHeader, token)

	resp, err := c.client().Do(req)
	if err != nil {
		return nil, &AuthError{Kind: AuthNetwork, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &AuthError{Kind: AuthRateLimited, Status: resp.StatusCode}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &AuthError{Kind: AuthInvalidCredentials, Status: resp.StatusCode}
	case resp.StatusCode >= 500:
		return nil, &AuthError{Kind: AuthNetwork, Status: resp.StatusCode}
	case resp.StatusCode >= 400:
		return nil, &AuthError{Kind: AuthProtocol, Status: resp.StatusCode}
	}

	// Some firmware rotates the token on login.
	if t := resp.Header.Get(csrfHeader); t != "" {
		token = t
	}

	c.mu.Lock()
	c.token = token
	c.mu.Unlock()

	return &Session{Token: token, CreatedAt: time.Now().UTC()}, nil
}

// fetchCSRF bootstraps the CSRF token from the csrf endpoint. The token
// arrives either as a response header or as a csrfToken JSON field.
func (c *Client) fetchCSRF(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base()+csrfPath, http.NoBody)
	if err != nil {
		return "", &AuthError{Kind: AuthProtocol, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client().Do(req)
	if err != nil {
		return "", &AuthError{Kind: AuthNetwork, Err: err}
	}
	defer resp.Body.Close()

	if t := resp.Header.Get(csrfHeader); t != "" {
		return t, nil
	}

	var body struct {
		CSRFToken string `json:"csrfToken"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err == nil && body.CSRFToken != "" {
		return body.CSRFToken, nil
	}

	return "", &AuthError{
		Kind: AuthProtocol,
		Err:  fmt.Errorf("no CSRF token in %s response (HTTP %d)", csrfPath, resp.StatusCode),
	}
}

// Fetch issues one logical read against a resource and parses the body.
func (c *Client) Fetch(ctx context.Context, res Resource) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base()+res.Path, http.NoBody)
	if err != nil {
		return nil, &FetchError{Resource: res.ID, Kind: FetchNetwork, Err: err}
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("User-Agent", userAgent)
	if t := c.Token(); t != "" {
		req.Header.Set(csrfHeader, t)
	}

	resp, err := c.client().Do(req)
	if err != nil {
		kind := FetchNetwork
		if isTimeout(err) {
			kind = FetchTimeout
		}
		return nil, &FetchError{Resource: res.ID, Kind: kind, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &FetchError{Resource: res.ID, Kind: FetchUnauthorized, Status: resp.StatusCode}
	case resp.StatusCode == http.StatusNotFound:
		return nil, &FetchError{Resource: res.ID, Kind: FetchNotFound, Status: resp.StatusCode}
	case resp.StatusCode >= 400:
		return nil, &FetchError{Resource: res.ID, Kind: FetchNetwork, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, &FetchError{Resource: res.ID, Kind: FetchNetwork, Err: err}
	}

	payload, err := res.Parse(body)
	if err != nil {
		// Schema drift from firmware updates. The resource is reported
		// absent rather than surfacing garbage data.
		return nil, &FetchError{Resource: res.ID, Kind: FetchMalformed, Err: err}
	}
	return payload, nil
}

// Token returns the current CSRF token, empty before the first login.
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// client returns the current transport. Login swaps it atomically when
// credentials change.
func (c *Client) client() *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.httpClient
}

func (c *Client) base() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.baseURL
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
