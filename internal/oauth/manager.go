package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// Google OAuth endpoints
	AuthURL  = "https://accounts.google.com/o/oauth2/v2/auth"
	TokenURL = "https://oauth2.googleapis.com/token"
)

// DefaultScopes are the scopes a pooled Google credential is expected to carry.
var DefaultScopes = []string{
	"https://www.googleapis.com/auth/cloud-platform",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
}

// ForbiddenError marks a refresh failure the pool should treat as permanent
// (the refresh token itself was revoked or the credential was disabled),
// as opposed to a transient network/5xx failure worth retrying later.
type ForbiddenError struct {
	StatusCode int
	Body       string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("oauth token refresh forbidden: status=%d body=%s", e.StatusCode, e.Body)
}

// Manager refreshes previously-issued OAuth2 credentials. Unlike a full
// authorization-code flow manager, it does not mint new grants: credentials
// enter the pool already carrying a refresh token (see internal/pool).
type Manager struct {
	clientID     string
	clientSecret string
	tokenURL     string
	httpClient   *http.Client
	now          func() time.Time
}

// ManagerOption customizes Manager creation.
type ManagerOption func(*Manager)

// NewManager creates a new OAuth refresh manager.
func NewManager(clientID, clientSecret string, opts ...ManagerOption) *Manager {
	m := &Manager{
		clientID:     clientID,
		clientSecret: clientSecret,
		tokenURL:     TokenURL,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// WithHTTPClient overrides the HTTP client used for outbound calls.
func WithHTTPClient(client *http.Client) ManagerOption {
	return func(m *Manager) {
		if client != nil {
			m.httpClient = client
		}
	}
}

// WithTokenURL overrides the token refresh endpoint.
func WithTokenURL(tokenURL string) ManagerOption {
	return func(m *Manager) {
		if tokenURL != "" {
			m.tokenURL = tokenURL
		}
	}
}

// WithNowFunc overrides the clock used for time calculations (testing).
func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

func (m *Manager) ensureClientCredentials() error {
	if strings.TrimSpace(m.clientID) == "" || strings.TrimSpace(m.clientSecret) == "" {
		return fmt.Errorf("oauth client credentials not configured")
	}
	return nil
}

// RefreshToken exchanges creds.RefreshToken for a new access token, mutating
// creds in place. A 403 response is reported as a *ForbiddenError so
// callers (internal/pool) can distinguish a dead refresh token from any
// other failure, which is returned as a plain error.
func (m *Manager) RefreshToken(ctx context.Context, creds *Credentials) error {
	if creds.RefreshToken == "" {
		return fmt.Errorf("no refresh token available")
	}
	if err := m.ensureClientCredentials(); err != nil {
		return err
	}

	data := url.Values{
		"client_id":     {m.clientID},
		"client_secret": {m.clientSecret},
		"refresh_token": {creds.RefreshToken},
		"grant_type":    {"refresh_token"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("refresh token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode == http.StatusForbidden {
			return &ForbiddenError{StatusCode: resp.StatusCode, Body: string(body)}
		}
		return fmt.Errorf("token refresh failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return fmt.Errorf("decode token response: %w", err)
	}

	creds.AccessToken = tokenResp.AccessToken
	if tokenResp.RefreshToken != "" {
		creds.RefreshToken = tokenResp.RefreshToken
	}
	if tokenResp.ExpiresIn > 0 {
		creds.ExpiresAt = m.now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	}

	return nil
}
