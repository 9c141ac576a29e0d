package spapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dmarques/spsync/internal/config"
)

// tokenEarlyRefresh renews the bearer token this long before it expires.
const tokenEarlyRefresh = 60 * time.Second

// Session exchanges the long-lived refresh token for short-lived bearer
// tokens and caches them until near expiry. One Session is constructed per
// run; there is no package-level token state.
type Session struct {
	cfg    config.MarketplaceConfig
	client *http.Client

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// NewSession creates a Session for the configured marketplace.
func NewSession(cfg config.MarketplaceConfig) *Session {
	return &Session{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Token returns a valid bearer token, exchanging the refresh token when the
// cached one is absent or within a minute of expiry. Failures here are
// fatal to the caller's run.
func (s *Session) Token(ctx context.Context) (string, error) {
	if s.cfg.Simulate {
		return "SIMULATED", nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && time.Now().Before(s.expiry.Add(-tokenEarlyRefresh)) {
		return s.token, nil
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {s.cfg.RefreshToken},
		"client_id":     {s.cfg.ClientID},
		"client_secret": {s.cfg.ClientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.TokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: building token request: %v", ErrAuth, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: token exchange: %v", ErrAuth, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		slog.Error("token exchange rejected", "status", resp.StatusCode, "body", truncate(string(body), 300))
		return "", fmt.Errorf("%w: token endpoint returned %d", ErrAuth, resp.StatusCode)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("%w: decoding token response: %v", ErrAuth, err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrAuth)
	}
	if tok.ExpiresIn <= 0 {
		tok.ExpiresIn = 3600
	}

	s.token = tok.AccessToken
	s.expiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return s.token, nil
}
