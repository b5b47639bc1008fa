package keycloak

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// AdminTokenConfig contains configuration for AdminTokenManager.
type AdminTokenConfig struct {
	// KeycloakURL is the base URL of Keycloak server (e.g., http://localhost:8090).
	KeycloakURL string

	// Realm to authenticate against. Service accounts use the console realm,
	// admin users usually "master".
	Realm string

	ClientID string

	// ClientSecret selects the client_credentials grant. If empty, password grant is used.
	ClientSecret string

	Username string
	Password string

	// TokenBuffer is the time before token expiry to trigger refresh (default 30s).
	TokenBuffer time.Duration

	HTTPClient *http.Client
}

// AdminTokenManager caches an admin API token and refreshes it before expiry.
type AdminTokenManager struct {
	config     AdminTokenConfig
	tokenURL   string
	httpClient *http.Client

	mu        sync.RWMutex
	token     string
	expiresAt time.Time
}

const (
	defaultTokenBuffer      = 30 * time.Second
	defaultAdminHTTPTimeout = 10 * time.Second
)

// NewAdminTokenManager creates a new AdminTokenManager.
func NewAdminTokenManager(config AdminTokenConfig) *AdminTokenManager {
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultAdminHTTPTimeout}
	}
	if config.TokenBuffer == 0 {
		config.TokenBuffer = defaultTokenBuffer
	}
	config.KeycloakURL = strings.TrimSuffix(config.KeycloakURL, "/")
	config.HTTPClient = nil

	return &AdminTokenManager{
		config: config,
		tokenURL: fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token",
			config.KeycloakURL, url.PathEscape(config.Realm)),
		httpClient: httpClient,
	}
}

// GetToken returns a valid admin token, refreshing if needed.
func (m *AdminTokenManager) GetToken(ctx context.Context) (string, error) {
	m.mu.RLock()
	token, fresh := m.cachedLocked()
	m.mu.RUnlock()
	if fresh {
		return token, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// another goroutine may have refreshed while we waited for the lock
	if token, fresh = m.cachedLocked(); fresh {
		return token, nil
	}

	resp, err := m.requestToken(ctx)
	if err != nil {
		return "", err
	}

	m.token = resp.AccessToken
	m.expiresAt = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	return m.token, nil
}

func (m *AdminTokenManager) cachedLocked() (string, bool) {
	if m.token != "" && time.Now().Add(m.config.TokenBuffer).Before(m.expiresAt) {
		return m.token, true
	}
	return "", false
}

func (m *AdminTokenManager) requestToken(ctx context.Context) (*adminTokenResponse, error) {
	form := m.tokenForm()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("admin token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("admin token request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp adminTokenResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&tokenResp); decodeErr != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", decodeErr)
	}
	return &tokenResp, nil
}

func (m *AdminTokenManager) tokenForm() url.Values {
	data := url.Values{}
	data.Set("client_id", m.config.ClientID)

	if m.config.ClientSecret != "" {
		data.Set("grant_type", "client_credentials")
		data.Set("client_secret", m.config.ClientSecret)
	} else {
		data.Set("grant_type", "password")
		data.Set("username", m.config.Username)
		data.Set("password", m.config.Password)
	}

	return data
}

// InvalidateToken clears the cached token, forcing a refresh on next GetToken call.
func (m *AdminTokenManager) InvalidateToken() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	m.expiresAt = time.Time{}
}

type adminTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}
