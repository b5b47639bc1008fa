package keycloak

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Group lookup errors.
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrAdminTokenRejected = errors.New("admin token rejected")
)

// GroupClientConfig contains configuration for GroupClient.
type GroupClientConfig struct {
	// KeycloakURL is the base URL of Keycloak server.
	KeycloakURL string

	// Realm is the realm the console users live in.
	Realm string

	// HTTPClient is an optional custom HTTP client.
	HTTPClient *http.Client
}

// GroupClient looks up group membership through the Keycloak Admin API.
// It backs deployments whose tokens carry no groups claim.
type GroupClient struct {
	config       GroupClientConfig
	tokenManager *AdminTokenManager
	httpClient   *http.Client
}

const defaultGroupHTTPTimeout = 10 * time.Second

// NewGroupClient creates a new Keycloak group lookup client.
func NewGroupClient(config GroupClientConfig, tokenManager *AdminTokenManager) *GroupClient {
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultGroupHTTPTimeout}
	}

	return &GroupClient{
		config: GroupClientConfig{
			KeycloakURL: strings.TrimSuffix(config.KeycloakURL, "/"),
			Realm:       config.Realm,
		},
		tokenManager: tokenManager,
		httpClient:   httpClient,
	}
}

// Group represents a Keycloak group.
type Group struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Path string `json:"path"`
}

// GetUserGroups retrieves all groups that a user belongs to.
func (c *GroupClient) GetUserGroups(ctx context.Context, userID string) ([]Group, error) {
	if userID == "" {
		return nil, ErrUserNotFound
	}

	token, err := c.tokenManager.GetToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get admin token: %w", err)
	}

	endpoint := fmt.Sprintf("%s/admin/realms/%s/users/%s/groups",
		c.config.KeycloakURL, url.PathEscape(c.config.Realm), url.PathEscape(userID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get user groups request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var groups []Group
		if decodeErr := json.NewDecoder(resp.Body).Decode(&groups); decodeErr != nil {
			return nil, fmt.Errorf("failed to decode groups response: %w", decodeErr)
		}
		return groups, nil
	case http.StatusNotFound:
		return nil, ErrUserNotFound
	case http.StatusUnauthorized:
		// the cached admin token was revoked; the next call fetches a fresh one
		c.tokenManager.InvalidateToken()
		return nil, ErrAdminTokenRejected
	default:
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("get user groups failed with status %d: %s", resp.StatusCode, string(respBody))
	}
}

// ResolveGroups returns the normalized group paths of a user, ready to be
// used as authorization subjects.
func (c *GroupClient) ResolveGroups(ctx context.Context, userID string) ([]string, error) {
	groups, err := c.GetUserGroups(ctx, userID)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(groups))
	for _, g := range groups {
		path := g.Path
		if path == "" {
			path = g.Name
		}
		if name := NormalizeGroup(path); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}
