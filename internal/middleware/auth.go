package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/flowctl/console/internal/domain/permission"
	"github.com/flowctl/console/internal/infrastructure/flowapi"
)

// Context keys for authentication data.
type contextKey string

const (
	// ContextKeyUserID is the context key for the user ID (token subject).
	ContextKeyUserID contextKey = "user_id"

	// ContextKeyUsername is the context key for username.
	ContextKeyUsername contextKey = "username"

	// ContextKeyEmail is the context key for user email.
	ContextKeyEmail contextKey = "email"

	// ContextKeyRoles is the context key for user roles.
	ContextKeyRoles contextKey = "roles"

	// ContextKeyGroups is the context key for the user's groups.
	ContextKeyGroups contextKey = "groups"
)

// Auth errors.
var (
	ErrMissingAuthHeader = errors.New("missing authorization header")
	ErrInvalidAuthHeader = errors.New("invalid authorization header format")
	ErrInvalidToken      = errors.New("invalid token")
	ErrTokenExpired      = errors.New("token expired")

	// errMockSessionHandled is a sentinel error indicating mock session was handled.
	errMockSessionHandled = errors.New("mock session handled")
)

// MockUserGroup is the group every development identity belongs to.
const MockUserGroup = "dev"

// TokenClaims represents the claims extracted from a token.
type TokenClaims struct {
	// UserID is the token subject. It is the user part of authorization subjects.
	UserID string

	Username string
	Email    string
	Roles    []string

	// Groups are normalized group names without a leading slash.
	Groups []string

	ExpiresAt time.Time
}

// User returns the authorization identity carried by the claims.
func (tc *TokenClaims) User() permission.User {
	return permission.User{ID: tc.UserID, Groups: tc.Groups}
}

// TokenValidator defines the interface for validating bearer tokens.
type TokenValidator interface {
	// ValidateToken validates a token and returns the claims.
	ValidateToken(ctx context.Context, token string) (*TokenClaims, error)
}

// GroupResolver supplies group membership when the token does not carry it.
type GroupResolver interface {
	ResolveGroups(ctx context.Context, userID string) ([]string, error)
}

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	// Logger is the structured logger for auth events.
	Logger *slog.Logger

	// TokenValidator validates bearer tokens.
	TokenValidator TokenValidator

	// GroupResolver is consulted only for tokens without groups. Optional.
	GroupResolver GroupResolver

	// SkipPaths are paths that don't require authentication.
	SkipPaths []string

	// ForwardToken stores the caller's token in the request context so the
	// flowctl API client calls upstream on the caller's behalf.
	ForwardToken bool

	// SessionCookieName is the name of the session cookie to check as fallback.
	// If set, the middleware will check for this cookie when no Authorization header is present.
	SessionCookieName string

	// MockSessionToken is the token value that identifies a valid mock session.
	// Used for development when real auth is not available.
	MockSessionToken string
}

// DefaultAuthConfig returns an AuthConfig with sensible defaults.
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		Logger:    slog.Default(),
		SkipPaths: []string{"/health", "/ready", "/health/details", "/metrics"},
	}
}

// Auth returns an authentication middleware with the given configuration.
func Auth(config AuthConfig) echo.MiddlewareFunc {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	skipPaths := make(map[string]struct{}, len(config.SkipPaths))
	for _, path := range config.SkipPaths {
		skipPaths[path] = struct{}{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path

			if _, ok := skipPaths[path]; ok {
				return next(c)
			}

			authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			token, tokenErr := extractTokenFromRequest(c, authHeader, config)
			if tokenErr != nil {
				if errors.Is(tokenErr, errMockSessionHandled) {
					return next(c)
				}
				return respondAuthError(c, tokenErr)
			}

			if config.TokenValidator == nil {
				config.Logger.Error("token validator not configured")
				return respondAuthError(c, ErrInvalidToken)
			}

			ctx := c.Request().Context()
			claims, validateErr := config.TokenValidator.ValidateToken(ctx, token)
			if validateErr != nil {
				config.Logger.Warn("token validation failed",
					slog.String("error", validateErr.Error()),
					slog.String("path", path),
					slog.String("remote_ip", c.RealIP()),
				)
				return respondAuthError(c, validateErr)
			}

			if len(claims.Groups) == 0 && config.GroupResolver != nil {
				groups, resolveErr := config.GroupResolver.ResolveGroups(ctx, claims.UserID)
				if resolveErr != nil {
					// user-level policies still apply without groups
					config.Logger.Warn("failed to resolve user groups",
						slog.String("user_id", claims.UserID),
						slog.String("error", resolveErr.Error()),
					)
				} else {
					claims.Groups = groups
				}
			}

			enrichContext(c, claims)
			if config.ForwardToken {
				c.SetRequest(c.Request().WithContext(flowapi.WithBearerToken(ctx, token)))
			}

			config.Logger.Debug("user authenticated",
				slog.String("user_id", claims.UserID),
				slog.String("username", claims.Username),
				slog.Int("groups", len(claims.Groups)),
				slog.String("path", path),
			)

			return next(c)
		}
	}
}

// extractTokenFromRequest checks the Authorization header first, then falls
// back to the session cookie.
func extractTokenFromRequest(c echo.Context, authHeader string, config AuthConfig) (string, error) {
	if authHeader != "" {
		return extractBearerToken(authHeader)
	}

	if config.SessionCookieName != "" {
		cookie, cookieErr := c.Cookie(config.SessionCookieName)
		if cookieErr == nil && cookie.Value != "" {
			if config.MockSessionToken != "" && cookie.Value == config.MockSessionToken {
				setMockUserContext(c)
				return "", errMockSessionHandled
			}
			return cookie.Value, nil
		}
	}

	return "", ErrMissingAuthHeader
}

func extractBearerToken(authHeader string) (string, error) {
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return "", ErrInvalidAuthHeader
	}

	token := strings.TrimSpace(strings.TrimPrefix(authHeader, bearerPrefix))
	if token == "" {
		return "", ErrInvalidAuthHeader
	}

	return token, nil
}

func enrichContext(c echo.Context, claims *TokenClaims) {
	c.Set(string(ContextKeyUserID), claims.UserID)
	c.Set(string(ContextKeyUsername), claims.Username)
	c.Set(string(ContextKeyEmail), claims.Email)
	c.Set(string(ContextKeyRoles), claims.Roles)
	c.Set(string(ContextKeyGroups), claims.Groups)
}

func setMockUserContext(c echo.Context) {
	enrichContext(c, &TokenClaims{
		UserID:   "mockuser",
		Username: "mockuser",
		Email:    "user@example.com",
		Roles:    []string{"user"},
		Groups:   []string{MockUserGroup},
	})
}

// respondAuthError sends an authentication error response.
func respondAuthError(c echo.Context, err error) error {
	code := "UNAUTHORIZED"
	message := "Authentication required"

	switch {
	case errors.Is(err, ErrMissingAuthHeader):
		message = "Missing authorization header"
	case errors.Is(err, ErrInvalidAuthHeader):
		message = "Invalid authorization header format"
	case errors.Is(err, ErrTokenExpired):
		message = "Token has expired"
		code = "TOKEN_EXPIRED"
	case errors.Is(err, ErrInvalidToken):
		message = "Invalid token"
	}

	return c.JSON(http.StatusUnauthorized, map[string]any{
		"success": false,
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

// GetUserID extracts the user ID from the echo context.
func GetUserID(c echo.Context) string {
	id, _ := c.Get(string(ContextKeyUserID)).(string)
	return id
}

// GetUsername extracts the username from the echo context.
func GetUsername(c echo.Context) string {
	username, _ := c.Get(string(ContextKeyUsername)).(string)
	return username
}

// GetEmail extracts the email from the echo context.
func GetEmail(c echo.Context) string {
	email, _ := c.Get(string(ContextKeyEmail)).(string)
	return email
}

// GetRoles extracts the user roles from the echo context.
func GetRoles(c echo.Context) []string {
	roles, _ := c.Get(string(ContextKeyRoles)).([]string)
	return roles
}

// GetGroups extracts the user's groups from the echo context.
func GetGroups(c echo.Context) []string {
	groups, _ := c.Get(string(ContextKeyGroups)).([]string)
	return groups
}

// GetUser returns the authorization identity of the authenticated caller.
func GetUser(c echo.Context) permission.User {
	return permission.User{ID: GetUserID(c), Groups: GetGroups(c)}
}

// HasRole checks if the current user has the specified role.
func HasRole(c echo.Context, role string) bool {
	return slices.Contains(GetRoles(c), role)
}

// StaticTokenValidator accepts development tokens of the form "dev-token-<user>".
// DO NOT USE IN PRODUCTION.
type StaticTokenValidator struct {
	ttl time.Duration
}

const (
	devTokenPrefix = "dev-token-"
	devTokenTTL    = 24 * time.Hour
)

// NewStaticTokenValidator creates a new static token validator.
func NewStaticTokenValidator() *StaticTokenValidator {
	return &StaticTokenValidator{ttl: devTokenTTL}
}

// ValidateToken maps a development token to a user in the dev group.
func (v *StaticTokenValidator) ValidateToken(_ context.Context, token string) (*TokenClaims, error) {
	user := strings.TrimPrefix(token, devTokenPrefix)
	if user == token || user == "" {
		return nil, ErrInvalidToken
	}

	return &TokenClaims{
		UserID:    user,
		Username:  "dev-user-" + user,
		Email:     "dev-" + user + "@example.com",
		Roles:     []string{"user"},
		Groups:    []string{MockUserGroup},
		ExpiresAt: time.Now().Add(v.ttl),
	}, nil
}
