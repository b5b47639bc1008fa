package keycloak

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// JWT validation errors.
var (
	ErrInvalidToken    = errors.New("invalid token")
	ErrInvalidClaims   = errors.New("invalid claims")
	ErrMissingSubject  = errors.New("missing subject claim")
	ErrTokenExpired    = errors.New("token expired")
	ErrInvalidIssuer   = errors.New("invalid issuer")
	ErrInvalidAudience = errors.New("invalid audience")
	ErrJWKSFetchFailed = errors.New("failed to fetch JWKS")
)

// DefaultGroupsClaim is the claim the Keycloak group mapper writes to.
const DefaultGroupsClaim = "groups"

// TokenClaims is the console's view of a validated access token.
// Groups are normalized: Keycloak full-path groups ("/ops/eu") lose the
// leading slash so they match policy subjects ("group:ops/eu").
type TokenClaims struct {
	UserID      string
	Username    string
	Email       string
	RealmRoles  []string
	ClientRoles []string
	Groups      []string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// JWTValidator validates Keycloak JWT tokens.
type JWTValidator interface {
	// Validate validates token and returns claims.
	Validate(ctx context.Context, tokenString string) (*TokenClaims, error)

	// Close stops background JWKS refresh.
	Close() error
}

// JWTValidatorConfig contains configuration for JWTValidator.
type JWTValidatorConfig struct {
	KeycloakURL     string
	Realm           string
	ClientID        string        // expected audience, also selects resource_access roles
	GroupsClaim     string        // defaults to DefaultGroupsClaim
	Leeway          time.Duration // clock skew tolerance
	RefreshInterval time.Duration // JWKS refresh interval
	Logger          *slog.Logger
}

// Default configuration values.
const (
	DefaultLeeway          = 30 * time.Second
	DefaultRefreshInterval = 1 * time.Hour
)

type jwtValidator struct {
	jwks      keyfunc.Keyfunc
	config    JWTValidatorConfig
	issuerURL string
	logger    *slog.Logger
	cancel    context.CancelFunc
}

// NewJWTValidator fetches the realm JWKS and keeps it refreshed in the
// background until Close is called.
func NewJWTValidator(config JWTValidatorConfig) (JWTValidator, error) {
	if config.KeycloakURL == "" {
		return nil, fmt.Errorf("%w: KeycloakURL is required", ErrJWKSFetchFailed)
	}
	if config.Realm == "" {
		return nil, fmt.Errorf("%w: Realm is required", ErrJWKSFetchFailed)
	}

	if config.Leeway == 0 {
		config.Leeway = DefaultLeeway
	}
	if config.RefreshInterval == 0 {
		config.RefreshInterval = DefaultRefreshInterval
	}
	if config.GroupsClaim == "" {
		config.GroupsClaim = DefaultGroupsClaim
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	issuerURL := fmt.Sprintf("%s/realms/%s", strings.TrimRight(config.KeycloakURL, "/"), config.Realm)
	jwksURL := issuerURL + "/protocol/openid-connect/certs"

	logger.Info("initializing JWT validator",
		slog.String("jwks_url", jwksURL),
		slog.Duration("refresh_interval", config.RefreshInterval),
	)

	ctx, cancel := context.WithCancel(context.Background())

	storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		Ctx:             ctx,
		RefreshInterval: config.RefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("failed to refresh JWKS", slog.Any("error", err))
		},
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %w", ErrJWKSFetchFailed, err)
	}

	jwks, err := keyfunc.New(keyfunc.Options{
		Ctx:     ctx,
		Storage: storage,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %w", ErrJWKSFetchFailed, err)
	}

	return &jwtValidator{
		jwks:      jwks,
		config:    config,
		issuerURL: issuerURL,
		logger:    logger,
		cancel:    cancel,
	}, nil
}

// Validate verifies signature, issuer, audience and expiry, then maps the claims.
func (v *jwtValidator) Validate(_ context.Context, tokenString string) (*TokenClaims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithLeeway(v.config.Leeway),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(v.issuerURL),
	}
	if v.config.ClientID != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(v.config.ClientID))
	}

	token, err := jwt.Parse(tokenString, v.jwks.Keyfunc, parserOpts...)
	if err != nil {
		return nil, classifyParseError(err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidClaims
	}

	return v.extractClaims(claims)
}

func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %w", ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return fmt.Errorf("%w: %w", ErrInvalidIssuer, err)
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return fmt.Errorf("%w: %w", ErrInvalidAudience, err)
	default:
		return fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
}

func (v *jwtValidator) extractClaims(claims jwt.MapClaims) (*TokenClaims, error) {
	tc := &TokenClaims{}

	tc.UserID, _ = claims["sub"].(string)
	if tc.UserID == "" {
		return nil, ErrMissingSubject
	}

	tc.Email, _ = claims["email"].(string)
	tc.Username, _ = claims["preferred_username"].(string)

	if realmAccess, ok := claims["realm_access"].(map[string]any); ok {
		tc.RealmRoles = stringSlice(realmAccess["roles"])
	}
	if v.config.ClientID != "" {
		if resourceAccess, ok := claims["resource_access"].(map[string]any); ok {
			if client, clientOK := resourceAccess[v.config.ClientID].(map[string]any); clientOK {
				tc.ClientRoles = stringSlice(client["roles"])
			}
		}
	}

	for _, g := range stringSlice(claims[v.config.GroupsClaim]) {
		if name := NormalizeGroup(g); name != "" {
			tc.Groups = append(tc.Groups, name)
		}
	}

	if iat, ok := claims["iat"].(float64); ok {
		tc.IssuedAt = time.Unix(int64(iat), 0)
	}
	if exp, ok := claims["exp"].(float64); ok {
		tc.ExpiresAt = time.Unix(int64(exp), 0)
	}

	return tc, nil
}

// NormalizeGroup strips the leading slash Keycloak adds to full group paths.
func NormalizeGroup(group string) string {
	return strings.TrimPrefix(strings.TrimSpace(group), "/")
}

func stringSlice(raw any) []string {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, isString := item.(string); isString {
			out = append(out, s)
		}
	}
	return out
}

// Close stops background JWKS refresh.
func (v *jwtValidator) Close() error {
	v.logger.Info("closing JWT validator")
	if v.cancel != nil {
		v.cancel()
	}
	return nil
}
