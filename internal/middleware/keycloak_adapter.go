package middleware

import (
	"context"
	"errors"

	"github.com/flowctl/console/internal/infrastructure/keycloak"
)

// KeycloakValidatorAdapter adapts keycloak.JWTValidator to the TokenValidator interface.
type KeycloakValidatorAdapter struct {
	validator keycloak.JWTValidator
}

// NewKeycloakValidatorAdapter creates a new adapter that bridges keycloak.JWTValidator
// to the middleware.TokenValidator interface.
//
// Usage:
//
//	jwtValidator, _ := keycloak.NewJWTValidator(config)
//	authConfig := middleware.AuthConfig{
//	    TokenValidator: middleware.NewKeycloakValidatorAdapter(jwtValidator),
//	}
func NewKeycloakValidatorAdapter(validator keycloak.JWTValidator) *KeycloakValidatorAdapter {
	if validator == nil {
		panic("keycloak validator is required")
	}
	return &KeycloakValidatorAdapter{validator: validator}
}

// ValidateToken validates a JWT token and returns middleware.TokenClaims.
func (a *KeycloakValidatorAdapter) ValidateToken(ctx context.Context, token string) (*TokenClaims, error) {
	kc, err := a.validator.Validate(ctx, token)
	if err != nil {
		return nil, mapKeycloakError(err)
	}

	roles := make([]string, 0, len(kc.RealmRoles)+len(kc.ClientRoles))
	roles = append(roles, kc.RealmRoles...)
	roles = append(roles, kc.ClientRoles...)

	return &TokenClaims{
		UserID:    kc.UserID,
		Username:  kc.Username,
		Email:     kc.Email,
		Roles:     roles,
		Groups:    kc.Groups,
		ExpiresAt: kc.ExpiresAt,
	}, nil
}

func mapKeycloakError(err error) error {
	switch {
	case errors.Is(err, keycloak.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, keycloak.ErrInvalidToken),
		errors.Is(err, keycloak.ErrInvalidClaims),
		errors.Is(err, keycloak.ErrMissingSubject),
		errors.Is(err, keycloak.ErrInvalidIssuer),
		errors.Is(err, keycloak.ErrInvalidAudience):
		return ErrInvalidToken
	default:
		return errors.Join(ErrInvalidToken, err)
	}
}

// Close closes the underlying keycloak validator.
func (a *KeycloakValidatorAdapter) Close() error {
	return a.validator.Close()
}
