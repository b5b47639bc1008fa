package keycloak_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowctl/console/internal/infrastructure/keycloak"
)

const (
	testRealm    = "console"
	testClientID = "flowctl-console"
	testKeyID    = "console-signing-key"
)

// realm is a fake Keycloak realm that publishes one RSA signing key.
type realm struct {
	key    *rsa.PrivateKey
	server *httptest.Server
}

func newRealm(tb testing.TB) *realm {
	tb.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(tb, err)

	jwks, err := json.Marshal(map[string]any{
		"keys": []map[string]any{{
			"kty": "RSA",
			"alg": "RS256",
			"use": "sig",
			"kid": testKeyID,
			"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}},
	})
	require.NoError(tb, err)

	mux := http.NewServeMux()
	mux.HandleFunc("/realms/"+testRealm+"/protocol/openid-connect/certs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(jwks)
	})
	srv := httptest.NewServer(mux)
	tb.Cleanup(srv.Close)

	return &realm{key: key, server: srv}
}

func (r *realm) issuer() string {
	return r.server.URL + "/realms/" + testRealm
}

func (r *realm) validator(tb testing.TB, modify func(cfg *keycloak.JWTValidatorConfig)) keycloak.JWTValidator {
	tb.Helper()
	cfg := keycloak.JWTValidatorConfig{
		KeycloakURL: r.server.URL,
		Realm:       testRealm,
		ClientID:    testClientID,
	}
	if modify != nil {
		modify(&cfg)
	}
	v, err := keycloak.NewJWTValidator(cfg)
	require.NoError(tb, err)
	tb.Cleanup(func() { _ = v.Close() })
	return v
}

func (r *realm) sign(tb testing.TB, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	tb.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	signed, err := token.SignedString(key)
	require.NoError(tb, err)
	return signed
}

// operatorClaims is the access token of a console operator in two groups.
func (r *realm) operatorClaims() jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":                r.issuer(),
		"sub":                "user-123",
		"aud":                testClientID,
		"exp":                now.Add(time.Hour).Unix(),
		"iat":                now.Unix(),
		"email":              "operator@example.com",
		"preferred_username": "operator",
		"realm_access":       map[string]any{"roles": []any{"user", "admin"}},
		"resource_access": map[string]any{
			testClientID:   map[string]any{"roles": []any{"console-operator"}},
			"other-client": map[string]any{"roles": []any{"ignored"}},
		},
		"groups": []any{"/ops", "/ops/eu", "data"},
	}
}

func TestNewJWTValidator(t *testing.T) {
	r := newRealm(t)

	tests := []struct {
		name   string
		config keycloak.JWTValidatorConfig
	}{
		{"missing keycloak url", keycloak.JWTValidatorConfig{Realm: testRealm}},
		{"missing realm", keycloak.JWTValidatorConfig{KeycloakURL: r.server.URL}},
		{"unreachable host", keycloak.JWTValidatorConfig{KeycloakURL: "http://127.0.0.1:1", Realm: testRealm}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := keycloak.NewJWTValidator(tt.config)
			require.ErrorIs(t, err, keycloak.ErrJWKSFetchFailed)
			assert.Nil(t, v)
		})
	}

	t.Run("trailing slash in url", func(t *testing.T) {
		r.validator(t, func(cfg *keycloak.JWTValidatorConfig) { cfg.KeycloakURL += "/" })
	})
}

func TestJWTValidator_Validate(t *testing.T) {
	r := newRealm(t)
	v := r.validator(t, nil)

	result, err := v.Validate(context.Background(), r.sign(t, r.key, r.operatorClaims()))
	require.NoError(t, err)

	assert.Equal(t, "user-123", result.UserID)
	assert.Equal(t, "operator@example.com", result.Email)
	assert.Equal(t, "operator", result.Username)
	assert.ElementsMatch(t, []string{"user", "admin"}, result.RealmRoles)
	assert.Equal(t, []string{"console-operator"}, result.ClientRoles)
	assert.Equal(t, []string{"ops", "ops/eu", "data"}, result.Groups)
	assert.False(t, result.IssuedAt.IsZero())
	assert.True(t, result.ExpiresAt.After(time.Now()))
}

func TestJWTValidator_Rejects(t *testing.T) {
	r := newRealm(t)
	v := r.validator(t, nil)
	foreignKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   func() string
		wantErr error
	}{
		{
			name:    "empty token",
			token:   func() string { return "" },
			wantErr: keycloak.ErrInvalidToken,
		},
		{
			name:    "malformed token",
			token:   func() string { return "not-a-jwt" },
			wantErr: keycloak.ErrInvalidToken,
		},
		{
			name: "expired",
			token: func() string {
				c := r.operatorClaims()
				c["exp"] = time.Now().Add(-time.Hour).Unix()
				return r.sign(t, r.key, c)
			},
			wantErr: keycloak.ErrTokenExpired,
		},
		{
			name: "issued by another realm",
			token: func() string {
				c := r.operatorClaims()
				c["iss"] = "https://sso.example.com/realms/other"
				return r.sign(t, r.key, c)
			},
			wantErr: keycloak.ErrInvalidIssuer,
		},
		{
			name: "issued for another client",
			token: func() string {
				c := r.operatorClaims()
				c["aud"] = "grafana"
				return r.sign(t, r.key, c)
			},
			wantErr: keycloak.ErrInvalidAudience,
		},
		{
			name: "no subject",
			token: func() string {
				c := r.operatorClaims()
				delete(c, "sub")
				return r.sign(t, r.key, c)
			},
			wantErr: keycloak.ErrMissingSubject,
		},
		{
			name:    "signed with unknown key",
			token:   func() string { return r.sign(t, foreignKey, r.operatorClaims()) },
			wantErr: keycloak.ErrInvalidToken,
		},
		{
			name: "no expiry",
			token: func() string {
				c := r.operatorClaims()
				delete(c, "exp")
				return r.sign(t, r.key, c)
			},
			wantErr: keycloak.ErrInvalidToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := v.Validate(context.Background(), tt.token())
			require.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, result)
		})
	}
}

func TestJWTValidator_Audience(t *testing.T) {
	r := newRealm(t)
	v := r.validator(t, func(cfg *keycloak.JWTValidatorConfig) { cfg.ClientID = "" })

	claims := r.operatorClaims()
	claims["aud"] = "grafana"

	result, err := v.Validate(context.Background(), r.sign(t, r.key, claims))
	require.NoError(t, err)
	assert.Empty(t, result.ClientRoles)
}

func TestJWTValidator_Leeway(t *testing.T) {
	r := newRealm(t)
	v := r.validator(t, func(cfg *keycloak.JWTValidatorConfig) { cfg.Leeway = time.Minute })

	tests := []struct {
		name      string
		expiredBy time.Duration
		wantErr   error
	}{
		{"within leeway", 30 * time.Second, nil},
		{"beyond leeway", 2 * time.Minute, keycloak.ErrTokenExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := r.operatorClaims()
			claims["exp"] = time.Now().Add(-tt.expiredBy).Unix()

			_, err := v.Validate(context.Background(), r.sign(t, r.key, claims))
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestJWTValidator_ClaimShapes(t *testing.T) {
	r := newRealm(t)
	v := r.validator(t, nil)

	tests := []struct {
		name       string
		extra      jwt.MapClaims
		wantRoles  []string
		wantGroups []string
	}{
		{
			name: "only required claims",
		},
		{
			name:  "realm_access without roles",
			extra: jwt.MapClaims{"realm_access": map[string]any{"other": "value"}},
		},
		{
			name:      "non-string roles are skipped",
			extra:     jwt.MapClaims{"realm_access": map[string]any{"roles": []any{"viewer", 123, "editor"}}},
			wantRoles: []string{"viewer", "editor"},
		},
		{
			name:       "root and non-string groups are skipped",
			extra:      jwt.MapClaims{"groups": []any{"/group-a", 456, "/group-b", "/"}},
			wantGroups: []string{"group-a", "group-b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := time.Now()
			claims := jwt.MapClaims{
				"iss": r.issuer(),
				"sub": "minimal-user",
				"aud": testClientID,
				"exp": now.Add(time.Hour).Unix(),
				"iat": now.Unix(),
			}
			for k, val := range tt.extra {
				claims[k] = val
			}

			result, err := v.Validate(context.Background(), r.sign(t, r.key, claims))
			require.NoError(t, err)
			assert.Equal(t, "minimal-user", result.UserID)
			assert.Empty(t, result.Email)
			assert.Equal(t, tt.wantRoles, result.RealmRoles)
			assert.Equal(t, tt.wantGroups, result.Groups)
		})
	}
}

func TestJWTValidator_CustomGroupsClaim(t *testing.T) {
	r := newRealm(t)
	v := r.validator(t, func(cfg *keycloak.JWTValidatorConfig) { cfg.GroupsClaim = "console_groups" })

	claims := r.operatorClaims()
	claims["console_groups"] = []any{"/release-managers"}

	result, err := v.Validate(context.Background(), r.sign(t, r.key, claims))
	require.NoError(t, err)
	assert.Equal(t, []string{"release-managers"}, result.Groups)
}

func TestNormalizeGroup(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/ops", "ops"},
		{"/ops/eu", "ops/eu"},
		{"ops", "ops"},
		{" /dev ", "dev"},
		{"/", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, keycloak.NormalizeGroup(tt.in))
		})
	}
}

func TestJWTValidator_CloseIsIdempotent(t *testing.T) {
	r := newRealm(t)
	v, err := keycloak.NewJWTValidator(keycloak.JWTValidatorConfig{KeycloakURL: r.server.URL, Realm: testRealm})
	require.NoError(t, err)

	require.NoError(t, v.Close())
	require.NoError(t, v.Close())
}

func BenchmarkJWTValidator_Validate(b *testing.B) {
	r := newRealm(b)
	v := r.validator(b, nil)
	token := r.sign(b, r.key, r.operatorClaims())
	ctx := context.Background()

	b.ReportAllocs()
	for b.Loop() {
		if _, err := v.Validate(ctx, token); err != nil {
			b.Fatal(err)
		}
	}
}
