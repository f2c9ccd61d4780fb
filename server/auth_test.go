package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signedToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func requestWithToken(token string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/upload", nil)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	return r
}

func TestIdentityFromRequest(t *testing.T) {
	token := signedToken(t, testSecret, jwt.MapClaims{"user_id": "u-1", "username": "jess"})

	identity := identityFromRequest(requestWithToken(token), testSecret)
	require.NotNil(t, identity)
	require.Equal(t, "u-1", identity.UserID)
	require.Equal(t, "jess", identity.DisplayName)
}

func TestIdentityDisplayNameFallsBackToUserID(t *testing.T) {
	token := signedToken(t, testSecret, jwt.MapClaims{"user_id": "u-1"})

	identity := identityFromRequest(requestWithToken(token), testSecret)
	require.NotNil(t, identity)
	require.Equal(t, "u-1", identity.DisplayName)
}

func TestIdentityAnonymousPaths(t *testing.T) {
	// No token at all.
	require.Nil(t, identityFromRequest(requestWithToken(""), testSecret))

	// Auth disabled entirely.
	token := signedToken(t, testSecret, jwt.MapClaims{"user_id": "u-1"})
	require.Nil(t, identityFromRequest(requestWithToken(token), ""))

	// Wrong signing secret.
	forged := signedToken(t, "other-secret", jwt.MapClaims{"user_id": "u-1"})
	require.Nil(t, identityFromRequest(requestWithToken(forged), testSecret))

	// Valid signature but no usable claims.
	empty := signedToken(t, testSecret, jwt.MapClaims{"aud": "replay-hub"})
	require.Nil(t, identityFromRequest(requestWithToken(empty), testSecret))
}
