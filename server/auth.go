package server

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/TheClusterFlux/replay-hub/types"
)

// identityFromRequest extracts the authenticated caller from a Bearer token.
// Uploads are allowed without one, so a missing or invalid token yields nil
// and the record is marked anonymous.
func identityFromRequest(r *http.Request, secret string) *types.Identity {
	if secret == "" {
		return nil
	}

	header := r.Header.Get("Authorization")
	raw, found := strings.CutPrefix(header, "Bearer ")
	if !found || raw == "" {
		return nil
	}

	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return nil
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil
	}

	identity := &types.Identity{}
	if v, ok := claims["user_id"].(string); ok {
		identity.UserID = v
	}
	if v, ok := claims["username"].(string); ok {
		identity.DisplayName = v
	}
	if identity.UserID == "" && identity.DisplayName == "" {
		return nil
	}
	if identity.DisplayName == "" {
		identity.DisplayName = identity.UserID
	}

	return identity
}
