package realtime

import (
	"github.com/Laisky/errors/v2"
	"github.com/golang-jwt/jwt/v5"
)

// Identity is the user a bearer token was issued to.
type Identity struct {
	UserID string
	Name   string
}

// IdentityFromToken reads the user from a JWT without verifying it. The
// client only needs its own id to recognise echoes of its own events; the
// server does the verification.
func IdentityFromToken(token string) (Identity, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return Identity{}, errors.Wrap(err, "parse token")
	}
	return IdentityFromClaims(claims)
}

// IdentityFromClaims extracts the user id from "userId", "id" or "sub" and
// the display name from "name", "username" or "email".
func IdentityFromClaims(claims jwt.MapClaims) (Identity, error) {
	id := Identity{
		UserID: claimString(claims, "userId", "id", "sub"),
		Name:   claimString(claims, "name", "username", "email"),
	}
	if id.UserID == "" {
		return id, errors.New("token has no user id claim")
	}
	return id, nil
}

func claimString(claims jwt.MapClaims, keys ...string) string {
	for _, k := range keys {
		if v, ok := claims[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
