package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims carries the identity asserted by an access token. Tokens are
// issued by the campus identity provider; this service only validates them.
type JWTClaims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}
