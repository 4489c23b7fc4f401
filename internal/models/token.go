package models

import "github.com/golang-jwt/jwt/v5"

// TokenClaims is the fixed claim set signed into every token. The
// generation number is compared against the per-user revocation counter
// on each verification; the jti enables individual denylisting.
type TokenClaims struct {
	UserID     string   `json:"user_id"`
	Email      string   `json:"email,omitempty"`
	Role       UserRole `json:"role,omitempty"`
	Generation int      `json:"generation"`
	jwt.RegisteredClaims
}

// TokenPair bundles the access and refresh tokens issued together.
// The pair itself is never persisted; only its side effects (generation
// reads, eventual denylist entries) live in the store.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}
