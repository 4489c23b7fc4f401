// Package token implements the cryptographic half of session handling:
// issuing and verifying signed, time-bound JWTs. It never touches the
// revocation store; callers layer denylist and generation checks on top.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/scanform/scanform-api/internal/models"
	appErrors "github.com/scanform/scanform-api/pkg/errors"
)

// Codec signs and verifies tokens of one kind (access or refresh).
// Access and refresh codecs are constructed with distinct secrets so a
// leaked refresh secret cannot forge access tokens and vice versa.
type Codec struct {
	secret []byte
	ttl    time.Duration
	issuer string
}

// NewCodec builds a codec for one token kind.
func NewCodec(secret string, ttl time.Duration, issuer string) *Codec {
	return &Codec{secret: []byte(secret), ttl: ttl, issuer: issuer}
}

// TTL returns the configured token lifetime.
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Issue signs a token for the given user at the given generation. The
// jti must be unique per token; expiry is issued-at plus the codec TTL.
func (c *Codec) Issue(userID, email string, role models.UserRole, jti string, generation int) (string, error) {
	now := time.Now().UTC()
	claims := &models.TokenClaims{
		UserID:     userID,
		Email:      email,
		Role:       role,
		Generation: generation,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   userID,
			ID:        jti,
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign token")
	}
	return signed, nil
}

// Verify checks structure, signature and expiry, in that order, and
// returns the decoded claims. It is purely cryptographic; revocation
// state is not consulted.
func (c *Codec) Verify(tokenString string) (*models.TokenClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &models.TokenClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, appErrors.Wrap(err, appErrors.ErrTokenMalformed.Code, appErrors.ErrTokenMalformed.Status, appErrors.ErrTokenMalformed.Message)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, appErrors.Wrap(err, appErrors.ErrTokenSignature.Code, appErrors.ErrTokenSignature.Status, appErrors.ErrTokenSignature.Message)
		case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, appErrors.Wrap(err, appErrors.ErrTokenExpired.Code, appErrors.ErrTokenExpired.Status, appErrors.ErrTokenExpired.Message)
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrTokenMalformed.Code, appErrors.ErrTokenMalformed.Status, "token could not be parsed")
		}
	}

	claims, ok := parsed.Claims.(*models.TokenClaims)
	if !ok || !parsed.Valid {
		return nil, appErrors.Clone(appErrors.ErrTokenMalformed, "invalid token claims")
	}

	// The claim shape is fixed; a token missing its subject, jti or a
	// positive generation was not issued by this service.
	if claims.UserID == "" || claims.ID == "" || claims.Generation < 1 {
		return nil, appErrors.Clone(appErrors.ErrTokenMalformed, "token claims are incomplete")
	}

	return claims, nil
}
