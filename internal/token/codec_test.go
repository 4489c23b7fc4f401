package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanform/scanform-api/internal/models"
	appErrors "github.com/scanform/scanform-api/pkg/errors"
)

func TestIssueVerifyRoundTrip(t *testing.T) {
	codec := NewCodec("test-secret", 15*time.Minute, "scanform-test")

	signed, err := codec.Issue("user-1", "owner@example.com", models.RoleBusiness, "jti-1", 3)
	require.NoError(t, err)
	require.NotEmpty(t, signed)

	claims, err := codec.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "owner@example.com", claims.Email)
	assert.Equal(t, models.RoleBusiness, claims.Role)
	assert.Equal(t, "jti-1", claims.ID)
	assert.Equal(t, 3, claims.Generation)

	require.NotNil(t, claims.ExpiresAt)
	require.NotNil(t, claims.IssuedAt)
	assert.Equal(t, 15*time.Minute, claims.ExpiresAt.Sub(claims.IssuedAt.Time))
}

func TestVerifyWrongSecret(t *testing.T) {
	issuer := NewCodec("access-secret", time.Hour, "scanform-test")
	verifier := NewCodec("refresh-secret", time.Hour, "scanform-test")

	signed, err := issuer.Issue("user-1", "owner@example.com", models.RoleBusiness, "jti-1", 1)
	require.NoError(t, err)

	_, err = verifier.Verify(signed)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrTokenSignature.Code, appErrors.FromError(err).Code)
}

func TestVerifyExpired(t *testing.T) {
	codec := NewCodec("test-secret", -time.Minute, "scanform-test")

	signed, err := codec.Issue("user-1", "owner@example.com", models.RoleBusiness, "jti-1", 1)
	require.NoError(t, err)

	_, err = codec.Verify(signed)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrTokenExpired.Code, appErrors.FromError(err).Code)
}

func TestVerifyMalformed(t *testing.T) {
	codec := NewCodec("test-secret", time.Hour, "scanform-test")

	for _, raw := range []string{"", "garbage", "a.b", "a.b.c.d"} {
		_, err := codec.Verify(raw)
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrTokenMalformed.Code, appErrors.FromError(err).Code)
	}
}

func TestVerifyIncompleteClaims(t *testing.T) {
	codec := NewCodec("test-secret", time.Hour, "scanform-test")

	signed, err := codec.Issue("", "owner@example.com", models.RoleBusiness, "jti-1", 1)
	require.NoError(t, err)

	_, err = codec.Verify(signed)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrTokenMalformed.Code, appErrors.FromError(err).Code)
}

func TestVerifyZeroGeneration(t *testing.T) {
	codec := NewCodec("test-secret", time.Hour, "scanform-test")

	signed, err := codec.Issue("user-1", "owner@example.com", models.RoleBusiness, "jti-1", 0)
	require.NoError(t, err)

	_, err = codec.Verify(signed)
	require.Error(t, err)
}
