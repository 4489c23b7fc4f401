package middleware

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scanform/scanform-api/internal/models"
	"github.com/scanform/scanform-api/internal/service"
	"github.com/scanform/scanform-api/internal/token"
)

type stubUserRepo struct{}

func (stubUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return nil, sql.ErrNoRows
}
func (stubUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	return nil, sql.ErrNoRows
}
func (stubUserRepo) Create(ctx context.Context, user *models.User) error { return nil }
func (stubUserRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	return nil
}
func (stubUserRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error { return nil }

type stubRevocations struct {
	denylisted map[string]bool
}

func (s stubRevocations) CurrentGeneration(ctx context.Context, userID string) (int, error) {
	return 1, nil
}
func (s stubRevocations) BumpGeneration(ctx context.Context, userID string) (int, error) {
	return 2, nil
}
func (s stubRevocations) Denylist(ctx context.Context, jti string, ttl time.Duration) error {
	s.denylisted[jti] = true
	return nil
}
func (s stubRevocations) IsDenylisted(ctx context.Context, jti string) (bool, error) {
	return s.denylisted[jti], nil
}

const testAccessSecret = "access-secret"

func newAuthRouter(t *testing.T) (*gin.Engine, *token.Codec) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	access := token.NewCodec(testAccessSecret, 15*time.Minute, "scanform-test")
	refresh := token.NewCodec("refresh-secret", time.Hour, "scanform-test")
	sessions := service.NewSessionService(stubUserRepo{}, stubRevocations{denylisted: map[string]bool{}}, access, refresh, nil, zap.NewNop(), nil)

	r := gin.New()
	r.GET("/protected", Auth(sessions), func(c *gin.Context) {
		claims, ok := CurrentClaims(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"user_id": claims.UserID})
	})
	r.GET("/admin", Auth(sessions), RequireRoles(models.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r, access
}

func issueTestToken(t *testing.T, codec *token.Codec, role models.UserRole) string {
	t.Helper()
	signed, err := codec.Issue("u1", "owner@example.com", role, "jti-1", 1)
	require.NoError(t, err)
	return signed
}

func TestAuthAcceptsBearerHeader(t *testing.T) {
	r, codec := newAuthRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+issueTestToken(t, codec, models.RoleBusiness))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "u1")
}

func TestAuthAcceptsCookie(t *testing.T) {
	r, codec := newAuthRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: AuthCookieName, Value: issueTestToken(t, codec, models.RoleBusiness)})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthRejectsMissingToken(t *testing.T) {
	r, _ := newAuthRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/protected", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthRejectsForgedToken(t *testing.T) {
	r, _ := newAuthRouter(t)

	forged := token.NewCodec("other-secret", 15*time.Minute, "scanform-test")

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+issueTestToken(t, forged, models.RoleBusiness))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireRolesForbidsMismatch(t *testing.T) {
	r, codec := newAuthRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+issueTestToken(t, codec, models.RoleBusiness))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireRolesAllowsMatch(t *testing.T) {
	r, codec := newAuthRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+issueTestToken(t, codec, models.RoleAdmin))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
