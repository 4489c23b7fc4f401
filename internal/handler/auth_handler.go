package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/scanform/scanform-api/internal/middleware"
	"github.com/scanform/scanform-api/internal/models"
	"github.com/scanform/scanform-api/internal/service"
	appErrors "github.com/scanform/scanform-api/pkg/errors"
	"github.com/scanform/scanform-api/pkg/response"
)

// AuthHandler wires HTTP endpoints to the session service and manages
// the session cookies.
type AuthHandler struct {
	sessions *service.SessionService
	// secureCookies enables the Secure flag outside development.
	secureCookies bool
}

// NewAuthHandler creates a new handler.
func NewAuthHandler(sessions *service.SessionService, secureCookies bool) *AuthHandler {
	return &AuthHandler{sessions: sessions, secureCookies: secureCookies}
}

// Register godoc
// @Summary Register account
// @Description Create a business account and sign it in
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.RegisterRequest true "Registration payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid registration payload"))
		return
	}
	req.IP = middleware.ClientIP(c)

	res, err := h.sessions.Register(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.setSessionCookies(c, res.AccessToken, res.RefreshToken)
	response.Created(c, res)
}

// Login godoc
// @Summary Authenticate user
// @Description Authenticate by email and password, issuing a token pair
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.LoginRequest true "Login payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid login payload"))
		return
	}
	req.IP = middleware.ClientIP(c)

	res, err := h.sessions.Login(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.setSessionCookies(c, res.AccessToken, res.RefreshToken)
	response.JSON(c, http.StatusOK, res)
}

// Refresh godoc
// @Summary Refresh token pair
// @Description Rotate the refresh token and issue a new pair
// @Tags Authentication
// @Accept json
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	refreshToken := h.extractRefreshToken(c)
	if refreshToken == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token required"))
		return
	}

	res, err := h.sessions.Refresh(c.Request.Context(), refreshToken, middleware.ClientIP(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	h.setSessionCookies(c, res.AccessToken, res.RefreshToken)
	response.JSON(c, http.StatusOK, models.RefreshResponse{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		ExpiresIn:    res.ExpiresIn,
		IssuedAt:     res.IssuedAt,
	})
}

// Logout godoc
// @Summary Logout current session
// @Description Denylist the presented tokens and clear session cookies
// @Tags Authentication
// @Produce json
// @Success 204 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	accessToken := middleware.ExtractToken(c)
	if accessToken == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.sessions.Logout(c.Request.Context(), accessToken, h.extractRefreshToken(c)); err != nil {
		response.Error(c, err)
		return
	}

	h.clearSessionCookies(c)
	response.NoContent(c)
}

// ChangePassword godoc
// @Summary Change password
// @Description Change the password and invalidate every session
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.ChangePasswordRequest true "Change password"
// @Success 204 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/change-password [post]
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	if err := h.sessions.ChangePassword(c.Request.Context(), claims.UserID, req); err != nil {
		response.Error(c, err)
		return
	}

	// Every outstanding token is now superseded, including the one
	// that authenticated this request.
	h.clearSessionCookies(c)
	response.NoContent(c)
}

// Me godoc
// @Summary Get current user
// @Description Returns the authenticated user's info
// @Tags Authentication
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	info := models.UserInfo{
		ID:    claims.UserID,
		Email: claims.Email,
		Role:  claims.Role,
	}

	response.JSON(c, http.StatusOK, info)
}

func (h *AuthHandler) extractRefreshToken(c *gin.Context) string {
	if cookie, err := c.Cookie(middleware.RefreshCookieName); err == nil && cookie != "" {
		return cookie
	}

	var payload struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.ShouldBindJSON(&payload); err == nil {
		return payload.RefreshToken
	}
	return ""
}

func (h *AuthHandler) setSessionCookies(c *gin.Context, accessToken, refreshToken string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.AuthCookieName, accessToken, int(h.sessions.AccessTTL().Seconds()), "/", "", h.secureCookies, true)
	c.SetCookie(middleware.RefreshCookieName, refreshToken, int(h.sessions.RefreshTTL().Seconds()), "/", "", h.secureCookies, true)
}

func (h *AuthHandler) clearSessionCookies(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.AuthCookieName, "", -1, "/", "", h.secureCookies, true)
	c.SetCookie(middleware.RefreshCookieName, "", -1, "/", "", h.secureCookies, true)
}
