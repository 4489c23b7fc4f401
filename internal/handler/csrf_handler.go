package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/scanform/scanform-api/internal/models"
	"github.com/scanform/scanform-api/internal/service"
	"github.com/scanform/scanform-api/pkg/response"
)

// CSRFHandler issues the double-submit token pair: the cookie half is
// HTTP-only, the body half is cached by the client and echoed in the
// X-CSRF-Token header on mutating requests.
type CSRFHandler struct {
	csrf          *service.CSRFService
	secureCookies bool
}

// NewCSRFHandler creates a new handler.
func NewCSRFHandler(csrf *service.CSRFService, secureCookies bool) *CSRFHandler {
	return &CSRFHandler{csrf: csrf, secureCookies: secureCookies}
}

// Token godoc
// @Summary Issue CSRF token
// @Description Generate a CSRF token, set the cookie half and return the echo half
// @Tags CSRF
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /csrf-token [get]
func (h *CSRFHandler) Token(c *gin.Context) {
	token, err := h.csrf.GenerateToken()
	if err != nil {
		response.Error(c, err)
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(service.CSRFCookieName, token, int(h.csrf.TokenTTL().Seconds()), "/", "", h.secureCookies, true)

	response.JSON(c, http.StatusOK, models.CSRFTokenResponse{Token: token})
}
