package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/scanform/scanform-api/internal/service"
	appErrors "github.com/scanform/scanform-api/pkg/errors"
	"github.com/scanform/scanform-api/pkg/logger"
	"github.com/scanform/scanform-api/pkg/response"
)

// CSRF validates the double-submit pair on state-changing methods.
// GET, HEAD and OPTIONS always pass. A request without the cookie, for
// example a first visit, fails and must fetch a token first.
func CSRF(csrf *service.CSRFService, log *zap.Logger, metrics *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}

		headerValue := c.GetHeader(service.CSRFHeaderName)
		cookieValue, err := c.Cookie(service.CSRFCookieName)
		if err != nil {
			cookieValue = ""
		}

		if !csrf.Validate(headerValue, cookieValue) {
			if log != nil {
				log.Warn("rejected request with invalid CSRF token",
					logger.SecurityTag(),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
					zap.String("ip", ClientIP(c)),
					zap.Bool("header_present", headerValue != ""),
					zap.Bool("cookie_present", cookieValue != ""),
				)
			}
			metrics.RecordCSRFFailure()
			response.Error(c, appErrors.ErrCSRF)
			c.Abort()
			return
		}

		c.Next()
	}
}
