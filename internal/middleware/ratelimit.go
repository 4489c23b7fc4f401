package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/scanform/scanform-api/internal/ratelimit"
	"github.com/scanform/scanform-api/internal/service"
	appErrors "github.com/scanform/scanform-api/pkg/errors"
	"github.com/scanform/scanform-api/pkg/logger"
	"github.com/scanform/scanform-api/pkg/response"
)

// RateLimitOptions bind one limiter configuration to a route group.
type RateLimitOptions struct {
	Limit  int
	Window time.Duration
	// RouteID overrides the route part of the counter key; defaults
	// to the matched route pattern.
	RouteID string
}

// ClientIP derives the client identity for rate limiting: first hop of
// X-Forwarded-For, then X-Real-IP, then the connection address.
func ClientIP(c *gin.Context) string {
	if fwd := c.GetHeader("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.SplitN(fwd, ",", 2)[0])
	}
	if real := c.GetHeader("X-Real-IP"); real != "" {
		return real
	}
	return c.ClientIP()
}

// RateLimit applies a fixed-window limiter keyed by client IP and
// route. X-RateLimit headers are set on every response; the reset time
// is reported in epoch milliseconds.
func RateLimit(limiter ratelimit.Limiter, opts RateLimitOptions, log *zap.Logger, metrics *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		routeID := opts.RouteID
		if routeID == "" {
			routeID = c.FullPath()
			if routeID == "" {
				routeID = c.Request.URL.Path
			}
		}

		key := ClientIP(c) + ":" + routeID
		result := limiter.Check(c.Request.Context(), key, opts.Limit, opts.Window)

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.UnixMilli(), 10))

		if !result.Allowed {
			if log != nil {
				log.Warn("rate limit exceeded",
					logger.SecurityTag(),
					zap.String("ip", ClientIP(c)),
					zap.String("route", routeID),
					zap.Int("limit", result.Limit),
				)
			}
			metrics.RecordRateLimited()
			response.Error(c, appErrors.ErrTooManyRequests)
			c.Abort()
			return
		}

		c.Next()
	}
}
