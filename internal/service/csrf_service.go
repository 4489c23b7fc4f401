package service

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/scanform/scanform-api/pkg/errors"
)

// Cookie and header names of the double-submit pair. The cookie half is
// HTTP-only; the client echoes the body-delivered value in the header.
const (
	CSRFCookieName = "csrf_token"
	CSRFHeaderName = "X-CSRF-Token"
)

const csrfTokenBytes = 32

// CSRFService implements the double-submit cookie protocol: a random
// token is handed out once via cookie and response body, and every
// mutating request must present matching cookie and header values.
type CSRFService struct {
	ttl    time.Duration
	logger *zap.Logger
}

// NewCSRFService constructs a CSRF service.
func NewCSRFService(ttl time.Duration, log *zap.Logger) *CSRFService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CSRFService{ttl: ttl, logger: log}
}

// GenerateToken returns a fresh hex-encoded random token.
func (s *CSRFService) GenerateToken() (string, error) {
	buf := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate CSRF token")
	}
	return hex.EncodeToString(buf), nil
}

// TokenTTL returns the cookie lifetime.
func (s *CSRFService) TokenTTL() time.Duration {
	return s.ttl
}

// Validate compares header and cookie values. Both must be present and
// byte-for-byte equal; the comparison is constant time.
func (s *CSRFService) Validate(headerValue, cookieValue string) bool {
	if headerValue == "" || cookieValue == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(headerValue), []byte(cookieValue)) == 1
}
