package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/scanform/scanform-api/internal/models"
	"github.com/scanform/scanform-api/internal/token"
	appErrors "github.com/scanform/scanform-api/pkg/errors"
	"github.com/scanform/scanform-api/pkg/logger"
)

type sessionUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
	UpdateLastLogin(ctx context.Context, id string, ts time.Time) error
}

type revocationStore interface {
	CurrentGeneration(ctx context.Context, userID string) (int, error)
	BumpGeneration(ctx context.Context, userID string) (int, error)
	Denylist(ctx context.Context, jti string, ttl time.Duration) error
	IsDenylisted(ctx context.Context, jti string) (bool, error)
}

// SessionService issues, verifies and revokes token pairs. Verification
// runs the full chain: cryptographic check, denylist lookup, generation
// comparison. Revocation-store failures reject the token (fail closed);
// the store is never silently trusted as empty.
type SessionService struct {
	users       sessionUserRepository
	revocations revocationStore
	access      *token.Codec
	refresh     *token.Codec
	validator   *validator.Validate
	logger      *zap.Logger
	metrics     *MetricsService
}

// NewSessionService constructs a SessionService instance.
func NewSessionService(users sessionUserRepository, revocations revocationStore, access, refresh *token.Codec, validate *validator.Validate, log *zap.Logger, metrics *MetricsService) *SessionService {
	if log == nil {
		log = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &SessionService{
		users:       users,
		revocations: revocations,
		access:      access,
		refresh:     refresh,
		validator:   validate,
		logger:      log,
		metrics:     metrics,
	}
}

// Register creates a business account and signs it in.
func (s *SessionService) Register(ctx context.Context, req models.RegisterRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}

	if _, err := s.users.FindByEmail(ctx, req.Email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email is already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing account")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		PasswordHash: string(hash),
		Name:         req.Name,
		Role:         models.RoleBusiness,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create account")
	}

	s.logger.Info("account registered", logger.SecurityTag(), zap.String("user_id", user.ID), zap.String("ip", req.IP))

	return s.issueSession(ctx, user)
}

// Login authenticates a user and returns a fresh token pair.
func (s *SessionService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("login failed for unknown email", logger.SecurityTag(), zap.String("ip", req.IP))
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	if !user.Active {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.logger.Warn("login failed with wrong password", logger.SecurityTag(), zap.String("user_id", user.ID), zap.String("ip", req.IP))
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID, time.Now().UTC()); err != nil {
		s.logger.Warn("failed to update last login", zap.Error(err))
	}

	s.logger.Info("user logged in", logger.SecurityTag(), zap.String("user_id", user.ID), zap.String("ip", req.IP))

	return s.issueSession(ctx, user)
}

// VerifyAccess validates an access token against signature, expiry,
// denylist and generation state, returning the claims on success.
func (s *SessionService) VerifyAccess(ctx context.Context, tokenString string) (*models.TokenClaims, error) {
	claims, err := s.access.Verify(tokenString)
	if err != nil {
		s.metrics.RecordAuthRejection(appErrors.FromError(err).Code)
		return nil, err
	}

	if err := s.checkRevocation(ctx, claims); err != nil {
		s.metrics.RecordAuthRejection(appErrors.FromError(err).Code)
		return nil, err
	}

	return claims, nil
}

// Refresh rotates a refresh token: the presented token's jti is
// denylisted before the new pair is issued, so a replay of the old
// token after a successful refresh is always rejected.
func (s *SessionService) Refresh(ctx context.Context, refreshToken, ip string) (*models.LoginResponse, error) {
	claims, err := s.refresh.Verify(refreshToken)
	if err != nil {
		s.metrics.RecordAuthRejection(appErrors.FromError(err).Code)
		return nil, err
	}

	if err := s.checkRevocation(ctx, claims); err != nil {
		s.metrics.RecordAuthRejection(appErrors.FromError(err).Code)
		return nil, err
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "account no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if !user.Active {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "")
	}

	// Denylist first, then issue. The reverse order would leave a
	// window where the old refresh token is still redeemable.
	if err := s.denylistClaims(ctx, claims, s.refresh.TTL()); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "refresh could not be completed")
	}

	s.logger.Info("refresh token rotated", logger.SecurityTag(), zap.String("user_id", user.ID), zap.String("jti", claims.ID), zap.String("ip", ip))

	return s.issueSession(ctx, user)
}

// Logout denylists the presented tokens. Both jtis are revoked when the
// refresh token is supplied; with only the access token the refresh
// token stays live until its next (rotating) use or natural expiry.
func (s *SessionService) Logout(ctx context.Context, accessToken, refreshToken string) error {
	claims, err := s.access.Verify(accessToken)
	if err != nil {
		return err
	}

	if err := s.denylistClaims(ctx, claims, s.access.TTL()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "logout could not be completed")
	}

	if refreshToken != "" {
		if refreshClaims, err := s.refresh.Verify(refreshToken); err == nil {
			if err := s.denylistClaims(ctx, refreshClaims, s.refresh.TTL()); err != nil {
				return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "logout could not be completed")
			}
		}
	} else {
		s.logger.Warn("logout without refresh token, refresh stays valid until rotation", logger.SecurityTag(), zap.String("user_id", claims.UserID))
	}

	s.logger.Info("user logged out", logger.SecurityTag(), zap.String("user_id", claims.UserID), zap.String("jti", claims.ID))
	return nil
}

// ForceRotation bumps the user's token generation, invalidating every
// outstanding token regardless of individual denylist state. Used for
// security events such as password changes.
func (s *SessionService) ForceRotation(ctx context.Context, userID string) (int, error) {
	gen, err := s.revocations.BumpGeneration(ctx, userID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to rotate sessions")
	}

	s.logger.Info("forced token rotation", logger.SecurityTag(), zap.String("user_id", userID), zap.Int("generation", gen))
	return gen, nil
}

// ChangePassword updates the password and rotates every session of the
// user. A failed rotation fails the whole operation so stale tokens
// never outlive a password change.
func (s *SessionService) ChangePassword(ctx context.Context, userID string, req models.ChangePasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid change password payload")
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.OldPassword)); err != nil {
		return appErrors.Clone(appErrors.ErrForbidden, "old password does not match")
	}

	newHash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	if err := s.users.UpdatePassword(ctx, userID, string(newHash), time.Now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update password")
	}

	if _, err := s.ForceRotation(ctx, userID); err != nil {
		return err
	}

	return nil
}

// AccessTTL exposes the configured access token lifetime for cookie
// max-age values.
func (s *SessionService) AccessTTL() time.Duration {
	return s.access.TTL()
}

// RefreshTTL exposes the configured refresh token lifetime.
func (s *SessionService) RefreshTTL() time.Duration {
	return s.refresh.TTL()
}

// checkRevocation runs the store-backed half of verification. Any store
// error makes the token unverifiable and therefore invalid.
func (s *SessionService) checkRevocation(ctx context.Context, claims *models.TokenClaims) error {
	denied, err := s.revocations.IsDenylisted(ctx, claims.ID)
	if err != nil {
		s.logger.Error("denylist check failed, rejecting token", logger.SecurityTag(), zap.Error(err))
		return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, appErrors.ErrStoreUnavailable.Message)
	}
	if denied {
		s.logger.Warn("rejected denylisted token", logger.SecurityTag(), zap.String("user_id", claims.UserID), zap.String("jti", claims.ID))
		return appErrors.Clone(appErrors.ErrTokenRevoked, "")
	}

	current, err := s.revocations.CurrentGeneration(ctx, claims.UserID)
	if err != nil {
		s.logger.Error("generation check failed, rejecting token", logger.SecurityTag(), zap.Error(err))
		return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, appErrors.ErrStoreUnavailable.Message)
	}
	if claims.Generation < current {
		s.logger.Warn("rejected token from superseded generation", logger.SecurityTag(), zap.String("user_id", claims.UserID), zap.Int("token_generation", claims.Generation), zap.Int("current_generation", current))
		return appErrors.Clone(appErrors.ErrTokenRevoked, "token generation superseded")
	}

	return nil
}

// issueSession reads the user's current generation and issues a token
// pair stamped with it. Both tokens share the generation but carry
// distinct jtis and are signed with different secrets.
func (s *SessionService) issueSession(ctx context.Context, user *models.User) (*models.LoginResponse, error) {
	gen, err := s.revocations.CurrentGeneration(ctx, user.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read token generation")
	}

	accessJTI, err := generateTokenID()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate token id")
	}
	refreshJTI, err := generateTokenID()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate token id")
	}

	accessToken, err := s.access.Issue(user.ID, user.Email, user.Role, accessJTI, gen)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.refresh.Issue(user.ID, user.Email, user.Role, refreshJTI, gen)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordTokenIssued()

	return &models.LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.access.TTL().Seconds()),
		IssuedAt:     time.Now().UTC(),
		User: models.UserInfo{
			ID:    user.ID,
			Email: user.Email,
			Name:  user.Name,
			Role:  user.Role,
		},
	}, nil
}

// denylistClaims revokes a single token, bounding the entry TTL by both
// the token's remaining lifetime and the signing TTL of its kind.
func (s *SessionService) denylistClaims(ctx context.Context, claims *models.TokenClaims, maxTTL time.Duration) error {
	ttl := maxTTL
	if claims.ExpiresAt != nil {
		if remaining := time.Until(claims.ExpiresAt.Time); remaining < ttl {
			ttl = remaining
		}
	}
	if ttl <= 0 {
		return nil
	}
	return s.revocations.Denylist(ctx, claims.ID, ttl)
}

func generateTokenID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
