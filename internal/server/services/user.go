// Package services contains server-side business logic. This file implements
// UserService, which handles registration, login, issuing/refreshing JWTs
// plus server-stored refresh tokens, and logout.
package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dmitrijs2005/authgate/internal/common"
	"github.com/dmitrijs2005/authgate/internal/dbx"
	"github.com/dmitrijs2005/authgate/internal/logging"
	"github.com/dmitrijs2005/authgate/internal/server/auth"
	"github.com/dmitrijs2005/authgate/internal/server/config"
	"github.com/dmitrijs2005/authgate/internal/server/models"
	"github.com/dmitrijs2005/authgate/internal/server/repositories/repomanager"
)

// RegisterInput carries the fields accepted at registration.
type RegisterInput struct {
	Username  string
	Email     string
	Password  string
	Role      models.Role
	FirstName string
	LastName  string
	Bio       string
}

// LoginResult bundles the credentials issued on a successful login.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	User         *models.PublicUser
}

// UserService provides the authentication lifecycle:
//   - Register: create accounts
//   - Login: verify credentials and mint an access+refresh pair
//   - Refresh: exchange a stored refresh token for a new access token
//   - Logout: revoke all refresh tokens for a user
//
// All failures are mapped to common sentinels before crossing this boundary;
// storage and crypto library errors are logged here, never returned.
type UserService struct {
	db                           *sql.DB
	repomanager                  repomanager.RepositoryManager
	logger                       logging.Logger
	jwtSecret                    []byte
	bcryptCost                   int
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
	queryTimeout                 time.Duration
}

// NewUserService constructs a UserService using repositories and server config.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, l logging.Logger, cfg *config.Config) *UserService {
	return &UserService{
		db:                           db,
		repomanager:                  m,
		logger:                       l.With("module", "user_service"),
		jwtSecret:                    []byte(cfg.SecretKey),
		bcryptCost:                   cfg.BcryptCost,
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
		queryTimeout:                 cfg.QueryTimeout,
	}
}

// Register validates the input, hashes the password, and stores a new user.
// Duplicate username/email yields common.ErrConflict; the returned view never
// contains the password hash.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.PublicUser, error) {
	if in.Username == "" || in.Email == "" || in.Password == "" || !in.Role.Valid() {
		return nil, common.ErrValidation
	}

	hash, err := auth.HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		s.logger.Error(ctx, "password hashing failed", "error", err)
		return nil, common.ErrorInternal
	}

	user := &models.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         in.Role,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Bio:          in.Bio,
	}

	qctx, cancel := s.storeCtx(ctx)
	defer cancel()

	created, err := s.repomanager.Users(s.db).Create(qctx, user)
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, common.ErrConflict
		}
		s.logger.Error(ctx, "user insert failed", "error", err)
		return nil, common.ErrStorage
	}

	return created.Public(), nil
}

// Login verifies the email/password pair and, on success, issues an access
// token and a fresh refresh token, deleting all previously stored refresh
// tokens for the user (single active session).
//
// The password check runs even when no account matches the email, against a
// dummy hash, so response timing does not reveal account existence. Unknown
// email and wrong password produce the identical ErrInvalidCredentials.
func (s *UserService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	qctx, cancel := s.storeCtx(ctx)
	user, err := s.repomanager.Users(s.db).GetByEmail(qctx, email)
	cancel()
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		s.logger.Error(ctx, "user lookup failed", "error", err)
		return nil, common.ErrStorage
	}

	hash := auth.DummyHash
	if user != nil {
		hash = user.PasswordHash
	}
	match := auth.CheckPassword(password, hash)

	if user == nil || !match {
		return nil, common.ErrInvalidCredentials
	}

	// checked only after the password is known good, so the error message
	// reaches legitimate owners of suspended accounts and nobody else
	if !user.Active {
		return nil, common.ErrAccountSuspended
	}

	accessToken, err := auth.GenerateToken(user.ID, user.Role, s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		s.logger.Error(ctx, "access token signing failed", "error", err)
		return nil, common.ErrorInternal
	}

	refreshToken, err := auth.NewRefreshTokenValue()
	if err != nil {
		s.logger.Error(ctx, "refresh token generation failed", "error", err)
		return nil, common.ErrorInternal
	}

	// rotate in one transaction: the delete and the insert must land together
	qctx, cancel = s.storeCtx(ctx)
	defer cancel()
	err = dbx.WithTx(qctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.RefreshTokens(tx)
		if err := repo.DeleteByUser(ctx, user.ID); err != nil {
			return err
		}
		return repo.Create(ctx, user.ID, refreshToken, s.refreshTokenValidityDuration)
	})
	if err != nil {
		s.logger.Error(ctx, "refresh token rotation failed", "error", err)
		return nil, common.ErrStorage
	}

	return &LoginResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         user.Public(),
	}, nil
}

// Refresh exchanges a stored refresh token for a new access token bound to
// the owner's current role (re-read from storage, not taken from any old
// token). The refresh token itself is not rotated: repeated calls with the
// same value keep working until it expires on its own.
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", common.ErrMissingRefreshToken
	}

	qctx, cancel := s.storeCtx(ctx)
	stored, err := s.repomanager.RefreshTokens(s.db).Find(qctx, refreshToken)
	cancel()
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", common.ErrInvalidRefreshToken
		}
		s.logger.Error(ctx, "refresh token lookup failed", "error", err)
		return "", common.ErrStorage
	}

	if stored.Expires.Before(time.Now()) {
		qctx, cancel := s.storeCtx(ctx)
		if err := s.repomanager.RefreshTokens(s.db).DeleteByID(qctx, stored.ID); err != nil {
			s.logger.Warn(ctx, "expired refresh token cleanup failed", "error", err)
		}
		cancel()
		return "", common.ErrSessionExpired
	}

	qctx, cancel = s.storeCtx(ctx)
	user, err := s.repomanager.Users(s.db).GetByID(qctx, stored.UserID)
	cancel()
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", common.ErrAccountInvalid
		}
		s.logger.Error(ctx, "user lookup failed", "error", err)
		return "", common.ErrStorage
	}
	if !user.Active {
		return "", common.ErrAccountInvalid
	}

	accessToken, err := auth.GenerateToken(user.ID, user.Role, s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		s.logger.Error(ctx, "access token signing failed", "error", err)
		return "", common.ErrorInternal
	}

	return accessToken, nil
}

// Me returns the public view of the account, re-read from storage so the
// caller sees current data rather than whatever the token was minted with.
func (s *UserService) Me(ctx context.Context, userID string) (*models.PublicUser, error) {
	qctx, cancel := s.storeCtx(ctx)
	defer cancel()

	user, err := s.repomanager.Users(s.db).GetByID(qctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrAccountInvalid
		}
		s.logger.Error(ctx, "user lookup failed", "error", err)
		return nil, common.ErrStorage
	}

	return user.Public(), nil
}

// Logout deletes all refresh tokens owned by the user, returning the session
// state to anonymous. Already-issued access tokens cannot be revoked early;
// they expire on their own within the access validity window.
func (s *UserService) Logout(ctx context.Context, userID string) error {
	qctx, cancel := s.storeCtx(ctx)
	defer cancel()

	if err := s.repomanager.RefreshTokens(s.db).DeleteByUser(qctx, userID); err != nil {
		s.logger.Error(ctx, "refresh token revocation failed", "error", err)
		return common.ErrStorage
	}
	return nil
}

// storeCtx bounds a storage call with the configured query timeout.
func (s *UserService) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.queryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.queryTimeout)
}
