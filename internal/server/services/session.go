// Package services contains the server-side business logic: the session
// lifecycle (registration, login, logout, refresh-token rotation) and the
// asset replacement coordinator.
package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"strings"

	"github.com/asavelyev/mediahub/internal/apperr"
	"github.com/asavelyev/mediahub/internal/logging"
	"github.com/asavelyev/mediahub/internal/server/auth"
	"github.com/asavelyev/mediahub/internal/server/models"
	"github.com/asavelyev/mediahub/internal/server/password"
	"github.com/asavelyev/mediahub/internal/server/repositories/repomanager"
	"github.com/asavelyev/mediahub/internal/server/repositories/users"
	"github.com/asavelyev/mediahub/internal/server/storage"
)

// TokenPair bundles a short-lived access token and a long-lived refresh
// token.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// RegisterParams carries the registration input. AvatarPath must point at
// a staged upload; CoverPath is optional.
type RegisterParams struct {
	Username   string
	Email      string
	FullName   string
	Password   string
	AvatarPath string
	CoverPath  string
}

// SessionService owns the credential checks and the single-active-session
// refresh token per user. A refresh token that does not byte-for-byte
// match the stored value is rejected even when cryptographically valid.
type SessionService struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	issuer *auth.Issuer
	store  storage.ObjectStore
	logger logging.Logger
}

func NewSessionService(db *sql.DB, repos repomanager.RepositoryManager, issuer *auth.Issuer,
	store storage.ObjectStore, logger logging.Logger) *SessionService {
	return &SessionService{
		db:     db,
		repos:  repos,
		issuer: issuer,
		store:  store,
		logger: logger.With("component", "sessions"),
	}
}

// Register creates a user. The avatar must upload successfully before the
// record is created; a failed creation after upload triggers a best-effort
// delete of the uploaded objects so the store holds no orphans.
func (s *SessionService) Register(ctx context.Context, p RegisterParams) (*models.RedactedUser, error) {
	for _, field := range []string{p.Username, p.Email, p.FullName, p.Password} {
		if strings.TrimSpace(field) == "" {
			return nil, apperr.InvalidInput("all fields are required")
		}
	}
	if p.AvatarPath == "" {
		return nil, apperr.InvalidInput("avatar file is required")
	}

	username := strings.ToLower(p.Username)
	repo := s.repos.Users(s.db)

	if _, err := repo.FindByIdentifier(ctx, username, p.Email); err == nil {
		return nil, apperr.Conflict("user with email or username already exists")
	} else if !errors.Is(err, users.ErrNotFound) {
		return nil, apperr.Internal(err)
	}

	hash, err := password.Hash(p.Password)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	avatar, err := s.store.Upload(ctx, p.AvatarPath)
	if err != nil {
		return nil, apperr.UploadFailed("avatar upload failed").WithCause(err)
	}

	var cover *models.AssetRef
	if p.CoverPath != "" {
		cover, err = s.store.Upload(ctx, p.CoverPath)
		if err != nil {
			s.discard(ctx, avatar.StorageKey)
			return nil, apperr.UploadFailed("cover image upload failed").WithCause(err)
		}
	}

	user := &models.User{
		Username:     username,
		Email:        p.Email,
		FullName:     p.FullName,
		PasswordHash: hash,
		Avatar:       *avatar,
		Cover:        cover,
	}

	created, err := repo.Create(ctx, user)
	if err != nil {
		s.discard(ctx, avatar.StorageKey)
		if cover != nil {
			s.discard(ctx, cover.StorageKey)
		}
		if errors.Is(err, users.ErrDuplicate) {
			return nil, apperr.Conflict("user with email or username already exists")
		}
		return nil, apperr.Internal(err)
	}

	s.logger.Info(ctx, "user registered", "user_id", created.ID, "username", created.Username)
	return created.Redacted(), nil
}

// Login verifies credentials, mints a token pair and persists the refresh
// token as the user's single live session. Tokens are only returned once
// the refresh token is stored.
func (s *SessionService) Login(ctx context.Context, username, email, plaintext string) (*models.RedactedUser, *TokenPair, error) {
	if username == "" && email == "" {
		return nil, nil, apperr.InvalidInput("username or email required")
	}

	repo := s.repos.Users(s.db)

	user, err := repo.FindByIdentifier(ctx, strings.ToLower(username), email)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return nil, nil, apperr.NotFound("user does not exist")
		}
		return nil, nil, apperr.Internal(err)
	}

	if !password.Verify(plaintext, user.PasswordHash) {
		return nil, nil, apperr.Unauthorized("password incorrect")
	}

	pair, err := s.issuePair(user.ID)
	if err != nil {
		return nil, nil, apperr.Internal(err)
	}

	if err := repo.SetRefreshToken(ctx, user.ID, &pair.RefreshToken); err != nil {
		// An issued-but-unpersisted refresh token must never reach the
		// caller.
		return nil, nil, apperr.Internal(err)
	}

	s.logger.Info(ctx, "user logged in", "user_id", user.ID)
	return user.Redacted(), pair, nil
}

// Refresh rotates the refresh token. Presenting any token other than the
// stored one, including a token already rotated out, fails with 401; that
// mismatch is the replay defense.
func (s *SessionService) Refresh(ctx context.Context, presented string) (*TokenPair, error) {
	if presented == "" {
		return nil, apperr.Unauthorized("unauthorized request")
	}

	userID, err := s.issuer.VerifyRefreshToken(presented)
	if err != nil {
		return nil, apperr.Unauthorized("invalid/expired refresh token")
	}

	repo := s.repos.Users(s.db)

	user, err := repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return nil, apperr.Unauthorized("invalid/expired refresh token")
		}
		return nil, apperr.Internal(err)
	}

	if user.RefreshToken == nil ||
		subtle.ConstantTimeCompare([]byte(presented), []byte(*user.RefreshToken)) != 1 {
		return nil, apperr.Unauthorized("refresh token is expired or already used")
	}

	pair, err := s.issuePair(user.ID)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	// Conditional rotation: when two callers race with the same token,
	// exactly one UPDATE matches and the loser gets 401.
	rotated, err := repo.RotateRefreshToken(ctx, user.ID, presented, pair.RefreshToken)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if !rotated {
		return nil, apperr.Unauthorized("refresh token is expired or already used")
	}

	s.logger.Info(ctx, "refresh token rotated", "user_id", user.ID)
	return pair, nil
}

// Logout clears the stored refresh token; every previously issued refresh
// token for the user is dead from here on.
func (s *SessionService) Logout(ctx context.Context, userID string) error {
	repo := s.repos.Users(s.db)

	if err := repo.SetRefreshToken(ctx, userID, nil); err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return apperr.NotFound("user does not exist")
		}
		return apperr.Internal(err)
	}

	s.logger.Info(ctx, "user logged out", "user_id", userID)
	return nil
}

// ChangePassword verifies the old password and replaces the hash.
func (s *SessionService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if strings.TrimSpace(newPassword) == "" {
		return apperr.InvalidInput("new password is required")
	}

	repo := s.repos.Users(s.db)

	user, err := repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return apperr.NotFound("user does not exist")
		}
		return apperr.Internal(err)
	}

	if !password.Verify(oldPassword, user.PasswordHash) {
		return apperr.Unauthorized("old password incorrect")
	}

	hash, err := password.Hash(newPassword)
	if err != nil {
		return apperr.Internal(err)
	}

	if err := repo.SetPasswordHash(ctx, userID, hash); err != nil {
		return apperr.Internal(err)
	}

	s.logger.Info(ctx, "password changed", "user_id", userID)
	return nil
}

// UpdateAccount sets the mutable profile fields. Both are required, as in
// the account form.
func (s *SessionService) UpdateAccount(ctx context.Context, userID, fullName, email string) (*models.RedactedUser, error) {
	if strings.TrimSpace(fullName) == "" || strings.TrimSpace(email) == "" {
		return nil, apperr.InvalidInput("all fields are required")
	}

	repo := s.repos.Users(s.db)

	user, err := repo.UpdateAccount(ctx, userID, fullName, email)
	if err != nil {
		switch {
		case errors.Is(err, users.ErrNotFound):
			return nil, apperr.NotFound("user does not exist")
		case errors.Is(err, users.ErrDuplicate):
			return nil, apperr.Conflict("email already in use")
		default:
			return nil, apperr.Internal(err)
		}
	}

	return user.Redacted(), nil
}

// CurrentUser returns the redacted record for an authenticated caller.
func (s *SessionService) CurrentUser(ctx context.Context, userID string) (*models.RedactedUser, error) {
	repo := s.repos.Users(s.db)

	user, err := repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return nil, apperr.NotFound("user does not exist")
		}
		return nil, apperr.Internal(err)
	}

	return user.Redacted(), nil
}

func (s *SessionService) issuePair(userID string) (*TokenPair, error) {
	access, err := s.issuer.IssueAccessToken(userID)
	if err != nil {
		return nil, err
	}
	refresh, err := s.issuer.IssueRefreshToken(userID)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// discard is the compensating delete for an uploaded object that never got
// referenced. Failure leaves only a harmless orphan, so it is logged, not
// returned.
func (s *SessionService) discard(ctx context.Context, storageKey string) {
	if err := s.store.Delete(ctx, storageKey); err != nil {
		s.logger.Warn(ctx, "orphaned asset left in object store", "storage_key", storageKey, "error", err.Error())
	}
}
