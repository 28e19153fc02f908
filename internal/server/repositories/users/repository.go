// Package users provides the credential-store repository: the single
// source of truth for user records, including the password hash and the
// one currently valid refresh token.
package users

import (
	"context"
	"errors"

	"github.com/asavelyev/mediahub/internal/server/models"
)

var (
	// ErrNotFound means no user matched the lookup.
	ErrNotFound = errors.New("user not found")
	// ErrDuplicate means the username or email is already taken.
	ErrDuplicate = errors.New("username or email already exists")
)

type Repository interface {
	// Create inserts a new user and returns it with the generated ID and
	// timestamp filled in. Duplicate username/email yields ErrDuplicate.
	Create(ctx context.Context, user *models.User) (*models.User, error)

	// FindByID returns the full record including credential fields.
	FindByID(ctx context.Context, id string) (*models.User, error)

	// FindByIdentifier matches on exact username (stored lowercase) or
	// email. Empty identifiers never match.
	FindByIdentifier(ctx context.Context, username, email string) (*models.User, error)

	// SetRefreshToken overwrites the stored refresh token. A nil token
	// clears it (logout).
	SetRefreshToken(ctx context.Context, id string, token *string) error

	// RotateRefreshToken replaces the stored refresh token only if it
	// still equals presented. It returns false when the stored value has
	// already moved on, which is how concurrent refreshes with the same
	// stale token resolve to a single winner.
	RotateRefreshToken(ctx context.Context, id, presented, next string) (bool, error)

	// SetPasswordHash replaces the password hash wholesale.
	SetPasswordHash(ctx context.Context, id, hash string) error

	// UpdateAccount sets the mutable profile fields.
	UpdateAccount(ctx context.Context, id, fullName, email string) (*models.User, error)

	// SetAvatar / SetCover swap an asset-ref pair atomically.
	SetAvatar(ctx context.Context, id string, ref models.AssetRef) error
	SetCover(ctx context.Context, id string, ref models.AssetRef) error
}
