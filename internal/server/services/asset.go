package services

import (
	"context"
	"database/sql"
	"errors"

	"github.com/asavelyev/mediahub/internal/apperr"
	"github.com/asavelyev/mediahub/internal/logging"
	"github.com/asavelyev/mediahub/internal/server/models"
	"github.com/asavelyev/mediahub/internal/server/repositories/repomanager"
	"github.com/asavelyev/mediahub/internal/server/repositories/users"
	"github.com/asavelyev/mediahub/internal/server/storage"
)

// AssetService replaces a user's externally stored image assets. The
// ordering is upload -> commit reference -> delete old: the user is never
// left without an asset, and the worst leftover is an orphaned blob in the
// store, never a referenced-but-missing one.
type AssetService struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	store  storage.ObjectStore
	logger logging.Logger
}

func NewAssetService(db *sql.DB, repos repomanager.RepositoryManager,
	store storage.ObjectStore, logger logging.Logger) *AssetService {
	return &AssetService{
		db:     db,
		repos:  repos,
		store:  store,
		logger: logger.With("component", "assets"),
	}
}

// assetSlot selects which of the two asset-ref fields an operation works
// on.
type assetSlot int

const (
	slotAvatar assetSlot = iota
	slotCover
)

func (a assetSlot) requiredMessage() string {
	if a == slotCover {
		return "cover image file is required"
	}
	return "avatar file is required"
}

func (a assetSlot) uploadFailedMessage() string {
	if a == slotCover {
		return "error while uploading cover image"
	}
	return "error while uploading avatar"
}

// ReplaceAvatar swaps the user's avatar for the staged file.
func (s *AssetService) ReplaceAvatar(ctx context.Context, userID, localPath string) (*models.RedactedUser, error) {
	return s.replace(ctx, userID, localPath, slotAvatar)
}

// ReplaceCover swaps the user's cover image for the staged file.
func (s *AssetService) ReplaceCover(ctx context.Context, userID, localPath string) (*models.RedactedUser, error) {
	return s.replace(ctx, userID, localPath, slotCover)
}

func (s *AssetService) replace(ctx context.Context, userID, localPath string, slot assetSlot) (*models.RedactedUser, error) {
	if localPath == "" {
		return nil, apperr.InvalidInput(slot.requiredMessage())
	}

	repo := s.repos.Users(s.db)

	// The prior reference comes from the user record, never from shared
	// process state.
	user, err := repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return nil, apperr.NotFound("user does not exist")
		}
		return nil, apperr.Internal(err)
	}

	var old *models.AssetRef
	switch slot {
	case slotAvatar:
		old = &user.Avatar
	case slotCover:
		old = user.Cover
	}

	// Step 1: upload the replacement. On failure nothing has changed.
	newRef, err := s.store.Upload(ctx, localPath)
	if err != nil {
		return nil, apperr.UploadFailed(slot.uploadFailedMessage()).WithCause(err)
	}

	// Step 2: commit the new reference. On failure, compensate by deleting
	// the just-uploaded object; the caller sees the persistence error, not
	// the cleanup outcome.
	switch slot {
	case slotAvatar:
		err = repo.SetAvatar(ctx, userID, *newRef)
	case slotCover:
		err = repo.SetCover(ctx, userID, *newRef)
	}
	if err != nil {
		if delErr := s.store.Delete(ctx, newRef.StorageKey); delErr != nil {
			s.logger.Warn(ctx, "orphaned asset left in object store",
				"storage_key", newRef.StorageKey, "error", delErr.Error())
		}
		if errors.Is(err, users.ErrNotFound) {
			return nil, apperr.NotFound("user does not exist")
		}
		return nil, apperr.Internal(err)
	}

	// Step 3: only now delete the previous object. The operation already
	// succeeded, so a failure here is an orphan warning, not an error.
	if old != nil && old.StorageKey != "" {
		if delErr := s.store.Delete(ctx, old.StorageKey); delErr != nil {
			s.logger.Warn(ctx, "orphaned asset left in object store",
				"storage_key", old.StorageKey, "error", delErr.Error())
		}
	}

	switch slot {
	case slotAvatar:
		user.Avatar = *newRef
	case slotCover:
		user.Cover = newRef
	}

	s.logger.Info(ctx, "asset replaced", "user_id", userID, "storage_key", newRef.StorageKey)
	return user.Redacted(), nil
}
