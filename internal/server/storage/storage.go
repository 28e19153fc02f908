// Package storage talks to the external object store that holds user
// image assets.
package storage

import (
	"context"

	"github.com/asavelyev/mediahub/internal/server/models"
)

// ObjectStore is the upload/delete surface the asset coordinator needs.
// Upload consumes a staged local file and returns the public URL plus the
// key required to delete the object later.
type ObjectStore interface {
	Upload(ctx context.Context, localPath string) (*models.AssetRef, error)
	Delete(ctx context.Context, storageKey string) error
}
