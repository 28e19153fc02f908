package services

// In-memory fakes shared by the session and asset tests. They implement
// the repository and object-store interfaces with injectable failures so
// every branch of the coordination logic is reachable.

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/asavelyev/mediahub/internal/dbx"
	"github.com/asavelyev/mediahub/internal/logging"
	"github.com/asavelyev/mediahub/internal/server/auth"
	"github.com/asavelyev/mediahub/internal/server/models"
	"github.com/asavelyev/mediahub/internal/server/password"
	usersrepo "github.com/asavelyev/mediahub/internal/server/repositories/users"
)

type memUsersRepo struct {
	mu     sync.Mutex
	users  map[string]*models.User
	nextID int

	createErr    error
	findErr      error
	setTokenErr  error
	rotateErr    error
	setHashErr   error
	updateErr    error
	setAvatarErr error
	setCoverErr  error
}

func newMemUsersRepo() *memUsersRepo {
	return &memUsersRepo{users: make(map[string]*models.User)}
}

func (r *memUsersRepo) Create(ctx context.Context, user *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return nil, r.createErr
	}
	for _, u := range r.users {
		if u.Username == user.Username || u.Email == user.Email {
			return nil, usersrepo.ErrDuplicate
		}
	}
	r.nextID++
	user.ID = fmt.Sprintf("u%d", r.nextID)
	user.CreatedAt = time.Now()
	cp := *user
	r.users[user.ID] = &cp
	return user, nil
}

func (r *memUsersRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	u, ok := r.users[id]
	if !ok {
		return nil, usersrepo.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *memUsersRepo) FindByIdentifier(ctx context.Context, username, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	for _, u := range r.users {
		if (username != "" && u.Username == username) || (email != "" && u.Email == email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, usersrepo.ErrNotFound
}

func (r *memUsersRepo) SetRefreshToken(ctx context.Context, id string, token *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.setTokenErr != nil {
		return r.setTokenErr
	}
	u, ok := r.users[id]
	if !ok {
		return usersrepo.ErrNotFound
	}
	if token == nil {
		u.RefreshToken = nil
		return nil
	}
	cp := *token
	u.RefreshToken = &cp
	return nil
}

func (r *memUsersRepo) RotateRefreshToken(ctx context.Context, id, presented, next string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rotateErr != nil {
		return false, r.rotateErr
	}
	u, ok := r.users[id]
	if !ok || u.RefreshToken == nil || *u.RefreshToken != presented {
		return false, nil
	}
	cp := next
	u.RefreshToken = &cp
	return true, nil
}

func (r *memUsersRepo) SetPasswordHash(ctx context.Context, id, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.setHashErr != nil {
		return r.setHashErr
	}
	u, ok := r.users[id]
	if !ok {
		return usersrepo.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (r *memUsersRepo) UpdateAccount(ctx context.Context, id, fullName, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return nil, r.updateErr
	}
	u, ok := r.users[id]
	if !ok {
		return nil, usersrepo.ErrNotFound
	}
	for otherID, other := range r.users {
		if otherID != id && other.Email == email {
			return nil, usersrepo.ErrDuplicate
		}
	}
	u.FullName = fullName
	u.Email = email
	cp := *u
	return &cp, nil
}

func (r *memUsersRepo) SetAvatar(ctx context.Context, id string, ref models.AssetRef) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.setAvatarErr != nil {
		return r.setAvatarErr
	}
	u, ok := r.users[id]
	if !ok {
		return usersrepo.ErrNotFound
	}
	u.Avatar = ref
	return nil
}

func (r *memUsersRepo) SetCover(ctx context.Context, id string, ref models.AssetRef) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.setCoverErr != nil {
		return r.setCoverErr
	}
	u, ok := r.users[id]
	if !ok {
		return usersrepo.ErrNotFound
	}
	cp := ref
	u.Cover = &cp
	return nil
}

// get returns the stored record without copying, for assertions.
func (r *memUsersRepo) get(id string) *models.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.users[id]
}

type fakeRepoManager struct {
	u *memUsersRepo
}

func (m *fakeRepoManager) Users(db dbx.DBTX) usersrepo.Repository        { return m.u }
func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }

type fakeStore struct {
	mu      sync.Mutex
	seq     int
	objects map[string]bool
	deleted []string

	uploadErr    error
	deleteErr    error
	deleteErrFor map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string]bool)}
}

func (f *fakeStore) Upload(ctx context.Context, localPath string) (*models.AssetRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	f.seq++
	key := fmt.Sprintf("key-%d", f.seq)
	f.objects[key] = true
	return &models.AssetRef{URL: "http://store/media/" + key, StorageKey: key}, nil
}

func (f *fakeStore) Delete(ctx context.Context, storageKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.deleteErrFor[storageKey]; ok {
		return err
	}
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.objects, storageKey)
	f.deleted = append(f.deleted, storageKey)
	return nil
}

func (f *fakeStore) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.objects[key]
}

func (f *fakeStore) objectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

func testLogger() logging.Logger {
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})
	return logging.NewSlogLogger(slog.New(h))
}

func testIssuer() *auth.Issuer {
	return auth.NewIssuer([]byte("access-k"), []byte("refresh-k"), time.Hour, 72*time.Hour)
}

func newSessionService(repo *memUsersRepo, store *fakeStore) *SessionService {
	return NewSessionService(nil, &fakeRepoManager{u: repo}, testIssuer(), store, testLogger())
}

func newAssetService(repo *memUsersRepo, store *fakeStore) *AssetService {
	return NewAssetService(nil, &fakeRepoManager{u: repo}, store, testLogger())
}

// seedUser registers a user directly in the repo with a hashed password
// and an avatar already in the store.
func seedUser(t *testing.T, repo *memUsersRepo, store *fakeStore, username, email, plaintext string) *models.User {
	t.Helper()

	hash, err := password.Hash(plaintext)
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}

	ref, err := store.Upload(context.Background(), "seed")
	if err != nil {
		t.Fatalf("seed upload error: %v", err)
	}

	u, err := repo.Create(context.Background(), &models.User{
		Username:     username,
		Email:        email,
		FullName:     "Seeded User",
		PasswordHash: hash,
		Avatar:       *ref,
	})
	if err != nil {
		t.Fatalf("seed create error: %v", err)
	}
	return u
}
