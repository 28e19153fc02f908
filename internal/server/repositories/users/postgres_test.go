package users

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/asavelyev/mediahub/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func userRows(u *models.User) *sqlmock.Rows {
	var coverURL, coverKey, refresh any
	if u.Cover != nil {
		coverURL, coverKey = u.Cover.URL, u.Cover.StorageKey
	}
	if u.RefreshToken != nil {
		refresh = *u.RefreshToken
	}
	return sqlmock.NewRows([]string{
		"id", "username", "email", "full_name", "password_hash",
		"avatar_url", "avatar_storage_key", "cover_url", "cover_storage_key",
		"refresh_token", "created_at",
	}).AddRow(u.ID, u.Username, u.Email, u.FullName, u.PasswordHash,
		u.Avatar.URL, u.Avatar.StorageKey, coverURL, coverKey, refresh, u.CreatedAt)
}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*INSERT\s+INTO\s+users\b.*RETURNING\s+id,\s*created_at\s*$`

	created := time.Now()
	mock.ExpectQuery(q).
		WithArgs("alice", "a@x.com", "Alice", "hash",
			"http://s3/avatar", "key-a", nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("u1", created))

	user := &models.User{
		Username:     "alice",
		Email:        "a@x.com",
		FullName:     "Alice",
		PasswordHash: "hash",
		Avatar:       models.AssetRef{URL: "http://s3/avatar", StorageKey: "key-a"},
	}
	got, err := repo.Create(context.Background(), user)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "u1" || !got.CreatedAt.Equal(created) {
		t.Fatalf("unexpected user: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreate_Duplicate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^\s*INSERT\s+INTO\s+users\b`).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := repo.Create(context.Background(), &models.User{})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("want ErrDuplicate, got %v", err)
	}
}

func TestFindByIdentifier_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	token := "refresh-1"
	want := &models.User{
		ID: "u1", Username: "alice", Email: "a@x.com", FullName: "Alice",
		PasswordHash: "hash",
		Avatar:       models.AssetRef{URL: "http://s3/a", StorageKey: "k1"},
		RefreshToken: &token,
		CreatedAt:    time.Now(),
	}

	mock.ExpectQuery(`(?s)^\s*SELECT\s+.*FROM\s+users\s+WHERE\s+\(username\s*=\s*\$1`).
		WithArgs("alice", "").
		WillReturnRows(userRows(want))

	got, err := repo.FindByIdentifier(context.Background(), "alice", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "u1" || got.RefreshToken == nil || *got.RefreshToken != "refresh-1" {
		t.Fatalf("unexpected user: %+v", got)
	}
	if got.Cover != nil {
		t.Fatalf("expected nil cover, got %+v", got.Cover)
	}
}

func TestFindByID_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^\s*SELECT\s+.*FROM\s+users\s+WHERE\s+id\s*=\s*\$1\s*$`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestFindByID_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^\s*SELECT\s+.*FROM\s+users\s+WHERE\s+id\s*=\s*\$1\s*$`).
		WithArgs("u1").
		WillReturnError(errors.New("db down"))

	_, err := repo.FindByID(context.Background(), "u1")
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestSetRefreshToken_SetAndClear(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*UPDATE\s+users\s+SET\s+refresh_token\s*=\s*\$2\s+WHERE\s+id\s*=\s*\$1\s*$`

	token := "tok"
	mock.ExpectExec(q).WithArgs("u1", &token).WillReturnResult(sqlmock.NewResult(0, 1))
	if err := repo.SetRefreshToken(context.Background(), "u1", &token); err != nil {
		t.Fatalf("set: unexpected error: %v", err)
	}

	mock.ExpectExec(q).WithArgs("u1", nil).WillReturnResult(sqlmock.NewResult(0, 1))
	if err := repo.SetRefreshToken(context.Background(), "u1", nil); err != nil {
		t.Fatalf("clear: unexpected error: %v", err)
	}
}

func TestSetRefreshToken_NoSuchUser(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^\s*UPDATE\s+users\s+SET\s+refresh_token`).
		WithArgs("ghost", nil).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetRefreshToken(context.Background(), "ghost", nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestRotateRefreshToken_WinnerAndLoser(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*UPDATE\s+users\s+SET\s+refresh_token\s*=\s*\$3\s+WHERE\s+id\s*=\s*\$1\s+AND\s+refresh_token\s*=\s*\$2\s*$`

	mock.ExpectExec(q).
		WithArgs("u1", "old", "new").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.RotateRefreshToken(context.Background(), "u1", "old", "new")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected rotation to win")
	}

	// second caller presenting the already-rotated token
	mock.ExpectExec(q).
		WithArgs("u1", "old", "new2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err = repo.RotateRefreshToken(context.Background(), "u1", "old", "new2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("stale token must not rotate")
	}
}

func TestUpdateAccount_ReturnsUpdatedRow(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	want := &models.User{
		ID: "u1", Username: "alice", Email: "new@x.com", FullName: "Alice B",
		PasswordHash: "hash",
		Avatar:       models.AssetRef{URL: "http://s3/a", StorageKey: "k1"},
		CreatedAt:    time.Now(),
	}

	mock.ExpectQuery(`(?s)^\s*UPDATE\s+users\s+SET\s+full_name\s*=\s*\$2,\s*email\s*=\s*\$3`).
		WithArgs("u1", "Alice B", "new@x.com").
		WillReturnRows(userRows(want))

	got, err := repo.UpdateAccount(context.Background(), "u1", "Alice B", "new@x.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.FullName != "Alice B" || got.Email != "new@x.com" {
		t.Fatalf("unexpected user: %+v", got)
	}
}

func TestSetAvatar_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^\s*UPDATE\s+users\s+SET\s+avatar_url\s*=\s*\$2,\s*avatar_storage_key\s*=\s*\$3`).
		WithArgs("u1", "http://s3/new", "k-new").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SetAvatar(context.Background(), "u1", models.AssetRef{URL: "http://s3/new", StorageKey: "k-new"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSetCover_NoSuchUser(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^\s*UPDATE\s+users\s+SET\s+cover_url`).
		WithArgs("ghost", "http://s3/c", "k-c").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetCover(context.Background(), "ghost", models.AssetRef{URL: "http://s3/c", StorageKey: "k-c"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
