package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/asavelyev/mediahub/internal/dbx"
	"github.com/asavelyev/mediahub/internal/server/models"
)

const uniqueViolation = "23505"

// PostgresRepository implements Repository over dbx.DBTX, so it works both
// directly on *sql.DB and inside a transaction.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `id, username, email, full_name, password_hash,
	avatar_url, avatar_storage_key, cover_url, cover_storage_key,
	refresh_token, created_at`

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query := `
		INSERT INTO users (username, email, full_name, password_hash,
			avatar_url, avatar_storage_key, cover_url, cover_storage_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`

	var coverURL, coverKey sql.NullString
	if user.Cover != nil {
		coverURL = sql.NullString{String: user.Cover.URL, Valid: true}
		coverKey = sql.NullString{String: user.Cover.StorageKey, Valid: true}
	}

	err := r.db.QueryRowContext(ctx, query,
		user.Username, user.Email, user.FullName, user.PasswordHash,
		user.Avatar.URL, user.Avatar.StorageKey, coverURL, coverKey,
	).Scan(&user.ID, &user.CreatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) FindByIdentifier(ctx context.Context, username, email string) (*models.User, error) {
	query := `
		SELECT ` + userColumns + ` FROM users
		WHERE (username = $1 AND $1 <> '') OR (email = $2 AND $2 <> '')
	`
	return r.scanUser(r.db.QueryRowContext(ctx, query, username, email))
}

func (r *PostgresRepository) SetRefreshToken(ctx context.Context, id string, token *string) error {
	query := `UPDATE users SET refresh_token = $2 WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, token)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return requireRow(res)
}

func (r *PostgresRepository) RotateRefreshToken(ctx context.Context, id, presented, next string) (bool, error) {
	// The WHERE clause makes rotation conditional on the stored value, so
	// two concurrent rotations of the same token resolve to one winner.
	query := `
		UPDATE users SET refresh_token = $3
		WHERE id = $1 AND refresh_token = $2
	`

	res, err := r.db.ExecContext(ctx, query, id, presented, next)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) SetPasswordHash(ctx context.Context, id, hash string) error {
	query := `UPDATE users SET password_hash = $2 WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, hash)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return requireRow(res)
}

func (r *PostgresRepository) UpdateAccount(ctx context.Context, id, fullName, email string) (*models.User, error) {
	query := `
		UPDATE users SET full_name = $2, email = $3
		WHERE id = $1
		RETURNING ` + userColumns

	user, err := r.scanUser(r.db.QueryRowContext(ctx, query, id, fullName, email))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return user, nil
}

func (r *PostgresRepository) SetAvatar(ctx context.Context, id string, ref models.AssetRef) error {
	query := `UPDATE users SET avatar_url = $2, avatar_storage_key = $3 WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, ref.URL, ref.StorageKey)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return requireRow(res)
}

func (r *PostgresRepository) SetCover(ctx context.Context, id string, ref models.AssetRef) error {
	query := `UPDATE users SET cover_url = $2, cover_storage_key = $3 WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, ref.URL, ref.StorageKey)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return requireRow(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *PostgresRepository) scanUser(row rowScanner) (*models.User, error) {
	user := &models.User{}
	var coverURL, coverKey, refreshToken sql.NullString

	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.FullName,
		&user.PasswordHash, &user.Avatar.URL, &user.Avatar.StorageKey,
		&coverURL, &coverKey, &refreshToken, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	if coverURL.Valid {
		user.Cover = &models.AssetRef{URL: coverURL.String, StorageKey: coverKey.String}
	}
	if refreshToken.Valid {
		user.RefreshToken = &refreshToken.String
	}

	return user, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
