package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/boardsync/apiserver/internal/db"
	"github.com/boardsync/apiserver/types"
	"github.com/google/uuid"
)

// RefreshTokenRepository persists refresh tokens in Postgres.
type RefreshTokenRepository struct {
	db  *sql.DB
	txm *db.TxManager
}

func NewRefreshTokenRepository(conn *sql.DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: conn, txm: db.NewTxManager(conn)}
}

func (r *RefreshTokenRepository) Create(ctx context.Context, record types.RefreshTokenRecord) (types.RefreshTokenRecord, error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	record.CreatedAt = time.Now()

	const query = `
		INSERT INTO refresh_tokens (id, token, user_id, iat, exp, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := db.Conn(ctx, r.db).ExecContext(
		ctx,
		query,
		record.ID,
		record.Token,
		record.UserID,
		record.IssuedAt,
		record.ExpiresAt,
		record.CreatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return types.RefreshTokenRecord{}, ErrConflict
		}
		return types.RefreshTokenRecord{}, err
	}
	return record, nil
}

// GetByToken returns the live record for token. Expired rows count as missing.
func (r *RefreshTokenRepository) GetByToken(ctx context.Context, token string) (types.RefreshTokenRecord, error) {
	const query = `
		SELECT id, token, user_id, iat, exp, created_at
		FROM refresh_tokens
		WHERE token = $1 AND exp > NOW()`
	var record types.RefreshTokenRecord
	err := db.Conn(ctx, r.db).QueryRowContext(ctx, query, token).Scan(
		&record.ID,
		&record.Token,
		&record.UserID,
		&record.IssuedAt,
		&record.ExpiresAt,
		&record.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.RefreshTokenRecord{}, ErrNotFound
		}
		return types.RefreshTokenRecord{}, err
	}
	return record, nil
}

func (r *RefreshTokenRepository) DeleteByToken(ctx context.Context, token string) error {
	const query = `DELETE FROM refresh_tokens WHERE token = $1`
	result, err := db.Conn(ctx, r.db).ExecContext(ctx, query, token)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Rotate deletes oldToken and inserts next in one transaction. The
// conditional DELETE ... RETURNING lets exactly one of several concurrent
// rotations of the same token win; the others see ErrNotFound.
func (r *RefreshTokenRepository) Rotate(ctx context.Context, oldToken string, next types.RefreshTokenRecord) (types.RefreshTokenRecord, error) {
	var created types.RefreshTokenRecord
	err := r.txm.WithTx(ctx, func(ctx context.Context) error {
		const deleteQuery = `
			DELETE FROM refresh_tokens
			WHERE token = $1 AND exp > NOW()
			RETURNING id`
		var deletedID string
		if err := db.Conn(ctx, r.db).QueryRowContext(ctx, deleteQuery, oldToken).Scan(&deletedID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}

		var err error
		created, err = r.Create(ctx, next)
		return err
	})
	if err != nil {
		return types.RefreshTokenRecord{}, err
	}
	return created, nil
}

// DeleteByUserID revokes every refresh token of a user.
func (r *RefreshTokenRepository) DeleteByUserID(ctx context.Context, userID string) error {
	const query = `DELETE FROM refresh_tokens WHERE user_id = $1`
	_, err := db.Conn(ctx, r.db).ExecContext(ctx, query, userID)
	return err
}

// DeleteExpired removes rows past their expiry and reports how many went.
func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	const query = `DELETE FROM refresh_tokens WHERE exp <= NOW()`
	result, err := db.Conn(ctx, r.db).ExecContext(ctx, query)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
