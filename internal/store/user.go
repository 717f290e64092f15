package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/boardsync/apiserver/internal/db"
	"github.com/boardsync/apiserver/types"
	"github.com/google/uuid"
)

const userColumns = `id, email, display_name, avatar, password_hash, verify_status,
		email_verify_token, forgot_password_token, created_at, updated_at`

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func scanUser(row rowScanner) (types.User, error) {
	var user types.User
	var verifyToken, forgotToken sql.NullString
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.DisplayName,
		&user.Avatar,
		&user.PasswordHash,
		&user.VerifyStatus,
		&verifyToken,
		&forgotToken,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return types.User{}, notFoundOnNoRows(err)
	}
	if verifyToken.Valid {
		user.EmailVerifyToken = &verifyToken.String
	}
	if forgotToken.Valid {
		user.ForgotPasswordToken = &forgotToken.String
	}
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (types.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(db.Conn(ctx, r.db).QueryRowContext(ctx, query, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	return scanUser(db.Conn(ctx, r.db).QueryRowContext(ctx, query, email))
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	const query = `
		INSERT INTO users (id, email, display_name, avatar, password_hash, verify_status,
			email_verify_token, forgot_password_token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := db.Conn(ctx, r.db).ExecContext(
		ctx,
		query,
		user.ID,
		user.Email,
		user.DisplayName,
		user.Avatar,
		user.PasswordHash,
		user.VerifyStatus,
		nullString(user.EmailVerifyToken),
		nullString(user.ForgotPasswordToken),
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.User{}, ErrConflict
		}
		return types.User{}, err
	}
	return user, nil
}

// SetEmailVerifyToken overwrites the outstanding email-verify token.
func (r *UserRepository) SetEmailVerifyToken(ctx context.Context, id string, token *string) error {
	const query = `
		UPDATE users
		SET email_verify_token = $1,
			updated_at = NOW()
		WHERE id = $2`
	return execOne(ctx, db.Conn(ctx, r.db), query, nullString(token), id)
}

// MarkEmailVerified clears the email-verify token and flips the status.
func (r *UserRepository) MarkEmailVerified(ctx context.Context, id string) (types.User, error) {
	query := `
		UPDATE users
		SET email_verify_token = NULL,
			verify_status = $1,
			updated_at = NOW()
		WHERE id = $2
		RETURNING ` + userColumns
	return scanUser(db.Conn(ctx, r.db).QueryRowContext(ctx, query, types.UserVerified, id))
}

// SetForgotPasswordToken overwrites the outstanding password reset token.
func (r *UserRepository) SetForgotPasswordToken(ctx context.Context, id string, token *string) error {
	const query = `
		UPDATE users
		SET forgot_password_token = $1,
			updated_at = NOW()
		WHERE id = $2`
	return execOne(ctx, db.Conn(ctx, r.db), query, nullString(token), id)
}

// ResetPassword stores a new hash and consumes the reset token.
func (r *UserRepository) ResetPassword(ctx context.Context, id, passwordHash string) error {
	const query = `
		UPDATE users
		SET password_hash = $1,
			forgot_password_token = NULL,
			updated_at = NOW()
		WHERE id = $2`
	return execOne(ctx, db.Conn(ctx, r.db), query, passwordHash, id)
}

func execOne(ctx context.Context, conn db.Querier, query string, args ...any) error {
	result, err := conn.ExecContext(ctx, query, args...)
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

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
