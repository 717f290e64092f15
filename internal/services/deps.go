package services

import (
	"context"
	"io"

	"github.com/boardsync/apiserver/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	SetEmailVerifyToken(ctx context.Context, id string, token *string) error
	MarkEmailVerified(ctx context.Context, id string) (types.User, error)
	SetForgotPasswordToken(ctx context.Context, id string, token *string) error
	ResetPassword(ctx context.Context, id, passwordHash string) error
}

// RefreshTokenStore persists the currently valid refresh tokens. Both the
// Postgres and the Redis repositories satisfy it.
type RefreshTokenStore interface {
	Create(ctx context.Context, record types.RefreshTokenRecord) (types.RefreshTokenRecord, error)
	GetByToken(ctx context.Context, token string) (types.RefreshTokenRecord, error)
	DeleteByToken(ctx context.Context, token string) error
	Rotate(ctx context.Context, oldToken string, next types.RefreshTokenRecord) (types.RefreshTokenRecord, error)
	DeleteByUserID(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// BoardRepository defines persistence operations for boards.
type BoardRepository interface {
	Create(ctx context.Context, board types.Board) (types.Board, error)
	GetByID(ctx context.Context, id string) (types.Board, error)
	ListForUser(ctx context.Context, userID string, offset, limit int) ([]types.Board, int, error)
	SetColumnOrder(ctx context.Context, id string, columnIDs []string) error
	AppendColumn(ctx context.Context, id, columnID string) error
	AddMember(ctx context.Context, id, userID string) error
	SetCoverPhoto(ctx context.Context, id, url string) error
	Touch(ctx context.Context, id string) error
}

// ColumnRepository defines persistence operations for columns.
type ColumnRepository interface {
	Create(ctx context.Context, column types.Column) (types.Column, error)
	GetByID(ctx context.Context, id string) (types.Column, error)
	GetByIDForUpdate(ctx context.Context, id string) (types.Column, error)
	ListByBoard(ctx context.Context, boardID string) ([]types.Column, error)
	SetCardOrder(ctx context.Context, id string, cardIDs []string) error
	AppendCard(ctx context.Context, id, cardID string) error
}

// CardRepository defines persistence operations for cards.
type CardRepository interface {
	Create(ctx context.Context, card types.Card) (types.Card, error)
	GetByID(ctx context.Context, id string) (types.Card, error)
	ListByBoard(ctx context.Context, boardID string) ([]types.Card, error)
	SetColumn(ctx context.Context, id, columnID string) error
}

// InvitationRepository defines persistence operations for board invitations.
type InvitationRepository interface {
	Create(ctx context.Context, inv types.Invitation) (types.Invitation, error)
	GetByID(ctx context.Context, id string) (types.Invitation, error)
	ListByInvitee(ctx context.Context, inviteeID string) ([]types.Invitation, error)
	Resolve(ctx context.Context, id string, status types.InvitationStatus) (types.Invitation, error)
}

// TxRunner runs fn inside one database transaction carried by ctx.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// EventPublisher pushes board events to connected clients.
type EventPublisher interface {
	Publish(ctx context.Context, event types.BoardEvent)
}

// Mailer sends the account emails.
type Mailer interface {
	SendVerifyEmail(ctx context.Context, to, token string) error
	SendForgotPassword(ctx context.Context, to, token string) error
}

// CoverStorage stores board cover images.
type CoverStorage interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
	URL(key string) string
	KeyOf(objectURL string) (string, bool)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, types.BoardEvent) {}
