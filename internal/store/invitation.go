package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/boardsync/apiserver/internal/db"
	"github.com/boardsync/apiserver/types"
	"github.com/google/uuid"
)

const invitationColumns = `id, inviter_id, invitee_id, board_id, status, created_at, updated_at`

// InvitationRepository handles persistence for board invitations.
type InvitationRepository struct {
	db *sql.DB
}

func NewInvitationRepository(db *sql.DB) *InvitationRepository {
	return &InvitationRepository{db: db}
}

func scanInvitation(row rowScanner) (types.Invitation, error) {
	var inv types.Invitation
	err := row.Scan(
		&inv.ID,
		&inv.InviterID,
		&inv.InviteeID,
		&inv.BoardID,
		&inv.Status,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)
	if err != nil {
		return types.Invitation{}, notFoundOnNoRows(err)
	}
	return inv, nil
}

// Create stores a pending invitation. A second pending invitation for the
// same board and invitee is rejected with ErrConflict.
func (r *InvitationRepository) Create(ctx context.Context, inv types.Invitation) (types.Invitation, error) {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	now := time.Now()
	inv.Status = types.InvitationPending
	inv.CreatedAt = now
	inv.UpdatedAt = now

	const query = `
		INSERT INTO invitations (id, inviter_id, invitee_id, board_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := db.Conn(ctx, r.db).ExecContext(
		ctx,
		query,
		inv.ID,
		inv.InviterID,
		inv.InviteeID,
		inv.BoardID,
		inv.Status,
		inv.CreatedAt,
		inv.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.Invitation{}, ErrConflict
		}
		return types.Invitation{}, err
	}
	return inv, nil
}

func (r *InvitationRepository) GetByID(ctx context.Context, id string) (types.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE id = $1`
	return scanInvitation(db.Conn(ctx, r.db).QueryRowContext(ctx, query, id))
}

// ListByInvitee returns the invitations addressed to a user, newest first.
func (r *InvitationRepository) ListByInvitee(ctx context.Context, inviteeID string) ([]types.Invitation, error) {
	query := `SELECT ` + invitationColumns + `
		FROM invitations
		WHERE invitee_id = $1
		ORDER BY created_at DESC, id`
	rows, err := db.Conn(ctx, r.db).QueryContext(ctx, query, inviteeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invitations := make([]types.Invitation, 0)
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		invitations = append(invitations, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return invitations, nil
}

// Resolve moves a pending invitation to status. Invitations that are no
// longer pending are reported as ErrNotFound.
func (r *InvitationRepository) Resolve(ctx context.Context, id string, status types.InvitationStatus) (types.Invitation, error) {
	query := `
		UPDATE invitations
		SET status = $1,
			updated_at = NOW()
		WHERE id = $2 AND status = $3
		RETURNING ` + invitationColumns
	return scanInvitation(db.Conn(ctx, r.db).QueryRowContext(ctx, query, status, id, types.InvitationPending))
}
