package types

import "time"

// InvitationStatus is the lifecycle state of a board invitation.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationRejected InvitationStatus = "rejected"
)

// Invitation asks an existing user to join a board as a member.
type Invitation struct {
	ID        string           `json:"id" db:"id"`
	InviterID string           `json:"inviter_id" db:"inviter_id"`
	InviteeID string           `json:"invitee_id" db:"invitee_id"`
	BoardID   string           `json:"board_id" db:"board_id"`
	Status    InvitationStatus `json:"status" db:"status"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt time.Time        `json:"updated_at" db:"updated_at"`
}
