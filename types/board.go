package types

import (
	"slices"
	"time"
)

// BoardType controls who may read a board.
type BoardType string

const (
	BoardPublic  BoardType = "public"
	BoardPrivate BoardType = "private"
)

// Board is the top-level aggregate. It owns the ordering of its columns.
type Board struct {
	// ID is the unique identifier of the board (UUID).
	ID string `json:"id" db:"id"`

	// Title is the human-readable name of the board.
	Title string `json:"title" db:"title"`

	// Description is free-form text shown under the title.
	Description string `json:"description" db:"description"`

	// Type is either public or private.
	Type BoardType `json:"type" db:"type"`

	// OwnerIDs lists users with owner rights. The creator is always an owner.
	OwnerIDs []string `json:"owner_ids" db:"owner_ids"`

	// MemberIDs lists users invited to the board.
	MemberIDs []string `json:"member_ids" db:"member_ids"`

	// ColumnOrderIDs is the authoritative display order of the board's columns.
	// Once stable it is a permutation of the board's live column ids.
	ColumnOrderIDs []string `json:"column_order_ids" db:"column_order_ids"`

	// CoverPhoto is the object storage URL of the board cover, if any.
	CoverPhoto string `json:"cover_photo" db:"cover_photo"`

	// Destroyed marks a soft-deleted board.
	Destroyed bool `json:"_destroy" db:"destroyed"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// HasAccess reports whether userID is an owner or a member of the board.
func (b Board) HasAccess(userID string) bool {
	return slices.Contains(b.OwnerIDs, userID) || slices.Contains(b.MemberIDs, userID)
}

// IsOwner reports whether userID owns the board.
func (b Board) IsOwner(userID string) bool {
	return slices.Contains(b.OwnerIDs, userID)
}

// Column groups cards on a board and owns their order.
type Column struct {
	ID      string `json:"id" db:"id"`
	BoardID string `json:"board_id" db:"board_id"`
	Title   string `json:"title" db:"title"`

	// CardOrderIDs is the display order of the cards whose column_id is this column.
	CardOrderIDs []string `json:"card_order_ids" db:"card_order_ids"`

	Destroyed bool      `json:"_destroy" db:"destroyed"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	// Cards is populated only for board detail responses.
	Cards []Card `json:"cards,omitempty" db:"-"`
}

// Card is a single task on a board.
type Card struct {
	ID          string       `json:"id" db:"id"`
	BoardID     string       `json:"board_id" db:"board_id"`
	ColumnID    string       `json:"column_id" db:"column_id"`
	Title       string       `json:"title" db:"title"`
	Description string       `json:"description" db:"description"`
	Cover       string       `json:"cover" db:"cover"`
	Comments    []Comment    `json:"comments" db:"comments"`
	Attachments []Attachment `json:"attachments" db:"attachments"`
	DueDate     *time.Time   `json:"due_date" db:"due_date"`
	IsCompleted *bool        `json:"is_completed" db:"is_completed"`
	Destroyed   bool         `json:"_destroy" db:"destroyed"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at" db:"updated_at"`
}

// Comment is embedded on a card row as JSON.
type Comment struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	UserEmail   string    `json:"user_email"`
	DisplayName string    `json:"display_name"`
	Content     string    `json:"content"`
	CommentedAt time.Time `json:"commented_at"`
}

// Attachment references a file stored outside the database.
type Attachment struct {
	ID        string    `json:"id"`
	FileName  string    `json:"file_name"`
	FileURL   string    `json:"file_url"`
	CreatedAt time.Time `json:"created_at"`
}
