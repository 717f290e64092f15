package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/boardsync/apiserver/internal/db"
	"github.com/boardsync/apiserver/types"
	"github.com/google/uuid"
)

const cardColumns = `id, board_id, column_id, title, description, cover, comments, attachments,
		due_date, is_completed, destroyed, created_at, updated_at`

// CardRepository handles persistence for cards.
type CardRepository struct {
	db *sql.DB
}

func NewCardRepository(db *sql.DB) *CardRepository {
	return &CardRepository{db: db}
}

func scanCard(row rowScanner) (types.Card, error) {
	var card types.Card
	var commentsJSON, attachmentsJSON []byte
	var dueDate sql.NullTime
	var isCompleted sql.NullBool
	err := row.Scan(
		&card.ID,
		&card.BoardID,
		&card.ColumnID,
		&card.Title,
		&card.Description,
		&card.Cover,
		&commentsJSON,
		&attachmentsJSON,
		&dueDate,
		&isCompleted,
		&card.Destroyed,
		&card.CreatedAt,
		&card.UpdatedAt,
	)
	if err != nil {
		return types.Card{}, notFoundOnNoRows(err)
	}

	if len(commentsJSON) > 0 {
		if err := json.Unmarshal(commentsJSON, &card.Comments); err != nil {
			return types.Card{}, fmt.Errorf("decode comments of card %s: %w", card.ID, err)
		}
	}
	if len(attachmentsJSON) > 0 {
		if err := json.Unmarshal(attachmentsJSON, &card.Attachments); err != nil {
			return types.Card{}, fmt.Errorf("decode attachments of card %s: %w", card.ID, err)
		}
	}
	if card.Comments == nil {
		card.Comments = []types.Comment{}
	}
	if card.Attachments == nil {
		card.Attachments = []types.Attachment{}
	}
	if dueDate.Valid {
		card.DueDate = &dueDate.Time
	}
	if isCompleted.Valid {
		card.IsCompleted = &isCompleted.Bool
	}
	return card, nil
}

func (r *CardRepository) Create(ctx context.Context, card types.Card) (types.Card, error) {
	if card.ID == "" {
		card.ID = uuid.NewString()
	}
	now := time.Now()
	card.CreatedAt = now
	card.UpdatedAt = now
	if card.Comments == nil {
		card.Comments = []types.Comment{}
	}
	if card.Attachments == nil {
		card.Attachments = []types.Attachment{}
	}

	commentsJSON, err := json.Marshal(card.Comments)
	if err != nil {
		return types.Card{}, err
	}
	attachmentsJSON, err := json.Marshal(card.Attachments)
	if err != nil {
		return types.Card{}, err
	}

	const query = `
		INSERT INTO cards (id, board_id, column_id, title, description, cover, comments, attachments,
			due_date, is_completed, destroyed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, FALSE, $11, $12)`
	_, err = db.Conn(ctx, r.db).ExecContext(
		ctx,
		query,
		card.ID,
		card.BoardID,
		card.ColumnID,
		card.Title,
		card.Description,
		card.Cover,
		commentsJSON,
		attachmentsJSON,
		card.DueDate,
		card.IsCompleted,
		card.CreatedAt,
		card.UpdatedAt,
	)
	if err != nil {
		return types.Card{}, err
	}
	return card, nil
}

func (r *CardRepository) GetByID(ctx context.Context, id string) (types.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM cards WHERE id = $1 AND destroyed = FALSE`
	return scanCard(db.Conn(ctx, r.db).QueryRowContext(ctx, query, id))
}

// ListByBoard returns every live card of a board.
func (r *CardRepository) ListByBoard(ctx context.Context, boardID string) ([]types.Card, error) {
	query := `SELECT ` + cardColumns + `
		FROM cards
		WHERE board_id = $1 AND destroyed = FALSE
		ORDER BY created_at, id`
	rows, err := db.Conn(ctx, r.db).QueryContext(ctx, query, boardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cards := make([]types.Card, 0)
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return cards, nil
}

// SetColumn reassigns a card to another column of the same board.
func (r *CardRepository) SetColumn(ctx context.Context, id, columnID string) error {
	const query = `
		UPDATE cards
		SET column_id = $1,
			updated_at = NOW()
		WHERE id = $2 AND destroyed = FALSE`
	return execOne(ctx, db.Conn(ctx, r.db), query, columnID, id)
}
