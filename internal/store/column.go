package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/boardsync/apiserver/internal/db"
	"github.com/boardsync/apiserver/types"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const columnColumns = `id, board_id, title, card_order_ids, destroyed, created_at, updated_at`

// ColumnRepository handles persistence for board columns.
type ColumnRepository struct {
	db *sql.DB
}

func NewColumnRepository(db *sql.DB) *ColumnRepository {
	return &ColumnRepository{db: db}
}

func scanColumn(row rowScanner) (types.Column, error) {
	var column types.Column
	err := row.Scan(
		&column.ID,
		&column.BoardID,
		&column.Title,
		pq.Array(&column.CardOrderIDs),
		&column.Destroyed,
		&column.CreatedAt,
		&column.UpdatedAt,
	)
	if err != nil {
		return types.Column{}, notFoundOnNoRows(err)
	}
	column.CardOrderIDs = nonNil(column.CardOrderIDs)
	return column, nil
}

func (r *ColumnRepository) Create(ctx context.Context, column types.Column) (types.Column, error) {
	if column.ID == "" {
		column.ID = uuid.NewString()
	}
	now := time.Now()
	column.CreatedAt = now
	column.UpdatedAt = now
	column.CardOrderIDs = nonNil(column.CardOrderIDs)

	const query = `
		INSERT INTO columns (id, board_id, title, card_order_ids, destroyed, created_at, updated_at)
		VALUES ($1, $2, $3, $4::uuid[], FALSE, $5, $6)`
	_, err := db.Conn(ctx, r.db).ExecContext(
		ctx,
		query,
		column.ID,
		column.BoardID,
		column.Title,
		pq.Array(column.CardOrderIDs),
		column.CreatedAt,
		column.UpdatedAt,
	)
	if err != nil {
		return types.Column{}, err
	}
	return column, nil
}

func (r *ColumnRepository) GetByID(ctx context.Context, id string) (types.Column, error) {
	query := `SELECT ` + columnColumns + ` FROM columns WHERE id = $1 AND destroyed = FALSE`
	return scanColumn(db.Conn(ctx, r.db).QueryRowContext(ctx, query, id))
}

// GetByIDForUpdate locks the column row until the surrounding transaction ends.
// Outside a transaction it behaves like GetByID.
func (r *ColumnRepository) GetByIDForUpdate(ctx context.Context, id string) (types.Column, error) {
	query := `SELECT ` + columnColumns + ` FROM columns WHERE id = $1 AND destroyed = FALSE`
	if db.InTransaction(ctx) {
		query += ` FOR UPDATE`
	}
	return scanColumn(db.Conn(ctx, r.db).QueryRowContext(ctx, query, id))
}

// ListByBoard returns the live columns of a board in creation order.
func (r *ColumnRepository) ListByBoard(ctx context.Context, boardID string) ([]types.Column, error) {
	query := `SELECT ` + columnColumns + `
		FROM columns
		WHERE board_id = $1 AND destroyed = FALSE
		ORDER BY created_at, id`
	rows, err := db.Conn(ctx, r.db).QueryContext(ctx, query, boardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns := make([]types.Column, 0)
	for rows.Next() {
		column, err := scanColumn(rows)
		if err != nil {
			return nil, err
		}
		columns = append(columns, column)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return columns, nil
}

// SetCardOrder replaces the card order of a column.
func (r *ColumnRepository) SetCardOrder(ctx context.Context, id string, cardIDs []string) error {
	const query = `
		UPDATE columns
		SET card_order_ids = $1::uuid[],
			updated_at = NOW()
		WHERE id = $2 AND destroyed = FALSE`
	return execOne(ctx, db.Conn(ctx, r.db), query, pq.Array(nonNil(cardIDs)), id)
}

// AppendCard pushes cardID to the end of the column's card order.
func (r *ColumnRepository) AppendCard(ctx context.Context, id, cardID string) error {
	const query = `
		UPDATE columns
		SET card_order_ids = array_append(card_order_ids, $1::uuid),
			updated_at = NOW()
		WHERE id = $2 AND destroyed = FALSE`
	return execOne(ctx, db.Conn(ctx, r.db), query, cardID, id)
}
