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

const boardColumns = `id, title, description, type, owner_ids, member_ids, column_order_ids,
		cover_photo, destroyed, created_at, updated_at`

// BoardRepository handles persistence for boards.
type BoardRepository struct {
	db *sql.DB
}

func NewBoardRepository(db *sql.DB) *BoardRepository {
	return &BoardRepository{db: db}
}

func scanBoard(row rowScanner) (types.Board, error) {
	var board types.Board
	err := row.Scan(
		&board.ID,
		&board.Title,
		&board.Description,
		&board.Type,
		pq.Array(&board.OwnerIDs),
		pq.Array(&board.MemberIDs),
		pq.Array(&board.ColumnOrderIDs),
		&board.CoverPhoto,
		&board.Destroyed,
		&board.CreatedAt,
		&board.UpdatedAt,
	)
	if err != nil {
		return types.Board{}, notFoundOnNoRows(err)
	}
	board.OwnerIDs = nonNil(board.OwnerIDs)
	board.MemberIDs = nonNil(board.MemberIDs)
	board.ColumnOrderIDs = nonNil(board.ColumnOrderIDs)
	return board, nil
}

func (r *BoardRepository) Create(ctx context.Context, board types.Board) (types.Board, error) {
	if board.ID == "" {
		board.ID = uuid.NewString()
	}
	now := time.Now()
	board.CreatedAt = now
	board.UpdatedAt = now
	board.OwnerIDs = nonNil(board.OwnerIDs)
	board.MemberIDs = nonNil(board.MemberIDs)
	board.ColumnOrderIDs = nonNil(board.ColumnOrderIDs)

	const query = `
		INSERT INTO boards (id, title, description, type, owner_ids, member_ids, column_order_ids,
			cover_photo, destroyed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::uuid[], $6::uuid[], $7::uuid[], $8, FALSE, $9, $10)`
	_, err := db.Conn(ctx, r.db).ExecContext(
		ctx,
		query,
		board.ID,
		board.Title,
		board.Description,
		board.Type,
		pq.Array(board.OwnerIDs),
		pq.Array(board.MemberIDs),
		pq.Array(board.ColumnOrderIDs),
		board.CoverPhoto,
		board.CreatedAt,
		board.UpdatedAt,
	)
	if err != nil {
		return types.Board{}, err
	}
	return board, nil
}

// GetByID returns a live board. Soft-deleted boards are reported as missing.
func (r *BoardRepository) GetByID(ctx context.Context, id string) (types.Board, error) {
	query := `SELECT ` + boardColumns + ` FROM boards WHERE id = $1 AND destroyed = FALSE`
	return scanBoard(db.Conn(ctx, r.db).QueryRowContext(ctx, query, id))
}

// ListForUser pages through the live boards userID owns or is a member of,
// most recently updated first.
func (r *BoardRepository) ListForUser(ctx context.Context, userID string, offset, limit int) ([]types.Board, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 12
	}
	conn := db.Conn(ctx, r.db)

	const where = `
		WHERE destroyed = FALSE
			AND ($1::uuid = ANY(owner_ids) OR $1::uuid = ANY(member_ids))`
	var total int
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(1) FROM boards`+where, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + boardColumns + ` FROM boards` + where + `
		ORDER BY updated_at DESC, id
		OFFSET $2 LIMIT $3`
	rows, err := conn.QueryContext(ctx, query, userID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	boards := make([]types.Board, 0, limit)
	for rows.Next() {
		board, err := scanBoard(rows)
		if err != nil {
			return nil, 0, err
		}
		boards = append(boards, board)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return boards, total, nil
}

// SetColumnOrder replaces the column order of a board.
func (r *BoardRepository) SetColumnOrder(ctx context.Context, id string, columnIDs []string) error {
	const query = `
		UPDATE boards
		SET column_order_ids = $1::uuid[],
			updated_at = NOW()
		WHERE id = $2 AND destroyed = FALSE`
	return execOne(ctx, db.Conn(ctx, r.db), query, pq.Array(nonNil(columnIDs)), id)
}

// AppendColumn pushes columnID to the end of the board's column order.
func (r *BoardRepository) AppendColumn(ctx context.Context, id, columnID string) error {
	const query = `
		UPDATE boards
		SET column_order_ids = array_append(column_order_ids, $1::uuid),
			updated_at = NOW()
		WHERE id = $2 AND destroyed = FALSE`
	return execOne(ctx, db.Conn(ctx, r.db), query, columnID, id)
}

// AddMember adds userID to the members unless already an owner or member.
func (r *BoardRepository) AddMember(ctx context.Context, id, userID string) error {
	const query = `
		UPDATE boards
		SET member_ids = array_append(member_ids, $1::uuid),
			updated_at = NOW()
		WHERE id = $2
			AND destroyed = FALSE
			AND NOT ($1::uuid = ANY(member_ids))
			AND NOT ($1::uuid = ANY(owner_ids))`
	_, err := db.Conn(ctx, r.db).ExecContext(ctx, query, userID, id)
	return err
}

func (r *BoardRepository) SetCoverPhoto(ctx context.Context, id, url string) error {
	const query = `
		UPDATE boards
		SET cover_photo = $1,
			updated_at = NOW()
		WHERE id = $2 AND destroyed = FALSE`
	return execOne(ctx, db.Conn(ctx, r.db), query, url, id)
}

// Touch bumps updated_at after a change to one of the board's children.
func (r *BoardRepository) Touch(ctx context.Context, id string) error {
	const query = `UPDATE boards SET updated_at = NOW() WHERE id = $1 AND destroyed = FALSE`
	return execOne(ctx, db.Conn(ctx, r.db), query, id)
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
