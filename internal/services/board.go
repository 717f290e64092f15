package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/boardsync/apiserver/internal/apperrors"
	"github.com/boardsync/apiserver/internal/boardlock"
	"github.com/boardsync/apiserver/internal/logger"
	"github.com/boardsync/apiserver/internal/store"
	"github.com/boardsync/apiserver/types"
	"github.com/google/uuid"
)

const (
	defaultBoardsPerPage = 12
	maxBoardsPerPage     = 100
)

// CreateBoardInput carries the validated board form.
type CreateBoardInput struct {
	Title       string
	Description string
	Type        types.BoardType
}

// BoardPage is one page of a user's boards.
type BoardPage struct {
	Boards  []types.Board `json:"boards"`
	Total   int           `json:"total"`
	Page    int           `json:"page"`
	PerPage int           `json:"per_page"`
}

// BoardDetails is a board with its columns, each carrying its cards, in
// display order.
type BoardDetails struct {
	types.Board
	Columns []types.Column `json:"columns"`
}

// CoverUpload is an image to store as a board cover.
type CoverUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// BoardService holds the board, column and card use-cases. Every mutation
// of an ordering array runs under the board lock and inside one transaction.
type BoardService struct {
	boards  BoardRepository
	columns ColumnRepository
	cards   CardRepository
	tx      TxRunner
	locker  boardlock.Locker
	events  EventPublisher
	covers  CoverStorage
}

// NewBoardService wires the board use-cases. events and covers may be nil.
func NewBoardService(
	boards BoardRepository,
	columns ColumnRepository,
	cards CardRepository,
	tx TxRunner,
	locker boardlock.Locker,
	events EventPublisher,
	covers CoverStorage,
) *BoardService {
	if events == nil {
		events = nopPublisher{}
	}
	return &BoardService{
		boards:  boards,
		columns: columns,
		cards:   cards,
		tx:      tx,
		locker:  locker,
		events:  events,
		covers:  covers,
	}
}

func (s *BoardService) CreateBoard(ctx context.Context, userID string, in CreateBoardInput) (types.Board, error) {
	board, err := s.boards.Create(ctx, types.Board{
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Type:        in.Type,
		OwnerIDs:    []string{userID},
	})
	if err != nil {
		return types.Board{}, apperrors.Internal(err)
	}
	return board, nil
}

// ListBoards pages through the boards userID owns or belongs to.
func (s *BoardService) ListBoards(ctx context.Context, userID string, page, perPage int) (BoardPage, error) {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = defaultBoardsPerPage
	}
	if perPage > maxBoardsPerPage {
		perPage = maxBoardsPerPage
	}
	boards, total, err := s.boards.ListForUser(ctx, userID, (page-1)*perPage, perPage)
	if err != nil {
		return BoardPage{}, apperrors.Internal(err)
	}
	return BoardPage{Boards: boards, Total: total, Page: page, PerPage: perPage}, nil
}

// GetBoard returns a board userID may access. Missing, destroyed and
// inaccessible boards all fail with BOARD_NOT_FOUND.
func (s *BoardService) GetBoard(ctx context.Context, userID, boardID string) (types.Board, error) {
	if !isUUID(boardID) {
		return types.Board{}, apperrors.ErrBoardNotFound
	}
	board, err := s.boards.GetByID(ctx, boardID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Board{}, apperrors.ErrBoardNotFound
		}
		return types.Board{}, apperrors.Internal(err)
	}
	if !board.HasAccess(userID) {
		return types.Board{}, apperrors.ErrBoardNotFound
	}
	return board, nil
}

// CheckBoardAccess reports whether userID may see boardID.
func (s *BoardService) CheckBoardAccess(ctx context.Context, userID, boardID string) error {
	_, err := s.GetBoard(ctx, userID, boardID)
	return err
}

// GetBoardDetails assembles the board with ordered columns and cards.
// Children missing from an ordering array are appended in creation order.
func (s *BoardService) GetBoardDetails(ctx context.Context, board types.Board) (BoardDetails, error) {
	columns, err := s.columns.ListByBoard(ctx, board.ID)
	if err != nil {
		return BoardDetails{}, apperrors.Internal(err)
	}
	cards, err := s.cards.ListByBoard(ctx, board.ID)
	if err != nil {
		return BoardDetails{}, apperrors.Internal(err)
	}

	cardsByColumn := make(map[string][]types.Card, len(columns))
	for _, card := range cards {
		cardsByColumn[card.ColumnID] = append(cardsByColumn[card.ColumnID], card)
	}
	for i := range columns {
		columns[i].Cards = orderByIDs(cardsByColumn[columns[i].ID], columns[i].CardOrderIDs, func(c types.Card) string { return c.ID })
		if columns[i].Cards == nil {
			columns[i].Cards = []types.Card{}
		}
	}

	ordered := orderByIDs(columns, board.ColumnOrderIDs, func(c types.Column) string { return c.ID })
	if ordered == nil {
		ordered = []types.Column{}
	}
	return BoardDetails{Board: board, Columns: ordered}, nil
}

// UpdateColumnOrder replaces the board's column order. columnIDs must list
// every live column of the board exactly once.
func (s *BoardService) UpdateColumnOrder(ctx context.Context, actorID, boardID string, columnIDs []string) (types.Board, error) {
	if _, err := s.GetBoard(ctx, actorID, boardID); err != nil {
		return types.Board{}, err
	}
	columnIDs, ok := canonicalIDs(columnIDs)
	if !ok {
		return types.Board{}, apperrors.ErrInvalidColumnID
	}
	if hasDuplicates(columnIDs) {
		return types.Board{}, apperrors.ErrInvalidColumnOrder
	}

	var updated types.Board
	err := s.withBoardLock(ctx, boardID, func(ctx context.Context) error {
		columns, err := s.columns.ListByBoard(ctx, boardID)
		if err != nil {
			return err
		}
		live := make([]string, 0, len(columns))
		for _, c := range columns {
			live = append(live, c.ID)
		}
		if !sameSet(columnIDs, live) {
			return apperrors.ErrInvalidColumnOrder
		}
		if err := s.boards.SetColumnOrder(ctx, boardID, columnIDs); err != nil {
			return err
		}
		updated, err = s.boards.GetByID(ctx, boardID)
		return err
	})
	if err != nil {
		return types.Board{}, boardError(err)
	}

	s.events.Publish(ctx, types.BoardEvent{
		Type:    types.EventColumnOrderUpdated,
		BoardID: boardID,
		ActorID: actorID,
		Payload: map[string]any{"column_order_ids": updated.ColumnOrderIDs},
	})
	return updated, nil
}

// UploadBoardCover stores an image in object storage and points the board's
// cover photo at it. The previous cover object is removed afterwards.
func (s *BoardService) UploadBoardCover(ctx context.Context, actorID, boardID string, upload CoverUpload) (types.Board, error) {
	if s.covers == nil {
		return types.Board{}, apperrors.ErrStorageDisabled
	}
	previous, err := s.GetBoard(ctx, actorID, boardID)
	if err != nil {
		return types.Board{}, err
	}

	key := fmt.Sprintf("boards/%s/cover-%s%s", boardID, uuid.NewString(), strings.ToLower(path.Ext(upload.Filename)))
	if err := s.covers.Put(ctx, key, upload.Body, upload.Size, upload.ContentType); err != nil {
		return types.Board{}, apperrors.Internal(fmt.Errorf("upload cover: %w", err))
	}
	if err := s.boards.SetCoverPhoto(ctx, boardID, s.covers.URL(key)); err != nil {
		return types.Board{}, boardError(err)
	}
	s.deleteCover(ctx, previous.CoverPhoto)

	board, err := s.boards.GetByID(ctx, boardID)
	if err != nil {
		return types.Board{}, boardError(err)
	}

	s.events.Publish(ctx, types.BoardEvent{
		Type:    types.EventBoardUpdated,
		BoardID: boardID,
		ActorID: actorID,
		Payload: board,
	})
	return board, nil
}

// deleteCover removes the object behind a replaced cover URL. Failures leave
// an orphaned object and are only logged.
func (s *BoardService) deleteCover(ctx context.Context, coverURL string) {
	key, ok := s.covers.KeyOf(coverURL)
	if !ok {
		return
	}
	if err := s.covers.Delete(ctx, key); err != nil {
		logger.FromContext(ctx).Warn("delete previous board cover", "key", key, "error", err)
	}
}

// withBoardLock runs fn in a transaction while holding the board lock. The
// transaction is bound to the lock context, so a lost lock aborts it.
func (s *BoardService) withBoardLock(ctx context.Context, boardID string, fn func(ctx context.Context) error) error {
	return lockedTx(ctx, s.locker, s.tx, boardID, fn)
}

func lockedTx(ctx context.Context, locker boardlock.Locker, tx TxRunner, boardID string, fn func(ctx context.Context) error) error {
	lockCtx, release, err := locker.Lock(ctx, boardlock.BoardKey(boardID))
	if err != nil {
		return fmt.Errorf("lock board %s: %w", boardID, err)
	}
	defer release()
	return tx.WithTx(lockCtx, fn)
}

// boardError keeps typed errors and turns everything else into a 500.
func boardError(err error) error {
	if _, ok := apperrors.As(err); ok {
		return err
	}
	if errors.Is(err, store.ErrNotFound) {
		return apperrors.ErrBoardNotFound
	}
	return apperrors.Internal(err)
}

// orderByIDs sorts items by their position in order. Items not listed keep
// their relative order after the listed ones. Listed ids without an item are
// skipped.
func orderByIDs[T any](items []T, order []string, id func(T) string) []T {
	if len(items) == 0 {
		return items
	}
	byID := make(map[string]T, len(items))
	for _, item := range items {
		byID[id(item)] = item
	}
	out := make([]T, 0, len(items))
	placed := make(map[string]bool, len(items))
	for _, key := range order {
		if item, ok := byID[key]; ok && !placed[key] {
			out = append(out, item)
			placed[key] = true
		}
	}
	for _, item := range items {
		if !placed[id(item)] {
			out = append(out, item)
		}
	}
	return out
}

func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil && len(id) == 36
}

// canonicalIDs lowercases every id to the form Postgres returns. ok is false
// when one of them is not a UUID.
func canonicalIDs(ids []string) ([]string, bool) {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !isUUID(id) {
			return nil, false
		}
		out = append(out, strings.ToLower(id))
	}
	return out, true
}

func hasDuplicates(ids []string) bool {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			return true
		}
		seen[id] = struct{}{}
	}
	return false
}

// sameSet reports whether a and b hold the same ids. Neither may contain
// duplicates.
func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, id := range a {
		set[id] = struct{}{}
	}
	for _, id := range b {
		if _, ok := set[id]; !ok {
			return false
		}
	}
	return true
}
