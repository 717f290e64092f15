package services

import (
	"context"
	"errors"
	"strings"

	"github.com/boardsync/apiserver/internal/apperrors"
	"github.com/boardsync/apiserver/internal/store"
	"github.com/boardsync/apiserver/types"
)

// CreateColumn adds a column to the end of the board's column order.
func (s *BoardService) CreateColumn(ctx context.Context, actorID, boardID, title string) (types.Column, error) {
	if _, err := s.GetBoard(ctx, actorID, boardID); err != nil {
		return types.Column{}, err
	}

	var column types.Column
	err := s.withBoardLock(ctx, boardID, func(ctx context.Context) error {
		var err error
		column, err = s.columns.Create(ctx, types.Column{
			BoardID: boardID,
			Title:   strings.TrimSpace(title),
		})
		if err != nil {
			return err
		}
		return s.boards.AppendColumn(ctx, boardID, column.ID)
	})
	if err != nil {
		return types.Column{}, boardError(err)
	}

	s.events.Publish(ctx, types.BoardEvent{
		Type:    types.EventColumnCreated,
		BoardID: boardID,
		ActorID: actorID,
		Payload: column,
	})
	return column, nil
}

// GetColumn returns a column whose board userID may access. Every failure is
// reported as COLUMN_NOT_FOUND.
func (s *BoardService) GetColumn(ctx context.Context, userID, columnID string) (types.Column, error) {
	if !isUUID(columnID) {
		return types.Column{}, apperrors.ErrColumnNotFound
	}
	column, err := s.columns.GetByID(ctx, columnID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Column{}, apperrors.ErrColumnNotFound
		}
		return types.Column{}, apperrors.Internal(err)
	}
	if _, err := s.GetBoard(ctx, userID, column.BoardID); err != nil {
		if errors.Is(err, apperrors.ErrBoardNotFound) {
			return types.Column{}, apperrors.ErrColumnNotFound
		}
		return types.Column{}, err
	}
	return column, nil
}
