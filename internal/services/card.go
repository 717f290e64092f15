package services

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/boardsync/apiserver/internal/apperrors"
	"github.com/boardsync/apiserver/internal/store"
	"github.com/boardsync/apiserver/types"
)

// CreateCardInput carries the validated card form.
type CreateCardInput struct {
	BoardID     string
	ColumnID    string
	Title       string
	Description string
}

// MoveCardInput describes a drag of one card into another column. The
// orderings are the complete card orders of both columns after the move.
type MoveCardInput struct {
	CurrentCardID    string   `json:"current_card_id"`
	PrevColumnID     string   `json:"prev_column_id"`
	PrevCardOrderIDs []string `json:"prev_card_order_ids"`
	NextColumnID     string   `json:"next_column_id"`
	NextCardOrderIDs []string `json:"next_card_order_ids"`
}

// MoveCardResult is the committed state of both columns. It is also the
// payload of the card_moved event.
type MoveCardResult struct {
	BoardID          string   `json:"board_id"`
	CardID           string   `json:"card_id"`
	PrevColumnID     string   `json:"prev_column_id"`
	PrevCardOrderIDs []string `json:"prev_card_order_ids"`
	NextColumnID     string   `json:"next_column_id"`
	NextCardOrderIDs []string `json:"next_card_order_ids"`
}

// CreateCard adds a card to the end of a column.
func (s *BoardService) CreateCard(ctx context.Context, actorID string, in CreateCardInput) (types.Card, error) {
	if _, err := s.GetBoard(ctx, actorID, in.BoardID); err != nil {
		return types.Card{}, err
	}
	if !isUUID(in.ColumnID) {
		return types.Card{}, apperrors.ErrInvalidColumnID
	}

	var card types.Card
	err := s.withBoardLock(ctx, in.BoardID, func(ctx context.Context) error {
		column, err := s.columns.GetByIDForUpdate(ctx, in.ColumnID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return apperrors.ErrInvalidColumnID
			}
			return err
		}
		if column.BoardID != in.BoardID {
			return apperrors.ErrInvalidColumnID
		}
		card, err = s.cards.Create(ctx, types.Card{
			BoardID:     in.BoardID,
			ColumnID:    column.ID,
			Title:       strings.TrimSpace(in.Title),
			Description: strings.TrimSpace(in.Description),
		})
		if err != nil {
			return err
		}
		if err := s.columns.AppendCard(ctx, column.ID, card.ID); err != nil {
			return err
		}
		return s.boards.Touch(ctx, in.BoardID)
	})
	if err != nil {
		return types.Card{}, boardError(err)
	}

	s.events.Publish(ctx, types.BoardEvent{
		Type:    types.EventCardCreated,
		BoardID: in.BoardID,
		ActorID: actorID,
		Payload: card,
	})
	return card, nil
}

// GetCard returns a card whose board userID may access. Every failure is
// reported as CARD_NOT_FOUND.
func (s *BoardService) GetCard(ctx context.Context, userID, cardID string) (types.Card, error) {
	if !isUUID(cardID) {
		return types.Card{}, apperrors.ErrCardNotFound
	}
	card, err := s.cards.GetByID(ctx, cardID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Card{}, apperrors.ErrCardNotFound
		}
		return types.Card{}, apperrors.Internal(err)
	}
	if _, err := s.GetBoard(ctx, userID, card.BoardID); err != nil {
		if errors.Is(err, apperrors.ErrBoardNotFound) {
			return types.Card{}, apperrors.ErrCardNotFound
		}
		return types.Card{}, err
	}
	return card, nil
}

// MoveCardToDifferentColumn moves a card between two columns of one board.
// The source ordering, the destination ordering and the card's column are
// written in one transaction under the board lock, so either all three
// change or none does. When both columns are the same only the ordering is
// written.
func (s *BoardService) MoveCardToDifferentColumn(ctx context.Context, actorID string, in MoveCardInput) (MoveCardResult, error) {
	in, err := validateMove(in)
	if err != nil {
		return MoveCardResult{}, err
	}

	card, err := s.GetCard(ctx, actorID, in.CurrentCardID)
	if err != nil {
		if errors.Is(err, apperrors.ErrCardNotFound) {
			return MoveCardResult{}, apperrors.ErrInvalidCardID
		}
		return MoveCardResult{}, err
	}
	sameColumn := in.PrevColumnID == in.NextColumnID

	result := MoveCardResult{
		BoardID:          card.BoardID,
		CardID:           card.ID,
		PrevColumnID:     in.PrevColumnID,
		PrevCardOrderIDs: in.PrevCardOrderIDs,
		NextColumnID:     in.NextColumnID,
		NextCardOrderIDs: in.NextCardOrderIDs,
	}
	if sameColumn {
		result.PrevCardOrderIDs = in.NextCardOrderIDs
	}

	err = s.withBoardLock(ctx, card.BoardID, func(ctx context.Context) error {
		current, err := s.cards.GetByID(ctx, card.ID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return apperrors.ErrInvalidCardID
			}
			return err
		}
		if current.ColumnID != in.PrevColumnID {
			return apperrors.ErrInvalidColumnID
		}

		prev, err := s.lockColumn(ctx, in.PrevColumnID, current.BoardID)
		if err != nil {
			return err
		}

		if sameColumn {
			if !sameSet(in.NextCardOrderIDs, prev.CardOrderIDs) {
				return apperrors.ErrInvalidCardOrder
			}
			return s.columns.SetCardOrder(ctx, prev.ID, in.NextCardOrderIDs)
		}

		next, err := s.lockColumn(ctx, in.NextColumnID, current.BoardID)
		if err != nil {
			return err
		}
		remaining := slices.DeleteFunc(slices.Clone(prev.CardOrderIDs), func(id string) bool { return id == card.ID })
		arriving := append(slices.DeleteFunc(slices.Clone(next.CardOrderIDs), func(id string) bool { return id == card.ID }), card.ID)
		if !sameSet(in.PrevCardOrderIDs, remaining) || !sameSet(in.NextCardOrderIDs, arriving) {
			return apperrors.ErrInvalidCardOrder
		}

		if err := s.columns.SetCardOrder(ctx, prev.ID, in.PrevCardOrderIDs); err != nil {
			return err
		}
		if err := s.columns.SetCardOrder(ctx, next.ID, in.NextCardOrderIDs); err != nil {
			return err
		}
		if err := s.cards.SetColumn(ctx, card.ID, next.ID); err != nil {
			return err
		}
		return s.boards.Touch(ctx, current.BoardID)
	})
	if err != nil {
		return MoveCardResult{}, boardError(err)
	}

	s.events.Publish(ctx, types.BoardEvent{
		Type:    types.EventCardMoved,
		BoardID: card.BoardID,
		ActorID: actorID,
		Payload: result,
	})
	return result, nil
}

// lockColumn loads a column for update and checks it belongs to boardID.
func (s *BoardService) lockColumn(ctx context.Context, columnID, boardID string) (types.Column, error) {
	column, err := s.columns.GetByIDForUpdate(ctx, columnID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Column{}, apperrors.ErrInvalidColumnID
		}
		return types.Column{}, err
	}
	if column.BoardID != boardID {
		return types.Column{}, apperrors.ErrInvalidColumnID
	}
	return column, nil
}

// validateMove checks the shape of a move request and canonicalizes its ids.
func validateMove(in MoveCardInput) (MoveCardInput, error) {
	if !isUUID(in.CurrentCardID) {
		return in, apperrors.ErrInvalidCardID
	}
	if !isUUID(in.PrevColumnID) || !isUUID(in.NextColumnID) {
		return in, apperrors.ErrInvalidColumnID
	}
	in.CurrentCardID = strings.ToLower(in.CurrentCardID)
	in.PrevColumnID = strings.ToLower(in.PrevColumnID)
	in.NextColumnID = strings.ToLower(in.NextColumnID)

	fields := make(map[string]apperrors.FieldError)
	var ok bool
	if in.PrevCardOrderIDs, ok = canonicalIDs(in.PrevCardOrderIDs); !ok {
		fields["prev_card_order_ids"] = apperrors.FieldError{Message: "Every card id must be a valid id"}
	} else if hasDuplicates(in.PrevCardOrderIDs) {
		fields["prev_card_order_ids"] = apperrors.FieldError{Message: "Card ids must be unique"}
	}
	if in.NextCardOrderIDs, ok = canonicalIDs(in.NextCardOrderIDs); !ok {
		fields["next_card_order_ids"] = apperrors.FieldError{Message: "Every card id must be a valid id"}
	} else if hasDuplicates(in.NextCardOrderIDs) {
		fields["next_card_order_ids"] = apperrors.FieldError{Message: "Card ids must be unique"}
	}
	if len(fields) > 0 {
		return in, apperrors.Validation(fields)
	}

	if !slices.Contains(in.NextCardOrderIDs, in.CurrentCardID) {
		return in, apperrors.ErrInvalidCardOrder
	}
	if in.PrevColumnID != in.NextColumnID && slices.Contains(in.PrevCardOrderIDs, in.CurrentCardID) {
		return in, apperrors.ErrInvalidCardOrder
	}
	return in, nil
}
