package services

import (
	"context"
	"errors"

	"github.com/boardsync/apiserver/internal/apperrors"
	"github.com/boardsync/apiserver/internal/boardlock"
	"github.com/boardsync/apiserver/internal/store"
	"github.com/boardsync/apiserver/types"
)

// InvitationService lets board members invite existing users.
type InvitationService struct {
	invitations InvitationRepository
	users       UserRepository
	boards      *BoardService
	boardRepo   BoardRepository
	tx          TxRunner
	locker      boardlock.Locker
	events      EventPublisher
}

func NewInvitationService(
	invitations InvitationRepository,
	users UserRepository,
	boards *BoardService,
	boardRepo BoardRepository,
	tx TxRunner,
	locker boardlock.Locker,
	events EventPublisher,
) *InvitationService {
	if events == nil {
		events = nopPublisher{}
	}
	return &InvitationService{
		invitations: invitations,
		users:       users,
		boards:      boards,
		boardRepo:   boardRepo,
		tx:          tx,
		locker:      locker,
		events:      events,
	}
}

// CreateBoardInvitation invites the user registered under inviteeEmail to a
// board the inviter can access. The invitee is notified in real time.
func (s *InvitationService) CreateBoardInvitation(ctx context.Context, inviterID, boardID, inviteeEmail string) (types.Invitation, error) {
	board, err := s.boards.GetBoard(ctx, inviterID, boardID)
	if err != nil {
		return types.Invitation{}, err
	}

	invitee, err := s.users.GetByEmail(ctx, normalizeEmail(inviteeEmail))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Invitation{}, apperrors.ErrUserNotFound
		}
		return types.Invitation{}, apperrors.Internal(err)
	}
	if invitee.ID == inviterID {
		return types.Invitation{}, apperrors.ErrCannotInviteSelf
	}
	if board.HasAccess(invitee.ID) {
		return types.Invitation{}, apperrors.ErrAlreadyBoardMember
	}

	inv, err := s.invitations.Create(ctx, types.Invitation{
		InviterID: inviterID,
		InviteeID: invitee.ID,
		BoardID:   board.ID,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return types.Invitation{}, apperrors.ErrInvitationExists
		}
		return types.Invitation{}, apperrors.Internal(err)
	}

	s.events.Publish(ctx, types.BoardEvent{
		Type:         types.EventInvitationCreated,
		BoardID:      board.ID,
		ActorID:      inviterID,
		TargetUserID: invitee.ID,
		Payload:      map[string]any{"invitation": inv, "board_title": board.Title},
	})
	return inv, nil
}

// ListInvitations returns the invitations addressed to userID.
func (s *InvitationService) ListInvitations(ctx context.Context, userID string) ([]types.Invitation, error) {
	invitations, err := s.invitations.ListByInvitee(ctx, userID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return invitations, nil
}

// RespondInvitation accepts or rejects a pending invitation addressed to
// userID. Accepting adds the user to the board members in the same
// transaction.
func (s *InvitationService) RespondInvitation(ctx context.Context, userID, invitationID string, accept bool) (types.Invitation, error) {
	if !isUUID(invitationID) {
		return types.Invitation{}, apperrors.ErrInvitationNotFound
	}
	inv, err := s.invitations.GetByID(ctx, invitationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Invitation{}, apperrors.ErrInvitationNotFound
		}
		return types.Invitation{}, apperrors.Internal(err)
	}
	if inv.InviteeID != userID {
		return types.Invitation{}, apperrors.ErrInvitationNotFound
	}
	if inv.Status != types.InvitationPending {
		return types.Invitation{}, apperrors.ErrInvitationResponded
	}

	status := types.InvitationRejected
	if accept {
		status = types.InvitationAccepted
	}

	var resolved types.Invitation
	err = lockedTx(ctx, s.locker, s.tx, inv.BoardID, func(ctx context.Context) error {
		var err error
		resolved, err = s.invitations.Resolve(ctx, inv.ID, status)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return apperrors.ErrInvitationResponded
			}
			return err
		}
		if !accept {
			return nil
		}
		if err := s.boardRepo.AddMember(ctx, inv.BoardID, userID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		if _, ok := apperrors.As(err); ok {
			return types.Invitation{}, err
		}
		return types.Invitation{}, apperrors.Internal(err)
	}

	if accept {
		s.events.Publish(ctx, types.BoardEvent{
			Type:    types.EventMemberJoined,
			BoardID: inv.BoardID,
			ActorID: userID,
			Payload: map[string]any{"user_id": userID, "invitation_id": inv.ID},
		})
	}
	return resolved, nil
}
