package types

import "time"

// BoardEventType names a real-time notification pushed to board subscribers.
type BoardEventType string

const (
	EventCardMoved          BoardEventType = "card_moved"
	EventCardCreated        BoardEventType = "card_created"
	EventColumnCreated      BoardEventType = "column_created"
	EventColumnOrderUpdated BoardEventType = "column_order_updated"
	EventBoardUpdated       BoardEventType = "board_updated"
	EventInvitationCreated  BoardEventType = "invitation_created"
	EventMemberJoined       BoardEventType = "member_joined"
)

// BoardEvent is broadcast to every connection subscribed to BoardID, or to a
// single user when TargetUserID is set.
type BoardEvent struct {
	Type         BoardEventType `json:"type"`
	BoardID      string         `json:"board_id"`
	ActorID      string         `json:"actor_id"`
	TargetUserID string         `json:"target_user_id,omitempty"`
	Payload      any            `json:"payload"`
	EmittedAt    time.Time      `json:"emitted_at"`
}
