package handlers

import (
	"net/http"

	"github.com/boardsync/apiserver/internal/services"
	"github.com/boardsync/apiserver/types"
	"github.com/go-chi/chi/v5"
)

// InvitationHandler serves board invitation endpoints.
type InvitationHandler struct {
	invitations *services.InvitationService
}

func NewInvitationHandler(invitations *services.InvitationService) *InvitationHandler {
	return &InvitationHandler{invitations: invitations}
}

// InvitationRouter registers /invitations routes.
func InvitationRouter(r chi.Router, handler *InvitationHandler, mw *Middleware) {
	r.Use(mw.RequireAccessToken)
	r.Get("/", handler.ListInvitations)

	r.Group(func(r chi.Router) {
		r.Use(mw.RequireUser, mw.RequireVerified)
		r.Post("/board", handler.CreateBoardInvitation)
		r.Put("/board/{invitationID}", handler.RespondInvitation)
	})
}

type CreateBoardInvitationRequest struct {
	BoardID      string `json:"board_id" validate:"required"`
	InviteeEmail string `json:"invitee_email" validate:"required,email"`
}

type RespondInvitationRequest struct {
	Status string `json:"status" validate:"required,oneof=accepted rejected"`
}

func (h *InvitationHandler) CreateBoardInvitation(w http.ResponseWriter, r *http.Request) {
	var req CreateBoardInvitationRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	inv, err := h.invitations.CreateBoardInvitation(r.Context(), Scope(r.Context()).UserID(), req.BoardID, req.InviteeEmail)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

func (h *InvitationHandler) ListInvitations(w http.ResponseWriter, r *http.Request) {
	invitations, err := h.invitations.ListInvitations(r.Context(), Scope(r.Context()).UserID())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if invitations == nil {
		invitations = []types.Invitation{}
	}
	writeJSON(w, http.StatusOK, invitations)
}

// RespondInvitation accepts or rejects an invitation addressed to the caller.
func (h *InvitationHandler) RespondInvitation(w http.ResponseWriter, r *http.Request) {
	var req RespondInvitationRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	accept := types.InvitationStatus(req.Status) == types.InvitationAccepted
	inv, err := h.invitations.RespondInvitation(r.Context(), Scope(r.Context()).UserID(), chi.URLParam(r, "invitationID"), accept)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}
