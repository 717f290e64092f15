package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/boardsync/apiserver/internal/apperrors"
	"github.com/boardsync/apiserver/internal/services"
	"github.com/boardsync/apiserver/types"
	"github.com/go-chi/chi/v5"
)

const (
	maxCoverBytes    = 5 << 20
	formFieldCover   = "cover"
	coverMemoryBytes = 1 << 20
)

var allowedCoverTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

// BoardHandler serves board, column and card endpoints.
type BoardHandler struct {
	boards *services.BoardService
}

func NewBoardHandler(boards *services.BoardService) *BoardHandler {
	return &BoardHandler{boards: boards}
}

// BoardRouter registers /boards routes. Every route requires an access token.
func BoardRouter(r chi.Router, handler *BoardHandler, mw *Middleware) {
	r.Use(mw.RequireAccessToken)
	r.Get("/", handler.ListBoards)

	r.Group(func(r chi.Router) {
		r.Use(mw.RequireUser, mw.RequireVerified)
		r.Post("/", handler.CreateBoard)
		r.Put("/supports/moving-card", handler.MoveCard)
		r.With(mw.RequireBoardAccess).Put("/{boardID}/column-order", handler.UpdateColumnOrder)
		r.With(mw.RequireBoardAccess).Put("/{boardID}/cover", handler.UploadCover)
	})

	r.With(mw.RequireBoardAccess).Get("/{boardID}", handler.GetBoard)
}

// ColumnRouter registers /columns routes.
func ColumnRouter(r chi.Router, handler *BoardHandler, mw *Middleware) {
	r.Use(mw.RequireAccessToken)
	r.With(mw.RequireUser, mw.RequireVerified).Post("/", handler.CreateColumn)
	r.With(mw.RequireColumnAccess).Get("/{columnID}", handler.GetColumn)
}

// CardRouter registers /cards routes.
func CardRouter(r chi.Router, handler *BoardHandler, mw *Middleware) {
	r.Use(mw.RequireAccessToken)
	r.With(mw.RequireUser, mw.RequireVerified).Post("/", handler.CreateCard)
	r.With(mw.RequireCardAccess).Get("/{cardID}", handler.GetCard)
}

type CreateBoardRequest struct {
	Title       string `json:"title" validate:"required,min=3,max=50"`
	Description string `json:"description" validate:"required,min=3,max=256"`
	Type        string `json:"type" validate:"required,board_type"`
}

type UpdateColumnOrderRequest struct {
	ColumnOrderIDs []string `json:"column_order_ids" validate:"required"`
}

type CreateColumnRequest struct {
	BoardID string `json:"board_id" validate:"required"`
	Title   string `json:"title" validate:"required,min=3,max=50"`
}

type CreateCardRequest struct {
	BoardID     string `json:"board_id" validate:"required"`
	ColumnID    string `json:"column_id" validate:"required"`
	Title       string `json:"title" validate:"required,min=3,max=50"`
	Description string `json:"description" validate:"omitempty,max=256"`
}

type MoveCardRequest struct {
	CurrentCardID    string   `json:"current_card_id" validate:"required"`
	PrevColumnID     string   `json:"prev_column_id" validate:"required"`
	PrevCardOrderIDs []string `json:"prev_card_order_ids"`
	NextColumnID     string   `json:"next_column_id" validate:"required"`
	NextCardOrderIDs []string `json:"next_card_order_ids" validate:"required"`
}

func (h *BoardHandler) CreateBoard(w http.ResponseWriter, r *http.Request) {
	var req CreateBoardRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}

	board, err := h.boards.CreateBoard(r.Context(), Scope(r.Context()).UserID(), services.CreateBoardInput{
		Title:       req.Title,
		Description: req.Description,
		Type:        types.BoardType(req.Type),
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, board)
}

func (h *BoardHandler) ListBoards(w http.ResponseWriter, r *http.Request) {
	page, perPage, err := parsePagination(r)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	result, err := h.boards.ListBoards(r.Context(), Scope(r.Context()).UserID(), page, perPage)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetBoard returns the board with its columns and cards in display order.
func (h *BoardHandler) GetBoard(w http.ResponseWriter, r *http.Request) {
	details, err := h.boards.GetBoardDetails(r.Context(), *Scope(r.Context()).Board)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (h *BoardHandler) UpdateColumnOrder(w http.ResponseWriter, r *http.Request) {
	var req UpdateColumnOrderRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	scope := Scope(r.Context())
	board, err := h.boards.UpdateColumnOrder(r.Context(), scope.UserID(), scope.Board.ID, req.ColumnOrderIDs)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

// UploadCover stores the multipart "cover" image and sets it on the board.
func (h *BoardHandler) UploadCover(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxCoverBytes+coverMemoryBytes)
	if err := r.ParseMultipartForm(coverMemoryBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeAppError(w, r, apperrors.FieldValidation(formFieldCover, "Cover must be at most 5MB", nil))
			return
		}
		writeAppError(w, r, apperrors.ErrInvalidRequestBody.WithErr(err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(formFieldCover)
	if err != nil {
		writeAppError(w, r, apperrors.FieldValidation(formFieldCover, "This field is required", nil))
		return
	}
	defer file.Close()

	contentType := strings.ToLower(header.Header.Get("Content-Type"))
	if !allowedCoverTypes[contentType] {
		writeAppError(w, r, apperrors.FieldValidation(formFieldCover, "Cover must be a jpeg, png, webp or gif image", contentType))
		return
	}
	if header.Size > maxCoverBytes {
		writeAppError(w, r, apperrors.FieldValidation(formFieldCover, "Cover must be at most 5MB", header.Size))
		return
	}

	scope := Scope(r.Context())
	board, err := h.boards.UploadBoardCover(r.Context(), scope.UserID(), scope.Board.ID, services.CoverUpload{
		Filename:    header.Filename,
		ContentType: contentType,
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

// MoveCard moves a card between columns and rewrites both orderings.
func (h *BoardHandler) MoveCard(w http.ResponseWriter, r *http.Request) {
	var req MoveCardRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	result, err := h.boards.MoveCardToDifferentColumn(r.Context(), Scope(r.Context()).UserID(), services.MoveCardInput{
		CurrentCardID:    req.CurrentCardID,
		PrevColumnID:     req.PrevColumnID,
		PrevCardOrderIDs: req.PrevCardOrderIDs,
		NextColumnID:     req.NextColumnID,
		NextCardOrderIDs: req.NextCardOrderIDs,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Move card success", Result: result})
}

func (h *BoardHandler) CreateColumn(w http.ResponseWriter, r *http.Request) {
	var req CreateColumnRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	column, err := h.boards.CreateColumn(r.Context(), Scope(r.Context()).UserID(), req.BoardID, req.Title)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, column)
}

func (h *BoardHandler) GetColumn(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Scope(r.Context()).Column)
}

func (h *BoardHandler) CreateCard(w http.ResponseWriter, r *http.Request) {
	var req CreateCardRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	card, err := h.boards.CreateCard(r.Context(), Scope(r.Context()).UserID(), services.CreateCardInput{
		BoardID:     req.BoardID,
		ColumnID:    req.ColumnID,
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, card)
}

func (h *BoardHandler) GetCard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Scope(r.Context()).Card)
}
