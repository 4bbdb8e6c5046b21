package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hongminglow/barrio-seguro-be/internal/board"
	"github.com/hongminglow/barrio-seguro-be/internal/http/respond"
	"github.com/hongminglow/barrio-seguro-be/internal/middleware"
	"github.com/hongminglow/barrio-seguro-be/internal/models/dto"
)

// BoardHandler serves the district message board. The district always comes
// from the verified token, never from the request.
type BoardHandler struct {
	board  *board.Service
	logger *slog.Logger
}

// NewBoardHandler constructs the handler.
func NewBoardHandler(svc *board.Service, logger *slog.Logger) *BoardHandler {
	return &BoardHandler{board: svc, logger: logger}
}

// Register attaches the board routes. They must sit behind RequireAuth.
func (h *BoardHandler) Register(r chi.Router) {
	r.Post("/messages", h.handlePost)
	r.Get("/messages", h.handleRecent)
}

func (h *BoardHandler) handlePost(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFrom(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, respond.MsgInvalidToken)
		return
	}
	var req dto.PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, respond.MsgInvalidJSON)
		return
	}

	msg, err := h.board.Append(r.Context(), claims, board.Post{Content: req.MessageContent, IsAlert: req.IsAlert})
	if err != nil {
		switch {
		case errors.Is(err, board.ErrInvalidMessage):
			respond.Error(w, http.StatusBadRequest, err.Error())
		default:
			respond.Error(w, http.StatusInternalServerError, respond.MsgSaveFailed)
		}
		return
	}
	respond.JSON(w, http.StatusCreated, "message saved", msg)
}

func (h *BoardHandler) handleRecent(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFrom(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, respond.MsgInvalidToken)
		return
	}
	msgs, err := h.board.Recent(r.Context(), claims.District)
	if err != nil {
		switch {
		case errors.Is(err, board.ErrInvalidMessage):
			respond.Error(w, http.StatusBadRequest, err.Error())
		default:
			respond.Error(w, http.StatusInternalServerError, respond.MsgLoadFailed)
		}
		return
	}
	respond.JSON(w, http.StatusOK, "ok", dto.RecentMessagesResponse{District: claims.District, Messages: msgs})
}
