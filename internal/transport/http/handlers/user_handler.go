package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dkolar7/paperback/internal/service"
	"github.com/dkolar7/paperback/internal/transport/http/middleware"
	"github.com/dkolar7/paperback/pkg/validator"
)

type UserHandler struct {
	userService *service.UserService
	logger      *zap.Logger
}

func NewUserHandler(userService *service.UserService, logger *zap.Logger) *UserHandler {
	return &UserHandler{userService: userService, logger: logger}
}

func (h *UserHandler) Search(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	term := r.URL.Query().Get("q")
	if errs := validator.ValidateSearchTerm(term); errs.HasErrors() {
		writeValidationErrors(w, errs)
		return
	}

	users, err := h.userService.Search(r.Context(), userID, term)
	if err != nil {
		h.logger.Error("user search failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		return
	}

	writeJSON(w, http.StatusOK, users)
}

func (h *UserHandler) Block(w http.ResponseWriter, r *http.Request) {
	h.setBlocked(w, r, true)
}

func (h *UserHandler) Unblock(w http.ResponseWriter, r *http.Request) {
	h.setBlocked(w, r, false)
}

func (h *UserHandler) ListBlocked(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	ids, err := h.userService.ListBlocked(r.Context(), userID)
	if err != nil {
		h.logger.Error("list blocked failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"blocked": ids})
}

func (h *UserHandler) setBlocked(w http.ResponseWriter, r *http.Request, block bool) {
	userID := middleware.GetUserID(r.Context())
	targetID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid user ID")
		return
	}

	if block {
		err = h.userService.Block(r.Context(), userID, targetID)
	} else {
		err = h.userService.Unblock(r.Context(), userID, targetID)
	}
	if err != nil {
		switch {
		case errors.Is(err, service.ErrCannotBlockSelf):
			writeError(w, http.StatusBadRequest, "CANNOT_BLOCK_SELF", "Cannot block yourself")
		case errors.Is(err, service.ErrUserNotFound):
			writeError(w, http.StatusNotFound, "NOT_FOUND", "User not found")
		default:
			h.logger.Error("block update failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
