package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/voicebank/backend/internal/service/dialogue"
	sessionsvc "github.com/zhouzirui/voicebank/backend/internal/service/session"
	"github.com/zhouzirui/voicebank/backend/internal/telemetry"
	"github.com/zhouzirui/voicebank/backend/pkg/utils"
)

// Registry is the subset of the session service used by the handler.
type Registry interface {
	CreateSession(ctx context.Context, token, voice string) (*dialogue.Controller, error)
	Get(sessionID string) (*dialogue.Controller, error)
	Close(sessionID string) error
}

// Handler serves login, snapshot, cancel and logout.
type Handler struct {
	sessions Registry
	logger   *zap.Logger
}

// New creates the session handler.
func New(sessions Registry, logger *zap.Logger) *Handler {
	return &Handler{
		sessions: sessions,
		logger:   telemetry.OrNop(logger).Named("http.session"),
	}
}

// RegisterRoutes mounts the session routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/session", func(sr chi.Router) {
		sr.Post("/", h.handleCreate)
		sr.Get("/{sessionID}", h.handleGet)
		sr.Delete("/{sessionID}", h.handleDelete)
		sr.Post("/{sessionID}/cancel", h.handleCancel)
	})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Token string `json:"token"`
		Voice string `json:"voice"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctrl, err := h.sessions.CreateSession(r.Context(), payload.Token, payload.Voice)
	if err != nil {
		if errors.Is(err, sessionsvc.ErrTokenRequired) {
			utils.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		utils.RespondDialogueError(w, h.logger, err)
		return
	}

	h.logger.Info("session created", zap.String("session", ctrl.ID()))
	utils.RespondJSON(w, http.StatusCreated, ctrl.Snapshot())
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.lookup(w, r)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, ctrl.Snapshot())
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.sessions.Close(sessionID); err != nil {
		h.respondLookupError(w, err)
		return
	}
	h.logger.Info("session closed", zap.String("session", sessionID))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if err := ctrl.Cancel(); err != nil {
		utils.RespondDialogueError(w, h.logger, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, ctrl.Snapshot())
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*dialogue.Controller, bool) {
	ctrl, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondLookupError(w, err)
		return nil, false
	}
	return ctrl, true
}

func (h *Handler) respondLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, sessionsvc.ErrSessionNotFound) {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	utils.RespondDialogueError(w, h.logger, err)
}
