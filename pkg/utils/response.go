package utils

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/zhouzirui/voicebank/backend/internal/model/dialogue"
)

// RespondJSON writes payload as JSON with status.
func RespondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if status == http.StatusNoContent || payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Warn("failed to encode response", zap.Error(err))
	}
}

// RespondError writes {"error": message}.
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, map[string]string{"error": message})
}

// ErrorBody is the JSON shape of a mapped error.
type ErrorBody struct {
	Error  string            `json:"error"`
	Code   string            `json:"code"`
	Fields map[string]string `json:"fields,omitempty"`
}

// ClassifyError maps dialogue errors onto an HTTP status and a body that is
// safe to show: service failures never expose the underlying cause.
func ClassifyError(err error) (int, ErrorBody) {
	var (
		validation *dialogue.ValidationError
		domain     *dialogue.DomainError
		service    *dialogue.ServiceError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, ErrorBody{Error: validation.Error(), Code: "validation", Fields: validation.Fields}
	case errors.Is(err, dialogue.ErrBusy):
		return http.StatusConflict, ErrorBody{Error: err.Error(), Code: "busy"}
	case errors.Is(err, dialogue.ErrPermissionDenied):
		return http.StatusForbidden, ErrorBody{Error: err.Error(), Code: "permission_denied"}
	case errors.As(err, &domain):
		return http.StatusUnprocessableEntity, ErrorBody{Error: domain.Reason, Code: "domain"}
	case errors.As(err, &service):
		return http.StatusBadGateway, ErrorBody{Error: service.Service + " unavailable", Code: "service"}
	default:
		return http.StatusInternalServerError, ErrorBody{Error: "internal error", Code: "internal"}
	}
}

// RespondDialogueError logs err and writes its mapped status and body.
func RespondDialogueError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status, body := ClassifyError(err)
	if status >= http.StatusInternalServerError && logger != nil {
		logger.Warn("request failed", zap.Int("status", status), zap.Error(err))
	}
	RespondJSON(w, status, body)
}
