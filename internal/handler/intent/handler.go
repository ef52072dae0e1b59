package intent

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/voicebank/backend/internal/model/dialogue"
	intentsvc "github.com/zhouzirui/voicebank/backend/internal/service/intent"
	"github.com/zhouzirui/voicebank/backend/internal/telemetry"
	"github.com/zhouzirui/voicebank/backend/pkg/utils"
)

// Handler exposes the intent classifier over HTTP.
type Handler struct {
	classifier intentsvc.Classifier
	logger     *zap.Logger
}

// New creates the intent handler.
func New(classifier intentsvc.Classifier, logger *zap.Logger) *Handler {
	if classifier == nil {
		classifier = intentsvc.NewKeywordClassifier()
	}
	return &Handler{
		classifier: classifier,
		logger:     telemetry.OrNop(logger).Named("http.intent"),
	}
}

// RegisterRoutes mounts the intent routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/intent/recognize", h.handleRecognize)
}

type recognizeResponse struct {
	Intent     string            `json:"intent"`
	Mapped     dialogue.Intent   `json:"mappedIntent"`
	Confidence float64           `json:"confidence"`
	Entities   map[string]string `json:"entities"`
}

func (h *Handler) handleRecognize(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	text := strings.TrimSpace(payload.Text)
	if text == "" {
		utils.RespondDialogueError(w, h.logger, &dialogue.ValidationError{Fields: map[string]string{"text": "text is required"}})
		return
	}

	res, err := h.classifier.Classify(r.Context(), text)
	if err != nil {
		utils.RespondDialogueError(w, h.logger, err)
		return
	}

	label := res.Label
	if label == "" {
		label = string(res.Intent)
	}
	utils.RespondJSON(w, http.StatusOK, recognizeResponse{
		Intent:     label,
		Mapped:     res.Intent,
		Confidence: res.Confidence,
		Entities:   res.Entities,
	})
}
