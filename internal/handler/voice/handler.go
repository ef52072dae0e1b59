// Package voice serves the speech REST endpoints and the browser voice
// socket.
package voice

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/voicebank/backend/internal/model/dialogue"
	"github.com/zhouzirui/voicebank/backend/internal/model/speech"
	"github.com/zhouzirui/voicebank/backend/internal/telemetry"
	"github.com/zhouzirui/voicebank/backend/pkg/utils"
)

// SpeechService abstracts the speech backend so handlers can be tested
// without a provider.
type SpeechService interface {
	TranscribeAudio(ctx context.Context, req *speech.ASRRequest) (*speech.ASRResponse, error)
	SynthesizeSpeech(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error)
}

// Handler serves /voice REST routes.
type Handler struct {
	speechSvc SpeechService
	ws        *WebSocketHandler
	logger    *zap.Logger
}

// New creates the voice handler. ws may be nil when no session registry is
// available.
func New(speechSvc SpeechService, ws *WebSocketHandler, logger *zap.Logger) *Handler {
	return &Handler{
		speechSvc: speechSvc,
		ws:        ws,
		logger:    telemetry.OrNop(logger).Named("http.voice"),
	}
}

// RegisterRoutes mounts the voice routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/voice", func(vr chi.Router) {
		vr.Post("/transcribe", h.handleTranscribe)
		vr.Post("/synthesize", h.handleSynthesize)
		vr.Get("/health", h.handleHealth)

		if h.ws != nil {
			h.ws.RegisterWebSocketRoutes(vr)
		} else {
			vr.Get("/ws/{sessionID}", func(w http.ResponseWriter, _ *http.Request) {
				utils.RespondError(w, http.StatusNotImplemented, "voice websocket not available")
			})
		}
	})
}

func (h *Handler) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		file, header, err = r.FormFile("audio")
	}
	if err != nil {
		utils.RespondDialogueError(w, h.logger, &dialogue.ValidationError{Fields: map[string]string{"file": "audio file is required"}})
		return
	}
	defer file.Close()

	sessionID := r.FormValue("sessionId")
	if sessionID == "" {
		sessionID = "default"
	}

	resp, err := h.speechSvc.TranscribeAudio(r.Context(), &speech.ASRRequest{
		SessionID: sessionID,
		AudioData: file,
		Format:    inferAudioFormat(header.Filename),
		Language:  r.FormValue("language"),
	})
	if err != nil {
		utils.RespondDialogueError(w, h.logger, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"text":       resp.Text,
		"confidence": resp.Confidence,
	})
}

func (h *Handler) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	req := speech.TTSRequest{
		Text:  r.URL.Query().Get("text"),
		Voice: r.URL.Query().Get("voice"),
	}
	if strings.TrimSpace(req.Text) == "" && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if strings.TrimSpace(req.Text) == "" {
		utils.RespondDialogueError(w, h.logger, &dialogue.ValidationError{Fields: map[string]string{"text": "text is required"}})
		return
	}
	if req.SessionID == "" {
		req.SessionID = "default"
	}

	resp, err := h.speechSvc.SynthesizeSpeech(r.Context(), &req)
	if err != nil {
		utils.RespondDialogueError(w, h.logger, err)
		return
	}

	format := resp.Format
	if format == "" {
		format = "mp3"
	}
	w.Header().Set("Content-Type", audioContentType(format))
	w.Header().Set("Content-Length", strconv.Itoa(len(resp.AudioData)))
	w.Header().Set("Content-Disposition", "inline; filename=speech."+format)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(resp.AudioData); err != nil {
		h.logger.Warn("failed to write audio response", zap.Error(err))
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "voice",
	})
}

func inferAudioFormat(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mp3":
		return "mp3"
	case ".wav":
		return "wav"
	case ".m4a":
		return "m4a"
	case ".aac":
		return "aac"
	case ".ogg":
		return "ogg"
	default:
		return "webm"
	}
}

func audioContentType(format string) string {
	switch format {
	case "mp3":
		return "audio/mpeg"
	case "wav":
		return "audio/wav"
	default:
		return "audio/" + format
	}
}
