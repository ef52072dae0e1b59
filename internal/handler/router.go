package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	intenthandler "github.com/zhouzirui/voicebank/backend/internal/handler/intent"
	sessionhandler "github.com/zhouzirui/voicebank/backend/internal/handler/session"
	"github.com/zhouzirui/voicebank/backend/internal/handler/voice"
	middlewarePkg "github.com/zhouzirui/voicebank/backend/internal/middleware"
	"github.com/zhouzirui/voicebank/backend/internal/service/intent"
	"github.com/zhouzirui/voicebank/backend/internal/service/session"
	"github.com/zhouzirui/voicebank/backend/pkg/utils"
)

// Dependencies are the services the router exposes.
type Dependencies struct {
	Sessions        *session.Service
	Classifier      intent.Classifier
	Speech          voice.SpeechService
	CORSOrigins     []string
	CaptureMaxBytes int
	Logger          *zap.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.CORSOrigins))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]string{"message": "Voice Banking API"})
		})
		api.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			body := map[string]any{"status": "healthy"}
			if deps.Sessions != nil {
				body["sessions"] = deps.Sessions.Count()
			}
			utils.RespondJSON(w, http.StatusOK, body)
		})

		intenthandler.New(deps.Classifier, deps.Logger).RegisterRoutes(api)

		// Sessions back both the REST session routes and the voice socket.
		var ws *voice.WebSocketHandler
		if deps.Sessions != nil {
			sessionhandler.New(deps.Sessions, deps.Logger).RegisterRoutes(api)
			ws = voice.NewWebSocketHandler(deps.Sessions, deps.CORSOrigins, deps.CaptureMaxBytes, deps.Logger)
		}

		if deps.Speech != nil {
			voice.New(deps.Speech, ws, deps.Logger).RegisterRoutes(api)
		}
	})

	return r
}
