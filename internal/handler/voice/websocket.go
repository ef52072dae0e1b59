package voice

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/voicebank/backend/internal/middleware"
	dialoguemodel "github.com/zhouzirui/voicebank/backend/internal/model/dialogue"
	"github.com/zhouzirui/voicebank/backend/internal/service/capture"
	"github.com/zhouzirui/voicebank/backend/internal/service/dialogue"
	"github.com/zhouzirui/voicebank/backend/internal/telemetry"
	"github.com/zhouzirui/voicebank/backend/pkg/utils"
)

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	pingInterval = 54 * time.Second
)

// Sessions resolves a session id to its controller and a channel that is
// closed when the session ends.
type Sessions interface {
	Lookup(sessionID string) (*dialogue.Controller, <-chan struct{}, error)
}

// WebSocketHandler bridges a browser voice socket to a dialogue controller.
type WebSocketHandler struct {
	sessions        Sessions
	upgrader        websocket.Upgrader
	maxCaptureBytes int
	logger          *zap.Logger
}

// NewWebSocketHandler creates the handler. Origins follow the CORS list.
func NewWebSocketHandler(sessions Sessions, allowedOrigins []string, maxCaptureBytes int, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		sessions:        sessions,
		maxCaptureBytes: maxCaptureBytes,
		logger:          telemetry.OrNop(logger).Named("ws"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || middleware.OriginAllowed(allowedOrigins, origin)
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterWebSocketRoutes mounts the socket route on r.
func (h *WebSocketHandler) RegisterWebSocketRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

type captureStartMessage struct {
	Format     string `json:"format"`
	Permission string `json:"permission"`
}

type audioMessage struct {
	AudioData []byte `json:"audioData"`
}

type quickActionMessage struct {
	Intent string `json:"intent"`
}

type slotsMessage struct {
	Slots map[string]string `json:"slots"`
}

type playbackMessage struct {
	ClipID string `json:"clipId"`
	Error  string `json:"error,omitempty"`
}

type errorPayload struct {
	Message string            `json:"message"`
	Code    string            `json:"code"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		utils.RespondError(w, http.StatusBadRequest, "sessionID is required")
		return
	}

	ctrl, closed, err := h.sessions.Lookup(sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := newConnection(conn, ctrl, h.maxCaptureBytes, h.logger)
	c.logger.Info("voice socket connected")

	ctrl.Attach(c, c, c)
	defer func() {
		cancel()
		c.failPendingClips(errConnectionClosed)
		c.turns.Wait()
		ctrl.Detach(c)
		c.logger.Info("voice socket closed")
	}()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	go c.pingLoop(ctx)
	go c.watchRecordings(ctx)
	go func() {
		select {
		case <-ctx.Done():
		case <-closed:
			c.logger.Info("session ended, closing socket")
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
				time.Now().Add(writeTimeout))
			_ = conn.Close()
		}
	}()

	snap := ctrl.Snapshot()
	c.send("connected", map[string]any{"voice": snap.Voice})
	c.send("state", snap)

	for {
		select {
		case <-ctx.Done():
			return
		default:
			var msg inboundMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
					c.logger.Warn("read error", zap.Error(err))
				}
				return
			}

			conn.SetReadDeadline(time.Now().Add(readTimeout))

			if msg.SessionID != "" && msg.SessionID != sessionID {
				c.sendError(errorPayload{Message: "session mismatch", Code: "validation"})
				continue
			}

			c.handleMessage(ctx, &msg)
		}
	}
}

func (c *connection) handleMessage(ctx context.Context, msg *inboundMessage) {
	switch msg.Type {
	case "capture_start":
		var payload captureStartMessage
		if !c.decode(msg.Data, &payload) {
			return
		}
		c.startCapture(ctx, payload)
	case "audio":
		var payload audioMessage
		if !c.decode(msg.Data, &payload) {
			return
		}
		if err := c.recorder.Append(payload.AudioData); err != nil {
			c.sendError(errorPayload{Message: err.Error(), Code: "validation"})
		}
	case "capture_stop":
		if _, ok := c.recorder.Stop(); !ok {
			c.sendError(errorPayload{Message: "no capture in progress", Code: "validation"})
		}
	case "quick_action":
		var payload quickActionMessage
		if !c.decode(msg.Data, &payload) {
			return
		}
		action := dialoguemodel.Intent(strings.ToLower(strings.TrimSpace(payload.Intent)))
		c.runTurn(ctx, func(ctx context.Context) (*dialogue.TurnResult, error) {
			return c.ctrl.QuickAction(ctx, action)
		})
	case "slots_update":
		var payload slotsMessage
		if !c.decode(msg.Data, &payload) {
			return
		}
		if err := c.ctrl.UpdateSlots(payload.Slots); err != nil {
			c.reportError(err)
		}
	case "slots_submit":
		var payload slotsMessage
		if !c.decode(msg.Data, &payload) {
			return
		}
		c.runTurn(ctx, func(ctx context.Context) (*dialogue.TurnResult, error) {
			return c.ctrl.SubmitSlots(ctx, payload.Slots)
		})
	case "cancel":
		if err := c.ctrl.Cancel(); err != nil {
			c.reportError(err)
		}
	case "playback_complete":
		var payload playbackMessage
		if !c.decode(msg.Data, &payload) {
			return
		}
		var err error
		if payload.Error != "" {
			err = errors.New(payload.Error)
		}
		c.finishClip(payload.ClipID, err)
	default:
		c.sendError(errorPayload{Message: "unsupported message type: " + msg.Type, Code: "validation"})
	}
}

func (c *connection) startCapture(ctx context.Context, payload captureStartMessage) {
	c.mic.grant(!strings.EqualFold(payload.Permission, "denied"))
	c.recorder.SetFormat(payload.Format)

	err := c.recorder.Start(ctx)
	switch {
	case err == nil:
		c.send("capture", map[string]any{"recording": true})
	case errors.Is(err, capture.ErrPermissionDenied):
		c.Notify(dialoguemodel.Notice{Level: dialoguemodel.NoticeError, Message: "Microphone permission denied"})
		c.reportError(err)
	default:
		c.sendError(errorPayload{Message: err.Error(), Code: "validation"})
	}
}

// watchRecordings starts a voice turn for every finished recording.
func (c *connection) watchRecordings(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-c.recorder.Completed():
			c.runTurn(ctx, func(ctx context.Context) (*dialogue.TurnResult, error) {
				return c.ctrl.HandleRecording(ctx, rec)
			})
		}
	}
}

// runTurn executes fn on its own goroutine so the read loop keeps
// delivering playback acknowledgements.
func (c *connection) runTurn(ctx context.Context, fn func(context.Context) (*dialogue.TurnResult, error)) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.turns.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.turns.Done()
		if _, err := fn(ctx); err != nil {
			c.reportError(err)
		}
	}()
}

func (c *connection) decode(raw json.RawMessage, v any) bool {
	if len(raw) == 0 {
		return true
	}
	if err := json.Unmarshal(raw, v); err != nil {
		c.sendError(errorPayload{Message: "invalid payload", Code: "validation"})
		return false
	}
	return true
}

// reportError sends the safe rendering of a controller error.
func (c *connection) reportError(err error) {
	_, body := utils.ClassifyError(err)
	if body.Code == "internal" || body.Code == "service" {
		c.logger.Warn("turn failed", zap.Error(err))
	} else {
		c.logger.Debug("turn rejected", zap.Error(err))
	}
	c.sendError(errorPayload{Message: body.Error, Code: body.Code, Fields: body.Fields})
}

func (c *connection) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
