package voice

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	dialoguemodel "github.com/zhouzirui/voicebank/backend/internal/model/dialogue"
	"github.com/zhouzirui/voicebank/backend/internal/service/capture"
	"github.com/zhouzirui/voicebank/backend/internal/service/dialogue"
)

var errConnectionClosed = errors.New("voice socket closed")

// browserMic is the remote microphone. The browser asks the user and
// reports the answer in capture_start.
type browserMic struct {
	mu      sync.Mutex
	granted bool
}

func (m *browserMic) grant(ok bool) {
	m.mu.Lock()
	m.granted = ok
	m.mu.Unlock()
}

func (m *browserMic) Open(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.granted {
		return capture.ErrPermissionDenied
	}
	return nil
}

func (m *browserMic) Close() error {
	return nil
}

// connection is one browser socket attached to a controller. It is the
// controller's Player, Notifier and StateListener.
type connection struct {
	conn      *websocket.Conn
	sessionID string
	ctrl      *dialogue.Controller
	mic       *browserMic
	recorder  *capture.Recorder
	logger    *zap.Logger

	writeMu sync.Mutex

	mu     sync.Mutex
	clips  map[string]chan error
	closed bool

	turns sync.WaitGroup
}

func newConnection(conn *websocket.Conn, ctrl *dialogue.Controller, maxCaptureBytes int, logger *zap.Logger) *connection {
	logger = logger.With(zap.String("session", ctrl.ID()))
	mic := &browserMic{}
	return &connection{
		conn:      conn,
		sessionID: ctrl.ID(),
		ctrl:      ctrl,
		mic:       mic,
		recorder:  capture.NewRecorder(mic, "webm", capture.WithMaxBytes(maxCaptureBytes), capture.WithLogger(logger)),
		logger:    logger,
		clips:     make(map[string]chan error),
	}
}

// Play sends the clip to the browser and completes when the browser
// reports playback_complete for it.
func (c *connection) Play(_ context.Context, clip dialogue.Clip) <-chan error {
	done := make(chan error, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		done <- errConnectionClosed
		return done
	}
	c.clips[clip.ID] = done
	c.mu.Unlock()

	if err := c.send("response", map[string]any{"text": clip.Text, "clipId": clip.ID}); err != nil {
		c.finishClip(clip.ID, err)
		return done
	}
	err := c.send("tts", map[string]any{
		"clipId":    clip.ID,
		"audioData": base64.StdEncoding.EncodeToString(clip.Audio),
		"format":    clip.Format,
	})
	if err != nil {
		c.finishClip(clip.ID, err)
	}
	return done
}

func (c *connection) finishClip(clipID string, err error) {
	c.mu.Lock()
	done, ok := c.clips[clipID]
	delete(c.clips, clipID)
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("playback ack for unknown clip", zap.String("clip", clipID))
		return
	}
	done <- err
}

func (c *connection) failPendingClips(err error) {
	c.mu.Lock()
	c.closed = true
	pending := c.clips
	c.clips = make(map[string]chan error)
	c.mu.Unlock()

	for _, done := range pending {
		done <- err
	}
}

func (c *connection) Notify(notice dialoguemodel.Notice) {
	c.send("notice", notice)
}

func (c *connection) OnState(session dialoguemodel.Session) {
	c.send("state", session)
}

func (c *connection) OnUtterance(utterance dialoguemodel.Utterance) {
	c.send("transcript", utterance)
}

func (c *connection) sendError(payload errorPayload) {
	c.send("error", payload)
}

func (c *connection) send(msgType string, data interface{}) error {
	msg := outgoingMessage{
		Type:      msgType,
		SessionID: c.sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteJSON(msg); err != nil {
		c.logger.Debug("write failed", zap.String("type", msgType), zap.Error(err))
		return err
	}
	return nil
}
