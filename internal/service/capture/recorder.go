// Package capture accumulates microphone frames into one recording per
// capture session.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/voicebank/backend/internal/model/dialogue"
	"github.com/zhouzirui/voicebank/backend/internal/telemetry"
)

var (
	// ErrPermissionDenied is returned by Start when the microphone refuses access.
	ErrPermissionDenied = dialogue.ErrPermissionDenied
	// ErrAlreadyRecording is returned by Start while a session is active.
	ErrAlreadyRecording = errors.New("capture already in progress")
	// ErrRecordingTooLarge ends a session whose audio exceeds the size cap.
	ErrRecordingTooLarge = errors.New("recording exceeds maximum size")
)

const (
	// DefaultMaxBytes caps a single recording.
	DefaultMaxBytes = 10 << 20
	// completedBacklog is how many finished recordings wait for a reader.
	completedBacklog = 4
)

// Microphone grants access to an audio source. The remote browser decides
// permission; Open reports its answer.
type Microphone interface {
	Open(ctx context.Context) error
	Close() error
}

// Recording is the audio captured between Start and Stop.
type Recording struct {
	ID        string
	Data      []byte
	Format    string
	StartedAt time.Time
	Duration  time.Duration
}

// Recorder buffers frames for one capture session at a time and emits
// exactly one Recording per session on Completed.
type Recorder struct {
	mic      Microphone
	format   string
	maxBytes int
	logger   *zap.Logger
	now      func() time.Time

	mu        sync.Mutex
	recording bool
	id        string
	started   time.Time
	buf       bytes.Buffer

	completed chan Recording
}

// Option customizes a Recorder.
type Option func(*Recorder)

// WithMaxBytes overrides DefaultMaxBytes.
func WithMaxBytes(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.maxBytes = n
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Recorder) {
		r.logger = telemetry.OrNop(logger)
	}
}

// NewRecorder builds a recorder for mic producing audio in format.
func NewRecorder(mic Microphone, format string, opts ...Option) *Recorder {
	if format == "" {
		format = "webm"
	}
	r := &Recorder{
		mic:       mic,
		format:    format,
		maxBytes:  DefaultMaxBytes,
		logger:    zap.NewNop(),
		now:       time.Now,
		completed: make(chan Recording, completedBacklog),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Completed delivers finished recordings.
func (r *Recorder) Completed() <-chan Recording {
	return r.completed
}

// Recording reports whether a capture session is active.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// SetFormat changes the container format reported for the next recording.
func (r *Recorder) SetFormat(format string) {
	if format == "" {
		return
	}
	r.mu.Lock()
	r.format = format
	r.mu.Unlock()
}

// Start opens the microphone and begins a capture session.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.recording {
		r.mu.Unlock()
		return ErrAlreadyRecording
	}
	r.mu.Unlock()

	if err := r.mic.Open(ctx); err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			return err
		}
		return fmt.Errorf("open microphone: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recording {
		return ErrAlreadyRecording
	}
	r.recording = true
	r.id = uuid.NewString()
	r.started = r.now()
	r.buf.Reset()
	r.logger.Debug("capture started", zap.String("recording", r.id))
	return nil
}

// Append adds a frame to the active session. Frames arriving while idle are
// dropped. Exceeding the size cap discards the session.
func (r *Recorder) Append(frame []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.recording {
		return nil
	}
	if r.buf.Len()+len(frame) > r.maxBytes {
		r.logger.Warn("recording discarded: size cap exceeded",
			zap.String("recording", r.id),
			zap.Int("maxBytes", r.maxBytes))
		r.recording = false
		r.buf.Reset()
		_ = r.mic.Close()
		return ErrRecordingTooLarge
	}
	r.buf.Write(frame)
	return nil
}

// Stop ends the session and emits its recording. It returns false when no
// session was active.
func (r *Recorder) Stop() (Recording, bool) {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return Recording{}, false
	}
	r.recording = false

	data := make([]byte, r.buf.Len())
	copy(data, r.buf.Bytes())
	r.buf.Reset()

	rec := Recording{
		ID:        r.id,
		Data:      data,
		Format:    r.format,
		StartedAt: r.started,
		Duration:  r.now().Sub(r.started),
	}

	select {
	case r.completed <- rec:
	default:
		// Backlog full: the oldest unread recording gives way to the newest.
		dropped := <-r.completed
		r.logger.Warn("unread recording dropped",
			zap.String("recording", dropped.ID),
			zap.Int("backlog", cap(r.completed)))
		r.completed <- rec
	}
	r.mu.Unlock()

	if err := r.mic.Close(); err != nil {
		r.logger.Warn("close microphone", zap.Error(err))
	}

	r.logger.Debug("capture stopped",
		zap.String("recording", rec.ID),
		zap.Int("bytes", len(rec.Data)),
		zap.Duration("duration", rec.Duration))
	return rec, true
}
