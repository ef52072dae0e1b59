// Package session keeps one dialogue controller per authenticated token.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/voicebank/backend/internal/service/dialogue"
	"github.com/zhouzirui/voicebank/backend/internal/telemetry"
)

var (
	ErrTokenRequired   = errors.New("token is required")
	ErrSessionNotFound = errors.New("session not found")
)

type entry struct {
	ctrl   *dialogue.Controller
	closed chan struct{}
}

// Service is an in-memory session registry. Sessions are never persisted.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	byToken  map[string]string

	deps         dialogue.Deps
	cfg          dialogue.Config
	defaultVoice string
	logger       *zap.Logger
}

// NewService creates a registry whose controllers share deps and cfg.
func NewService(deps dialogue.Deps, cfg dialogue.Config, defaultVoice string, logger *zap.Logger) *Service {
	if defaultVoice == "" {
		defaultVoice = "nova"
	}
	return &Service{
		sessions:     make(map[string]*entry),
		byToken:      make(map[string]string),
		deps:         deps,
		cfg:          cfg,
		defaultVoice: defaultVoice,
		logger:       telemetry.OrNop(logger).Named("session"),
	}
}

// CreateSession starts a session for token, replacing any session the token
// already had, and loads the account snapshot. A failed refresh does not
// fail creation.
func (s *Service) CreateSession(ctx context.Context, token, voice string) (*dialogue.Controller, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenRequired
	}
	voice = strings.TrimSpace(voice)
	if voice == "" {
		voice = s.defaultVoice
	}

	id := uuid.NewString()
	ctrl := dialogue.NewController(id, token, voice, s.deps, s.cfg, s.logger)

	s.mu.Lock()
	if previous, ok := s.byToken[token]; ok {
		s.removeLocked(previous)
		s.logger.Info("session replaced", zap.String("previous", previous), zap.String("session", id))
	}
	s.sessions[id] = &entry{ctrl: ctrl, closed: make(chan struct{})}
	s.byToken[token] = id
	telemetry.ActiveSessions.Set(float64(len(s.sessions)))
	s.mu.Unlock()

	if err := ctrl.Refresh(ctx); err != nil {
		s.logger.Warn("initial refresh failed", zap.String("session", id), zap.Error(err))
	}
	return ctrl, nil
}

// Get returns the controller for sessionID.
func (s *Service) Get(sessionID string) (*dialogue.Controller, error) {
	ctrl, _, err := s.Lookup(sessionID)
	return ctrl, err
}

// Lookup returns the controller and a channel closed when the session ends
// or is replaced.
func (s *Service) Lookup(sessionID string) (*dialogue.Controller, <-chan struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil, ErrSessionNotFound
	}
	return e.ctrl, e.closed, nil
}

// Close ends the session at logout.
func (s *Service) Close(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	s.removeLocked(sessionID)
	return nil
}

// Count returns the number of live sessions.
func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Service) removeLocked(sessionID string) {
	e, ok := s.sessions[sessionID]
	if !ok {
		return
	}
	e.ctrl.Reset()
	close(e.closed)
	delete(s.sessions, sessionID)
	if s.byToken[e.ctrl.Token()] == sessionID {
		delete(s.byToken, e.ctrl.Token())
	}
	telemetry.ActiveSessions.Set(float64(len(s.sessions)))
}
