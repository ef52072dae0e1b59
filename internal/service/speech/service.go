package speech

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/voicebank/backend/internal/model/dialogue"
	speechmodel "github.com/zhouzirui/voicebank/backend/internal/model/speech"
	"github.com/zhouzirui/voicebank/backend/internal/telemetry"
)

// Transcriber converts recorded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, req *speechmodel.ASRRequest) (*speechmodel.ASRResponse, error)
}

// Synthesizer converts text into an audio clip.
type Synthesizer interface {
	Synthesize(ctx context.Context, req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error)
}

// Service fronts the configured speech provider. Every failure it returns
// is a *dialogue.ServiceError.
type Service struct {
	config  *speechmodel.SpeechConfig
	asr     Transcriber
	tts     Synthesizer
	timeout time.Duration
	logger  *zap.Logger
}

// NewService builds the provider selected by config.Provider.
func NewService(config *speechmodel.SpeechConfig, logger *zap.Logger) (*Service, error) {
	logger = telemetry.OrNop(logger).Named("speech")

	var (
		asr Transcriber
		tts Synthesizer
	)
	switch config.Provider {
	case speechmodel.ProviderVolcengine:
		if _, _, err := resolveVolcengineCredentials(config); err != nil {
			return nil, err
		}
		asr = NewVolcengineASRClient(config, logger)
		tts = NewVolcengineTTSClient(config, logger)
	case speechmodel.ProviderOpenAI:
		if config.OpenAIKey == "" {
			return nil, fmt.Errorf("%w: OPENAI_API_KEY is required", ErrMissingCredentials)
		}
		client := NewOpenAIClient(config, nil, logger)
		asr, tts = client, client
	default:
		return nil, fmt.Errorf("unknown speech provider %q", config.Provider)
	}

	return NewServiceWith(config, asr, tts, logger), nil
}

// NewServiceWith assembles a service from explicit provider clients.
func NewServiceWith(config *speechmodel.SpeechConfig, asr Transcriber, tts Synthesizer, logger *zap.Logger) *Service {
	timeout := 30 * time.Second
	if config != nil && config.Timeout > 0 {
		timeout = time.Duration(config.Timeout) * time.Second
	}
	if config == nil {
		config = &speechmodel.SpeechConfig{TTSVoice: "nova"}
	}
	return &Service{
		config:  config,
		asr:     asr,
		tts:     tts,
		timeout: timeout,
		logger:  telemetry.OrNop(logger),
	}
}

// DefaultVoice is the voice used when a request names none.
func (s *Service) DefaultVoice() string {
	return s.config.TTSVoice
}

// TranscribeAudio runs speech recognition on req.
func (s *Service) TranscribeAudio(ctx context.Context, req *speechmodel.ASRRequest) (*speechmodel.ASRResponse, error) {
	if req.Language == "" {
		req.Language = s.config.ASRLanguage
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now()
	resp, err := s.asr.Transcribe(ctx, req)
	telemetry.ObserveCall("transcription", "transcribe", started, err)
	if err != nil {
		s.logger.Warn("transcription failed", zap.String("session", req.SessionID), zap.Error(err))
		return nil, dialogue.NewServiceError("transcription", "transcribe", err)
	}
	return resp, nil
}

// SynthesizeSpeech runs speech synthesis on req.
func (s *Service) SynthesizeSpeech(ctx context.Context, req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error) {
	if req.Voice == "" {
		req.Voice = s.config.TTSVoice
	}
	if req.Language == "" {
		req.Language = s.config.TTSLanguage
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now()
	resp, err := s.tts.Synthesize(ctx, req)
	telemetry.ObserveCall("synthesis", "synthesize", started, err)
	if err != nil {
		s.logger.Warn("synthesis failed", zap.String("session", req.SessionID), zap.Error(err))
		return nil, dialogue.NewServiceError("synthesis", "synthesize", err)
	}
	return resp, nil
}

// TranscribeBuffer transcribes an in-memory recording.
func (s *Service) TranscribeBuffer(ctx context.Context, sessionID string, audio []byte, format, language string) (*speechmodel.ASRResponse, error) {
	return s.TranscribeAudio(ctx, &speechmodel.ASRRequest{
		SessionID: sessionID,
		AudioData: bytes.NewReader(audio),
		Format:    format,
		Language:  language,
	})
}

// SynthesizeToBuffer synthesizes text with voice.
func (s *Service) SynthesizeToBuffer(ctx context.Context, sessionID, text, voice string) (*speechmodel.TTSResponse, error) {
	return s.SynthesizeSpeech(ctx, &speechmodel.TTSRequest{
		SessionID: sessionID,
		Text:      text,
		Voice:     voice,
	})
}

type disabledProvider struct{}

func (disabledProvider) Transcribe(context.Context, *speechmodel.ASRRequest) (*speechmodel.ASRResponse, error) {
	return nil, ErrMissingCredentials
}

func (disabledProvider) Synthesize(context.Context, *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error) {
	return nil, ErrMissingCredentials
}

// NewDisabledService returns a service whose every call fails with
// ErrMissingCredentials, used when no provider is configured.
func NewDisabledService(config *speechmodel.SpeechConfig, logger *zap.Logger) *Service {
	return NewServiceWith(config, disabledProvider{}, disabledProvider{}, logger)
}
