package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/voicebank/backend/internal/breaker"
	speechmodel "github.com/zhouzirui/voicebank/backend/internal/model/speech"
	"github.com/zhouzirui/voicebank/backend/internal/telemetry"
)

// HTTPClient is the subset of *http.Client used by the OpenAI client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// OpenAIClient talks to an OpenAI-compatible audio API.
type OpenAIClient struct {
	baseURL    string
	apiKey     string
	asrModel   string
	ttsModel   string
	voice      string
	language   string
	httpClient HTTPClient
	breaker    *breaker.Breaker
	logger     *zap.Logger
}

// NewOpenAIClient creates the client. A nil httpClient uses one with the
// configured timeout.
func NewOpenAIClient(cfg *speechmodel.SpeechConfig, httpClient HTTPClient, logger *zap.Logger) *OpenAIClient {
	logger = telemetry.OrNop(logger).Named("openai")
	if httpClient == nil {
		timeout := time.Duration(cfg.Timeout) * time.Second
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	asrModel := cfg.ASRModel
	if asrModel == "" {
		asrModel = "whisper-1"
	}
	ttsModel := cfg.TTSModel
	if ttsModel == "" {
		ttsModel = "tts-1"
	}

	return &OpenAIClient{
		baseURL:    strings.TrimRight(cfg.OpenAIBaseURL, "/"),
		apiKey:     cfg.OpenAIKey,
		asrModel:   asrModel,
		ttsModel:   ttsModel,
		voice:      cfg.TTSVoice,
		language:   cfg.ASRLanguage,
		httpClient: httpClient,
		breaker:    breaker.New(breaker.Settings{Name: "openai-audio"}, logger),
		logger:     logger,
	}
}

// Transcribe uploads the recording to /audio/transcriptions.
func (c *OpenAIClient) Transcribe(ctx context.Context, req *speechmodel.ASRRequest) (*speechmodel.ASRResponse, error) {
	if c.apiKey == "" {
		return nil, ErrMissingCredentials
	}
	audio, err := io.ReadAll(req.AudioData)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, ErrEmptyAudio
	}

	format := req.Format
	if format == "" {
		format = "webm"
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "audio."+format)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, fmt.Errorf("write form file: %w", err)
	}
	_ = writer.WriteField("model", c.asrModel)
	if lang := isoLanguage(req.Language, c.language); lang != "" {
		_ = writer.WriteField("language", lang)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	started := time.Now()
	var parsed struct {
		Text string `json:"text"`
	}
	err = c.breaker.Do(func() error {
		respBody, err := c.post(ctx, "/audio/transcriptions", writer.FormDataContentType(), body.Bytes())
		if err != nil {
			return err
		}
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return fmt.Errorf("decode transcription: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(parsed.Text)
	return &speechmodel.ASRResponse{
		SessionID:  req.SessionID,
		Text:       text,
		Confidence: estimateASRConfidence(text),
		Duration:   time.Since(started).Milliseconds(),
		CreatedAt:  time.Now(),
	}, nil
}

// Synthesize posts to /audio/speech and returns the mp3 clip.
func (c *OpenAIClient) Synthesize(ctx context.Context, req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}
	if c.apiKey == "" {
		return nil, ErrMissingCredentials
	}

	payload := map[string]any{
		"model":           c.ttsModel,
		"input":           req.Text,
		"voice":           normalizeOpenAIVoice(req.Voice, c.voice),
		"response_format": "mp3",
	}
	if req.Speed > 0 && req.Speed != 1.0 {
		payload["speed"] = req.Speed
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal speech request: %w", err)
	}

	var audio []byte
	err = c.breaker.Do(func() error {
		audio, err = c.post(ctx, "/audio/speech", "application/json", data)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("speech endpoint returned no audio")
	}

	return &speechmodel.TTSResponse{
		SessionID: req.SessionID,
		AudioData: audio,
		Format:    "mp3",
		CreatedAt: time.Now(),
	}, nil
}

func (c *OpenAIClient) post(ctx context.Context, path, contentType string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("POST %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return respBody, nil
}

// isoLanguage turns "en-US" into "en".
func isoLanguage(requested, fallback string) string {
	lang := strings.TrimSpace(requested)
	if lang == "" {
		lang = strings.TrimSpace(fallback)
	}
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	return strings.ToLower(lang)
}
