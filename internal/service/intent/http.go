package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/voicebank/backend/internal/breaker"
	"github.com/zhouzirui/voicebank/backend/internal/model/dialogue"
	"github.com/zhouzirui/voicebank/backend/internal/telemetry"
)

// HTTPDoer is the subset of *http.Client the remote classifier needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPClassifier delegates to a remote recognizer that accepts
// {"text": ...} and answers with {"intent", "confidence", "entities"}.
type HTTPClassifier struct {
	endpoint string
	client   HTTPDoer
	breaker  *breaker.Breaker
	logger   *zap.Logger
}

// NewHTTPClassifier creates a remote classifier. A nil client uses one
// with the given timeout.
func NewHTTPClassifier(endpoint string, timeout time.Duration, client HTTPDoer, logger *zap.Logger) *HTTPClassifier {
	logger = telemetry.OrNop(logger).Named("intent")
	if client == nil {
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPClassifier{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   client,
		breaker:  breaker.New(breaker.Settings{Name: "intent"}, logger),
		logger:   logger,
	}
}

// Classify implements Classifier. Failures are returned as
// *dialogue.ServiceError so callers can treat them as an unknown intent.
func (c *HTTPClassifier) Classify(ctx context.Context, text string) (Result, error) {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return Result{}, fmt.Errorf("marshal intent request: %w", err)
	}

	started := time.Now()
	var payload llmPayload
	err = c.breaker.Do(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("POST %s: %w", c.endpoint, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read intent response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("intent endpoint status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("decode intent response: %w", err)
		}
		return nil
	})
	telemetry.ObserveCall("intent", "classify", started, err)
	if err != nil {
		c.logger.Warn("remote classification failed", zap.Error(err))
		return Result{}, dialogue.NewServiceError("intent", "classify", err)
	}

	label := strings.ToLower(strings.TrimSpace(payload.Intent))
	if label == "" {
		label = string(dialogue.Unknown)
	}
	return newResult(label, payload.Confidence, payload.Entities), nil
}
