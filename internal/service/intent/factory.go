package intent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/zhouzirui/voicebank/backend/internal/config"
	"github.com/zhouzirui/voicebank/backend/internal/telemetry"
)

// New builds the classifier selected by cfg.Intent.Provider. The llm
// provider degrades to keywords when Ark is not configured.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Classifier, error) {
	logger = telemetry.OrNop(logger)

	switch cfg.Intent.Provider {
	case config.IntentHTTP:
		return NewHTTPClassifier(cfg.Intent.Endpoint, cfg.Intent.Timeout, nil, logger), nil
	case config.IntentLLM:
		if !cfg.AI.Enabled() {
			logger.Warn("INTENT_PROVIDER=llm but Ark is not configured, using keywords")
			return NewKeywordClassifier(), nil
		}
		chatModel, err := cfg.AI.NewChatModel(ctx)
		if err != nil {
			return nil, fmt.Errorf("create intent chat model: %w", err)
		}
		return NewLLMClassifier(ctx, chatModel, nil, logger)
	default:
		return NewKeywordClassifier(), nil
	}
}
