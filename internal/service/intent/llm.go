package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/voicebank/backend/internal/model/dialogue"
	"github.com/zhouzirui/voicebank/backend/internal/telemetry"
)

// LLMClassifier asks a chat model for the intent and falls back to the
// keyword table whenever the model errors or answers with something
// unparseable.
type LLMClassifier struct {
	chain    compose.Runnable[map[string]any, *schema.Message]
	fallback Classifier
	logger   *zap.Logger
}

type llmPayload struct {
	Intent     string            `json:"intent"`
	Confidence float64           `json:"confidence"`
	Entities   map[string]string `json:"entities"`
}

// NewLLMClassifier compiles the prompt chain around chatModel. A nil
// fallback defaults to the keyword classifier.
func NewLLMClassifier(ctx context.Context, chatModel model.BaseChatModel, fallback Classifier, logger *zap.Logger) (*LLMClassifier, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("intent classifier requires a chat model")
	}
	if fallback == nil {
		fallback = NewKeywordClassifier()
	}

	template := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(intentSystemPrompt),
		schema.UserMessage(intentUserPrompt),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(template)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile intent classifier chain: %w", err)
	}

	return &LLMClassifier{
		chain:    runnable,
		fallback: fallback,
		logger:   telemetry.OrNop(logger).Named("intent"),
	}, nil
}

// Classify implements Classifier. It only returns an error when both the
// model and the fallback fail.
func (c *LLMClassifier) Classify(ctx context.Context, text string) (Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return newResult(string(dialogue.Unknown), unknownConfidence, nil), nil
	}

	msg, err := c.chain.Invoke(ctx, map[string]any{"text": text})
	if err != nil {
		c.logger.Warn("classifier invoke failed, using keywords", zap.Error(err))
		return c.fallback.Classify(ctx, text)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return c.fallback.Classify(ctx, text)
	}

	payload, err := parseClassifierOutput(msg.Content)
	if err != nil {
		c.logger.Warn("classifier output parse failed, using keywords", zap.Error(err))
		return c.fallback.Classify(ctx, text)
	}

	label := strings.ToLower(strings.TrimSpace(payload.Intent))
	if label == "" {
		return c.fallback.Classify(ctx, text)
	}
	if !dialogue.Intent(label).Valid() {
		c.logger.Warn("classifier returned unknown label, using keywords", zap.String("label", label))
		return c.fallback.Classify(ctx, text)
	}

	confidence := payload.Confidence
	if confidence <= 0 {
		confidence = 0.6
	}
	if confidence > 1 {
		confidence = 1
	}
	return newResult(label, confidence, payload.Entities), nil
}

func parseClassifierOutput(content string) (*llmPayload, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("missing json object")
	}

	payload := &llmPayload{}
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), payload); err != nil {
		return nil, err
	}
	return payload, nil
}

const intentSystemPrompt = "You route requests for a voice banking assistant. Read the customer's words and pick exactly one intent: check_balance, mini_statement, transfer_money, pay_bill, help or unknown.\nReturn only one JSON object with the fields intent (one of the labels above), confidence (a number between 0 and 1) and entities (an object that may hold phone, amount and billType as strings when the customer said them). Output nothing else."

const intentUserPrompt = "Customer said:\n{text}"
