// Package intent maps transcribed text onto a banking intent.
package intent

import (
	"context"

	"github.com/zhouzirui/voicebank/backend/internal/model/dialogue"
)

// Result is one classification.
type Result struct {
	Intent     dialogue.Intent   `json:"intent"`
	Label      string            `json:"label"`
	Confidence float64           `json:"confidence"`
	Entities   map[string]string `json:"entities"`
}

// Classifier turns free text into an intent.
type Classifier interface {
	Classify(ctx context.Context, text string) (Result, error)
}

func newResult(label string, confidence float64, entities map[string]string) Result {
	if entities == nil {
		entities = map[string]string{}
	}
	return Result{
		Intent:     dialogue.ParseIntent(label),
		Label:      label,
		Confidence: confidence,
		Entities:   entities,
	}
}
