package intent

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/voicebank/backend/internal/model/dialogue"
)

type fakeChatModel struct {
	reply string
	err   error
	seen  []*schema.Message
}

func (m *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.seen = input
	if m.err != nil {
		return nil, m.err
	}
	return schema.AssistantMessage(m.reply, nil), nil
}

func (m *fakeChatModel) Stream(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not supported")
}

func (m *fakeChatModel) BindTools(_ []*schema.ToolInfo) error { return nil }

func newTestLLM(t *testing.T, m *fakeChatModel) *LLMClassifier {
	t.Helper()
	c, err := NewLLMClassifier(context.Background(), m, nil, nil)
	if err != nil {
		t.Fatalf("NewLLMClassifier: %v", err)
	}
	return c
}

func TestLLMClassifierParsesModelOutput(t *testing.T) {
	m := &fakeChatModel{reply: "Sure:\n{\"intent\":\"TRANSFER_MONEY\",\"confidence\":0.82,\"entities\":{\"amount\":\"100\"}}"}
	c := newTestLLM(t, m)

	res, err := c.Classify(context.Background(), "move a hundred to my brother")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Intent != dialogue.TransferMoney || res.Confidence != 0.82 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Entities[dialogue.SlotAmount] != "100" {
		t.Fatalf("entities = %v", res.Entities)
	}
	if len(m.seen) != 2 || m.seen[1].Content != "Customer said:\nmove a hundred to my brother" {
		t.Fatalf("unexpected prompt %+v", m.seen)
	}
}

func TestLLMClassifierOutOfSetLabelUsesKeywords(t *testing.T) {
	cases := map[string]struct {
		reply string
		text  string
		want  dialogue.Intent
		conf  float64
	}{
		"matching keyword": {reply: `{"intent":"balance_inquiry","confidence":0.8}`, text: "check my balance", want: dialogue.CheckBalance, conf: matchConfidence},
		"legacy label":     {reply: `{"intent":"change_pin","confidence":0.9}`, text: "open an account", want: dialogue.Unknown, conf: unknownConfidence},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			res, err := newTestLLM(t, &fakeChatModel{reply: tc.reply}).Classify(context.Background(), tc.text)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Intent != tc.want || res.Confidence != tc.conf {
				t.Fatalf("expected keyword result %s/%v, got %+v", tc.want, tc.conf, res)
			}
		})
	}
}

func TestLLMClassifierTrustsUnknownLabel(t *testing.T) {
	c := newTestLLM(t, &fakeChatModel{reply: `{"intent":"unknown","confidence":0.7}`})
	res, _ := c.Classify(context.Background(), "check my balance")
	if res.Intent != dialogue.Unknown || res.Confidence != 0.7 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestLLMClassifierFallsBack(t *testing.T) {
	cases := map[string]*fakeChatModel{
		"model error": {err: errors.New("boom")},
		"not json":    {reply: "I think it is a balance request"},
		"empty":       {reply: "  "},
		"no intent":   {reply: `{"confidence":0.9}`},
		"broken json": {reply: `{"intent": }`},
	}
	for name, m := range cases {
		t.Run(name, func(t *testing.T) {
			res, err := newTestLLM(t, m).Classify(context.Background(), "check my balance")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Intent != dialogue.CheckBalance || res.Confidence != matchConfidence {
				t.Fatalf("expected keyword fallback, got %+v", res)
			}
		})
	}
}

func TestLLMClassifierClampsConfidence(t *testing.T) {
	c := newTestLLM(t, &fakeChatModel{reply: `{"intent":"help","confidence":7}`})
	res, _ := c.Classify(context.Background(), "assist")
	if res.Confidence != 1 {
		t.Fatalf("confidence = %v", res.Confidence)
	}
}

func TestNewLLMClassifierRequiresModel(t *testing.T) {
	if _, err := NewLLMClassifier(context.Background(), nil, nil, nil); err == nil {
		t.Fatal("expected error for nil model")
	}
}
