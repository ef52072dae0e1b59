package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/voicebank/backend/internal/model/dialogue"
	intentsvc "github.com/zhouzirui/voicebank/backend/internal/service/intent"
)

type failingClassifier struct{}

func (failingClassifier) Classify(context.Context, string) (intentsvc.Result, error) {
	return intentsvc.Result{}, dialogue.NewServiceError("intent", "classify", errors.New("boom"))
}

func recognize(t *testing.T, h *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/intent/recognize", bytes.NewBufferString(body)))
	return rr
}

func TestRecognizeKeywordIntent(t *testing.T) {
	cases := []struct {
		text   string
		label  string
		mapped dialogue.Intent
	}{
		{text: "what is my balance", label: "check_balance", mapped: dialogue.CheckBalance},
		{text: "send money to 555-1234", label: "transfer_money", mapped: dialogue.TransferMoney},
		{text: "please change pin now", label: "change_pin", mapped: dialogue.Unknown},
		{text: "sing me a song", label: "unknown", mapped: dialogue.Unknown},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			body, _ := json.Marshal(map[string]string{"text": tc.text})
			rr := recognize(t, New(nil, nil), string(body))
			if rr.Code != http.StatusOK {
				t.Fatalf("unexpected status %d", rr.Code)
			}
			var resp recognizeResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Intent != tc.label || resp.Mapped != tc.mapped {
				t.Fatalf("got %s/%s, want %s/%s", resp.Intent, resp.Mapped, tc.label, tc.mapped)
			}
			if resp.Confidence <= 0 || resp.Entities == nil {
				t.Fatalf("missing confidence or entities: %+v", resp)
			}
		})
	}
}

func TestRecognizeRequiresText(t *testing.T) {
	rr := recognize(t, New(nil, nil), `{"text":"   "}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestRecognizeClassifierFailure(t *testing.T) {
	rr := recognize(t, New(failingClassifier{}, nil), `{"text":"balance"}`)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rr.Code)
	}
	if bytes.Contains(rr.Body.Bytes(), []byte("boom")) {
		t.Fatal("cause leaked into the response")
	}
}
