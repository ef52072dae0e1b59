package intent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/zhouzirui/voicebank/backend/internal/model/dialogue"
)

func TestHTTPClassifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["text"] != "pay my water bill" {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"intent":     "pay_bill",
			"confidence": 0.9,
			"entities":   map[string]string{"billType": "water"},
		})
	}))
	defer srv.Close()

	c := NewHTTPClassifier(srv.URL, time.Second, nil, nil)
	res, err := c.Classify(context.Background(), "pay my water bill")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Intent != dialogue.PayBill || res.Entities[dialogue.SlotBillType] != "water" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestHTTPClassifierFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewHTTPClassifier(srv.URL, time.Second, nil, nil)
	_, err := c.Classify(context.Background(), "balance")
	var svcErr *dialogue.ServiceError
	if !errors.As(err, &svcErr) || svcErr.Service != "intent" {
		t.Fatalf("expected intent service error, got %v", err)
	}
}
