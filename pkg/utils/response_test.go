package utils

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/zhouzirui/voicebank/backend/internal/model/dialogue"
)

func TestClassifyError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{&dialogue.ValidationError{Fields: map[string]string{"amount": "required"}}, http.StatusBadRequest, "validation"},
		{fmt.Errorf("turn: %w", &dialogue.BusyError{Phase: dialogue.PhaseSpeaking}), http.StatusConflict, "busy"},
		{&dialogue.DomainError{Reason: "Insufficient balance"}, http.StatusUnprocessableEntity, "domain"},
		{dialogue.NewServiceError("banking", "transfer", errors.New("dial tcp: refused")), http.StatusBadGateway, "service"},
		{dialogue.ErrPermissionDenied, http.StatusForbidden, "permission_denied"},
		{errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		status, body := ClassifyError(tc.err)
		if status != tc.status || body.Code != tc.code {
			t.Errorf("%v: got %d/%s, want %d/%s", tc.err, status, body.Code, tc.status, tc.code)
		}
	}
}

func TestServiceErrorDoesNotLeakCause(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondDialogueError(rec, nil, dialogue.NewServiceError("banking", "transfer", errors.New("secret host 10.0.0.1")))
	if strings.Contains(rec.Body.String(), "10.0.0.1") {
		t.Fatalf("response leaked cause: %s", rec.Body.String())
	}
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rec.Code)
	}
}
