package voice

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/voicebank/backend/internal/model/dialogue"
	speechmodel "github.com/zhouzirui/voicebank/backend/internal/model/speech"
)

type fakeSpeechService struct {
	transcribeFormat string
	transcribeAudio  string
	synthText        string
	synthVoice       string
	err              error
}

func (f *fakeSpeechService) TranscribeAudio(ctx context.Context, req *speechmodel.ASRRequest) (*speechmodel.ASRResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, _ := io.ReadAll(req.AudioData)
	f.transcribeAudio = string(data)
	f.transcribeFormat = req.Format
	return &speechmodel.ASRResponse{SessionID: req.SessionID, Text: "check balance", Confidence: 0.9}, nil
}

func (f *fakeSpeechService) SynthesizeSpeech(ctx context.Context, req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.synthText = req.Text
	f.synthVoice = req.Voice
	return &speechmodel.TTSResponse{SessionID: req.SessionID, AudioData: []byte("audio"), Format: "mp3"}, nil
}

func serve(h *Handler, req *http.Request) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func multipartRequest(t *testing.T, field, filename string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("CreateFormFile err: %v", err)
	}
	if _, err := part.Write([]byte("audio")); err != nil {
		t.Fatalf("write audio err: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("writer.Close err: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/voice/transcribe", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestTranscribeReturnsText(t *testing.T) {
	svc := &fakeSpeechService{}
	rr := serve(New(svc, nil, nil), multipartRequest(t, "file", "recording.webm"))

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rr.Code, rr.Body.String())
	}
	if !bytes.Contains(rr.Body.Bytes(), []byte(`"text":"check balance"`)) {
		t.Fatalf("unexpected body %s", rr.Body.String())
	}
	if svc.transcribeAudio != "audio" || svc.transcribeFormat != "webm" {
		t.Fatalf("unexpected request: %q %s", svc.transcribeAudio, svc.transcribeFormat)
	}
}

func TestTranscribeAcceptsAudioField(t *testing.T) {
	svc := &fakeSpeechService{}
	rr := serve(New(svc, nil, nil), multipartRequest(t, "audio", "clip.wav"))
	if rr.Code != http.StatusOK || svc.transcribeFormat != "wav" {
		t.Fatalf("status %d format %s", rr.Code, svc.transcribeFormat)
	}
}

func TestTranscribeRequiresFile(t *testing.T) {
	rr := serve(New(&fakeSpeechService{}, nil, nil), multipartRequest(t, "other", "x.webm"))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestTranscribeServiceFailure(t *testing.T) {
	svc := &fakeSpeechService{err: dialogue.NewServiceError("transcription", "transcribe", errors.New("down"))}
	rr := serve(New(svc, nil, nil), multipartRequest(t, "file", "a.webm"))
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rr.Code)
	}
}

func TestSynthesizeFromQuery(t *testing.T) {
	svc := &fakeSpeechService{}
	req := httptest.NewRequest(http.MethodPost, "/voice/synthesize?text=Hello&voice=alloy", nil)
	rr := serve(New(svc, nil, nil), req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "audio/mpeg" {
		t.Fatalf("unexpected content type %s", ct)
	}
	if rr.Body.String() != "audio" {
		t.Fatalf("unexpected body %q", rr.Body.String())
	}
	if svc.synthText != "Hello" || svc.synthVoice != "alloy" {
		t.Fatalf("unexpected request %q %q", svc.synthText, svc.synthVoice)
	}
}

func TestSynthesizeFromJSONBody(t *testing.T) {
	svc := &fakeSpeechService{}
	req := httptest.NewRequest(http.MethodPost, "/voice/synthesize", bytes.NewBufferString(`{"text":"Hi there"}`))
	rr := serve(New(svc, nil, nil), req)
	if rr.Code != http.StatusOK || svc.synthText != "Hi there" {
		t.Fatalf("status %d text %q", rr.Code, svc.synthText)
	}
}

func TestSynthesizeRequiresText(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/voice/synthesize?text=%20", nil)
	rr := serve(New(&fakeSpeechService{}, nil, nil), req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestWebSocketRouteUnavailable(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/voice/ws/abc", nil)
	rr := serve(New(&fakeSpeechService{}, nil, nil), req)
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", rr.Code)
	}
}

func TestInferAudioFormat(t *testing.T) {
	cases := map[string]string{
		"a.mp3":  "mp3",
		"a.WAV":  "wav",
		"a.m4a":  "m4a",
		"a.ogg":  "ogg",
		"a.webm": "webm",
		"blob":   "webm",
	}
	for name, want := range cases {
		if got := inferAudioFormat(name); got != want {
			t.Errorf("inferAudioFormat(%q) = %s, want %s", name, got, want)
		}
	}
}
