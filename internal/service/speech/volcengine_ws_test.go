package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	speechmodel "github.com/zhouzirui/voicebank/backend/internal/model/speech"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func writeFrame(t *testing.T, conn *websocket.Conn, msg *Message) {
	t.Helper()
	frame, err := EncodeMessage(msg)
	if err != nil {
		t.Errorf("encode frame: %v", err)
		return
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		t.Errorf("write frame: %v", err)
	}
}

func readFrame(conn *websocket.Conn) (*Message, error) {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return DecodeMessage(bytes.NewReader(data))
}

func testSpeechConfig() *speechmodel.SpeechConfig {
	return &speechmodel.SpeechConfig{
		Provider:    speechmodel.ProviderVolcengine,
		AppID:       "app",
		AccessToken: "token",
		ASRLanguage: "en-US",
		TTSVoice:    "nova",
	}
}

// fakeASRServer collects audio until the last packet, then answers with
// a gzip JSON transcript.
func fakeASRServer(t *testing.T, transcript string, gotAudio chan<- []byte) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-App-Key") != "app" || r.Header.Get("X-Api-Access-Key") != "token" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		first, err := readFrame(conn)
		if err != nil || first.Header.MessageType != FullClientRequest {
			t.Errorf("expected full client request, got %+v err=%v", first, err)
			return
		}

		var audio bytes.Buffer
		for {
			msg, err := readFrame(conn)
			if err != nil {
				t.Errorf("read audio frame: %v", err)
				return
			}
			chunk, _ := DecompressPayload(msg.Payload, msg.Header.CompressionMethod)
			audio.Write(chunk)
			if msg.IsLastPacket() {
				break
			}
		}
		gotAudio <- audio.Bytes()

		body, _ := json.Marshal(map[string]any{
			"code":     0,
			"sequence": -1,
			"result":   map[string]any{"text": transcript},
		})
		compressed, _ := CompressPayload(body, GzipCompression)
		writeFrame(t, conn, &Message{
			Header:      NewHeader(FullServerResponse, NegativeSequenceNumber, JSONSerialization, GzipCompression),
			Sequence:    -3,
			PayloadSize: uint32(len(compressed)),
			Payload:     compressed,
		})
	}))
}

func TestVolcengineASRTranscribe(t *testing.T) {
	gotAudio := make(chan []byte, 1)
	srv := fakeASRServer(t, "check balance", gotAudio)
	defer srv.Close()

	client := NewVolcengineASRClient(testSpeechConfig(), nil)
	client.endpoint = wsURL(srv)
	client.chunkSize = 4
	client.chunkInterval = time.Millisecond

	resp, err := client.Transcribe(context.Background(), &speechmodel.ASRRequest{
		SessionID: "s1",
		AudioData: strings.NewReader("0123456789"),
		Format:    "webm",
	})
	if err != nil {
		t.Fatalf("Transcribe err: %v", err)
	}
	if resp.Text != "check balance" {
		t.Fatalf("unexpected transcript %q", resp.Text)
	}
	if got := <-gotAudio; string(got) != "0123456789" {
		t.Fatalf("server received %q", got)
	}
}

func TestVolcengineASRRejectsEmptyAudio(t *testing.T) {
	client := NewVolcengineASRClient(testSpeechConfig(), nil)
	_, err := client.Transcribe(context.Background(), &speechmodel.ASRRequest{AudioData: strings.NewReader("")})
	if !errors.Is(err, ErrEmptyAudio) {
		t.Fatalf("expected ErrEmptyAudio, got %v", err)
	}
}

func TestVolcengineASRMissingCredentials(t *testing.T) {
	client := NewVolcengineASRClient(&speechmodel.SpeechConfig{}, nil)
	_, err := client.Transcribe(context.Background(), &speechmodel.ASRRequest{AudioData: strings.NewReader("x")})
	if !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("expected ErrMissingCredentials, got %v", err)
	}
}

func TestVolcengineTTSSynthesize(t *testing.T) {
	upgrader := websocket.Upgrader{}
	gotSpeaker := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		req, err := readFrame(conn)
		if err != nil {
			t.Errorf("read request: %v", err)
			return
		}
		var payload ttsRequestPayload
		if err := json.Unmarshal(req.Payload, &payload); err != nil {
			t.Errorf("unmarshal request: %v", err)
			return
		}
		gotSpeaker <- payload.ReqParams.Speaker

		writeFrame(t, conn, &Message{
			Header:      NewHeader(AudioOnlyServerResponse, NoSequenceNumber, NoSerialization, NoCompression),
			PayloadSize: 3,
			Payload:     []byte("mp3"),
		})

		body, _ := json.Marshal(map[string]any{
			"code": 0,
			"data": base64.StdEncoding.EncodeToString([]byte("-tail")),
		})
		writeFrame(t, conn, &Message{
			Header:      NewHeader(FullServerResponse, WithEvent, JSONSerialization, NoCompression),
			EventType:   EventTypeSessionFinished,
			SessionID:   "s1",
			PayloadSize: uint32(len(body)),
			Payload:     body,
		})
	}))
	defer srv.Close()

	client := NewVolcengineTTSClient(testSpeechConfig(), nil)
	client.endpoint = wsURL(srv)

	resp, err := client.Synthesize(context.Background(), &speechmodel.TTSRequest{SessionID: "s1", Text: "Hello", Voice: "nova"})
	if err != nil {
		t.Fatalf("Synthesize err: %v", err)
	}
	if string(resp.AudioData) != "mp3-tail" || resp.Format != "mp3" {
		t.Fatalf("unexpected response: %q %s", resp.AudioData, resp.Format)
	}
	if speaker := <-gotSpeaker; speaker != "en_female_amy_jupiter_bigtts" {
		t.Fatalf("unexpected speaker %s", speaker)
	}
}

func TestVolcengineTTSRejectsEmptyText(t *testing.T) {
	client := NewVolcengineTTSClient(testSpeechConfig(), nil)
	if _, err := client.Synthesize(context.Background(), &speechmodel.TTSRequest{Text: "  "}); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("expected ErrEmptyText, got %v", err)
	}
}
