package config

import (
	"testing"
	"time"

	speechmodel "github.com/zhouzirui/voicebank/backend/internal/model/speech"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("SPEECH_PROVIDER", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("BANKING_BASE_URL", "")
	t.Setenv("INTENT_PROVIDER", "")
	t.Setenv("PLAYBACK_TIMEOUT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Fatalf("unexpected addr: %s", cfg.Server.Addr)
	}
	if cfg.Speech.Provider != speechmodel.ProviderOpenAI || cfg.Speech.TTSVoice != "nova" {
		t.Fatalf("unexpected speech defaults: %+v", cfg.Speech)
	}
	if cfg.Speech.Enabled {
		t.Fatal("speech should be disabled without OPENAI_API_KEY")
	}
	if cfg.Banking.Remote() {
		t.Fatal("expected local ledger when BANKING_BASE_URL is empty")
	}
	if cfg.Intent.Provider != IntentKeyword {
		t.Fatalf("unexpected intent provider: %s", cfg.Intent.Provider)
	}
	if cfg.Dialogue.PlaybackTimeout != 60*time.Second {
		t.Fatalf("unexpected playback timeout: %s", cfg.Dialogue.PlaybackTimeout)
	}
	if cfg.Dialogue.StatementFetchLimit != 5 || cfg.Dialogue.StatementSpeakLimit != 3 {
		t.Fatalf("unexpected statement limits: %+v", cfg.Dialogue)
	}
}

func TestLoadServerConfig(t *testing.T) {
	cases := []struct {
		port    string
		want    string
		wantErr bool
	}{
		{port: "9000", want: ":9000"},
		{port: "127.0.0.1:9000", want: "127.0.0.1:9000"},
		{port: "90 00", wantErr: true},
	}

	for _, tc := range cases {
		t.Setenv("PORT", tc.port)
		got, err := loadServerConfig()
		if tc.wantErr {
			if err == nil {
				t.Fatalf("PORT=%q: expected error", tc.port)
			}
			continue
		}
		if err != nil {
			t.Fatalf("PORT=%q: unexpected error %v", tc.port, err)
		}
		if got.Addr != tc.want {
			t.Fatalf("PORT=%q: got %s want %s", tc.port, got.Addr, tc.want)
		}
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"SPEECH_PROVIDER":   "carrier-pigeon",
		"INTENT_PROVIDER":   "tarot",
		"PLAYBACK_TIMEOUT":  "-1",
		"CAPTURE_MAX_BYTES": "lots",
		"LOG_FORMAT":        "xml",
	}

	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("%s=%q: expected error", key, value)
			}
		})
	}
}

func TestHTTPIntentRequiresEndpoint(t *testing.T) {
	t.Setenv("INTENT_PROVIDER", "http")
	t.Setenv("INTENT_ENDPOINT", "")
	if _, err := loadIntentConfig(); err == nil {
		t.Fatal("expected error without INTENT_ENDPOINT")
	}

	t.Setenv("INTENT_ENDPOINT", "http://intent.local")
	cfg, err := loadIntentConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Endpoint != "http://intent.local" {
		t.Fatalf("unexpected endpoint: %s", cfg.Endpoint)
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" http://a.test , ,http://b.test")
	if len(got) != 2 || got[0] != "http://a.test" || got[1] != "http://b.test" {
		t.Fatalf("unexpected list: %v", got)
	}
}
