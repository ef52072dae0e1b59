// Command voicecheck exercises the configured speech and intent providers
// from the command line.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/voicebank/backend/internal/config"
	speechmodel "github.com/zhouzirui/voicebank/backend/internal/model/speech"
	"github.com/zhouzirui/voicebank/backend/internal/service/intent"
	"github.com/zhouzirui/voicebank/backend/internal/service/speech"
	"github.com/zhouzirui/voicebank/backend/internal/telemetry"
)

func main() {
	mode := flag.String("mode", "", "check mode: asr, tts or intent")
	audioPath := flag.String("audio", "", "input audio file for asr")
	text := flag.String("text", "", "input text for tts and intent")
	outputPath := flag.String("out", "", "output audio file for tts (default derived from format)")
	format := flag.String("format", "", "audio format (asr: input, tts: output)")
	language := flag.String("lang", "", "language code, defaults to the configured language")
	voice := flag.String("voice", "", "tts voice, defaults to SPEECH_TTS_VOICE")
	session := flag.String("session", "", "session id, generated when empty")
	timeout := flag.Duration("timeout", 45*time.Second, "request timeout")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded, using process environment: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := telemetry.NewLogger(config.LogConfig{Level: cfg.Log.Level, Format: "console"})
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	sessionID := *session
	if sessionID == "" {
		sessionID = fmt.Sprintf("check-%d", time.Now().UnixNano())
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch *mode {
	case "asr":
		runASR(ctx, newSpeech(cfg, logger), logger, sessionID, *audioPath, *format, *language)
	case "tts":
		runTTS(ctx, newSpeech(cfg, logger), logger, sessionID, *text, *voice, *format, *outputPath)
	case "intent":
		runIntent(ctx, cfg, logger, *text)
	default:
		flag.Usage()
		logger.Fatal("choose a mode with -mode=asr, -mode=tts or -mode=intent")
	}
}

func newSpeech(cfg *config.Config, logger *zap.Logger) *speech.Service {
	if !cfg.Speech.Enabled {
		logger.Fatal("speech provider is not configured", zap.String("provider", string(cfg.Speech.Provider)))
	}
	svc, err := speech.NewService(cfg.Speech.Model(), logger)
	if err != nil {
		logger.Fatal("failed to initialize speech service", zap.Error(err))
	}
	return svc
}

func runASR(ctx context.Context, svc *speech.Service, logger *zap.Logger, sessionID, audioPath, format, language string) {
	if audioPath == "" {
		logger.Fatal("asr mode needs -audio")
	}

	file, err := os.Open(audioPath)
	if err != nil {
		logger.Fatal("open audio file", zap.Error(err))
	}
	defer file.Close()

	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(audioPath)), ".")
		if format == "" {
			format = "webm"
		}
	}

	logger.Info("transcribing", zap.String("session", sessionID), zap.String("format", format))
	resp, err := svc.TranscribeAudio(ctx, &speechmodel.ASRRequest{
		SessionID: sessionID,
		AudioData: file,
		Format:    format,
		Language:  language,
	})
	if err != nil {
		logger.Fatal("transcription failed", zap.Error(err))
	}

	logger.Info("transcribed",
		zap.String("text", resp.Text),
		zap.Float64("confidence", resp.Confidence),
		zap.Int64("durationMs", resp.Duration))

	res := intent.MatchKeywords(resp.Text)
	logger.Info("keyword intent", zap.String("intent", res.Label), zap.Any("entities", res.Entities))
}

func runTTS(ctx context.Context, svc *speech.Service, logger *zap.Logger, sessionID, text, voice, format, outputPath string) {
	if strings.TrimSpace(text) == "" {
		logger.Fatal("tts mode needs -text")
	}
	if format == "" {
		format = "mp3"
	}
	if outputPath == "" {
		outputPath = fmt.Sprintf("tts-output-%d.%s", time.Now().Unix(), format)
	}

	resp, err := svc.SynthesizeSpeech(ctx, &speechmodel.TTSRequest{
		SessionID: sessionID,
		Text:      text,
		Voice:     voice,
		Format:    format,
	})
	if err != nil {
		logger.Fatal("synthesis failed", zap.Error(err))
	}

	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Fatal("create output directory", zap.Error(err))
		}
	}
	if err := os.WriteFile(outputPath, resp.AudioData, 0o644); err != nil {
		logger.Fatal("write audio file", zap.Error(err))
	}

	logger.Info("synthesized",
		zap.String("path", outputPath),
		zap.Int("bytes", len(resp.AudioData)),
		zap.String("format", resp.Format))
}

func runIntent(ctx context.Context, cfg *config.Config, logger *zap.Logger, text string) {
	if strings.TrimSpace(text) == "" {
		logger.Fatal("intent mode needs -text")
	}

	classifier, err := intent.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to build classifier", zap.Error(err))
	}

	res, err := classifier.Classify(ctx, text)
	if err != nil {
		logger.Fatal("classification failed", zap.Error(err))
	}
	logger.Info("classified",
		zap.String("provider", string(cfg.Intent.Provider)),
		zap.String("label", res.Label),
		zap.String("intent", string(res.Intent)),
		zap.Float64("confidence", res.Confidence),
		zap.Any("entities", res.Entities))
}
