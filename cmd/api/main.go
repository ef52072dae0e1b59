package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/voicebank/backend/internal/config"
	"github.com/zhouzirui/voicebank/backend/internal/handler"
	"github.com/zhouzirui/voicebank/backend/internal/service/banking"
	"github.com/zhouzirui/voicebank/backend/internal/service/dialogue"
	"github.com/zhouzirui/voicebank/backend/internal/service/intent"
	"github.com/zhouzirui/voicebank/backend/internal/service/session"
	"github.com/zhouzirui/voicebank/backend/internal/service/speech"
	"github.com/zhouzirui/voicebank/backend/internal/store"
	"github.com/zhouzirui/voicebank/backend/internal/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := telemetry.NewLogger(cfg.Log)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	if envErr != nil {
		logger.Info("no .env file loaded, using process environment", zap.Error(envErr))
	}

	speechSvc := newSpeechService(cfg, logger)

	classifier, err := intent.New(ctx, cfg, logger)
	if err != nil {
		logger.Warn("intent classifier unavailable, using keywords", zap.Error(err))
		classifier = intent.NewKeywordClassifier()
	}

	bank, closeBank, err := newBankingClient(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize banking backend", zap.Error(err))
	}
	defer closeBank()

	sessions := session.NewService(dialogue.Deps{
		Transcriber: speechSvc,
		Classifier:  classifier,
		Bank:        bank,
		Synthesizer: speechSvc,
	}, dialogue.Config{
		PlaybackTimeout:     cfg.Dialogue.PlaybackTimeout,
		StatementFetchLimit: cfg.Dialogue.StatementFetchLimit,
		StatementSpeakLimit: cfg.Dialogue.StatementSpeakLimit,
		Language:            cfg.Speech.ASRLanguage,
	}, speechSvc.DefaultVoice(), logger)

	router := handler.NewRouter(handler.Dependencies{
		Sessions:        sessions,
		Classifier:      classifier,
		Speech:          speechSvc,
		CORSOrigins:     cfg.Server.CORSOrigins,
		CaptureMaxBytes: cfg.Dialogue.CaptureMaxBytes,
		Logger:          logger,
	})

	startServer(ctx, cfg.Server, router, logger)
}

func newSpeechService(cfg *config.Config, logger *zap.Logger) *speech.Service {
	speechCfg := cfg.Speech.Model()
	if !cfg.Speech.Enabled {
		logger.Warn("speech credentials not configured, voice turns will fail",
			zap.String("provider", string(cfg.Speech.Provider)))
		return speech.NewDisabledService(speechCfg, logger)
	}

	svc, err := speech.NewService(speechCfg, logger)
	if err != nil {
		logger.Warn("failed to initialize speech service", zap.Error(err))
		return speech.NewDisabledService(speechCfg, logger)
	}
	logger.Info("speech service initialized", zap.String("provider", string(cfg.Speech.Provider)))
	return svc
}

func newBankingClient(ctx context.Context, cfg *config.Config, logger *zap.Logger) (banking.Client, func(), error) {
	if cfg.Banking.Remote() {
		logger.Info("using remote banking API", zap.String("baseURL", cfg.Banking.BaseURL))
		return banking.NewHTTPClient(cfg.Banking.BaseURL, cfg.Banking.Timeout, nil, logger), func() {}, nil
	}

	ledger, err := store.OpenLedger(ctx, cfg.Banking.LedgerPath, logger)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("using demo ledger", zap.String("path", cfg.Banking.LedgerPath))
	return ledger, func() {
		if err := ledger.Close(); err != nil {
			logger.Warn("close ledger", zap.Error(err))
		}
	}, nil
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger *zap.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("voice banking backend listening", zap.String("addr", addr))
	if err := runServer(ctx, srv); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
