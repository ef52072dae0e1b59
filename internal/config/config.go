package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	speechmodel "github.com/zhouzirui/voicebank/backend/internal/model/speech"
)

// Config aggregates every configuration section of the service.
type Config struct {
	Server   ServerConfig
	Log      LogConfig
	AI       AIConfig
	Intent   IntentConfig
	Speech   SpeechConfig
	Banking  BankingConfig
	Dialogue DialogueConfig
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	logCfg, err := loadLogConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	intent, err := loadIntentConfig()
	if err != nil {
		return nil, err
	}

	speech, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	banking, err := loadBankingConfig()
	if err != nil {
		return nil, err
	}

	dialogue, err := loadDialogueConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:   server,
		Log:      logCfg,
		AI:       ai,
		Intent:   intent,
		Speech:   speech,
		Banking:  banking,
		Dialogue: dialogue,
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr        string
	CORSOrigins []string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	origins := splitList(getEnvOrDefault("CORS_ORIGINS", "*"))

	if strings.Contains(port, ":") {
		// Accept ":8080" or "127.0.0.1:8080" as-is.
		return ServerConfig{Addr: port, CORSOrigins: origins}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, CORSOrigins: origins}, nil
}

// LogConfig selects the zap encoder and level.
type LogConfig struct {
	Level  string
	Format string
}

func loadLogConfig() (LogConfig, error) {
	format := strings.ToLower(getEnvOrDefault("LOG_FORMAT", "json"))
	if format != "json" && format != "console" {
		return LogConfig{}, fmt.Errorf("invalid LOG_FORMAT value %q: want json or console", format)
	}
	return LogConfig{
		Level:  strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		Format: format,
	}, nil
}

// AIConfig configures the Ark chat model used for intent classification.
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Enabled reports whether enough credentials were provided.
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel creates an Ark chat model from the configuration.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark credentials or model missing: set ARK_MODEL with ARK_API_KEY or an AK/SK pair")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("ARK_MODEL")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
	}, nil
}

// IntentProvider selects the intent classifier implementation.
type IntentProvider string

const (
	IntentKeyword IntentProvider = "keyword"
	IntentLLM     IntentProvider = "llm"
	IntentHTTP    IntentProvider = "http"
)

// IntentConfig configures intent classification.
type IntentConfig struct {
	Provider IntentProvider
	Endpoint string
	Timeout  time.Duration
}

func loadIntentConfig() (IntentConfig, error) {
	provider := IntentProvider(strings.ToLower(getEnvOrDefault("INTENT_PROVIDER", string(IntentKeyword))))
	switch provider {
	case IntentKeyword, IntentLLM, IntentHTTP:
	default:
		return IntentConfig{}, fmt.Errorf("invalid INTENT_PROVIDER value %q", provider)
	}

	endpoint := strings.TrimSpace(os.Getenv("INTENT_ENDPOINT"))
	if provider == IntentHTTP && endpoint == "" {
		return IntentConfig{}, fmt.Errorf("INTENT_ENDPOINT is required when INTENT_PROVIDER=http")
	}

	timeout, err := parseSecondsEnv("INTENT_TIMEOUT", 10)
	if err != nil {
		return IntentConfig{}, err
	}

	return IntentConfig{Provider: provider, Endpoint: endpoint, Timeout: timeout}, nil
}

// SpeechConfig configures transcription and synthesis.
type SpeechConfig struct {
	Provider      speechmodel.Provider
	AppID         string
	AccessToken   string
	APIKey        string
	Region        string
	OpenAIKey     string
	OpenAIBaseURL string
	ASRModel      string
	ASRLanguage   string
	TTSModel      string
	TTSVoice      string
	TTSSpeed      float32
	TTSVolume     float32
	TTSLanguage   string
	Timeout       int
	Enabled       bool
}

// Model converts the section into the speech service configuration.
func (c SpeechConfig) Model() *speechmodel.SpeechConfig {
	return &speechmodel.SpeechConfig{
		Provider:      c.Provider,
		AppID:         c.AppID,
		AccessToken:   c.AccessToken,
		APIKey:        c.APIKey,
		Region:        c.Region,
		OpenAIKey:     c.OpenAIKey,
		OpenAIBaseURL: c.OpenAIBaseURL,
		ASRModel:      c.ASRModel,
		TTSModel:      c.TTSModel,
		ASRLanguage:   c.ASRLanguage,
		TTSVoice:      c.TTSVoice,
		TTSSpeed:      c.TTSSpeed,
		TTSVolume:     c.TTSVolume,
		TTSLanguage:   c.TTSLanguage,
		Timeout:       c.Timeout,
	}
}

func loadSpeechConfig() (SpeechConfig, error) {
	timeout, err := parseOptionalIntEnv("SPEECH_TIMEOUT")
	if err != nil {
		return SpeechConfig{}, err
	}
	timeoutSeconds := 30
	if timeout != nil {
		timeoutSeconds = *timeout
	}

	speed, err := parseOptionalFloat32Env("SPEECH_TTS_SPEED")
	if err != nil {
		return SpeechConfig{}, err
	}
	ttsSpeed := float32(1.0)
	if speed != nil {
		ttsSpeed = *speed
	}

	volume, err := parseOptionalFloat32Env("SPEECH_TTS_VOLUME")
	if err != nil {
		return SpeechConfig{}, err
	}
	ttsVolume := float32(1.0)
	if volume != nil {
		ttsVolume = *volume
	}

	provider := speechmodel.Provider(strings.ToLower(getEnvOrDefault("SPEECH_PROVIDER", string(speechmodel.ProviderOpenAI))))

	cfg := SpeechConfig{
		Provider:      provider,
		AppID:         strings.TrimSpace(os.Getenv("SPEECH_APP_ID")),
		AccessToken:   strings.TrimSpace(os.Getenv("SPEECH_ACCESS_TOKEN")),
		APIKey:        strings.TrimSpace(os.Getenv("SPEECH_API_KEY")),
		Region:        getEnvOrDefault("SPEECH_REGION", "cn-beijing"),
		OpenAIKey:     strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIBaseURL: getEnvOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		ASRLanguage:   getEnvOrDefault("SPEECH_ASR_LANGUAGE", "en-US"),
		TTSVoice:      getEnvOrDefault("SPEECH_TTS_VOICE", "nova"),
		TTSSpeed:      ttsSpeed,
		TTSVolume:     ttsVolume,
		TTSLanguage:   getEnvOrDefault("SPEECH_TTS_LANGUAGE", "en-US"),
		Timeout:       timeoutSeconds,
	}
	if cfg.AccessToken == "" {
		cfg.AccessToken = cfg.APIKey
	}

	switch provider {
	case speechmodel.ProviderVolcengine:
		cfg.ASRModel = getEnvOrDefault("SPEECH_ASR_MODEL", "bigmodel")
		cfg.Enabled = cfg.AppID != "" && cfg.AccessToken != ""
	case speechmodel.ProviderOpenAI:
		cfg.ASRModel = getEnvOrDefault("SPEECH_ASR_MODEL", "whisper-1")
		cfg.TTSModel = getEnvOrDefault("SPEECH_TTS_MODEL", "tts-1")
		cfg.Enabled = cfg.OpenAIKey != ""
	default:
		return SpeechConfig{}, fmt.Errorf("invalid SPEECH_PROVIDER value %q", provider)
	}

	return cfg, nil
}

// BankingConfig selects the remote banking API or the local demo ledger.
type BankingConfig struct {
	BaseURL    string
	LedgerPath string
	Timeout    time.Duration
}

// Remote reports whether a remote banking API is configured.
func (c BankingConfig) Remote() bool {
	return c.BaseURL != ""
}

func loadBankingConfig() (BankingConfig, error) {
	timeout, err := parseSecondsEnv("BANKING_TIMEOUT", 15)
	if err != nil {
		return BankingConfig{}, err
	}
	return BankingConfig{
		BaseURL:    strings.TrimRight(strings.TrimSpace(os.Getenv("BANKING_BASE_URL")), "/"),
		LedgerPath: getEnvOrDefault("LEDGER_PATH", "data/voice_banking.db"),
		Timeout:    timeout,
	}, nil
}

// DialogueConfig tunes the dialogue controller and capture limits.
type DialogueConfig struct {
	PlaybackTimeout     time.Duration
	StatementFetchLimit int
	StatementSpeakLimit int
	CaptureMaxBytes     int
}

func loadDialogueConfig() (DialogueConfig, error) {
	playback, err := parseSecondsEnv("PLAYBACK_TIMEOUT", 60)
	if err != nil {
		return DialogueConfig{}, err
	}

	fetchLimit, err := parsePositiveIntEnv("STATEMENT_FETCH_LIMIT", 5)
	if err != nil {
		return DialogueConfig{}, err
	}

	speakLimit, err := parsePositiveIntEnv("STATEMENT_SPEAK_LIMIT", 3)
	if err != nil {
		return DialogueConfig{}, err
	}

	maxBytes, err := parsePositiveIntEnv("CAPTURE_MAX_BYTES", 10<<20)
	if err != nil {
		return DialogueConfig{}, err
	}

	return DialogueConfig{
		PlaybackTimeout:     playback,
		StatementFetchLimit: fetchLimit,
		StatementSpeakLimit: speakLimit,
		CaptureMaxBytes:     maxBytes,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseSecondsEnv(key string, defaultSeconds int) (time.Duration, error) {
	seconds, err := parsePositiveIntEnv(key, defaultSeconds)
	if err != nil {
		return 0, err
	}
	return time.Duration(seconds) * time.Second, nil
}

func parsePositiveIntEnv(key string, defaultValue int) (int, error) {
	val, err := parseOptionalIntEnv(key)
	if err != nil {
		return 0, err
	}
	if val == nil {
		return defaultValue, nil
	}
	if *val <= 0 {
		return 0, fmt.Errorf("invalid %s value %d: must be positive", key, *val)
	}
	return *val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalFloat32Env(key string) (*float32, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	result := float32(val)
	return &result, nil
}
