package speech

// Provider names a speech backend.
type Provider string

const (
	ProviderVolcengine Provider = "volcengine"
	ProviderOpenAI     Provider = "openai"
)

// SpeechConfig carries credentials and defaults for the speech providers.
type SpeechConfig struct {
	Provider Provider `json:"provider"`

	// Volcengine
	AppID          string `json:"appId"`
	AccessToken    string `json:"accessToken"`
	APIKey         string `json:"apiKey,omitempty"`
	Region         string `json:"region"`
	ConcurrentMode bool   `json:"concurrentMode"`

	// OpenAI-compatible HTTP API
	OpenAIKey     string `json:"-"`
	OpenAIBaseURL string `json:"openaiBaseUrl"`
	ASRModel      string `json:"asrModel"`
	TTSModel      string `json:"ttsModel"`

	ASRLanguage string  `json:"asrLanguage"`
	TTSVoice    string  `json:"ttsVoice"`
	TTSSpeed    float32 `json:"ttsSpeed"`
	TTSVolume   float32 `json:"ttsVolume"`
	TTSLanguage string  `json:"ttsLanguage"`

	Timeout int `json:"timeout"` // seconds
}
