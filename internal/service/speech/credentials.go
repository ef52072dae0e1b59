package speech

import (
	"errors"
	"strings"

	speechmodel "github.com/zhouzirui/voicebank/backend/internal/model/speech"
)

// ErrMissingCredentials is returned when a provider was selected without its keys.
var ErrMissingCredentials = errors.New("speech credentials missing")

// resolveVolcengineCredentials returns the trimmed app id and access token.
func resolveVolcengineCredentials(cfg *speechmodel.SpeechConfig) (string, string, error) {
	if cfg == nil {
		return "", "", ErrMissingCredentials
	}

	appID := strings.TrimSpace(cfg.AppID)
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		token = strings.TrimSpace(cfg.APIKey)
	}
	if appID == "" || token == "" {
		return "", "", errors.Join(ErrMissingCredentials, errors.New("volcengine requires SPEECH_APP_ID and SPEECH_ACCESS_TOKEN"))
	}
	return appID, token, nil
}
