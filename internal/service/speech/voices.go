package speech

import "strings"

// volcengineVoiceAliases maps the generic voice names used by the dialogue
// layer onto Volcengine speakers.
var volcengineVoiceAliases = map[string]string{
	"nova":       "en_female_amy_jupiter_bigtts",
	"alloy":      "en_female_skye_emo_v2_mars_bigtts",
	"echo":       "en_male_glen_emo_v2_mars_bigtts",
	"onyx":       "en_male_corey_emo_v2_mars_bigtts",
	"shimmer":    "en_female_candice_emo_v2_mars_bigtts",
	"en_default": "en_female_amy_jupiter_bigtts",
	"zh_default": "zh_female_vv_uranus_bigtts",
}

// openAIVoices are the voices accepted by the OpenAI speech endpoint.
var openAIVoices = map[string]struct{}{
	"alloy": {}, "echo": {}, "fable": {}, "onyx": {}, "nova": {}, "shimmer": {},
}

// NormalizeVoiceAlias resolves a generic voice name to a Volcengine speaker.
// Unknown names are returned trimmed.
func NormalizeVoiceAlias(voice string) string {
	trimmed := strings.TrimSpace(voice)
	if mapped, ok := volcengineVoiceAliases[strings.ToLower(trimmed)]; ok {
		return mapped
	}
	return trimmed
}

// normalizeOpenAIVoice returns voice if the endpoint supports it, else fallback.
func normalizeOpenAIVoice(voice, fallback string) string {
	v := strings.ToLower(strings.TrimSpace(voice))
	if _, ok := openAIVoices[v]; ok {
		return v
	}
	f := strings.ToLower(strings.TrimSpace(fallback))
	if _, ok := openAIVoices[f]; ok {
		return f
	}
	return "nova"
}
