package ai

// The hosted provider uses its own four-tier vocabulary for tone and
// reading level. The fixed tables below translate the internal three-tier
// values; anything unrecognized falls back to the provider default.

const (
	defaultProviderTone     = "neutral"
	defaultProviderLanguage = "intermediate"
)

var providerTones = map[string]string{
	"friendly":     "warm",
	"professional": "clinical",
	"empathetic":   "supportive",
}

var providerLanguages = map[string]string{
	"simple":    "basic",
	"moderate":  "intermediate",
	"technical": "advanced",
}

// ProviderTone maps an internal tone value to the provider vocabulary.
func ProviderTone(tone string) string {
	if v, ok := providerTones[tone]; ok {
		return v
	}
	return defaultProviderTone
}

// ProviderLanguage maps an internal language level to the provider
// vocabulary.
func ProviderLanguage(level string) string {
	if v, ok := providerLanguages[level]; ok {
		return v
	}
	return defaultProviderLanguage
}
