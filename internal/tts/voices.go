package tts

import "sort"

// Gender is the SSML voice gender sent to the synthesis provider.
type Gender string

const (
	GenderFemale  Gender = "FEMALE"
	GenderMale    Gender = "MALE"
	GenderNeutral Gender = "NEUTRAL"
)

// VoiceProfile is the fixed voice used for one language.
type VoiceProfile struct {
	LanguageCode string `json:"languageCode"`
	Name         string `json:"name"`
	Gender       Gender `json:"ssmlGender"`
}

// voices maps a short language code to its voice
var voices = map[string]VoiceProfile{
	"en": {LanguageCode: "en-IN", Name: "en-IN-Wavenet-D", Gender: GenderFemale},
	"hi": {LanguageCode: "hi-IN", Name: "hi-IN-Wavenet-A", Gender: GenderFemale},
	"kn": {LanguageCode: "kn-IN", Name: "kn-IN-Wavenet-A", Gender: GenderFemale},
	"ta": {LanguageCode: "ta-IN", Name: "ta-IN-Wavenet-A", Gender: GenderFemale},
	"te": {LanguageCode: "te-IN", Name: "te-IN-Standard-A", Gender: GenderFemale},
	"mr": {LanguageCode: "mr-IN", Name: "mr-IN-Wavenet-A", Gender: GenderFemale},
	"bn": {LanguageCode: "bn-IN", Name: "bn-IN-Wavenet-A", Gender: GenderFemale},
	"gu": {LanguageCode: "gu-IN", Name: "gu-IN-Wavenet-A", Gender: GenderFemale},
	"ml": {LanguageCode: "ml-IN", Name: "ml-IN-Wavenet-A", Gender: GenderFemale},
	"pa": {LanguageCode: "pa-IN", Name: "pa-IN-Wavenet-A", Gender: GenderFemale},
}

// Voice returns the profile for a language code.
func Voice(code string) (VoiceProfile, bool) {
	v, ok := voices[code]
	return v, ok
}

// IsSupported reports whether code has a voice.
func IsSupported(code string) bool {
	_, ok := voices[code]
	return ok
}

// SupportedLanguages returns the supported codes in sorted order.
func SupportedLanguages() []string {
	codes := make([]string, 0, len(voices))
	for code := range voices {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
