// Package language lists the languages the agent can converse and translate in.
package language

import "sort"

// names maps a short language code to the name used in prompts
var names = map[string]string{
	"en": "English",
	"hi": "Hindi",
	"kn": "Kannada",
	"ta": "Tamil",
	"te": "Telugu",
	"mr": "Marathi",
	"bn": "Bengali",
	"gu": "Gujarati",
	"ml": "Malayalam",
	"pa": "Punjabi",
}

// Name returns the display name for code, or code itself when unknown.
func Name(code string) string {
	if name, ok := names[code]; ok {
		return name
	}
	return code
}

// Known reports whether code is a supported language.
func Known(code string) bool {
	_, ok := names[code]
	return ok
}

// Codes returns all supported codes, sorted.
func Codes() []string {
	codes := make([]string, 0, len(names))
	for code := range names {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
