package tts

import (
	"regexp"
	"strings"
)

var (
	linkRegex       = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	markupRegex     = regexp.MustCompile("[*_`#~]")
	emojiRegex      = regexp.MustCompile(`[\x{1F000}-\x{1FAFF}\x{2600}-\x{27BF}\x{FE0F}\x{200D}]`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

// Sanitize strips chat markdown so the voice never reads markup aloud.
// Links keep only their label.
func Sanitize(text string) string {
	text = linkRegex.ReplaceAllString(text, "$1")
	text = markupRegex.ReplaceAllString(text, "")
	text = emojiRegex.ReplaceAllString(text, "")
	text = whitespaceRegex.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
