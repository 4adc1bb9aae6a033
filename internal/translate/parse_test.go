package translate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt([]string{"Hello", "Good\nmorning", "  Water  daily "}, "Hindi")

	assert.True(t, strings.HasPrefix(prompt, "Translate each numbered line into Hindi."))
	assert.Contains(t, prompt, "\n1. Hello\n")
	assert.Contains(t, prompt, "\n2. Good morning\n")
	assert.Contains(t, prompt, "\n3. Water daily\n")
}

func TestParseNumbered(t *testing.T) {
	resp := strings.Join([]string{
		"Here are the translations:",
		"1. \"नमस्ते\"",
		"3) 'पानी'",
		"2: “सुप्रभात”",
		"4. extra line beyond the batch",
	}, "\r\n")

	lines := ParseNumbered(resp, 3)

	assert.Equal(t, []Line{
		{Text: "नमस्ते", Found: true},
		{Text: "सुप्रभात", Found: true},
		{Text: "पानी", Found: true},
	}, lines)
}

func TestParseNumbered_Missing(t *testing.T) {
	lines := ParseNumbered("1. uno\n3. tres", 3)

	assert.True(t, lines[0].Found)
	assert.False(t, lines[1].Found)
	assert.Equal(t, "tres", lines[2].Text)
}

func TestParseNumbered_FirstMatchWins(t *testing.T) {
	lines := ParseNumbered("1. first\n1. second", 1)
	assert.Equal(t, "first", lines[0].Text)
}

func TestParseNumbered_EmptyTextIsMissing(t *testing.T) {
	lines := ParseNumbered("1. \"\"\n2. ok", 2)
	assert.False(t, lines[0].Found)
	assert.True(t, lines[1].Found)
}

func TestParseNumbered_Garbage(t *testing.T) {
	lines := ParseNumbered("I cannot help with that.", 2)
	assert.Len(t, lines, 2)
	assert.False(t, lines[0].Found)
	assert.False(t, lines[1].Found)
}

func TestParseNumbered_ZeroItems(t *testing.T) {
	assert.Empty(t, ParseNumbered("1. a", 0))
}
