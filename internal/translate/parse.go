package translate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// numberedLine matches "3. text", "3) text", "3: text" and "3 - text".
var numberedLine = regexp.MustCompile(`^\s*(\d+)\s*[.):\-]\s*(.*)$`)

const quoteChars = "\"'`“”‘’«»"

// Line is the parsed entry for one index of a numbered response.
type Line struct {
	Text  string
	Found bool
}

// BuildPrompt renders texts as one numbered list with translation instructions.
func BuildPrompt(texts []string, targetName string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Translate each numbered line into %s. ", targetName)
	sb.WriteString("Reply with the same numbering, one line per item, and nothing else.\n\n")
	for i, text := range texts {
		// keep one item per line so numbering stays unambiguous
		flat := strings.Join(strings.Fields(text), " ")
		fmt.Fprintf(&sb, "%d. %s\n", i+1, flat)
	}
	return sb.String()
}

// ParseNumbered finds, for each index i in [0,n), the first response line
// numbered i+1 and returns its text with the numeral and surrounding quotes
// removed. Indexes with no usable line have Found false.
func ParseNumbered(resp string, n int) []Line {
	out := make([]Line, n)
	for _, raw := range strings.Split(resp, "\n") {
		m := numberedLine.FindStringSubmatch(raw)
		if m == nil {
			continue
		}
		num, err := strconv.Atoi(m[1])
		if err != nil || num < 1 || num > n || out[num-1].Found {
			continue
		}
		text := strings.TrimSpace(strings.Trim(strings.TrimSpace(m[2]), quoteChars))
		if text == "" {
			continue
		}
		out[num-1] = Line{Text: text, Found: true}
	}
	return out
}
