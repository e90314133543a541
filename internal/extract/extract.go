// Package extract pulls fenced code out of free-form model output.
package extract

import (
	"regexp"
	"strings"
)

var (
	pythonRe = regexp.MustCompile("(?s)```python\\n(.*?)\\n```")
	fenceRe  = regexp.MustCompile("(?s)```([a-zA-Z0-9_+-]*)[ \\t]*\\n(.*?)\\n```")
)

// Code returns the interior of the first ```python fenced block, or "" when
// the text has none. Later blocks are ignored.
func Code(text string) string {
	m := pythonRe.FindStringSubmatch(normalizeNewlines(text))
	if m == nil {
		return ""
	}
	return m[1]
}

// Block is one fenced region and its language tag.
type Block struct {
	Lang string
	Body string
}

// Blocks lists every fenced block in order.
func Blocks(text string) []Block {
	var out []Block
	for _, m := range fenceRe.FindAllStringSubmatch(normalizeNewlines(text), -1) {
		out = append(out, Block{Lang: strings.ToLower(m[1]), Body: m[2]})
	}
	return out
}

func normalizeNewlines(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}
