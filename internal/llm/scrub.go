package llm

import (
	"regexp"
	"strings"
)

var (
	reJSONFence = regexp.MustCompile("```json\\n?")
	reFence     = regexp.MustCompile("```\\n?")
)

// ExtractJSON strips markdown code fences from an LLM reply and returns the span
// from the first '{' to the last '}'. When no such span exists the fence-stripped
// text is returned trimmed, so the caller's decoder reports the error.
func ExtractJSON(s string) string {
	cleaned := reJSONFence.ReplaceAllString(s, "")
	cleaned = reFence.ReplaceAllString(cleaned, "")

	first := strings.IndexByte(cleaned, '{')
	last := strings.LastIndexByte(cleaned, '}')
	if first != -1 && last > first {
		cleaned = cleaned[first : last+1]
	}
	return strings.TrimSpace(cleaned)
}
