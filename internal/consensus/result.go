package consensus

import (
	"strings"
	"unicode/utf8"

	"github.com/arbovm/levenshtein"

	"github.com/joseph-ayodele/menuocr/internal/ocr"
)

// Result is the reconciled transcription of one image.
type Result struct {
	FinalText         string             `json:"finalText"`
	Confidence        float64            `json:"confidence"`
	SourceResults     []ocr.RawOCRResult `json:"sourceResults"`
	ProcessingDetails ProcessingDetails  `json:"processingDetails"`
	Reasoning         string             `json:"reasoning,omitempty"`
	Fallback          bool               `json:"fallback"`
	Agreement         float64            `json:"agreement,omitempty"`
}

// ProcessingDetails are per-stage wall-clock timings in milliseconds.
type ProcessingDetails struct {
	OCRSpaceTime   int64 `json:"ocrSpaceTime"`
	MaverickTime   int64 `json:"maverickTime"`
	ComparisonTime int64 `json:"comparisonTime"`
	TotalTime      int64 `json:"totalTime"`
}

// Source returns the result produced by engine id, if any.
func (r Result) Source(id string) (ocr.RawOCRResult, bool) {
	for _, s := range r.SourceResults {
		if s.EngineID == id {
			return s, true
		}
	}
	return ocr.RawOCRResult{}, false
}

// wordRuneBase is the start of a private-use plane; each distinct word is
// mapped to one rune so an edit distance over runes is a word-level distance.
const wordRuneBase = 0xF0000

// Agreement is 1 minus the normalized word-level edit distance between two
// transcriptions, case-insensitive. Two empty texts agree fully.
func Agreement(a, b string) float64 {
	wa := strings.Fields(strings.ToLower(a))
	wb := strings.Fields(strings.ToLower(b))
	if len(wa) == 0 && len(wb) == 0 {
		return 1
	}
	dict := map[string]rune{}
	encode := func(words []string) string {
		var sb strings.Builder
		for _, w := range words {
			r, ok := dict[w]
			if !ok {
				r = rune(wordRuneBase + len(dict)%0xFFFE)
				dict[w] = r
			}
			sb.WriteRune(r)
		}
		return sb.String()
	}
	sa, sb := encode(wa), encode(wb)
	longest := max(utf8.RuneCountInString(sa), utf8.RuneCountInString(sb))
	d := levenshtein.Distance(sa, sb)
	return 1 - float64(d)/float64(longest)
}
