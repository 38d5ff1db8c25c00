package menu

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/joseph-ayodele/menuocr/constants"
)

// DefaultThreshold is the heuristic score at or above which text is called a menu.
const DefaultThreshold = 0.5

// Signal weights and saturation points.
const (
	priceWeight   = 0.5
	sectionWeight = 0.3
	itemWeight    = 0.2

	priceSaturation   = 6
	sectionSaturation = 2
	itemSaturation    = 4
)

const (
	priceNum  = `\d{1,6}(?:[.,]\d{1,2})?`
	curPrefix = `(?:[₹$€£¥]|\b(?:rs\.?|inr|usd|eur|gbp|aed))`
	curSuffix = `(?:/-|[₹$€£¥]|(?:rs|inr|usd|eur|gbp|aed)\b)`
)

var (
	// currency-tagged amounts, amounts with a trailing marker, bare decimals
	// like 12.50 and short integers closing a line
	rePrice = regexp.MustCompile(`(?im)` + curPrefix + `[ \t]*` + priceNum +
		`|\b` + priceNum + `[ \t]*` + curSuffix +
		`|\b\d{1,5}[.,]\d{2}\b` +
		`|\b\d{2,5}[ \t]*$`)

	// "<name> <leader>? <price>" with the price closing the line
	reLineItem = regexp.MustCompile(`(?im)^[ \t]*\p{L}.*?[\p{L})\]][ \t]*(?:[.\-–—:|·…]+[ \t]*)?` +
		curPrefix + `?[ \t]*` + priceNum + `[ \t]*` + curSuffix + `?[ \t]*$`)

	reSection = buildSectionRegex(constants.SectionKeywords())
)

func buildSectionRegex(keywords []string) *regexp.Regexp {
	kws := append([]string(nil), keywords...)
	// longest first so "main course" wins over "main"
	sort.Slice(kws, func(i, j int) bool {
		if len(kws[i]) != len(kws[j]) {
			return len(kws[i]) > len(kws[j])
		}
		return kws[i] < kws[j]
	})
	quoted := make([]string, len(kws))
	for i, k := range kws {
		quoted[i] = regexp.QuoteMeta(k)
	}
	return regexp.MustCompile(`(?i)(?:^|[^\p{L}])(` + strings.Join(quoted, "|") + `)(?:$|[^\p{L}])`)
}

// Signals are the raw counts behind a heuristic score.
type Signals struct {
	Prices    int `json:"prices"`
	Sections  int `json:"sections"`
	LineItems int `json:"lineItems"`
}

// Score combines the signals; each is capped before weighting.
func (s Signals) Score() float64 {
	score := priceWeight*capped(s.Prices, priceSaturation) +
		sectionWeight*capped(s.Sections, sectionSaturation) +
		itemWeight*capped(s.LineItems, itemSaturation)
	return math.Round(score*1000) / 1000
}

func capped(n, saturation int) float64 {
	return math.Min(1, float64(n)/float64(saturation))
}

// CountSignals extracts the price, section and line-item counts from text.
func CountSignals(text string) Signals {
	if strings.TrimSpace(text) == "" {
		return Signals{}
	}
	return Signals{
		Prices:    len(rePrice.FindAllStringIndex(text, -1)),
		Sections:  countSections(text),
		LineItems: len(reLineItem.FindAllStringIndex(text, -1)),
	}
}

// countSections counts distinct keywords. Matches are collected per line so a
// shared separator between adjacent keywords does not hide the second one.
func countSections(text string) int {
	seen := map[string]struct{}{}
	for _, line := range strings.Split(text, "\n") {
		rest := line
		for {
			loc := reSection.FindStringSubmatchIndex(rest)
			if loc == nil {
				break
			}
			seen[strings.ToLower(rest[loc[2]:loc[3]])] = struct{}{}
			rest = rest[loc[3]:]
		}
	}
	return len(seen)
}

// Heuristic is the network-free menu classifier.
type Heuristic struct {
	Threshold float64
}

// NewHeuristic returns a classifier; thresholds outside (0,1] fall back to DefaultThreshold.
func NewHeuristic(threshold float64) Heuristic {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return Heuristic{Threshold: threshold}
}

// Score classifies text. It is pure and never fails.
func (h Heuristic) Score(text string) ValidationResult {
	threshold := h.Threshold
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	sig := CountSignals(text)
	score := sig.Score()
	return ValidationResult{
		IsMenu:     score >= threshold,
		Confidence: score,
		Reason: fmt.Sprintf("heuristic: %d price(s), %d section keyword(s), %d line item(s); score %.2f",
			sig.Prices, sig.Sections, sig.LineItems, score),
		Source: constants.VerdictSourceHeuristic,
	}
}

// ScoreMenuLikelihood scores text with the default threshold.
func ScoreMenuLikelihood(text string) ValidationResult {
	return Heuristic{Threshold: DefaultThreshold}.Score(text)
}
