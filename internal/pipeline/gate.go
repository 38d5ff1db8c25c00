package pipeline

import (
	"github.com/joseph-ayodele/menuocr/constants"
	"github.com/joseph-ayodele/menuocr/internal/menu"
)

// DefaultAcceptThreshold is the verdict confidence needed to accept or reject without review.
const DefaultAcceptThreshold = 0.7

// Gate turns a menu verdict into an acceptance decision.
type Gate struct {
	Threshold float64
	Heuristic menu.Heuristic
}

func NewGate(threshold float64, heuristic menu.Heuristic) Gate {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultAcceptThreshold
	}
	return Gate{Threshold: threshold, Heuristic: heuristic}
}

// Decide returns the verdict the decision was based on. A verdict that is not
// a confident menu is compared with the heuristic score of the same text and
// the more confident of the two wins.
func (g Gate) Decide(text string, verdict menu.ValidationResult) (menu.ValidationResult, constants.Decision) {
	threshold := g.Threshold
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultAcceptThreshold
	}

	selected := verdict
	if !(verdict.IsMenu && verdict.Confidence >= threshold) {
		if h := g.Heuristic.Score(text); h.Confidence > verdict.Confidence {
			selected = h
		}
	}

	switch {
	case selected.IsMenu && selected.Confidence >= threshold:
		return selected, constants.DecisionAccepted
	case !selected.IsMenu && selected.Confidence >= threshold:
		return selected, constants.DecisionRejected
	default:
		return selected, constants.DecisionReview
	}
}
