package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/joseph-ayodele/menuocr/constants"
	"github.com/joseph-ayodele/menuocr/internal/menu"
)

func TestGate_Decide(t *testing.T) {
	g := NewGate(0.7, menu.NewHeuristic(0.5))
	llmVerdict := func(isMenu bool, conf float64) menu.ValidationResult {
		return menu.ValidationResult{IsMenu: isMenu, Confidence: conf, Reason: "r", Source: constants.VerdictSourceLLM}
	}
	richMenu := "STARTERS\nSoup ₹120\nSalad ₹150\nMAINS\nThali ₹250\nBiryani ₹300\nNaan ₹40"

	tests := []struct {
		name       string
		text       string
		verdict    menu.ValidationResult
		want       constants.Decision
		wantSource constants.VerdictSource
	}{
		{"confident menu", "anything", llmVerdict(true, 0.9), constants.DecisionAccepted, constants.VerdictSourceLLM},
		{"exactly at threshold", "anything", llmVerdict(true, 0.7), constants.DecisionAccepted, constants.VerdictSourceLLM},
		{"confident non menu", "hello there", llmVerdict(false, 0.95), constants.DecisionRejected, constants.VerdictSourceLLM},
		{"unsure llm, weak text", "hello there", llmVerdict(true, 0.4), constants.DecisionReview, constants.VerdictSourceLLM},
		{"unsure llm, heuristic rescues", richMenu, llmVerdict(false, 0.6), constants.DecisionAccepted, constants.VerdictSourceHeuristic},
		{"heuristic below llm is ignored", "Tea 20", llmVerdict(false, 0.6), constants.DecisionReview, constants.VerdictSourceLLM},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			selected, decision := g.Decide(tt.text, tt.verdict)
			assert.Equal(t, tt.want, decision)
			assert.Equal(t, tt.wantSource, selected.Source)
		})
	}
}

func TestNewGate_DefaultsThreshold(t *testing.T) {
	assert.Equal(t, DefaultAcceptThreshold, NewGate(0, menu.Heuristic{}).Threshold)
	assert.Equal(t, DefaultAcceptThreshold, NewGate(2, menu.Heuristic{}).Threshold)
	assert.Equal(t, 0.8, NewGate(0.8, menu.Heuristic{}).Threshold)
}
