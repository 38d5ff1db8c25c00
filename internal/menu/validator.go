package menu

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/joseph-ayodele/menuocr/constants"
	"github.com/joseph-ayodele/menuocr/internal/common"
	"github.com/joseph-ayodele/menuocr/internal/llm"
)

// LLM sampling for the menu verdict.
const (
	ValidatorTemperature = 0.5
	ValidatorMaxTokens   = 1024
)

// ValidationResult is the menu verdict for one transcription.
type ValidationResult struct {
	IsMenu     bool                    `json:"isMenu"`
	Confidence float64                 `json:"confidence"`
	Reason     string                  `json:"reason"`
	Source     constants.VerdictSource `json:"source"`
}

// ValidatorConfig configures the LLM validator and its heuristic fallback.
type ValidatorConfig struct {
	Model     string        // default constants.DefaultReasoningModel
	Threshold float64       // heuristic fallback threshold
	Lenient   bool          // coerce scalar drift before rejecting a reply
	Timeout   time.Duration // optional per-call bound
}

// Validator asks a reasoning model whether text is a menu and falls back to
// the heuristic classifier on any failure.
type Validator struct {
	chat      llm.ChatCompleter
	cfg       ValidatorConfig
	heuristic Heuristic
	logger    *slog.Logger
}

// NewValidator returns a validator; an empty model takes the default reasoning model.
func NewValidator(chat llm.ChatCompleter, cfg ValidatorConfig, logger *slog.Logger) *Validator {
	if cfg.Model == "" {
		cfg.Model = constants.DefaultReasoningModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		chat:      chat,
		cfg:       cfg,
		heuristic: NewHeuristic(cfg.Threshold),
		logger:    logger,
	}
}

// Heuristic exposes the configured fallback classifier.
func (v *Validator) Heuristic() Heuristic { return v.heuristic }

// ValidateMenu never returns an error: every failure path yields the heuristic verdict.
func (v *Validator) ValidateMenu(ctx context.Context, text string) ValidationResult {
	ctx, rid := common.EnsureRequestID(ctx)
	start := time.Now()

	if strings.TrimSpace(text) == "" {
		return v.fallback(rid, "no text to validate", start, text)
	}
	if v.chat == nil {
		return v.fallback(rid, "no LLM configured", start, text)
	}

	v.logger.Info("menu.validate.start", "req_id", rid, "model", v.cfg.Model, "text_len", len(text))

	if v.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.cfg.Timeout)
		defer cancel()
	}

	resp, err := v.chat.Complete(ctx, llm.ChatRequest{
		Model:       v.cfg.Model,
		Temperature: ValidatorTemperature,
		MaxTokens:   ValidatorMaxTokens,
		JSONMode:    true,
		Messages: []llm.Message{
			{Role: "system", Content: llm.ValidatorSystemPrompt},
			{Role: "user", Content: llm.BuildValidationPrompt(text)},
		},
	})
	if err != nil {
		return v.fallback(rid, "LLM validation failed: "+err.Error(), start, text)
	}

	var verdict llm.MenuVerdict
	coerced, err := llm.DecodeContent(resp.Content, llm.MenuVerdictJSONSchema(), v.cfg.Lenient, &verdict)
	if err != nil {
		return v.fallback(rid, "LLM verdict unusable: "+err.Error(), start, text)
	}
	if len(coerced) > 0 {
		v.logger.Warn("menu.validate.coerced", "req_id", rid, "fields", coerced)
	}

	reason := strings.TrimSpace(verdict.Reason)
	if reason == "" {
		reason = "no reason given"
	}
	out := ValidationResult{
		IsMenu:     verdict.IsMenu,
		Confidence: verdict.Confidence,
		Reason:     reason,
		Source:     constants.VerdictSourceLLM,
	}
	v.logger.Info("menu.validate.ok",
		"req_id", rid,
		"is_menu", out.IsMenu,
		"confidence", out.Confidence,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out
}

func (v *Validator) fallback(rid, cause string, start time.Time, text string) ValidationResult {
	res := v.heuristic.Score(text)
	res.Reason = cause + "; " + res.Reason
	v.logger.Warn("menu.validate.fallback",
		"req_id", rid,
		"cause", cause,
		"is_menu", res.IsMenu,
		"confidence", res.Confidence,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res
}
