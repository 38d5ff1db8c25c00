package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/menuocr/constants"
	"github.com/joseph-ayodele/menuocr/internal/common"
	"github.com/joseph-ayodele/menuocr/internal/consensus"
	"github.com/joseph-ayodele/menuocr/internal/menu"
	"github.com/joseph-ayodele/menuocr/internal/ocr"
	"github.com/joseph-ayodele/menuocr/internal/repository"
)

// Arbiter produces the reconciled transcription.
type Arbiter interface {
	ProcessImageWithBothOCR(ctx context.Context, img ocr.ImageInput) (consensus.Result, error)
}

// MenuValidator classifies a transcription. It never fails.
type MenuValidator interface {
	ValidateMenu(ctx context.Context, text string) menu.ValidationResult
}

// Recorder stores finished runs.
type Recorder interface {
	InsertRun(ctx context.Context, run repository.MenuRun) error
}

// Output is the pipeline answer for one image.
type Output struct {
	RunID            uuid.UUID             `json:"runId"`
	CombinedResult   consensus.Result      `json:"combinedResult"`
	ValidationResult menu.ValidationResult `json:"validationResult"`
	Verdict          menu.ValidationResult `json:"verdict"`
	Decision         constants.Decision    `json:"decision"`
}

// Processor coordinates consensus OCR then menu validation.
type Processor struct {
	logger    *slog.Logger
	arbiter   Arbiter
	validator MenuValidator
	gate      Gate
	recorder  Recorder
}

// NewProcessor wires the pipeline; recorder may be nil.
func NewProcessor(logger *slog.Logger, arbiter Arbiter, validator MenuValidator, gate Gate, recorder Recorder) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		logger:    logger,
		arbiter:   arbiter,
		validator: validator,
		gate:      gate,
		recorder:  recorder,
	}
}

// ProcessAndValidateMenu runs the arbiter then the validator, strictly in that
// order. It fails only on invalid input or when no engine produced text; in the
// latter case the returned Output carries DecisionRetry.
func (p *Processor) ProcessAndValidateMenu(ctx context.Context, img ocr.ImageInput) (Output, error) {
	ctx, rid := common.EnsureRequestID(ctx)
	source := common.SourceFromContext(ctx)
	start := time.Now()
	out := Output{RunID: uuid.New()}

	p.logger.Info("pipeline.run.start", "req_id", rid, "run_id", out.RunID, "source", source, "bytes", img.Len())

	combined, err := p.arbiter.ProcessImageWithBothOCR(ctx, img)
	if err != nil {
		if errors.Is(err, common.ErrInvalidInput) {
			p.logger.Warn("pipeline.run.rejected_input", "req_id", rid, "error", err)
			return Output{}, err
		}
		out.Decision = constants.DecisionRetry
		p.logger.Error("pipeline.run.failed",
			"req_id", rid,
			"run_id", out.RunID,
			"decision", out.Decision,
			"error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		p.record(ctx, rid, repository.MenuRun{
			ID:       out.RunID,
			Source:   source,
			Decision: string(out.Decision),
			TotalMs:  time.Since(start).Milliseconds(),
			Error:    err.Error(),
		})
		return out, err
	}
	out.CombinedResult = combined

	out.ValidationResult = p.validator.ValidateMenu(ctx, combined.FinalText)
	out.Verdict, out.Decision = p.gate.Decide(combined.FinalText, out.ValidationResult)

	p.logger.Info("pipeline.gate.decision",
		"req_id", rid,
		"run_id", out.RunID,
		"decision", out.Decision,
		"verdict_source", out.Verdict.Source,
		"is_menu", out.Verdict.IsMenu,
		"confidence", out.Verdict.Confidence,
	)

	d := combined.ProcessingDetails
	p.record(ctx, rid, repository.MenuRun{
		ID:             out.RunID,
		Source:         source,
		FinalText:      combined.FinalText,
		OCRConfidence:  combined.Confidence,
		IsMenu:         out.Verdict.IsMenu,
		MenuConfidence: out.Verdict.Confidence,
		Reason:         out.Verdict.Reason,
		VerdictSource:  string(out.Verdict.Source),
		Decision:       string(out.Decision),
		Fallback:       combined.Fallback,
		OCRSpaceMs:     d.OCRSpaceTime,
		MaverickMs:     d.MaverickTime,
		ComparisonMs:   d.ComparisonTime,
		TotalMs:        time.Since(start).Milliseconds(),
	})

	p.logger.Info("pipeline.run.ok",
		"req_id", rid,
		"run_id", out.RunID,
		"ocr_confidence", combined.Confidence,
		"fallback", combined.Fallback,
		"decision", out.Decision,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// ValidateText runs only the validator and the gate on already transcribed text.
func (p *Processor) ValidateText(ctx context.Context, text string) (menu.ValidationResult, menu.ValidationResult, constants.Decision) {
	verdict := p.validator.ValidateMenu(ctx, text)
	selected, decision := p.gate.Decide(text, verdict)
	return verdict, selected, decision
}

// record never affects the pipeline result.
func (p *Processor) record(ctx context.Context, rid string, run repository.MenuRun) {
	if p.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := p.recorder.InsertRun(ctx, run); err != nil {
		p.logger.Warn("pipeline.record.failed", "req_id", rid, "run_id", run.ID, "error", err)
	}
}
