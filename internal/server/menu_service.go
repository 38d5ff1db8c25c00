package server

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/joseph-ayodele/menuocr/constants"
	"github.com/joseph-ayodele/menuocr/internal/common"
	"github.com/joseph-ayodele/menuocr/internal/menu"
	"github.com/joseph-ayodele/menuocr/internal/ocr"
	"github.com/joseph-ayodele/menuocr/internal/pipeline"
)

// MaxTextRunes caps text submitted for validation or scoring.
const MaxTextRunes = 200_000

// Pipeline is the part of pipeline.Processor the surfaces need.
type Pipeline interface {
	ProcessAndValidateMenu(ctx context.Context, img ocr.ImageInput) (pipeline.Output, error)
	ValidateText(ctx context.Context, text string) (menu.ValidationResult, menu.ValidationResult, constants.Decision)
}

// ImageResolver turns a request's image reference into engine input.
type ImageResolver interface {
	Resolve(ctx context.Context, ref string) (ocr.ImageInput, error)
}

// ValidateResponse is the answer for already transcribed text.
type ValidateResponse struct {
	ValidationResult menu.ValidationResult `json:"validationResult"`
	Verdict          menu.ValidationResult `json:"verdict"`
	Decision         constants.Decision    `json:"decision"`
}

// ScoreResponse is the heuristic verdict with the counts behind it.
type ScoreResponse struct {
	menu.ValidationResult
	Signals menu.Signals `json:"signals"`
}

// MenuService is shared by the gRPC and HTTP surfaces.
type MenuService struct {
	pipeline  Pipeline
	resolver  ImageResolver
	heuristic menu.Heuristic
	logger    *slog.Logger
}

func NewMenuService(p Pipeline, resolver ImageResolver, heuristic menu.Heuristic, logger *slog.Logger) *MenuService {
	if logger == nil {
		logger = slog.Default()
	}
	return &MenuService{pipeline: p, resolver: resolver, heuristic: heuristic, logger: logger}
}

// Process resolves ref and runs the full pipeline.
func (s *MenuService) Process(ctx context.Context, ref string) (pipeline.Output, error) {
	if err := common.NewValidator().
		Field("image", ref, common.Required, common.ImageReference).
		Err(); err != nil {
		return pipeline.Output{}, err
	}
	img, err := s.resolver.Resolve(ctx, ref)
	if err != nil {
		s.logger.Warn("menu.process.resolve_failed", "req_id", common.RequestIDFromContext(ctx), "error", err)
		return pipeline.Output{}, err
	}
	return s.pipeline.ProcessAndValidateMenu(common.WithSource(ctx, describeSource(ref)), img)
}

// Validate classifies text that was transcribed elsewhere.
func (s *MenuService) Validate(ctx context.Context, text string) (ValidateResponse, error) {
	if err := checkText(text); err != nil {
		return ValidateResponse{}, err
	}
	verdict, selected, decision := s.pipeline.ValidateText(ctx, text)
	return ValidateResponse{ValidationResult: verdict, Verdict: selected, Decision: decision}, nil
}

// Score runs the heuristic only; no provider is called.
func (s *MenuService) Score(text string) (ScoreResponse, error) {
	if err := checkText(text); err != nil {
		return ScoreResponse{}, err
	}
	return ScoreResponse{ValidationResult: s.heuristic.Score(text), Signals: menu.CountSignals(text)}, nil
}

func checkText(text string) error {
	return common.NewValidator().Field("text", text, common.MaxLength(MaxTextRunes)).Err()
}

// describeSource keeps inline payloads out of logs and the audit store.
func describeSource(ref string) string {
	ref = strings.TrimSpace(ref)
	in := ocr.ImageInput{Data: ref}
	if in.IsURL() || strings.HasPrefix(ref, "azblob://") {
		return ref
	}
	if in.IsDataURI() || len(ref) > 4096 {
		return "inline"
	}
	if _, err := os.Stat(ref); err == nil {
		return ref
	}
	return "inline"
}
