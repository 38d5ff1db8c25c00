package consensus

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/joseph-ayodele/menuocr/constants"
	"github.com/joseph-ayodele/menuocr/internal/common"
	"github.com/joseph-ayodele/menuocr/internal/llm"
	"github.com/joseph-ayodele/menuocr/internal/ocr"
)

// Arbitration sampling.
const (
	ArbiterTemperature = 0.3
	ArbiterMaxTokens   = 4096
)

// DefaultFallbackConfidence is reported when the longer transcription is
// chosen without the arbiter.
const DefaultFallbackConfidence = 0.5

// Config tunes the arbiter; zero values take the defaults.
type Config struct {
	Model              string        // default constants.DefaultReasoningModel
	EngineTimeout      time.Duration // per engine call; 0 = engine's own timeout only
	ArbiterTimeout     time.Duration // optional bound on the arbitration call
	FallbackConfidence float64       // default DefaultFallbackConfidence
	Lenient            bool
	Options            ocr.Options // passed to both engines
}

// Arbiter runs the structured and vision engines side by side and reconciles
// their transcriptions with a reasoning model.
type Arbiter struct {
	structured ocr.Engine
	vision     ocr.Engine
	chat       llm.ChatCompleter
	cfg        Config
	logger     *slog.Logger
}

// NewArbiter wires the two engines and the reasoning model; chat may be nil,
// which always takes the fallback.
func NewArbiter(structured, vision ocr.Engine, chat llm.ChatCompleter, cfg Config, logger *slog.Logger) *Arbiter {
	if cfg.Model == "" {
		cfg.Model = constants.DefaultReasoningModel
	}
	if cfg.FallbackConfidence <= 0 || cfg.FallbackConfidence > 1 {
		cfg.FallbackConfidence = DefaultFallbackConfidence
	}
	if cfg.Options == (ocr.Options{}) {
		cfg.Options = ocr.DefaultOptions()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Arbiter{structured: structured, vision: vision, chat: chat, cfg: cfg, logger: logger}
}

// outcome is one engine's settled call.
type outcome struct {
	engine  string
	res     ocr.RawOCRResult
	err     error
	elapsed int64
}

func (o outcome) hasText() bool {
	return o.err == nil && strings.TrimSpace(o.res.Text) != ""
}

// ProcessImageWithBothOCR returns the reconciled transcription. The only
// errors are invalid input and *common.EnginesFailedError when neither engine
// produced text; arbitration failures degrade to the longer transcription.
func (a *Arbiter) ProcessImageWithBothOCR(ctx context.Context, img ocr.ImageInput) (Result, error) {
	ctx, rid := common.EnsureRequestID(ctx)
	start := time.Now()

	if err := img.Validate(); err != nil {
		return Result{}, err
	}

	structured, vision := a.runBoth(ctx, img)

	details := ProcessingDetails{
		OCRSpaceTime: structured.elapsed,
		MaverickTime: vision.elapsed,
	}
	var sources []ocr.RawOCRResult
	for _, o := range []outcome{structured, vision} {
		if o.err == nil {
			sources = append(sources, o.res)
		}
	}

	if !structured.hasText() && !vision.hasText() {
		err := &common.EnginesFailedError{
			Engines: []string{structured.engine, vision.engine},
			Causes:  []error{structured.err, vision.err},
		}
		a.logger.Error("consensus.fatal",
			"req_id", rid,
			"error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return Result{}, err
	}

	cmpStart := time.Now()
	res, cause := a.arbitrate(ctx, rid, structured, vision)
	if cause != "" {
		res = a.fallback(rid, cause, structured, vision)
	}
	details.ComparisonTime = time.Since(cmpStart).Milliseconds()
	details.TotalTime = time.Since(start).Milliseconds()

	res.SourceResults = sources
	res.ProcessingDetails = details
	if structured.hasText() && vision.hasText() {
		res.Agreement = Agreement(structured.res.Text, vision.res.Text)
	}
	return res, nil
}

// runBoth settles both engines. Neither call cancels the other.
func (a *Arbiter) runBoth(ctx context.Context, img ocr.ImageInput) (outcome, outcome) {
	var (
		wg       sync.WaitGroup
		outcomes [2]outcome
	)
	for i, eng := range []ocr.Engine{a.structured, a.vision} {
		i, eng := i, eng
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i] = a.runEngine(ctx, eng, img)
		}()
	}
	wg.Wait()
	return outcomes[0], outcomes[1]
}

func (a *Arbiter) runEngine(ctx context.Context, eng ocr.Engine, img ocr.ImageInput) (o outcome) {
	if eng == nil {
		return outcome{engine: "unconfigured", err: common.NewAppError(common.CodeConfig, "engine not configured", nil)}
	}
	o.engine = eng.ID()
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			o.err = fmt.Errorf("%s panicked: %v", o.engine, r)
		}
		o.elapsed = time.Since(start).Milliseconds()
	}()

	if a.cfg.EngineTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.EngineTimeout)
		defer cancel()
	}
	o.res, o.err = eng.Extract(ctx, img, a.cfg.Options)
	if o.err == nil && o.res.EngineID == "" {
		o.res.EngineID = o.engine
	}
	return o
}

// arbitrate returns a non-empty cause when the reasoning model could not be used.
func (a *Arbiter) arbitrate(ctx context.Context, rid string, structured, vision outcome) (Result, string) {
	if a.chat == nil {
		return Result{}, "no arbiter configured"
	}
	a.logger.Info("consensus.arbitrate.start",
		"req_id", rid,
		"model", a.cfg.Model,
		"structured_len", len(structured.res.Text),
		"vision_len", len(vision.res.Text),
	)
	start := time.Now()

	if a.cfg.ArbiterTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.ArbiterTimeout)
		defer cancel()
	}

	resp, err := a.chat.Complete(ctx, llm.ChatRequest{
		Model:       a.cfg.Model,
		Temperature: ArbiterTemperature,
		MaxTokens:   ArbiterMaxTokens,
		JSONMode:    true,
		Messages: []llm.Message{
			{Role: "system", Content: llm.ArbiterSystemPrompt},
			{Role: "user", Content: llm.BuildArbitrationPrompt(structured.res.Text, vision.res.Text)},
		},
	})
	if err != nil {
		return Result{}, "arbitration failed: " + err.Error()
	}

	var arb llm.Arbitration
	coerced, err := llm.DecodeContent(resp.Content, llm.ArbitrationJSONSchema(), a.cfg.Lenient, &arb)
	if err != nil {
		return Result{}, "arbitration reply unusable: " + err.Error()
	}
	if len(coerced) > 0 {
		a.logger.Warn("consensus.arbitrate.coerced", "req_id", rid, "fields", coerced)
	}
	final := strings.TrimSpace(arb.FinalText)
	if final == "" {
		return Result{}, "arbitration returned empty finalText"
	}

	a.logger.Info("consensus.arbitrate.ok",
		"req_id", rid,
		"confidence", arb.Confidence,
		"final_len", len(final),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return Result{
		FinalText:  final,
		Confidence: arb.Confidence,
		Reasoning:  strings.TrimSpace(arb.Reasoning),
	}, ""
}

// fallback picks the longer transcription by rune count; ties go to the vision engine.
func (a *Arbiter) fallback(rid, cause string, structured, vision outcome) Result {
	pick := vision
	if structured.hasText() && (!vision.hasText() ||
		utf8.RuneCountInString(structured.res.Text) > utf8.RuneCountInString(vision.res.Text)) {
		pick = structured
	}
	a.logger.Warn("consensus.arbitrate.fallback",
		"req_id", rid,
		"cause", cause,
		"engine", pick.engine,
		"confidence", a.cfg.FallbackConfidence,
	)
	return Result{
		FinalText:  pick.res.Text,
		Confidence: a.cfg.FallbackConfidence,
		Reasoning:  fmt.Sprintf("%s; used the longer transcription from %s", cause, pick.engine),
		Fallback:   true,
	}
}
