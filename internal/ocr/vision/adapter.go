package vision

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/joseph-ayodele/menuocr/constants"
	"github.com/joseph-ayodele/menuocr/internal/common"
	"github.com/joseph-ayodele/menuocr/internal/llm"
	"github.com/joseph-ayodele/menuocr/internal/ocr"
)

// Sampling used for transcription; low temperature keeps the model literal.
const (
	Temperature = 0.1
	TopP        = 0.9
	MaxTokens   = 4096
)

// Config configures the vision engine.
type Config struct {
	Model           string        // default constants.DefaultVisionModel
	FlattenMarkdown bool          // strip markdown the model sometimes adds
	Timeout         time.Duration // optional, on top of the chat client's own timeout
}

// Adapter transcribes a menu image with a vision-capable chat model.
type Adapter struct {
	chat   llm.ChatCompleter
	cfg    Config
	logger *slog.Logger
}

var _ ocr.Engine = (*Adapter)(nil)

// New returns the vision engine on top of a chat-completions client.
func New(chat llm.ChatCompleter, cfg Config, logger *slog.Logger) *Adapter {
	if cfg.Model == "" {
		cfg.Model = constants.DefaultVisionModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{chat: chat, cfg: cfg, logger: logger}
}

func (a *Adapter) ID() string { return constants.EngineMaverick }

// Extract sends one multimodal completion. URL inputs pass through; base64
// inputs are sent as a data URI. Options are ignored.
func (a *Adapter) Extract(ctx context.Context, img ocr.ImageInput, _ ocr.Options) (ocr.RawOCRResult, error) {
	ctx, rid := common.EnsureRequestID(ctx)
	start := time.Now()

	if err := img.Validate(); err != nil {
		return ocr.RawOCRResult{}, err
	}
	imageURL := strings.TrimSpace(img.Data)
	if !img.IsURL() {
		imageURL = img.DataURI()
	}

	a.logger.Info("ocr.adapter.start",
		"req_id", rid,
		"engine", a.ID(),
		"model", a.cfg.Model,
		"url_input", img.IsURL(),
		"bytes", img.Len(),
	)

	if a.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
	}

	resp, err := a.chat.Complete(ctx, llm.ChatRequest{
		Model:       a.cfg.Model,
		Temperature: Temperature,
		TopP:        TopP,
		MaxTokens:   MaxTokens,
		Messages: []llm.Message{
			{Role: "system", Content: llm.VisionSystemPrompt},
			{Role: "user", Content: llm.BuildVisionPrompt(), ImageURL: imageURL},
		},
	})
	if err != nil {
		a.logger.Error("ocr.adapter.failed",
			"req_id", rid, "engine", a.ID(), "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return ocr.RawOCRResult{}, err
	}

	out := resp.Content
	if a.cfg.FlattenMarkdown {
		out = FlattenMarkdown(out)
	}
	out = ocr.Normalize(out)
	elapsed := time.Since(start).Milliseconds()

	a.logger.Info("ocr.adapter.ok",
		"req_id", rid,
		"engine", a.ID(),
		"text_len", len(out),
		"elapsed_ms", elapsed,
	)
	return ocr.RawOCRResult{
		Text:             out,
		EngineID:         a.ID(),
		ProcessingTimeMs: elapsed,
		Raw:              resp.Raw,
	}, nil
}
