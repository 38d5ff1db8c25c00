package ocrspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/joseph-ayodele/menuocr/constants"
	"github.com/joseph-ayodele/menuocr/internal/common"
	"github.com/joseph-ayodele/menuocr/internal/ocr"
)

// APIKeyEnv is consulted when Config.APIKey is empty.
const APIKeyEnv = "OCRSPACE_API_KEY"

const maxResponseBytes = 8 << 20

// Config for the OCR.space structured engine.
type Config struct {
	APIKey         string
	URL            string        // default constants.DefaultOCRSpaceURL
	Timeout        time.Duration // per call
	RequestsPerSec float64       // 0 = unlimited
}

// Adapter calls the OCR.space parse endpoint.
type Adapter struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

var _ ocr.Engine = (*Adapter)(nil)

func New(cfg Config, logger *slog.Logger) *Adapter {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv(APIKeyEnv)
	}
	if cfg.URL == "" {
		cfg.URL = constants.DefaultOCRSpaceURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), 1)
	}
	return &Adapter{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
		logger:  logger,
	}
}

func (a *Adapter) ID() string { return constants.EngineOCRSpace }

// Extract posts the image to OCR.space and returns the normalized parsed text.
// ProcessingTimeMs is the provider-reported time when present, else wall clock.
func (a *Adapter) Extract(ctx context.Context, img ocr.ImageInput, opts ocr.Options) (ocr.RawOCRResult, error) {
	ctx, rid := common.EnsureRequestID(ctx)
	start := time.Now()

	if err := img.Validate(); err != nil {
		return ocr.RawOCRResult{}, err
	}
	if a.cfg.APIKey == "" {
		a.logger.Error("ocr.adapter.missing_key", "req_id", rid, "engine", a.ID(), "env", APIKeyEnv)
		return ocr.RawOCRResult{}, common.MissingCredentials(APIKeyEnv)
	}
	form, err := buildForm(a.cfg.APIKey, img, opts)
	if err != nil {
		return ocr.RawOCRResult{}, err
	}

	a.logger.Info("ocr.adapter.start",
		"req_id", rid,
		"engine", a.ID(),
		"ocr_engine", form.Get("OCREngine"),
		"language", form.Get("language"),
		"url_input", img.IsURL(),
		"bytes", img.Len(),
	)

	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return ocr.RawOCRResult{}, common.ProviderError("ocr.space rate limit wait", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	raw, err := a.post(ctx, form)
	if err != nil {
		a.logger.Error("ocr.adapter.failed",
			"req_id", rid, "engine", a.ID(), "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return ocr.RawOCRResult{}, common.ProviderError("ocr.space", err)
	}

	var resp response
	if err := json.Unmarshal(raw, &resp); err != nil {
		a.logger.Error("ocr.adapter.failed",
			"req_id", rid, "engine", a.ID(), "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return ocr.RawOCRResult{}, common.ParseError("decode ocr.space response", err)
	}
	if resp.failed() {
		msg := resp.errorMessage()
		a.logger.Error("ocr.adapter.failed",
			"req_id", rid, "engine", a.ID(), "exit_code", resp.OCRExitCode, "error", msg,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return ocr.RawOCRResult{}, common.ProviderError("ocr.space", errors.New(msg))
	}

	elapsed := time.Since(start).Milliseconds()
	took, ok := resp.providerTimeMs()
	if !ok {
		took = elapsed
	}
	text := ocr.Normalize(resp.text())

	a.logger.Info("ocr.adapter.ok",
		"req_id", rid,
		"engine", a.ID(),
		"pages", len(resp.ParsedResults),
		"text_len", len(text),
		"provider_ms", took,
		"elapsed_ms", elapsed,
	)
	return ocr.RawOCRResult{
		Text:             text,
		EngineID:         a.ID(),
		ProcessingTimeMs: took,
		Raw:              raw,
	}, nil
}

func (a *Adapter) post(ctx context.Context, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apikey", a.cfg.APIKey)

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			a.logger.Warn("ocr.adapter.body_close_error", "engine", a.ID(), "error", err)
		}
	}(resp.Body)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		body := string(raw)
		if len(body) > 300 {
			body = body[:300] + "…"
		}
		return nil, fmt.Errorf("non-2xx status: %d: %s", resp.StatusCode, body)
	}
	return raw, nil
}

func buildForm(apiKey string, img ocr.ImageInput, opts ocr.Options) (url.Values, error) {
	if opts.Language == "" {
		opts.Language = "eng"
	}
	if opts.Engine == 0 {
		opts.Engine = 2
	}
	if opts.Engine != 1 && opts.Engine != 2 {
		return nil, common.InvalidInput(fmt.Sprintf("unsupported OCR engine %d", opts.Engine))
	}

	form := url.Values{}
	form.Set("apikey", apiKey)
	if img.IsURL() {
		form.Set("url", strings.TrimSpace(img.Data))
	} else {
		form.Set("base64Image", img.DataURI())
	}
	form.Set("language", opts.Language)
	form.Set("isOverlayRequired", strconv.FormatBool(opts.OverlayRequired))
	form.Set("detectOrientation", strconv.FormatBool(opts.DetectOrientation))
	form.Set("scale", strconv.FormatBool(opts.Scale))
	form.Set("OCREngine", strconv.Itoa(opts.Engine))
	return form, nil
}
