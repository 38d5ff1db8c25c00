package ocr

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/joseph-ayodele/menuocr/internal/common"
)

// Converters understood by HEICConverter.
const (
	ConverterHeifConvert = "heif-convert"
	ConverterMagick      = "magick"
	ConverterSips        = "sips"
)

// Runner lets us stub external commands in tests.
type Runner interface {
	Run(ctx context.Context, name string, logger *slog.Logger, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, logger *slog.Logger, args ...string) ([]byte, []byte, error) {
	start := time.Now()
	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	if err != nil {
		logger.Error("exec.failed",
			"cmd", name,
			"elapsed_ms", time.Since(start).Milliseconds(),
			"error", err,
			"stderr", truncateOutput(errb.String(), 8<<10),
		)
	} else {
		logger.Debug("exec.ok",
			"cmd", name,
			"args", strings.Join(args, " "),
			"elapsed_ms", time.Since(start).Milliseconds(),
			"stdout_bytes", out.Len(),
		)
	}
	return out.Bytes(), errb.Bytes(), err
}

func truncateOutput(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}

// HEICConfig selects the external converter for HEIC/HEIF photos.
type HEICConfig struct {
	Converter string // heif-convert | magick | sips; empty disables conversion
	CacheDir  string // optional; PNGs are kept as {CacheDir}/{sha256}.png
	Runner    Runner // nil runs the real command
}

// HEICConverter turns phone photos in HEIC/HEIF into PNG, which both engines accept.
type HEICConverter struct {
	cfg    HEICConfig
	runner Runner
	logger *slog.Logger
}

// NewHEICConverter returns a converter; a nil Runner runs the real command.
func NewHEICConverter(cfg HEICConfig, logger *slog.Logger) *HEICConverter {
	if logger == nil {
		logger = slog.Default()
	}
	runner := cfg.Runner
	if runner == nil {
		runner = execRunner{}
	}
	return &HEICConverter{cfg: cfg, runner: runner, logger: logger}
}

// ToPNG converts the file at in and returns the PNG bytes. A non-empty hashHex
// keys the cache, so a photo is converted once however often it is resolved.
func (c *HEICConverter) ToPNG(ctx context.Context, in, hashHex string) ([]byte, error) {
	if c == nil || c.cfg.Converter == "" {
		return nil, common.InvalidInput("HEIC images need HEIC_CONVERTER (heif-convert, magick or sips)")
	}

	var cached string
	if c.cfg.CacheDir != "" && hashHex != "" {
		cached = filepath.Join(c.cfg.CacheDir, hashHex+".png")
		if b, err := os.ReadFile(cached); err == nil && len(b) > 0 {
			c.logger.Debug("heic.cache.hit", "cache", cached)
			return b, nil
		}
	}

	tmpDir, err := os.MkdirTemp("", "menuocr-heic-*")
	if err != nil {
		return nil, err
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()
	out := filepath.Join(tmpDir, "page.png")

	var args []string
	switch c.cfg.Converter {
	case ConverterHeifConvert, ConverterMagick:
		args = []string{in, out}
	case ConverterSips:
		args = []string{"-s", "format", "png", in, "--out", out}
	default:
		return nil, common.NewAppError(common.CodeConfig,
			fmt.Sprintf("unknown HEIC converter %q", c.cfg.Converter), common.ErrInvalidInput)
	}
	start := time.Now()
	if _, errb, err := c.runner.Run(ctx, c.cfg.Converter, c.logger, args...); err != nil {
		return nil, common.NewAppError(common.CodeOCRFailed,
			fmt.Sprintf("%s failed: %s", c.cfg.Converter, strings.TrimSpace(string(errb))), err)
	}

	b, err := os.ReadFile(out)
	if err != nil || len(b) == 0 {
		return nil, common.NewAppError(common.CodeOCRFailed, "HEIC conversion produced no output", err)
	}
	c.logger.Info("heic.convert.ok",
		"converter", c.cfg.Converter,
		"bytes", len(b),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if cached != "" {
		c.store(cached, b)
	}
	return b, nil
}

// store writes through a temp file so a concurrent reader never sees a partial PNG.
func (c *HEICConverter) store(cached string, b []byte) {
	if err := os.MkdirAll(filepath.Dir(cached), 0o755); err != nil {
		c.logger.Warn("heic.cache.failed", "cache", cached, "error", err)
		return
	}
	tmp := cached + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		c.logger.Warn("heic.cache.failed", "cache", cached, "error", err)
		return
	}
	if err := os.Rename(tmp, cached); err != nil {
		_ = os.Remove(tmp)
		c.logger.Warn("heic.cache.failed", "cache", cached, "error", err)
	}
}

// IsHEIC reports whether path has a HEIC/HEIF extension or head carries an
// HEIF brand in its ftyp box.
func IsHEIC(path string, head []byte) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".heic", ".heif":
		return true
	}
	if len(head) < 12 || string(head[4:8]) != "ftyp" {
		return false
	}
	switch string(head[8:12]) {
	case "heic", "heix", "hevc", "hevx", "heim", "heis", "mif1", "msf1":
		return true
	}
	return false
}
