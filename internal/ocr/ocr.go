package ocr

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/joseph-ayodele/menuocr/internal/common"
)

// ImageInput is the single image reference handed to every engine: base64
// (bare or as a data: URI) or an http(s) URL. Engines never modify it.
type ImageInput struct {
	Data string
}

// Validate enforces a non-empty reference.
func (in ImageInput) Validate() error {
	if strings.TrimSpace(in.Data) == "" {
		return common.InvalidInput("image data is required")
	}
	return nil
}

// IsURL reports whether the input is a fetchable http(s) URL.
func (in ImageInput) IsURL() bool {
	s := strings.ToLower(strings.TrimSpace(in.Data))
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// IsDataURI reports whether the input already carries a data: prefix.
func (in ImageInput) IsDataURI() bool {
	return strings.HasPrefix(strings.TrimSpace(in.Data), "data:")
}

// Base64 returns the payload without any data URI header.
func (in ImageInput) Base64() string {
	s := strings.TrimSpace(in.Data)
	if in.IsDataURI() {
		if i := strings.Index(s, ","); i >= 0 {
			return s[i+1:]
		}
	}
	return s
}

// DataURI returns the input as a data: URI, sniffing the mime type when the
// caller sent bare base64.
func (in ImageInput) DataURI() string {
	if in.IsDataURI() {
		return strings.TrimSpace(in.Data)
	}
	b64 := in.Base64()
	return "data:" + SniffMIME(b64) + ";base64," + b64
}

// Len is the payload size in bytes, used for logging only.
func (in ImageInput) Len() int { return len(in.Data) }

// RawOCRResult is what one engine produced for one image.
type RawOCRResult struct {
	Text             string          `json:"text"`
	EngineID         string          `json:"engineId"`
	ProcessingTimeMs int64           `json:"processingTimeMs"`
	Raw              json.RawMessage `json:"raw,omitempty"`
}

// Options are per-call engine options. Engines ignore fields they do not support.
type Options struct {
	Language          string // default "eng"
	Engine            int    // structured OCR engine selector, 1 or 2
	OverlayRequired   bool
	DetectOrientation bool
	Scale             bool
}

// DefaultOptions mirrors the provider defaults used in production.
func DefaultOptions() Options {
	return Options{
		Language:          "eng",
		Engine:            2,
		DetectOrientation: true,
		Scale:             true,
	}
}

// Engine is one OCR backend.
type Engine interface {
	ID() string
	Extract(ctx context.Context, img ImageInput, opts Options) (RawOCRResult, error)
}
