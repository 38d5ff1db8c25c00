package consensus

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/menuocr/internal/common"
	"github.com/joseph-ayodele/menuocr/internal/llm"
	"github.com/joseph-ayodele/menuocr/internal/ocr"
)

type fakeEngine struct {
	id    string
	text  string
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (f *fakeEngine) ID() string { return f.id }

func (f *fakeEngine) Extract(ctx context.Context, _ ocr.ImageInput, _ ocr.Options) (ocr.RawOCRResult, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ocr.RawOCRResult{}, ctx.Err()
		}
	}
	if f.err != nil {
		return ocr.RawOCRResult{}, f.err
	}
	return ocr.RawOCRResult{Text: f.text, EngineID: f.id, ProcessingTimeMs: 5}, nil
}

type fakeChat struct {
	reqs    []llm.ChatRequest
	content string
	err     error
}

func (f *fakeChat) Complete(_ context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return llm.ChatResponse{}, f.err
	}
	return llm.ChatResponse{Content: f.content}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testImage = ocr.ImageInput{Data: "aGVsbG8="}

const (
	structuredText = "Pizza Margherita ₹350\nPasta Alfredo ₹420"
	visionText     = "Pizza Margherta ₹350\nPasta Alfredo ₹420"
)

func TestProcess_BothSucceedArbiterPicksText(t *testing.T) {
	a := &fakeEngine{id: "ocrspace", text: structuredText}
	b := &fakeEngine{id: "maverick", text: visionText}
	chat := &fakeChat{content: `Here you go: {"finalText": "Pizza Margherita ₹350\nPasta Alfredo ₹420", "confidence": 0.9, "reasoning": "A has no typos"}`}

	res, err := NewArbiter(a, b, chat, Config{}, quietLogger()).ProcessImageWithBothOCR(context.Background(), testImage)
	require.NoError(t, err)

	assert.Equal(t, structuredText, res.FinalText)
	assert.GreaterOrEqual(t, res.Confidence, 0.8)
	assert.False(t, res.Fallback)
	assert.Equal(t, "A has no typos", res.Reasoning)
	assert.Len(t, res.SourceResults, 2)
	assert.Greater(t, res.Agreement, 0.5)
	assert.Less(t, res.Agreement, 1.0)
	assert.GreaterOrEqual(t, res.ProcessingDetails.TotalTime, res.ProcessingDetails.ComparisonTime)

	require.Len(t, chat.reqs, 1)
	req := chat.reqs[0]
	assert.Equal(t, "openai/gpt-oss-120b", req.Model)
	assert.InDelta(t, 0.3, req.Temperature, 1e-9)
	assert.Equal(t, 4096, req.MaxTokens)
	assert.True(t, req.JSONMode)
	assert.Contains(t, req.Messages[1].Content, structuredText)
	assert.Contains(t, req.Messages[1].Content, visionText)
}

func TestProcess_OneEngineFailsArbitrationStillRuns(t *testing.T) {
	a := &fakeEngine{id: "ocrspace", err: common.ProviderError("ocr.space", context.DeadlineExceeded)}
	b := &fakeEngine{id: "maverick", text: visionText}
	chat := &fakeChat{content: `{"finalText": "Pizza Margherita ₹350\nPasta Alfredo ₹420", "confidence": 0.7}`}

	res, err := NewArbiter(a, b, chat, Config{}, quietLogger()).ProcessImageWithBothOCR(context.Background(), testImage)
	require.NoError(t, err)

	require.Len(t, res.SourceResults, 1)
	assert.Equal(t, "maverick", res.SourceResults[0].EngineID)
	assert.NotEmpty(t, res.FinalText)
	assert.Zero(t, res.Agreement)

	require.Len(t, chat.reqs, 1)
	assert.Contains(t, chat.reqs[0].Messages[1].Content, llm.NoTextPlaceholder)
}

func TestProcess_ArbiterFailureFallsBackToLongerText(t *testing.T) {
	longer := structuredText + "\nTiramisu ₹250"
	tests := []struct {
		name string
		chat llm.ChatCompleter
	}{
		{"network error", &fakeChat{err: common.ProviderError("chat completions", errors.New("connection refused"))}},
		{"missing key", &fakeChat{err: common.MissingCredentials("GROQ_API_KEY")}},
		{"malformed json", &fakeChat{content: "{finalText: nope"}},
		{"empty final text", &fakeChat{content: `{"finalText": "   ", "confidence": 0.9}`}},
		{"confidence out of range", &fakeChat{content: `{"finalText": "x", "confidence": 3}`}},
		{"no arbiter", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &fakeEngine{id: "ocrspace", text: longer}
			b := &fakeEngine{id: "maverick", text: visionText}

			res, err := NewArbiter(a, b, tt.chat, Config{}, quietLogger()).ProcessImageWithBothOCR(context.Background(), testImage)
			require.NoError(t, err)
			assert.Equal(t, longer, res.FinalText)
			assert.Equal(t, 0.5, res.Confidence)
			assert.True(t, res.Fallback)
			assert.Contains(t, res.Reasoning, "ocrspace")
		})
	}
}

func TestProcess_FallbackTieGoesToVision(t *testing.T) {
	a := &fakeEngine{id: "ocrspace", text: "Chai ₹20"}
	b := &fakeEngine{id: "maverick", text: "Chai ₹25"}
	chat := &fakeChat{err: errors.New("boom")}

	res, err := NewArbiter(a, b, chat, Config{}, quietLogger()).ProcessImageWithBothOCR(context.Background(), testImage)
	require.NoError(t, err)
	assert.Equal(t, "Chai ₹25", res.FinalText)
}

func TestProcess_FallbackCountsRunesNotBytes(t *testing.T) {
	a := &fakeEngine{id: "ocrspace", text: "₹₹₹₹"}   // 4 runes, 12 bytes
	b := &fakeEngine{id: "maverick", text: "Tea 20"} // 6 runes
	chat := &fakeChat{err: errors.New("boom")}

	res, err := NewArbiter(a, b, chat, Config{}, quietLogger()).ProcessImageWithBothOCR(context.Background(), testImage)
	require.NoError(t, err)
	assert.Equal(t, "Tea 20", res.FinalText)
}

func TestProcess_FallbackConfidenceIsConfigurable(t *testing.T) {
	a := &fakeEngine{id: "ocrspace", text: "x"}
	b := &fakeEngine{id: "maverick", err: errors.New("down")}

	res, err := NewArbiter(a, b, nil, Config{FallbackConfidence: 0.35}, quietLogger()).
		ProcessImageWithBothOCR(context.Background(), testImage)
	require.NoError(t, err)
	assert.Equal(t, "x", res.FinalText)
	assert.Equal(t, 0.35, res.Confidence)
}

func TestProcess_BothEnginesFail(t *testing.T) {
	a := &fakeEngine{id: "ocrspace", err: errors.New("timeout")}
	b := &fakeEngine{id: "maverick", err: common.MissingCredentials("GROQ_API_KEY")}
	chat := &fakeChat{content: `{"finalText": "x", "confidence": 1}`}

	_, err := NewArbiter(a, b, chat, Config{}, quietLogger()).ProcessImageWithBothOCR(context.Background(), testImage)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrBothEnginesFailed)
	assert.Contains(t, err.Error(), "both OCR services failed to extract text")
	assert.Contains(t, err.Error(), "ocrspace: timeout")

	var failed *common.EnginesFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, []string{"ocrspace", "maverick"}, failed.Engines)
	assert.Empty(t, chat.reqs, "no arbitration without text")
}

func TestProcess_EmptyTextsAreFatal(t *testing.T) {
	a := &fakeEngine{id: "ocrspace", text: "  "}
	b := &fakeEngine{id: "maverick", err: errors.New("down")}

	_, err := NewArbiter(a, b, nil, Config{}, quietLogger()).ProcessImageWithBothOCR(context.Background(), testImage)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrBothEnginesFailed)
	assert.Contains(t, err.Error(), "ocrspace: no text")
}

func TestProcess_InvalidInputSkipsEngines(t *testing.T) {
	a := &fakeEngine{id: "ocrspace", text: "x"}
	b := &fakeEngine{id: "maverick", text: "y"}

	_, err := NewArbiter(a, b, nil, Config{}, quietLogger()).ProcessImageWithBothOCR(context.Background(), ocr.ImageInput{})
	assert.ErrorIs(t, err, common.ErrInvalidInput)
	assert.Zero(t, a.calls.Load())
	assert.Zero(t, b.calls.Load())
}

func TestProcess_EnginesRunConcurrentlyAndSettleIndependently(t *testing.T) {
	a := &fakeEngine{id: "ocrspace", err: errors.New("fast failure"), delay: 10 * time.Millisecond}
	b := &fakeEngine{id: "maverick", text: visionText, delay: 150 * time.Millisecond}

	start := time.Now()
	res, err := NewArbiter(a, b, nil, Config{}, quietLogger()).ProcessImageWithBothOCR(context.Background(), testImage)
	require.NoError(t, err)
	assert.Equal(t, visionText, res.FinalText, "a fast failure does not cancel the slow engine")
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.GreaterOrEqual(t, res.ProcessingDetails.MaverickTime, int64(150))
	assert.Less(t, res.ProcessingDetails.OCRSpaceTime, res.ProcessingDetails.MaverickTime)
}

func TestProcess_EngineTimeoutIsAFailure(t *testing.T) {
	a := &fakeEngine{id: "ocrspace", text: structuredText}
	b := &fakeEngine{id: "maverick", text: visionText, delay: time.Second}

	res, err := NewArbiter(a, b, nil, Config{EngineTimeout: 50 * time.Millisecond}, quietLogger()).
		ProcessImageWithBothOCR(context.Background(), testImage)
	require.NoError(t, err)
	assert.Equal(t, structuredText, res.FinalText)
	require.Len(t, res.SourceResults, 1)
	assert.Equal(t, "ocrspace", res.SourceResults[0].EngineID)
}

func TestAgreement(t *testing.T) {
	assert.Equal(t, 1.0, Agreement("", ""))
	assert.Equal(t, 1.0, Agreement("Chai 20", "chai   20"))
	assert.Equal(t, 0.0, Agreement("Chai 20", ""))
	assert.InDelta(t, 0.5, Agreement("Chai 20", "Chai 25"), 1e-9)

	long := strings.Repeat("word ", 200)
	assert.InDelta(t, 1.0, Agreement(long, long), 1e-9)
}

type stalledChat struct{}

func (stalledChat) Complete(ctx context.Context, _ llm.ChatRequest) (llm.ChatResponse, error) {
	<-ctx.Done()
	return llm.ChatResponse{}, ctx.Err()
}

func TestProcess_ArbiterTimeoutFallsBack(t *testing.T) {
	a := &fakeEngine{id: "ocrspace", text: structuredText + "\nTiramisu ₹300"}
	b := &fakeEngine{id: "maverick", text: visionText}

	start := time.Now()
	res, err := NewArbiter(a, b, stalledChat{}, Config{ArbiterTimeout: 50 * time.Millisecond}, quietLogger()).
		ProcessImageWithBothOCR(context.Background(), testImage)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, res.Fallback)
	assert.Equal(t, structuredText+"\nTiramisu ₹300", res.FinalText)
	assert.InDelta(t, DefaultFallbackConfidence, res.Confidence, 1e-9)
	assert.Contains(t, res.Reasoning, "deadline exceeded")
}
