package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/menuocr/internal/common"
	"github.com/joseph-ayodele/menuocr/internal/llm"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestComplete_SendsMultimodalRequest(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"model":"m","choices":[{"message":{"content":"  Paneer Tikka ₹280  "}}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL + "/"}, quietLogger())
	resp, err := c.Complete(context.Background(), llm.ChatRequest{
		Model:       "vision",
		Temperature: 0.1,
		TopP:        0.9,
		MaxTokens:   4096,
		Messages: []llm.Message{
			{Role: "system", Content: "sys"},
			{Role: "user", Content: "extract", ImageURL: "data:image/png;base64,AAAA"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Paneer Tikka ₹280", resp.Content)
	assert.Equal(t, "m", resp.Model)

	assert.Equal(t, "vision", got["model"])
	assert.InDelta(t, 0.9, got["top_p"], 1e-9)
	assert.EqualValues(t, 4096, got["max_tokens"])
	assert.NotContains(t, got, "response_format")

	msgs := got["messages"].([]any)
	require.Len(t, msgs, 2)
	parts := msgs[1].(map[string]any)["content"].([]any)
	require.Len(t, parts, 2)
	img := parts[1].(map[string]any)
	assert.Equal(t, "image_url", img["type"])
	assert.Equal(t, "data:image/png;base64,AAAA", img["image_url"].(map[string]any)["url"])
}

func TestComplete_JSONMode(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{}"}}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL}, quietLogger())
	_, err := c.Complete(context.Background(), llm.ChatRequest{Model: "r", JSONMode: true,
		Messages: []llm.Message{{Role: "user", Content: "x"}}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"type": "json_object"}, got["response_format"])
	assert.NotContains(t, got, "top_p")
}

func TestComplete_MissingKeyIsConfigError(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "")
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, quietLogger())
	_, err := c.Complete(context.Background(), llm.ChatRequest{Model: "r"})
	require.Error(t, err)
	assert.True(t, common.IsConfigError(err))
	assert.ErrorIs(t, err, common.ErrMissingCredentials)
	assert.False(t, called)
}

func TestComplete_Non2xxIsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"overloaded"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL}, quietLogger())
	_, err := c.Complete(context.Background(), llm.ChatRequest{Model: "r"})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrProvider)
	assert.False(t, common.IsConfigError(err))
}

func TestComplete_NoChoicesIsParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL}, quietLogger())
	_, err := c.Complete(context.Background(), llm.ChatRequest{Model: "r"})
	assert.ErrorIs(t, err, common.ErrParse)
}

func TestComplete_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL, Timeout: 50 * time.Millisecond}, quietLogger())
	_, err := c.Complete(context.Background(), llm.ChatRequest{Model: "r"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrProvider))
}
