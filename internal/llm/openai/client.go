package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joseph-ayodele/menuocr/internal/common"
	"github.com/joseph-ayodele/menuocr/internal/llm"
)

var _ llm.ChatCompleter = (*Client)(nil)

// Complete implements llm.ChatCompleter against /chat/completions.
// A missing API key fails before any network call.
func (c *Client) Complete(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	ctx, rid := common.EnsureRequestID(ctx)
	start := time.Now()

	if c.cfg.APIKey == "" {
		c.logger.Error("llm.chat.missing_key", "req_id", rid, "model", req.Model, "env", c.cfg.APIKeyEnv)
		return llm.ChatResponse{}, common.MissingCredentials(c.cfg.APIKeyEnv)
	}

	c.logger.Info("llm.chat.start",
		"req_id", rid,
		"model", req.Model,
		"temp", req.Temperature,
		"messages", len(req.Messages),
		"json_mode", req.JSONMode,
	)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return llm.ChatResponse{}, common.ProviderError("chat completions rate limit wait", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, status, err := llm.SendJSON(ctx, c.http, endpoint, buildBody(req), map[string]string{
		"Authorization": "Bearer " + c.cfg.APIKey,
	}, c.logger)
	if err != nil {
		c.logger.Error("llm.chat.http_error",
			"req_id", rid, "status", status, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.ChatResponse{}, common.ProviderError(fmt.Sprintf("chat completions (%s)", req.Model), err)
	}

	var cc struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.logger.Error("llm.chat.decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.ChatResponse{Raw: raw}, common.ParseError("decode chat completion", err)
	}
	if len(cc.Choices) == 0 {
		c.logger.Error("llm.chat.no_choices",
			"req_id", rid, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.ChatResponse{Raw: raw}, common.ParseError("decode chat completion", errors.New("no choices in response"))
	}

	content := strings.TrimSpace(cc.Choices[0].Message.Content)
	c.logger.Info("llm.chat.ok",
		"req_id", rid,
		"model", cc.Model,
		"content_len", len(content),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return llm.ChatResponse{Content: content, Model: cc.Model, Raw: raw}, nil
}

func buildBody(req llm.ChatRequest) map[string]any {
	msgs := make([]map[string]any, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.ImageURL == "" {
			msgs = append(msgs, map[string]any{"role": m.Role, "content": m.Content})
			continue
		}
		msgs = append(msgs, map[string]any{
			"role": m.Role,
			"content": []map[string]any{
				{"type": "text", "text": m.Content},
				{"type": "image_url", "image_url": map[string]any{"url": m.ImageURL}},
			},
		})
	}

	body := map[string]any{
		"model":       req.Model,
		"temperature": req.Temperature,
		"messages":    msgs,
		"stream":      false,
	}
	if req.TopP > 0 {
		body["top_p"] = req.TopP
	}
	if req.MaxTokens > 0 {
		body["max_tokens"] = req.MaxTokens
	}
	if req.JSONMode {
		body["response_format"] = map[string]any{"type": "json_object"}
	}
	return body
}
