package llm

import "context"

// Message is one chat turn. ImageURL, when set, turns the user turn into a
// multimodal [text, image_url] content array.
type Message struct {
	Role     string
	Content  string
	ImageURL string
}

// ChatRequest is the provider-neutral shape of a chat completion.
type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature float64
	TopP        float64 // 0 = provider default
	MaxTokens   int     // 0 = provider default
	JSONMode    bool    // response_format json_object
}

// ChatResponse carries the first choice's content plus the raw provider body.
type ChatResponse struct {
	Content string
	Model   string
	Raw     []byte
}

// ChatCompleter is the interface the vision engine, the arbiter and the
// validator depend on.
type ChatCompleter interface {
	Complete(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

// Arbitration is the JSON contract of the consensus arbiter.
type Arbitration struct {
	FinalText  string  `json:"finalText"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

// MenuVerdict is the JSON contract of the menu validator.
type MenuVerdict struct {
	IsMenu     bool    `json:"isMenu"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}
