package negotiation

import "context"

const (
	ChatRoleSystem    = "system"
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// ChatMessage is a provider-neutral chat turn.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type TokenUsage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

type LLMRequest struct {
	Model    string
	System   []string
	Messages []ChatMessage
	// MaxTokens is omitted when zero.
	MaxTokens int32
	// Temperature is omitted when negative.
	Temperature float32
	TopP        float32
}

type LLMResponse struct {
	Text       string
	Usage      TokenUsage
	StopReason string
}

// LLMClient is the probabilistic model behind classification and parsing.
// Calls may fail or time out at any point.
type LLMClient interface {
	Complete(ctx context.Context, req LLMRequest) (LLMResponse, error)
}
