package negotiation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const defaultGeminiModel = "gemini-2.5-flash"

// GeminiLLMClient implements LLMClient using Google's Gemini API.
type GeminiLLMClient struct {
	client  *genai.Client
	modelID string
}

func NewGeminiLLMClient(ctx context.Context, apiKey, modelID string) (*GeminiLLMClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("negotiation: gemini api key is required")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = defaultGeminiModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("negotiation: failed to create gemini client: %w", err)
	}
	return &GeminiLLMClient{client: client, modelID: modelID}, nil
}

// Complete ignores req.Model; the Gemini model is fixed at construction.
func (c *GeminiLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	if len(req.Messages) == 0 {
		return LLMResponse{}, errors.New("negotiation: gemini requires at least one message")
	}
	model := c.client.GenerativeModel(c.modelID)
	if req.Temperature >= 0 {
		model.SetTemperature(req.Temperature)
	}
	if req.TopP > 0 {
		model.SetTopP(req.TopP)
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(req.MaxTokens)
	}
	if systemText := strings.TrimSpace(strings.Join(req.System, "\n\n")); systemText != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(systemText))
	}

	cs := model.StartChat()
	cs.History = geminiHistory(req.Messages[:len(req.Messages)-1])

	last := req.Messages[len(req.Messages)-1]
	resp, err := cs.SendMessage(ctx, genai.Text(last.Content))
	if err != nil {
		return LLMResponse{}, fmt.Errorf("negotiation: gemini completion failed: %w", err)
	}
	return geminiResult(resp)
}

// geminiHistory maps prior turns to Gemini roles, dropping system and blank
// messages.
func geminiHistory(msgs []ChatMessage) []*genai.Content {
	var history []*genai.Content
	for _, msg := range msgs {
		content := strings.TrimSpace(msg.Content)
		if content == "" || msg.Role == ChatRoleSystem {
			continue
		}
		role := "user"
		if msg.Role == ChatRoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(content)},
		})
	}
	return history
}

func geminiResult(resp *genai.GenerateContentResponse) (LLMResponse, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return LLMResponse{}, errors.New("negotiation: gemini returned no candidates")
	}
	candidate := resp.Candidates[0]
	if candidate == nil || candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return LLMResponse{}, errors.New("negotiation: gemini returned empty content")
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	result := LLMResponse{
		Text:       strings.TrimSpace(text.String()),
		StopReason: candidate.FinishReason.String(),
	}
	if resp.UsageMetadata != nil {
		result.Usage = TokenUsage{
			InputTokens:  resp.UsageMetadata.PromptTokenCount,
			OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:  resp.UsageMetadata.TotalTokenCount,
		}
	}
	return result, nil
}

func (c *GeminiLLMClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
