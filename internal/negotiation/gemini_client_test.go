package negotiation

import (
	"context"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGeminiLLMClientRequiresAPIKey(t *testing.T) {
	client, err := NewGeminiLLMClient(context.Background(), "  ", "")
	assert.Nil(t, client)
	assert.ErrorContains(t, err, "api key is required")
}

func TestGeminiCompleteRequiresMessage(t *testing.T) {
	client := &GeminiLLMClient{modelID: defaultGeminiModel}
	_, err := client.Complete(context.Background(), LLMRequest{System: []string{"classify"}})
	assert.ErrorContains(t, err, "at least one message")
	assert.NoError(t, client.Close())
}

func TestGeminiHistoryMapsRoles(t *testing.T) {
	history := geminiHistory([]ChatMessage{
		{Role: ChatRoleSystem, Content: "ignored"},
		{Role: ChatRoleUser, Content: " Can you do $90? "},
		{Role: ChatRoleAssistant, Content: "We can do $95"},
		{Role: ChatRoleUser, Content: "   "},
	})
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, []genai.Part{genai.Text("Can you do $90?")}, history[0].Parts)
	assert.Equal(t, "model", history[1].Role)
	assert.Nil(t, geminiHistory(nil))
}

func TestGeminiResult(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{
				Role:  "model",
				Parts: []genai.Part{genai.Text(` {"intent": `), genai.Text(`"ACCEPT"} `)},
			},
			FinishReason: genai.FinishReasonStop,
		}},
		UsageMetadata: &genai.UsageMetadata{PromptTokenCount: 40, CandidatesTokenCount: 6, TotalTokenCount: 46},
	}
	got, err := geminiResult(resp)
	require.NoError(t, err)
	assert.Equal(t, `{"intent": "ACCEPT"}`, got.Text)
	assert.Equal(t, genai.FinishReasonStop.String(), got.StopReason)
	assert.Equal(t, TokenUsage{InputTokens: 40, OutputTokens: 6, TotalTokens: 46}, got.Usage)
}

func TestGeminiResultRejectsEmptyReplies(t *testing.T) {
	_, err := geminiResult(&genai.GenerateContentResponse{})
	assert.ErrorContains(t, err, "no candidates")

	_, err = geminiResult(nil)
	assert.ErrorContains(t, err, "no candidates")

	_, err = geminiResult(&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: &genai.Content{}}}})
	assert.ErrorContains(t, err, "empty content")
}
