package negotiation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedModelOutput marks model replies that could not be decoded. The
// invoker retries them like any other failure.
var ErrMalformedModelOutput = errors.New("negotiation: malformed model output")

// Model is the primary, model-backed classifier and parser.
type Model interface {
	Classify(ctx context.Context, message string) (Intent, error)
	ParseOffer(ctx context.Context, message string) (Offer, error)
}

const classifyPrompt = `You classify messages sent by a vendor during a price negotiation.
Reply with a single JSON object {"intent": "<INTENT>"} and nothing else.
INTENT is one of:
GREET - the vendor opens with a greeting
HANDLE_REFUSAL - the vendor declines, postpones or refuses
ACCEPT - the vendor accepts or agrees to the current terms
COUNTER_DIRECT - the vendor proposes a price, rate or payment terms
ASK_FOR_OFFER - anything else`

const parseOfferPrompt = `You extract the vendor's offer from a negotiation message.
Reply with a single JSON object and nothing else, using only these keys:
"total_price" (number), "payment_terms" (string like "Net 45"),
"payment_terms_days" (integer), "delivery_date" (string, YYYY-MM-DD),
"delivery_days" (integer), "meta" (object).
Omit keys the message does not state. Reply {} when no offer is present.`

// LLMModel implements Model by prompting an LLMClient for JSON.
type LLMModel struct {
	client    LLMClient
	modelID   string
	maxTokens int32
}

func NewLLMModel(client LLMClient, modelID string) *LLMModel {
	if client == nil {
		panic("negotiation: llm client cannot be nil")
	}
	return &LLMModel{client: client, modelID: modelID, maxTokens: 256}
}

func (m *LLMModel) Classify(ctx context.Context, message string) (Intent, error) {
	payload, err := m.complete(ctx, classifyPrompt, message)
	if err != nil {
		return "", err
	}
	intent, ok := ParseIntent(payload["intent"])
	if !ok {
		return "", fmt.Errorf("%w: unknown intent %v", ErrMalformedModelOutput, payload["intent"])
	}
	return intent, nil
}

func (m *LLMModel) ParseOffer(ctx context.Context, message string) (Offer, error) {
	payload, err := m.complete(ctx, parseOfferPrompt, message)
	if err != nil {
		return Offer{}, err
	}
	offer, ok := OfferFromRaw(payload)
	if !ok {
		return Offer{}, fmt.Errorf("%w: offer is not an object", ErrMalformedModelOutput)
	}
	return *offer, nil
}

func (m *LLMModel) complete(ctx context.Context, system, message string) (map[string]any, error) {
	resp, err := m.client.Complete(ctx, LLMRequest{
		Model:       m.modelID,
		System:      []string{system},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: message}},
		MaxTokens:   m.maxTokens,
		Temperature: 0,
	})
	if err != nil {
		return nil, err
	}
	return decodeModelJSON(resp.Text)
}

// decodeModelJSON extracts the outermost JSON object from a reply, tolerating
// code fences and surrounding prose.
func decodeModelJSON(text string) (map[string]any, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: no JSON object in %q", ErrMalformedModelOutput, truncate(text, 120))
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(text[start : end+1])))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedModelOutput, err)
	}
	if payload == nil {
		payload = map[string]any{}
	}
	return payload, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
