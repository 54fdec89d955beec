package negotiation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

type bedrockConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockLLMClient implements LLMClient with the Bedrock Converse API.
type BedrockLLMClient struct {
	api bedrockConverseAPI
}

func NewBedrockLLMClient(api bedrockConverseAPI) *BedrockLLMClient {
	if api == nil {
		panic("negotiation: bedrock converse client cannot be nil")
	}
	return &BedrockLLMClient{api: api}
}

func (c *BedrockLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	if strings.TrimSpace(req.Model) == "" {
		return LLMResponse{}, errors.New("negotiation: bedrock model id is required")
	}

	systemBlocks := make([]brtypes.SystemContentBlock, 0, len(req.System))
	for _, block := range req.System {
		if strings.TrimSpace(block) == "" {
			continue
		}
		systemBlocks = append(systemBlocks, &brtypes.SystemContentBlockMemberText{Value: block})
	}

	messages := make([]brtypes.Message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		var role brtypes.ConversationRole
		switch msg.Role {
		case ChatRoleSystem:
			systemBlocks = append(systemBlocks, &brtypes.SystemContentBlockMemberText{Value: content})
			continue
		case ChatRoleUser:
			role = brtypes.ConversationRoleUser
		case ChatRoleAssistant:
			role = brtypes.ConversationRoleAssistant
		default:
			return LLMResponse{}, fmt.Errorf("negotiation: unsupported role %q", msg.Role)
		}
		messages = append(messages, brtypes.Message{
			Role:    role,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: content}},
		})
	}
	if len(messages) == 0 {
		return LLMResponse{}, errors.New("negotiation: bedrock request has no messages")
	}

	out, err := c.api.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId:         aws.String(req.Model),
		System:          systemBlocks,
		Messages:        messages,
		InferenceConfig: bedrockInference(req),
	})
	if err != nil {
		return LLMResponse{}, fmt.Errorf("negotiation: bedrock converse: %w", err)
	}

	text, err := bedrockExtractOutputText(out)
	if err != nil {
		return LLMResponse{}, err
	}

	resp := LLMResponse{
		Text:       strings.TrimSpace(text),
		StopReason: string(out.StopReason),
	}
	if out.Usage != nil {
		resp.Usage = TokenUsage{
			InputTokens:  int32OrZero(out.Usage.InputTokens),
			OutputTokens: int32OrZero(out.Usage.OutputTokens),
			TotalTokens:  int32OrZero(out.Usage.TotalTokens),
		}
	}
	return resp, nil
}

func bedrockInference(req LLMRequest) *brtypes.InferenceConfiguration {
	inference := &brtypes.InferenceConfiguration{}
	if req.MaxTokens > 0 {
		inference.MaxTokens = aws.Int32(req.MaxTokens)
	}
	if req.Temperature >= 0 {
		inference.Temperature = aws.Float32(req.Temperature)
	}
	if req.TopP != 0 {
		inference.TopP = aws.Float32(req.TopP)
	}
	if inference.MaxTokens == nil && inference.Temperature == nil && inference.TopP == nil {
		return nil
	}
	return inference
}

func bedrockExtractOutputText(out *bedrockruntime.ConverseOutput) (string, error) {
	if out == nil {
		return "", errors.New("negotiation: bedrock response is nil")
	}
	msgOut, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return "", errors.New("negotiation: bedrock response did not include a message output")
	}
	var builder strings.Builder
	for _, block := range msgOut.Value.Content {
		if textBlock, ok := block.(*brtypes.ContentBlockMemberText); ok {
			builder.WriteString(textBlock.Value)
		}
	}
	if strings.TrimSpace(builder.String()) == "" {
		return "", errors.New("negotiation: bedrock response contained no text content blocks")
	}
	return builder.String(), nil
}

func int32OrZero(v *int32) int32 {
	if v == nil {
		return 0
	}
	return *v
}
