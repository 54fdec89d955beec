package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/wolfman30/vendor-negotiation/internal/config"
	"github.com/wolfman30/vendor-negotiation/internal/negotiation"
	"github.com/wolfman30/vendor-negotiation/pkg/logging"
)

// BuildModel wires the model used for classification and parsing.
//
//	bedrock: Bedrock primary, Gemini secondary when GEMINI_API_KEY is set
//	gemini:  Gemini only
//	none:    no model, heuristics answer every request
//
// The returned cleanup func is never nil.
func BuildModel(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (negotiation.Model, func(), error) {
	noop := func() {}
	if cfg == nil {
		return nil, noop, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	var gemini *negotiation.GeminiLLMClient
	if strings.TrimSpace(cfg.GeminiAPIKey) != "" && cfg.ModelProvider != "none" {
		client, err := negotiation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			return nil, noop, fmt.Errorf("bootstrap: gemini client: %w", err)
		}
		gemini = client
	}
	cleanup := func() {
		if gemini != nil {
			_ = gemini.Close()
		}
	}

	switch cfg.ModelProvider {
	case "none":
		logger.Warn("no model configured; heuristics only")
		return nil, cleanup, nil
	case "gemini":
		if gemini == nil {
			return nil, cleanup, fmt.Errorf("bootstrap: MODEL_PROVIDER=gemini requires GEMINI_API_KEY")
		}
		logger.Info("model configured", "provider", "gemini", "model", cfg.GeminiModelID)
		return negotiation.NewLLMModel(gemini, cfg.GeminiModelID), cleanup, nil
	case "bedrock", "":
		model := strings.TrimSpace(cfg.BedrockModelID)
		if model == "" {
			cleanup()
			return nil, noop, fmt.Errorf("bootstrap: BEDROCK_MODEL_ID is required for the bedrock provider")
		}
		var client negotiation.LLMClient = negotiation.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg))
		if gemini != nil {
			client = negotiation.NewFallbackLLMClient(client, gemini, logger)
		}
		logger.Info("model configured", "provider", "bedrock", "model", model, "secondary", gemini != nil)
		return negotiation.NewLLMModel(client, model), cleanup, nil
	default:
		cleanup()
		return nil, noop, fmt.Errorf("bootstrap: unknown MODEL_PROVIDER %q", cfg.ModelProvider)
	}
}
