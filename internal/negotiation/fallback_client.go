package negotiation

import (
	"context"
	"errors"

	"github.com/wolfman30/vendor-negotiation/pkg/logging"
)

// FallbackLLMClient sends each request to the primary provider and, when that
// fails, once to the secondary provider. Retrying is left to the caller.
type FallbackLLMClient struct {
	primary   LLMClient
	secondary LLMClient
	logger    *logging.Logger
}

// NewFallbackLLMClient wraps primary with an optional secondary provider.
func NewFallbackLLMClient(primary, secondary LLMClient, logger *logging.Logger) *FallbackLLMClient {
	if primary == nil {
		panic("negotiation: primary llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &FallbackLLMClient{
		primary:   primary,
		secondary: secondary,
		logger:    logger,
	}
}

func (c *FallbackLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	resp, err := c.primary.Complete(ctx, req)
	if err == nil {
		return resp, nil
	}

	c.logger.Warn("primary LLM failed",
		"error", err.Error(),
		"secondary_available", c.secondary != nil,
	)
	if c.secondary == nil {
		return LLMResponse{}, err
	}
	// Skip the secondary when the caller already gave up.
	if ctx.Err() != nil {
		return LLMResponse{}, err
	}

	secondaryResp, secondaryErr := c.secondary.Complete(ctx, req)
	if secondaryErr != nil {
		c.logger.Error("secondary LLM also failed",
			"primary_error", err.Error(),
			"secondary_error", secondaryErr.Error(),
		)
		return LLMResponse{}, errors.Join(err, secondaryErr)
	}

	c.logger.Info("secondary LLM succeeded after primary failure")
	return secondaryResp, nil
}
