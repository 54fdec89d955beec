package negotiation

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/vendor-negotiation/internal/deadletter"
	"github.com/wolfman30/vendor-negotiation/internal/observability/metrics"
	"github.com/wolfman30/vendor-negotiation/internal/retry"
	"github.com/wolfman30/vendor-negotiation/pkg/logging"
)

// Operation names recorded on dead letters.
const (
	OpClassifyIntent = "classifyIntent"
	OpParseOffer     = "parseOffer"
)

var errModelUnavailable = errors.New("negotiation: model unavailable")

// ClassifyFunc is the primary, model-backed intent classifier.
type ClassifyFunc func(ctx context.Context, message string) (Intent, error)

// ParseFunc is the primary, model-backed offer parser.
type ParseFunc func(ctx context.Context, message string) (Offer, error)

// DeadLetterRecorder records operations that exhausted their retries.
type DeadLetterRecorder interface {
	Add(operation string, input any, err error) string
}

type GuardConfig struct {
	Invoker     *retry.Invoker
	Policy      retry.Policy
	DeadLetters DeadLetterRecorder
	Repairer    *Repairer
	Logger      *logging.Logger
	Metrics     *metrics.ResilienceMetrics
	Tracer      trace.Tracer
}

// Guard puts the model behind the retry invoker and falls back to the
// heuristics when it gives up. Callers always receive a usable result.
type Guard struct {
	invoker     *retry.Invoker
	policy      retry.Policy
	deadLetters DeadLetterRecorder
	repairer    *Repairer
	logger      *logging.Logger
	metrics     *metrics.ResilienceMetrics
	tracer      trace.Tracer
}

func NewGuard(cfg GuardConfig) (*Guard, error) {
	if cfg.DeadLetters == nil {
		return nil, errors.New("negotiation: dead letter recorder required")
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	invoker := cfg.Invoker
	if invoker == nil {
		invoker = retry.NewInvoker(retry.WithLogger(logger), retry.WithMetrics(cfg.Metrics))
	}
	repairer := cfg.Repairer
	if repairer == nil {
		repairer = NewRepairer(logger, cfg.Metrics)
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer("negotiation.internal.negotiation")
	}
	return &Guard{
		invoker:     invoker,
		policy:      cfg.Policy,
		deadLetters: cfg.DeadLetters,
		repairer:    repairer,
		logger:      logger,
		metrics:     cfg.Metrics,
		tracer:      tracer,
	}, nil
}

// ClassifyWithFallback classifies message with classify through the invoker.
// When every attempt fails the failure is dead-lettered and the heuristic
// classification returned. A nil classify skips straight to the heuristics.
func (g *Guard) ClassifyWithFallback(ctx context.Context, message string, classify ClassifyFunc) Intent {
	ctx, span := g.tracer.Start(ctx, "negotiation.classify")
	defer span.End()

	if classify == nil {
		return g.fallbackIntent(span, message, errModelUnavailable, false)
	}

	intent, err := retry.Call(ctx, g.invoker, OpClassifyIntent, g.policy, func(ctx context.Context) (Intent, error) {
		got, err := classify(ctx, message)
		if err != nil {
			return "", err
		}
		parsed, ok := ParseIntent(string(got))
		if !ok {
			return "", fmt.Errorf("%w: unknown intent %q", ErrMalformedModelOutput, got)
		}
		return parsed, nil
	})
	if err != nil {
		return g.fallbackIntent(span, message, err, true)
	}
	span.SetAttributes(attribute.String("negotiation.intent", string(intent)), attribute.Bool("negotiation.fallback", false))
	return intent
}

func (g *Guard) fallbackIntent(span trace.Span, message string, cause error, record bool) Intent {
	intent := ClassifyFallback(message)
	g.fallback(span, OpClassifyIntent, message, cause, record)
	span.SetAttributes(attribute.String("negotiation.intent", string(intent)))
	return intent
}

// ParseOfferWithFallback is ClassifyWithFallback for offer extraction. Model
// offers are sanitised before they are returned.
func (g *Guard) ParseOfferWithFallback(ctx context.Context, message string, parse ParseFunc) Offer {
	ctx, span := g.tracer.Start(ctx, "negotiation.parse_offer")
	defer span.End()

	if parse == nil {
		g.fallback(span, OpParseOffer, message, errModelUnavailable, false)
		return ParseOfferFallback(message)
	}

	offer, err := retry.Call(ctx, g.invoker, OpParseOffer, g.policy, func(ctx context.Context) (Offer, error) {
		got, err := parse(ctx, message)
		if err != nil {
			return Offer{}, err
		}
		return SanitizeOffer(got), nil
	})
	if err != nil {
		g.fallback(span, OpParseOffer, message, err, true)
		return ParseOfferFallback(message)
	}
	span.SetAttributes(attribute.Bool("negotiation.fallback", false))
	return offer
}

func (g *Guard) fallback(span trace.Span, operation, message string, cause error, record bool) {
	span.SetAttributes(attribute.Bool("negotiation.fallback", true))
	g.metrics.ObserveFallback(operation)
	if !record {
		g.logger.Info("model unavailable, using heuristics", "operation", operation)
		return
	}
	span.RecordError(cause)
	id := g.deadLetters.Add(operation, message, cause)
	g.logger.Warn("model retries exhausted, using heuristics",
		"operation", operation,
		"dead_letter_id", id,
		"error", cause,
	)
}

// RepairState sanitises a persisted conversation state before use.
func (g *Guard) RepairState(raw RawState) ConversationState {
	return g.repairer.RepairState(raw)
}

// RegisterReplays binds both guarded operations to model so dead letters can
// be retried by id.
func (g *Guard) RegisterReplays(replayer *deadletter.Replayer, model Model) {
	if replayer == nil || model == nil {
		return
	}
	replayer.Register(OpClassifyIntent, ReplayClassify(model))
	replayer.Register(OpParseOffer, ReplayParse(model))
}

// ReplayClassify re-runs a dead-lettered classification once.
func ReplayClassify(model Model) deadletter.ReplayFunc {
	return func(ctx context.Context, input any) error {
		message, ok := input.(string)
		if !ok {
			return fmt.Errorf("negotiation: replay %s: input is %T, want string", OpClassifyIntent, input)
		}
		intent, err := model.Classify(ctx, message)
		if err != nil {
			return err
		}
		if !intent.Valid() {
			return fmt.Errorf("%w: unknown intent %q", ErrMalformedModelOutput, intent)
		}
		return nil
	}
}

// ReplayParse re-runs a dead-lettered offer parse once.
func ReplayParse(model Model) deadletter.ReplayFunc {
	return func(ctx context.Context, input any) error {
		message, ok := input.(string)
		if !ok {
			return fmt.Errorf("negotiation: replay %s: input is %T, want string", OpParseOffer, input)
		}
		_, err := model.ParseOffer(ctx, message)
		return err
	}
}
