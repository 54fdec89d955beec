package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/vendor-negotiation/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/vendor-negotiation/internal/http/middleware"
	"github.com/wolfman30/vendor-negotiation/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	Negotiation    *handlers.NegotiationHandler
	DeadLetters    *handlers.DeadLetterHandler
	OpsJWTSecret   string
	MetricsHandler http.Handler
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	r.Get("/health", health)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.Negotiation != nil {
		r.Route("/v1/negotiation", func(neg chi.Router) {
			neg.Post("/classify", cfg.Negotiation.Classify)
			neg.Post("/parse", cfg.Negotiation.Parse)
			neg.Post("/repair", cfg.Negotiation.Repair)
		})
	}

	if cfg.DeadLetters != nil {
		r.Route("/ops/dead-letters", func(ops chi.Router) {
			ops.Use(httpmiddleware.OpsJWT(cfg.OpsJWTSecret))
			ops.Get("/", cfg.DeadLetters.List)
			ops.Delete("/", cfg.DeadLetters.Clear)
			ops.Get("/{id}", cfg.DeadLetters.Get)
			ops.Post("/{id}/retry", cfg.DeadLetters.Retry)
		})
	}

	return r
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
