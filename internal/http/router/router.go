package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rmoreira/leadqual-ai/internal/http/handlers"
	httpmiddleware "github.com/rmoreira/leadqual-ai/internal/http/middleware"
	"github.com/rmoreira/leadqual-ai/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	AIHandler      *handlers.AIWebhookHandler
	MetricsHandler http.Handler
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/healthz", cfg.AIHandler.Healthz)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api/ai", func(api chi.Router) {
		api.Post("/webhook/whatsapp", cfg.AIHandler.WhatsAppWebhook)
		api.Post("/test", cfg.AIHandler.TestMessage)

		api.Get("/stats", cfg.AIHandler.Stats)
		api.Get("/conversations/active", cfg.AIHandler.ActiveConversations)
		api.Route("/conversations/{phone}", func(conv chi.Router) {
			conv.Get("/", cfg.AIHandler.GetConversation)
			conv.Post("/end", cfg.AIHandler.EndConversation)
			conv.Post("/escalate", cfg.AIHandler.EscalateConversation)
		})

		api.Get("/config", cfg.AIHandler.GetConfig)
		api.Put("/config", cfg.AIHandler.UpdateConfig)
	})

	return r
}
