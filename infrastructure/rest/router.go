package rest

import (
	"chat-relay/auth"
	"chat-relay/runtime/workers"
	"chat-relay/services"
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Dependencies struct {
	Chat services.IChatService
	// Sessions admits websocket connections
	Sessions http.Handler
	// Tokens is nil when authentication is disabled
	Tokens        *auth.TokenManager
	FilesDir      string
	MaxUploadSize int64
	Registry      workers.RegistryStats
	Checks        map[string]func(ctx context.Context) error
}

func NewRouter(log *slog.Logger, deps Dependencies) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(Metrics)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(Logger(log))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := NewHandler(log, deps.Chat, deps.Registry, deps.Checks, deps.MaxUploadSize)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", h.Health)
	if deps.FilesDir != "" {
		r.Handle("/files/*", http.StripPrefix("/files/", http.FileServer(http.Dir(deps.FilesDir))))
	}

	r.Group(func(r chi.Router) {
		if deps.Tokens != nil {
			r.Use(auth.Middleware(deps.Tokens))
		}

		if deps.Sessions != nil {
			r.Get("/ws/{conversationID}", deps.Sessions.ServeHTTP)
		}
		r.Post("/conversations", h.CreateConversation)
		r.Get("/conversations/{conversationID}", h.GetConversation)
		r.Put("/conversations/{conversationID}", h.UpdateConversation)
		r.Delete("/conversations/{conversationID}", h.DeleteConversation)
		r.Get("/conversations/{conversationID}/messages", h.GetMessages)
		r.Get("/conversations/{conversationID}/search", h.Search)
		r.Get("/messages/{messageID}", h.GetMessage)
		r.Post("/files", h.Upload)
	})

	return r
}
