package api

import (
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/candlelens/candlelens/internal/api/handlers"
	"github.com/candlelens/candlelens/internal/api/middleware"
	"github.com/candlelens/candlelens/internal/config"
)

// NewRouter creates the HTTP router with all routes.
func NewRouter(cfg *config.Config, h *handlers.Handlers, auth *middleware.APIKeyAuth) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id", "X-Trace-Id"},
		MaxAge:         300,
	}))

	// Front end
	r.Get("/", indexHandler(cfg.StaticDir))
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.StaticDir))))

	r.Get("/health", h.Health)
	r.Get("/warmup", h.WarmupStatus)
	r.Get("/patterns", h.ListPatterns)

	// Routes that spend upstream credit or expose spend
	r.Group(func(r chi.Router) {
		if auth != nil {
			r.Use(auth.Middleware)
		}
		r.Post("/analyze", h.Analyze)
		r.Get("/api/costs", h.GetCostSummary)
	})

	return r
}

func indexHandler(dir string) http.HandlerFunc {
	index := filepath.Join(dir, "index.html")
	return func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, index)
	}
}
