// Package api serves the canonical university directory over HTTP: public
// search and lookup plus a token-guarded admin surface for curation.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/university-cli/internal/geoclass"
	"github.com/sells-group/university-cli/internal/store"
)

// Classifier resolves free-text country names for admin writes.
type Classifier interface {
	Resolve(raw string) (geoclass.Classification, error)
}

// Options configures the API surface.
type Options struct {
	// AdminToken guards write routes. Writes are disabled when empty.
	AdminToken  string
	CORSOrigins []string
}

// Server holds the API dependencies.
type Server struct {
	store      store.Store
	classifier Classifier
	opts       Options
}

// New creates a Server.
func New(s store.Store, classifier Classifier, opts Options) *Server {
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	return &Server{store: s, classifier: classifier, opts: opts}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/universities", func(r chi.Router) {
		r.Get("/", s.handleSearch)
		r.Get("/{id}", s.handleGet)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Post("/", s.handleCreate)
			r.Patch("/{id}", s.handleUpdate)
			r.Delete("/{id}", s.handleDelete)
			r.Post("/{id}/aliases", s.handleAddAlias)
			r.Delete("/{id}/aliases/{aliasID}", s.handleDeleteAlias)
		})
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
