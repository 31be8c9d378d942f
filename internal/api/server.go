package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/pannier-io/pannier/internal/contacts"
	"github.com/pannier-io/pannier/internal/news"
	"github.com/pannier-io/pannier/internal/queue"
	"github.com/pannier-io/pannier/internal/store"
	"github.com/pannier-io/pannier/pkg/codes"
)

// Server holds the HTTP handlers and their dependencies.
type Server struct {
	store    *store.Store
	catalog  *news.Catalog
	contacts *contacts.Service
	queue    *queue.Queue
	logger   *zap.Logger
}

// New creates the API server.
func New(st *store.Store, catalog *news.Catalog, svc *contacts.Service, q *queue.Queue, logger *zap.Logger) *Server {
	return &Server{
		store:    st,
		catalog:  catalog,
		contacts: svc,
		queue:    q,
		logger:   logger,
	}
}

// Routes builds the router. Trailing slashes are accepted everywhere.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.StripSlashes)
	r.Use(s.logRequests)

	r.Get("/healthz", s.healthz)

	r.Route("/news", func(r chi.Router) {
		r.Get("/", s.publicNewsletters)
		r.Post("/subscribe", s.subscribe)
		r.Post("/unsubscribe/{token}", s.unsubscribe)
		r.Get("/user/{token}", s.getUser)
		r.Post("/user/{token}", s.postUser)
		r.Post("/user-meta/{token}", s.userMeta)
		r.Post("/confirm/{token}", s.confirm)
		r.Get("/newsletters", s.newsletters)
		r.Get("/lookup-user", s.lookupUser)
		r.Post("/recover", s.recoverUser)
		r.Post("/custom_unsub_reason", s.unsubReason)
	})

	return r
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote", r.RemoteAddr),
		)
	})
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	depth, err := s.store.QueueDepth(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, codes.UnknownError, "database unavailable")
		return
	}
	respondJSON(w, http.StatusOK, envelope{"status": "ok", "queue_depth": depth})
}
