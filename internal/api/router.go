package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hashicorp/go-hclog"
)

type RouterOptions struct {
	// Timeout bounds every non-streaming request. Zero disables it.
	Timeout        time.Duration
	AllowedOrigins []string
}

func NewRouter(h *Handler, opts RouterOptions) http.Handler {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.RealIP, requestLogger(h.log), chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", h.Health)
	r.Get("/api/audit/code/stream", h.AuditStream)

	r.Group(func(r chi.Router) {
		if opts.Timeout > 0 {
			r.Use(chimw.Timeout(opts.Timeout))
		}
		r.Post("/api/analyze/legal", h.AnalyzeLegal)
		r.Post("/api/analyze/legal/all", h.QueryAllDocuments)
		r.Post("/api/audit/code", h.AuditCode)

		r.Post("/api/qa/init", h.QAInit)
		r.Post("/api/qa/ask", h.QAAsk)
		r.Post("/api/qa/insights", h.QAInsights)
		r.Post("/api/qa/compliance", h.QACompliance)
		r.Get("/api/qa/history/{id}", h.QAHistory)
		r.Delete("/api/qa/session/{id}", h.QADelete)
	})
	return r
}

func requestLogger(l hclog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			l.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", chimw.GetReqID(r.Context()),
			)
		})
	}
}
