package adminhttp

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/kratepkg/krate/internal/metrics"
	"github.com/kratepkg/krate/internal/middleware"
)

// Server exposes the operability surface — health/ready/live checks and
// the Prometheus scrape endpoint — over gorilla/mux, separate from the
// hand-rolled proxy listener that carries actual proxied traffic.
// Grounded on internal/api/handlers.go's RegisterRoutes, narrowed to
// just the operability routes.
type Server struct {
	router  *mux.Router
	metrics *metrics.Metrics
	logger  *logrus.Logger
}

// ReadyCheck reports whether the process is ready to serve traffic, e.g.
// "the proxy listener is bound" when a proxy is configured to start.
type ReadyCheck func(context.Context) error

// New builds the admin router, wiring logging and panic-recovery
// middleware around every route.
func New(m *metrics.Metrics, logger *logrus.Logger, ready ReadyCheck) *Server {
	r := mux.NewRouter()
	r.Use(middleware.LoggingMiddleware(logger))
	r.Use(middleware.RecoveryMiddleware(logger))

	s := &Server{router: r, metrics: m, logger: logger}

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ready", s.handleReady(ready)).Methods(http.MethodGet)
	r.HandleFunc("/live", s.handleLive).Methods(http.MethodGet)
	r.Handle("/metrics", m.Handler()).Methods(http.MethodGet)

	return s
}

// Handler returns the assembled http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	metrics.HealthHandler()(w, r)
}

func (s *Server) handleReady(ready ReadyCheck) http.HandlerFunc {
	return metrics.ReadinessHandler(func(ctx context.Context) error {
		if ready == nil {
			return nil
		}
		return ready(ctx)
	})
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	metrics.LivenessHandler()(w, r)
}

// ListenAndServe starts the admin HTTP server on addr, blocking until it
// returns an error (including on a clean shutdown via http.ErrServerClosed).
func ListenAndServe(addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv.ListenAndServe()
}
