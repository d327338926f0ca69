package httpadapter

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/lake-raster-engine/internal/pipeline"
	"github.com/couchcryptid/lake-raster-engine/internal/render"
)

// Server exposes the analysis API plus health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	analyzer   pipeline.Analyzer
	overlay    render.OverlayOptions
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and the
// /v1 analysis routes. Dataset names containing a slash are passed as one
// escaped path segment, e.g. /v1/datasets/lake%2Freal/dates.
func NewServer(addr string, ready sharedobs.ReadinessChecker, analyzer pipeline.Analyzer, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       10 * time.Second,
			// Analyses read whole raster stacks.
			WriteTimeout: 5 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		analyzer: analyzer,
		overlay:  render.DefaultOverlayOptions(),
		logger:   logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /v1/datasets/{dataset}/dates", s.handleDates)
	mux.HandleFunc("GET /v1/datasets/{dataset}/occurrence", s.handleOccurrence)
	mux.HandleFunc("GET /v1/datasets/{dataset}/average", s.handleAverage)
	mux.HandleFunc("GET /v1/datasets/{dataset}/samples", s.handleSamples)
	mux.HandleFunc("GET /v1/datasets/{dataset}/frames/{date}/enhanced.png", s.handleEnhanced)
	mux.HandleFunc("GET /v1/datasets/{dataset}/reference.png", s.handleReference)
	mux.HandleFunc("GET /v1/waterbodies/{waterbody}/indices/samples", s.handleIndexSamples)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}
