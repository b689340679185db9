package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/cors"

	"github.com/hostline-ai/hostline/internal/health"
	"github.com/hostline-ai/hostline/internal/menu"
	"github.com/hostline-ai/hostline/internal/observe"
	"github.com/hostline-ai/hostline/internal/orchestrator"
	"github.com/hostline-ai/hostline/internal/reserve"
	"github.com/hostline-ai/hostline/internal/session"
)

// Config holds the gateway's collaborators and listen settings.
type Config struct {
	// ListenAddr is the address the HTTP server binds, e.g. ":8080".
	ListenAddr string

	// CORSOrigins lists the origins allowed on the REST API and accepted
	// for WebSocket upgrades. Empty allows any origin.
	CORSOrigins []string

	// TLSCertFile and TLSKeyFile enable TLS when both are set.
	TLSCertFile string
	TLSKeyFile  string

	Orchestrator *orchestrator.Orchestrator
	Registry     *session.Registry
	Reservations *reserve.Service

	// Menu serves the /api/menu endpoints. Nil skips them.
	Menu *menu.Catalog

	// Health serves /healthz, /readyz, and /statusz. Nil skips them.
	Health *health.Handler

	Metrics *observe.Metrics
	Log     *slog.Logger
}

// Server is the Hostline HTTP and WebSocket front end.
type Server struct {
	cfg     Config
	orch    *orchestrator.Orchestrator
	log     *slog.Logger
	handler http.Handler
	srv     *http.Server
}

// New builds the gateway. Orchestrator, Registry, and Reservations are
// required.
func New(cfg Config) (*Server, error) {
	if cfg.Orchestrator == nil || cfg.Registry == nil || cfg.Reservations == nil {
		return nil, fmt.Errorf("gateway: Orchestrator, Registry, and Reservations are required")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}

	s := &Server{cfg: cfg, orch: cfg.Orchestrator, log: cfg.Log}

	mux := http.NewServeMux()
	s.routes(mux)

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	})

	s.handler = c.Handler(observe.Middleware(cfg.Metrics)(mux))
	s.srv = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: s.handler,
		// Read and write deadlines stay unset: session sockets are held
		// open for the length of a phone call.
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

// Handler returns the fully wrapped HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.handler }

// ListenAndServe runs the server until Shutdown or a listener error. Uses
// TLS when a cert and key were configured.
func (s *Server) ListenAndServe() error {
	s.log.Info("gateway listening",
		"addr", s.cfg.ListenAddr, "tls", s.cfg.TLSCertFile != "")
	if s.cfg.TLSCertFile != "" && s.cfg.TLSKeyFile != "" {
		return s.srv.ListenAndServeTLS(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
	}
	return s.srv.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
