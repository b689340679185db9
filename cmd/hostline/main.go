// Command hostline is the Hostline voice receptionist server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/hostline-ai/hostline/internal/config"
	"github.com/hostline-ai/hostline/internal/extract"
	"github.com/hostline-ai/hostline/internal/gateway"
	"github.com/hostline-ai/hostline/internal/health"
	"github.com/hostline-ai/hostline/internal/menu"
	"github.com/hostline-ai/hostline/internal/notify"
	"github.com/hostline-ai/hostline/internal/observe"
	"github.com/hostline-ai/hostline/internal/orchestrator"
	"github.com/hostline-ai/hostline/internal/persona"
	"github.com/hostline-ai/hostline/internal/reserve"
	"github.com/hostline-ai/hostline/internal/resilience"
	"github.com/hostline-ai/hostline/internal/session"
	"github.com/hostline-ai/hostline/pkg/provider/llm"
	"github.com/hostline-ai/hostline/pkg/provider/llm/anyllm"
	"github.com/hostline-ai/hostline/pkg/provider/s2s"
	"github.com/hostline-ai/hostline/pkg/provider/s2s/personaplex"
)

// reaperInterval is how often idle sessions are swept.
const reaperInterval = time.Minute

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "hostline: config file %q not found (copy configs/example.yaml to get started)\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "hostline: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("hostline starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownOtel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "hostline",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics := observe.DefaultMetrics()

	// ── Reservation store ─────────────────────────────────────────────────────
	var (
		store reserve.Store
		pg    *reserve.Postgres
	)
	switch cfg.Reservations.Backend {
	case config.BackendPostgres:
		pg, err = reserve.NewPostgres(ctx, cfg.Reservations.PostgresDSN)
		if err != nil {
			slog.Error("failed to connect to postgres", "err", err)
			return 1
		}
		if len(cfg.Reservations.Tables) > 0 {
			if err := pg.SeedTables(ctx, "1", cfg.Reservations.Tables); err != nil {
				slog.Error("failed to seed tables", "err", err)
				return 1
			}
		}
		store = pg
		slog.Info("reservation store ready", "backend", "postgres")
	default:
		tables := cfg.Reservations.Tables
		if len(tables) == 0 {
			tables = reserve.DefaultLayout()
		}
		store = reserve.NewMemory(tables)
		slog.Info("reservation store ready", "backend", "memory", "tables", len(tables))
	}
	reservations := reserve.NewService(store)

	// ── Extractor ─────────────────────────────────────────────────────────────
	extractor, model, err := buildExtractor(cfg)
	if err != nil {
		slog.Error("failed to build extractor", "err", err)
		return 1
	}

	// ── SMS ───────────────────────────────────────────────────────────────────
	var sender notify.Sender
	if cfg.SMS.Enabled() {
		sender = notify.NewTwilio(cfg.SMS)
		slog.Info("sms notifications enabled", "from", cfg.SMS.From)
	} else {
		sender = &notify.Logged{Log: logger}
		slog.Info("sms notifications disabled, logging instead")
	}
	notifier := notify.New(sender)

	// ── Model peer ────────────────────────────────────────────────────────────
	var peer s2s.Provider
	if cfg.Peer.Enabled() {
		pp, err := personaplex.New(personaplex.Config{
			URL:                cfg.Peer.URL,
			InsecureSkipVerify: cfg.Peer.InsecureSkipVerify,
			DialTimeout:        cfg.Peer.DialTimeout,
			Log:                logger,
		})
		if err != nil {
			slog.Error("invalid peer config", "err", err)
			return 1
		}
		peer = pp
	} else {
		slog.Warn("no model peer configured — every call will run in simulation mode")
	}

	// ── Sessions and orchestrator ─────────────────────────────────────────────
	voices := make(map[string]string)
	for _, p := range persona.All() {
		voices[p.Key] = p.DefaultVoice
	}
	registry := session.NewRegistry(session.RegistryConfig{
		DefaultPersona: cfg.Sessions.DefaultPersona,
		DefaultVoice:   persona.DefaultVoiceFor(cfg.Sessions.DefaultPersona),
		PersonaVoices:  voices,
		MaxSessions:    cfg.Sessions.MaxSessions,
		IdleTimeout:    cfg.Sessions.IdleTimeout,
	})
	menuCatalog := menu.New(cfg.Menu)
	orch := orchestrator.New(orchestrator.Config{
		Registry:     registry,
		Extractor:    extractor,
		Reservations: reservations,
		Notifier:     notifier,
		Peer:         peer,
		Responder:    model,
		Menu:         menuCatalog,
		Restaurant:   cfg.Restaurant,
		Metrics:      metrics,
		Log:          logger,
	})
	go orch.RunReaper(ctx, reaperInterval)

	// ── Health ────────────────────────────────────────────────────────────────
	var checkers []health.Checker
	if pg != nil {
		checkers = append(checkers, health.Checker{Name: "postgres", Check: pg.Ping})
	}
	h := health.New(checkers...)
	h.SetStatusFunc(func() health.Status {
		return health.Status{
			PeerConnected:  orch.PeerHealthy(),
			ActiveSessions: orch.ActiveCalls(),
		}
	})

	// ── Gateway ───────────────────────────────────────────────────────────────
	gwCfg := gateway.Config{
		ListenAddr:   cfg.Server.ListenAddr,
		CORSOrigins:  cfg.Server.CORSOrigins,
		Orchestrator: orch,
		Registry:     registry,
		Reservations: reservations,
		Menu:         menuCatalog,
		Health:       h,
		Metrics:      metrics,
		Log:          logger,
	}
	if cfg.Server.TLS != nil {
		gwCfg.TLSCertFile = cfg.Server.TLS.CertFile
		gwCfg.TLSKeyFile = cfg.Server.TLS.KeyFile
	}
	gw, err := gateway.New(gwCfg)
	if err != nil {
		slog.Error("failed to build gateway", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, updated *config.Config) {
		diff := config.Diff(old, updated)
		if diff.LogLevelChanged {
			slog.SetDefault(newLogger(diff.NewLogLevel))
			slog.Info("log level changed", "level", diff.NewLogLevel)
		}
		if diff.RestaurantChanged {
			orch.UpdateRestaurant(updated.Restaurant)
			slog.Info("restaurant details reloaded", "name", updated.Restaurant.Name)
		}
	})
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	errCh := make(chan error, 1)
	go func() { errCh <- gw.ListenAndServe() }()

	slog.Info("server ready — press Ctrl+C to shut down")

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("listener error", "err", err)
			return 1
		}
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := gw.Shutdown(shutdownCtx); err != nil {
		slog.Warn("gateway shutdown error", "err", err)
	}
	for _, sess := range registry.Active() {
		if err := orch.Detach(shutdownCtx, sess.ID); err != nil {
			slog.Debug("detach on shutdown", "session_id", sess.ID, "err", err)
		}
	}
	if pg != nil {
		pg.Close()
	}
	if err := shutdownOtel(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return 0
}

// buildExtractor assembles the extraction chain: rules only, or the LLM
// extractor with the rule-based one as circuit-broken fallback. The second
// return is the completion backend, shared with the simulation responder;
// nil in rules-only mode.
func buildExtractor(cfg *config.Config) (extract.Extractor, llm.Provider, error) {
	rules := extract.NewRules()
	if cfg.Extraction.Backend != config.ExtractionLLM {
		return rules, nil, nil
	}

	var opts []anyllmlib.Option
	if cfg.Extraction.LLM.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(cfg.Extraction.LLM.APIKey))
	}
	if cfg.Extraction.LLM.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(cfg.Extraction.LLM.BaseURL))
	}
	provider, err := anyllm.New(cfg.Extraction.LLM.Provider, cfg.Extraction.LLM.Model, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("create llm provider %q: %w", cfg.Extraction.LLM.Provider, err)
	}

	chain := resilience.NewExtractorFallback(extract.NewLLM(provider), "llm", resilience.FallbackConfig{})
	chain.AddFallback("rules", rules)
	slog.Info("extraction chain ready",
		"primary", cfg.Extraction.LLM.Provider, "model", cfg.Extraction.LLM.Model)
	return chain, provider, nil
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         Hostline — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	fmt.Printf("║  Restaurant      : %-19s║\n", trunc(cfg.Restaurant.Name, 19))
	if cfg.Peer.Enabled() {
		fmt.Printf("║  Model peer      : %-19s║\n", trunc(cfg.Peer.URL, 19))
	} else {
		fmt.Printf("║  Model peer      : %-19s║\n", "(simulation)")
	}
	fmt.Printf("║  Reservations    : %-19s║\n", backendName(cfg.Reservations.Backend))
	fmt.Printf("║  Extraction      : %-19s║\n", extractionName(cfg.Extraction.Backend))
	if cfg.SMS.Enabled() {
		fmt.Printf("║  SMS             : %-19s║\n", "twilio")
	} else {
		fmt.Printf("║  SMS             : %-19s║\n", "(disabled)")
	}
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func backendName(b config.ReservationBackend) string {
	if b == "" {
		return string(config.BackendMemory)
	}
	return string(b)
}

func extractionName(e config.ExtractionBackend) string {
	if e == "" {
		return string(config.ExtractionRules)
	}
	return string(e)
}

func trunc(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
