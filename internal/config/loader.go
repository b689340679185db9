package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/hostline-ai/hostline/internal/persona"
)

// ValidLLMProviders lists known chat-completion backend names.
// Used by [Validate] to warn about unrecognised provider names.
var ValidLLMProviders = []string{
	"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Peer
	if !cfg.Peer.Enabled() {
		slog.Warn("peer.url is empty; every call will run in simulation mode")
	}
	if cfg.Peer.DialTimeout < 0 {
		errs = append(errs, fmt.Errorf("peer.dial_timeout %v must not be negative", cfg.Peer.DialTimeout))
	}

	// Sessions
	if p := cfg.Sessions.DefaultPersona; p != "" && !persona.Valid(p) {
		errs = append(errs, fmt.Errorf("sessions.default_persona %q is not a known persona", p))
	}
	if cfg.Sessions.MaxSessions < 0 {
		errs = append(errs, fmt.Errorf("sessions.max_sessions %d must not be negative", cfg.Sessions.MaxSessions))
	}

	// Reservations
	if b := cfg.Reservations.Backend; b != "" && !b.IsValid() {
		errs = append(errs, fmt.Errorf("reservations.backend %q is invalid; valid values: memory, postgres", b))
	}
	if cfg.Reservations.Backend == BackendPostgres && cfg.Reservations.PostgresDSN == "" {
		errs = append(errs, errors.New("reservations.postgres_dsn is required when reservations.backend is postgres"))
	}
	for i, tbl := range cfg.Reservations.Tables {
		prefix := fmt.Sprintf("reservations.tables[%d]", i)
		if tbl.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		}
		if tbl.Capacity <= 0 {
			errs = append(errs, fmt.Errorf("%s.capacity %d must be positive", prefix, tbl.Capacity))
		}
	}

	// SMS: a partially filled block is almost certainly a mistake.
	if s := cfg.SMS; !s.Enabled() && (s.AccountSID != "" || s.AuthToken != "" || s.From != "") {
		errs = append(errs, errors.New("sms requires account_sid, auth_token, and from together (or none of them)"))
	}

	// Extraction
	if e := cfg.Extraction.Backend; e != "" && !e.IsValid() {
		errs = append(errs, fmt.Errorf("extraction.backend %q is invalid; valid values: rules, llm", e))
	}
	if cfg.Extraction.Backend == ExtractionLLM {
		if cfg.Extraction.LLM.Provider == "" {
			errs = append(errs, errors.New("extraction.llm.provider is required when extraction.backend is llm"))
		} else {
			validateLLMProvider(cfg.Extraction.LLM.Provider)
		}
		if cfg.Extraction.LLM.Model == "" {
			errs = append(errs, errors.New("extraction.llm.model is required when extraction.backend is llm"))
		}
	}

	return errors.Join(errs...)
}

// validateLLMProvider logs a warning if name is not found in
// [ValidLLMProviders].
func validateLLMProvider(name string) {
	if slices.Contains(ValidLLMProviders, name) {
		return
	}
	slog.Warn("unknown LLM provider name; may be a typo or third-party provider",
		"name", name,
		"known", ValidLLMProviders,
	)
}
