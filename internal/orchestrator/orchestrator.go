// Package orchestrator runs the per-call pipeline: it bridges session audio
// to the model peer (or the text simulation when no peer is reachable),
// folds transcript fragments through extraction and the conversation state
// machine, executes reservation side effects, and fans call events out to
// the operator console.
//
// All mutations of a call's session flow through its [session.Queue], so the
// transcript, extracted fields, and conversation state can never be observed
// mid-update.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hostline-ai/hostline/internal/extract"
	"github.com/hostline-ai/hostline/internal/menu"
	"github.com/hostline-ai/hostline/internal/notify"
	"github.com/hostline-ai/hostline/internal/observe"
	"github.com/hostline-ai/hostline/internal/persona"
	"github.com/hostline-ai/hostline/internal/reserve"
	"github.com/hostline-ai/hostline/internal/session"
	"github.com/hostline-ai/hostline/pkg/provider/llm"
	"github.com/hostline-ai/hostline/pkg/provider/s2s"
)

// ErrNoCall is returned for call operations on a session that has no
// attached call runtime.
var ErrNoCall = errors.New("orchestrator: no active call for session")

// Config holds the orchestrator's collaborators. Registry, Extractor, and
// Reservations are required; the rest degrade gracefully when nil.
type Config struct {
	Registry     *session.Registry
	Extractor    extract.Extractor
	Reservations *reserve.Service

	// Notifier sends SMS confirmations. Nil disables notifications.
	Notifier *notify.Notifier

	// Peer dials the speech-to-speech model. Nil puts every call into
	// simulation mode.
	Peer s2s.Provider

	// Responder rewords simulated agent replies in the persona's tone.
	// Nil keeps the canned reply text.
	Responder llm.Provider

	// Menu answers menu questions in the simulation's FAQ mode. Nil keeps
	// the generic follow-up answer.
	Menu *menu.Catalog

	Restaurant persona.Restaurant
	Metrics    *observe.Metrics
	Log        *slog.Logger
}

// Orchestrator owns the set of active call runtimes, one per attached
// session. Safe for concurrent use.
type Orchestrator struct {
	registry     *session.Registry
	extractor    extract.Extractor
	reservations *reserve.Service
	notifier     *notify.Notifier
	peer         s2s.Provider
	responder    llm.Provider
	menu         *menu.Catalog
	metrics      *observe.Metrics
	log          *slog.Logger

	// peerDown flips when a peer dial fails or a bridge drops, and clears
	// on the next successful dial.
	peerDown atomic.Bool

	mu         sync.RWMutex
	restaurant persona.Restaurant
	calls      map[string]*Call
}

// New creates an Orchestrator. Panics when a required collaborator is
// missing, since that is a wiring bug rather than a runtime condition.
func New(cfg Config) *Orchestrator {
	if cfg.Registry == nil || cfg.Extractor == nil || cfg.Reservations == nil {
		panic("orchestrator: Registry, Extractor, and Reservations are required")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Orchestrator{
		registry:     cfg.Registry,
		extractor:    cfg.Extractor,
		reservations: cfg.Reservations,
		notifier:     cfg.Notifier,
		peer:         cfg.Peer,
		responder:    cfg.Responder,
		menu:         cfg.Menu,
		metrics:      cfg.Metrics,
		log:          cfg.Log,
		restaurant:   cfg.Restaurant,
		calls:        make(map[string]*Call),
	}
}

// Restaurant returns the venue details currently used for prompts and FAQ
// answers.
func (o *Orchestrator) Restaurant() persona.Restaurant {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.restaurant
}

// UpdateRestaurant swaps the venue details, e.g. after a config reload.
// Existing live bridges receive a refreshed prompt on their next config
// update; new calls pick the details up immediately.
func (o *Orchestrator) UpdateRestaurant(r persona.Restaurant) {
	o.mu.Lock()
	o.restaurant = r
	o.mu.Unlock()
}

// Attach creates the call runtime for sess: it dials the model peer (falling
// back to simulation when the dial fails or no peer is configured), starts
// the relay pumps, and registers the call for lookup. At most one call may
// be attached per session.
func (o *Orchestrator) Attach(ctx context.Context, sess *session.Session) (*Call, error) {
	o.mu.Lock()
	if _, ok := o.calls[sess.ID]; ok {
		o.mu.Unlock()
		return nil, fmt.Errorf("orchestrator: session %s already has a call", sess.ID)
	}
	restaurant := o.restaurant
	o.mu.Unlock()

	call := newCall(o, sess)

	if o.peer != nil {
		prompt := persona.BuildSystemPrompt(sess.Persona(), restaurant, sess.Facts())
		start := time.Now()
		handle, err := o.peer.Connect(ctx, s2s.SessionConfig{
			Instructions: prompt,
			VoiceID:      sess.VoiceID(),
		})
		o.metrics.PeerConnectDuration.Record(ctx, time.Since(start).Seconds())
		if err != nil {
			o.peerDown.Store(true)
			o.metrics.PeerErrors.Add(ctx, 1)
			o.log.Warn("model peer unreachable, simulating call",
				"session_id", sess.ID, "error", err)
		} else {
			o.peerDown.Store(false)
			call.bridge = handle
			o.metrics.LiveBridges.Add(ctx, 1)
		}
	}

	if call.bridge != nil {
		sess.SetMode(session.ModeLive)
	} else {
		sess.SetMode(session.ModeSimulation)
	}
	call.start()

	o.mu.Lock()
	o.calls[sess.ID] = call
	o.mu.Unlock()
	o.metrics.ActiveSessions.Add(ctx, 1)

	o.log.Info("call attached",
		"session_id", sess.ID, "mode", sess.Mode(), "persona", sess.Persona())
	return call, nil
}

// Call returns the runtime attached to session id.
func (o *Orchestrator) Call(id string) (*Call, error) {
	o.mu.RLock()
	call, ok := o.calls[id]
	o.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoCall, id)
	}
	return call, nil
}

// Detach stops the call runtime for session id and releases its resources.
// The session itself survives in the registry so the console can still
// render the finished call.
func (o *Orchestrator) Detach(ctx context.Context, id string) error {
	o.mu.Lock()
	call, ok := o.calls[id]
	delete(o.calls, id)
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoCall, id)
	}

	live := call.sess.Mode() == session.ModeLive
	call.close()
	o.metrics.ActiveSessions.Add(ctx, -1)
	if live {
		o.metrics.LiveBridges.Add(ctx, -1)
	}
	o.log.Info("call detached", "session_id", id)
	return nil
}

// SetPersona switches the session's persona, returns the voice that now
// applies, and pushes the rebuilt prompt to the live bridge when one exists.
func (o *Orchestrator) SetPersona(id, key string) (string, error) {
	if !persona.Valid(key) {
		return "", fmt.Errorf("orchestrator: unknown persona %q", key)
	}
	voice, err := o.registry.UpdatePersona(id, key)
	if err != nil {
		return "", fmt.Errorf("orchestrator: set persona: %w", err)
	}
	if call, callErr := o.Call(id); callErr == nil {
		call.personaChanged(key, voice)
	}
	return voice, nil
}

// SetVoice switches the session's voice and pushes it to the live bridge
// when one exists.
func (o *Orchestrator) SetVoice(id, voiceID string) error {
	if !persona.ValidVoice(voiceID) {
		return fmt.Errorf("orchestrator: unknown voice %q", voiceID)
	}
	if err := o.registry.UpdateVoice(id, voiceID); err != nil {
		return fmt.Errorf("orchestrator: set voice: %w", err)
	}
	if call, err := o.Call(id); err == nil {
		call.voiceChanged(voiceID)
	}
	return nil
}

// LiveCalls reports how many attached calls currently hold a live bridge.
func (o *Orchestrator) LiveCalls() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	n := 0
	for _, c := range o.calls {
		if c.sess.Mode() == session.ModeLive {
			n++
		}
	}
	return n
}

// ActiveCalls reports how many call runtimes are attached.
func (o *Orchestrator) ActiveCalls() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.calls)
}

// PeerConfigured reports whether a model peer provider is wired at all.
func (o *Orchestrator) PeerConfigured() bool { return o.peer != nil }

// PeerHealthy reports whether the model peer is believed reachable: a peer
// is configured and the most recent dial attempt did not fail. With no dial
// attempted yet the configured peer is assumed healthy.
func (o *Orchestrator) PeerHealthy() bool {
	return o.peer != nil && !o.peerDown.Load()
}

// RunReaper periodically removes sessions idle past the registry's timeout
// and tears down their call runtimes. Call it from a goroutine at startup;
// it returns when ctx is cancelled.
func (o *Orchestrator) RunReaper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.reapIdle(ctx)
		}
	}
}

// reapIdle removes idle sessions and detaches whatever call runtimes they
// still hold, so queue goroutines, bridges, and channels do not outlive the
// session.
func (o *Orchestrator) reapIdle(ctx context.Context) {
	for _, id := range o.registry.Reap() {
		if err := o.Detach(ctx, id); err != nil && !errors.Is(err, ErrNoCall) {
			o.log.Warn("reaped session detach failed", "session_id", id, "error", err)
		}
	}
}
