package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned for operations on an unknown session id.
	ErrNotFound = errors.New("session not found")

	// ErrEnded is returned for mutating operations on an ended session.
	// Lookups still succeed so the console can render finished calls.
	ErrEnded = errors.New("session ended")

	// ErrRegistryFull is returned when the registry cannot allocate a new
	// session because the configured capacity is exhausted.
	ErrRegistryFull = errors.New("session registry full")
)

// defaultIdleTimeout is how long an inactive session lingers before the
// reaper destroys it.
const defaultIdleTimeout = 30 * time.Minute

// RegistryConfig holds construction parameters for a [Registry].
type RegistryConfig struct {
	// DefaultPersona is assigned to new sessions (e.g. "family").
	DefaultPersona string

	// DefaultVoice is assigned to new sessions (e.g. "NATF1").
	DefaultVoice string

	// PersonaVoices maps persona names to their default voice id, used by
	// [Registry.UpdatePersona] to answer with the voice that now applies.
	PersonaVoices map[string]string

	// MaxSessions caps the number of sessions held at once. Zero means
	// unlimited.
	MaxSessions int

	// IdleTimeout is how long a session may sit without activity before the
	// reaper removes it. Zero selects the 30-minute default.
	IdleTimeout time.Duration
}

// Registry is the single writer of session existence: it allocates ids,
// hands out *Session pointers, and destroys sessions on end or idle timeout.
// All methods are safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	cfg      RegistryConfig
}

// NewRegistry creates an empty Registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.DefaultPersona == "" {
		cfg.DefaultPersona = "family"
	}
	if cfg.DefaultVoice == "" {
		cfg.DefaultVoice = "NATF1"
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	return &Registry{
		sessions: make(map[string]*Session),
		cfg:      cfg,
	}
}

// Create allocates a new session for restaurantID with the default persona,
// voice, and initial greeting state.
func (r *Registry) Create(restaurantID int) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cfg.MaxSessions > 0 && len(r.sessions) >= r.cfg.MaxSessions {
		return nil, fmt.Errorf("registry: create: %w (max %d)", ErrRegistryFull, r.cfg.MaxSessions)
	}

	// Short ids keep log lines and console URLs readable; uuid gives us the
	// entropy, the first segment gives us the brevity.
	id := uuid.NewString()[:8]
	for _, taken := r.sessions[id]; taken; _, taken = r.sessions[id] {
		id = uuid.NewString()[:8]
	}

	now := time.Now().UTC()
	sess := &Session{
		ID:           id,
		RestaurantID: restaurantID,
		CreatedAt:    now,
		persona:      r.cfg.DefaultPersona,
		voiceID:      r.cfg.DefaultVoice,
		state:        StateGreeting,
		active:       true,
		mode:         ModeSimulation, // promoted to live once the peer connects
		lastActivity: now,
	}
	r.sessions[id] = sess

	slog.Info("session created", "session_id", id, "restaurant_id", restaurantID)
	return sess, nil
}

// Get returns the session with the given id. Succeeds for ended sessions.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("registry: get %q: %w", id, ErrNotFound)
	}
	return sess, nil
}

// UpdatePersona sets the session's persona and returns the voice id that now
// applies (the persona's default voice when one is known).
func (r *Registry) UpdatePersona(id, persona string) (string, error) {
	sess, err := r.liveSession("update persona", id)
	if err != nil {
		return "", err
	}

	voice := r.cfg.PersonaVoices[persona]
	sess.SetPersona(persona, voice)
	if voice == "" {
		voice = sess.VoiceID()
	}
	return voice, nil
}

// UpdateVoice sets the session's voice selection.
func (r *Registry) UpdateVoice(id, voiceID string) error {
	sess, err := r.liveSession("update voice", id)
	if err != nil {
		return err
	}
	sess.SetVoice(voiceID)
	return nil
}

// End marks the session inactive. Ending an already-ended session is a no-op;
// ending an unknown session returns [ErrNotFound].
func (r *Registry) End(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		return fmt.Errorf("registry: end %q: %w", id, ErrNotFound)
	}
	if sess.Active() {
		sess.end()
		slog.Info("session ended", "session_id", id)
	}
	return nil
}

// Remove destroys the session entirely. Idempotent.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Active returns all sessions whose call is still in progress.
func (r *Registry) Active() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		if s.Active() {
			out = append(out, s)
		}
	}
	return out
}

// Len returns the number of sessions currently held, active or ended.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Reap removes sessions idle past the configured timeout, active or ended.
// Returns the ids of the sessions removed so the caller can release
// whatever runtime still hangs off them.
func (r *Registry) Reap() []string {
	cutoff := time.Now().Add(-r.cfg.IdleTimeout)

	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	for id, s := range r.sessions {
		if s.LastActivity().Before(cutoff) {
			if s.Active() {
				s.end()
			}
			delete(r.sessions, id)
			removed = append(removed, id)
			slog.Info("session reaped", "session_id", id)
		}
	}
	return removed
}

// liveSession looks up id and verifies the session is still active.
func (r *Registry) liveSession(op, id string) (*Session, error) {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("registry: %s %q: %w", op, id, ErrNotFound)
	}
	if !sess.Active() {
		return nil, fmt.Errorf("registry: %s %q: %w", op, id, ErrEnded)
	}
	return sess, nil
}
