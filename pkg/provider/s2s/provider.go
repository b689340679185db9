// Package s2s defines the Provider interface for speech-to-speech backends.
//
// An s2s provider wraps a real-time voice model that accepts raw caller
// audio and returns synthesised agent speech in a single stateful session,
// with no separate STT → LLM → TTS pipeline. The central abstraction is
// [SessionHandle]: a bidirectional, multiplexed connection carrying audio
// one way and audio, transcripts, and speaking indicators the other.
// Sessions are long-lived (a whole phone call) and support mid-session
// reconfiguration for persona and voice changes.
//
// All implementations must be safe for concurrent use.
package s2s

import "context"

// SessionConfig is the configuration for an s2s session. It is sent once on
// connect and again on every mid-session update.
type SessionConfig struct {
	// Instructions is the system-level prompt defining the agent's persona,
	// venue knowledge, and behavioural constraints.
	Instructions string

	// VoiceID selects the voice embedding for synthesised speech.
	VoiceID string
}

// EventType classifies the non-audio events a session emits.
type EventType int

const (
	// EventTranscript carries recognised caller speech or generated agent
	// speech as text.
	EventTranscript EventType = iota

	// EventSpeaking carries the current speaking indicators for both sides.
	EventSpeaking
)

// Event is a non-audio message from the model.
type Event struct {
	Type EventType

	// Speaker and Text are set for EventTranscript. Speaker is "user" or
	// "agent".
	Speaker string
	Text    string

	// AgentSpeaking and UserSpeaking are set for EventSpeaking.
	AgentSpeaking bool
	UserSpeaking  bool
}

// SessionHandle represents an open s2s session. It is an interface so test
// code can supply mock implementations without a live model connection.
//
// The session is the hot path of the call — every method must return
// quickly. Audio I/O is channel-based so the relay's pumps never block on
// provider internals. All methods must be safe for concurrent use.
//
// Callers must call Close when the session is no longer needed.
type SessionHandle interface {
	// SendAudio delivers a raw PCM chunk of caller audio to the model.
	// Returns an error if the session is closed or the connection failed.
	SendAudio(chunk []byte) error

	// Audio returns a read-only channel emitting raw PCM chunks of agent
	// speech. The channel is closed when the session ends or a mid-stream
	// error occurs; check [SessionHandle.Err] afterwards. Consumers must
	// drain promptly to keep the receive loop moving.
	Audio() <-chan []byte

	// Events returns a read-only channel emitting transcripts and speaking
	// indicators. Closed together with Audio.
	Events() <-chan Event

	// Err returns the error that closed the channels prematurely, or nil
	// when the session ended cleanly.
	Err() error

	// UpdateConfig replaces the instructions and voice mid-session,
	// effective for the model's next turn. Used for persona switches and
	// fact injection.
	UpdateConfig(cfg SessionConfig) error

	// Close terminates the session and closes the Audio and Events
	// channels. Calling Close more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any s2s backend.
//
// Implementations must be safe for concurrent use; the orchestrator opens
// one session per active call.
type Provider interface {
	// Connect establishes a new session. The returned handle is ready to
	// accept audio immediately. The caller owns the handle and must call
	// Close.
	Connect(ctx context.Context, cfg SessionConfig) (SessionHandle, error)
}
