// Package gateway exposes Hostline's client surface: the REST API for
// session and reservation management and the per-session WebSocket that
// carries caller audio, control messages, and live call events.
package gateway

import (
	"time"

	"github.com/hostline-ai/hostline/internal/orchestrator"
	"github.com/hostline-ai/hostline/internal/session"
)

// Server-to-client frame types. Audio travels as binary WebSocket frames;
// everything else is a JSON text frame with a "type" discriminator.
const (
	frameSession           = "session"
	frameTranscript        = "transcript"
	frameExtraction        = "extraction"
	frameState             = "state"
	frameSpeaking          = "speaking"
	frameFactsUpdated      = "facts_updated"
	framePersonaUpdated    = "persona_updated"
	frameVoiceUpdated      = "voice_updated"
	frameTranscriptCleared = "transcript_cleared"
	frameExtractionReset   = "extraction_reset"
	frameInfo              = "info"
	frameError             = "error"
)

// Frame is one server-to-client JSON message. Only the fields relevant to
// Type are populated.
type Frame struct {
	Type string `json:"type"`

	// Session carries the full snapshot sent once on connect.
	Session *session.Snapshot `json:"session,omitempty"`

	// Transcript frames.
	Speaker   string     `json:"speaker,omitempty"`
	Text      string     `json:"text,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`

	// Extraction frames.
	Data          *session.Fields `json:"data,omitempty"`
	MissingFields []string        `json:"missing_fields,omitempty"`

	// State frames.
	State session.State `json:"state,omitempty"`

	// Speaking frames.
	UserSpeaking  bool `json:"user_speaking,omitempty"`
	AgentSpeaking bool `json:"agent_speaking,omitempty"`

	// Fact, persona, and voice update frames.
	Facts   []string `json:"facts,omitempty"`
	Persona string   `json:"persona,omitempty"`
	VoiceID string   `json:"voice_id,omitempty"`

	// Info and error frames.
	Message string `json:"message,omitempty"`
}

// Client-to-server control messages. Session controls carry an "action"
// key; conversation input carries a "type" key.
const (
	controlInjectFact = "inject_fact"
	controlSetPersona = "set_persona"
	controlSetVoice   = "set_voice"
	controlConfirm    = "confirm"

	controlTextInput       = "text_input"
	controlClearTranscript = "clear_transcript"
	controlResetExtraction = "reset_extraction"
)

// controlMessage is one client-to-server JSON message on the session socket.
type controlMessage struct {
	Action  string `json:"action,omitempty"`
	Type    string `json:"type,omitempty"`
	Fact    string `json:"fact,omitempty"`
	Persona string `json:"persona,omitempty"`
	VoiceID string `json:"voice_id,omitempty"`
	Text    string `json:"text,omitempty"`
}

// frameFromEvent translates an orchestrator event into its wire frame.
func frameFromEvent(ev orchestrator.Event) Frame {
	switch ev.Kind {
	case orchestrator.EventTranscript:
		ts := ev.Entry.Timestamp
		return Frame{
			Type:      frameTranscript,
			Speaker:   string(ev.Entry.Speaker),
			Text:      ev.Entry.Text,
			Timestamp: &ts,
		}
	case orchestrator.EventExtraction:
		fields := ev.Fields
		return Frame{
			Type:          frameExtraction,
			Data:          &fields,
			MissingFields: ev.Missing,
		}
	case orchestrator.EventState:
		return Frame{Type: frameState, State: ev.State}
	case orchestrator.EventSpeaking:
		return Frame{Type: frameSpeaking, UserSpeaking: ev.UserSpeaking, AgentSpeaking: ev.AgentSpeaking}
	case orchestrator.EventFacts:
		return Frame{Type: frameFactsUpdated, Facts: ev.Facts}
	case orchestrator.EventPersona:
		return Frame{Type: framePersonaUpdated, Persona: ev.Persona, VoiceID: ev.Voice}
	case orchestrator.EventVoice:
		return Frame{Type: frameVoiceUpdated, VoiceID: ev.Voice}
	case orchestrator.EventTranscriptCleared:
		return Frame{Type: frameTranscriptCleared}
	case orchestrator.EventExtractionReset:
		return Frame{Type: frameExtractionReset}
	case orchestrator.EventError:
		return Frame{Type: frameError, Message: ev.Message}
	default:
		return Frame{Type: frameInfo, Message: ev.Message}
	}
}
