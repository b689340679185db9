package orchestrator

import "github.com/hostline-ai/hostline/internal/session"

// EventKind identifies the type of a client-facing event.
type EventKind string

const (
	// EventTranscript carries one merged transcript turn.
	EventTranscript EventKind = "transcript"

	// EventExtraction carries the updated field snapshot after an
	// extraction pass.
	EventExtraction EventKind = "extraction"

	// EventState announces a conversation state transition.
	EventState EventKind = "state"

	// EventSpeaking carries the duplex speaking indicators.
	EventSpeaking EventKind = "speaking"

	// EventFacts announces the updated operator fact list.
	EventFacts EventKind = "facts_updated"

	// EventPersona announces a persona switch and the voice that now
	// applies.
	EventPersona EventKind = "persona_updated"

	// EventVoice announces a voice switch.
	EventVoice EventKind = "voice_updated"

	// EventTranscriptCleared announces that the transcript was wiped.
	EventTranscriptCleared EventKind = "transcript_cleared"

	// EventExtractionReset announces that extraction state was reset.
	EventExtractionReset EventKind = "extraction_reset"

	// EventInfo carries an informational message for the console.
	EventInfo EventKind = "info"

	// EventError carries a non-fatal error message for the console.
	EventError EventKind = "error"
)

// Event is one client-facing notification from a call. Only the fields
// relevant to Kind are populated.
type Event struct {
	Kind EventKind

	// Entry is set for EventTranscript.
	Entry session.TranscriptEntry

	// Fields and Missing are set for EventExtraction.
	Fields  session.Fields
	Missing []string

	// State is set for EventState.
	State session.State

	// UserSpeaking and AgentSpeaking are set for EventSpeaking.
	UserSpeaking  bool
	AgentSpeaking bool

	// Facts is set for EventFacts.
	Facts []string

	// Persona and Voice are set for EventPersona and EventVoice.
	Persona string
	Voice   string

	// Message is set for EventInfo and EventError.
	Message string
}
