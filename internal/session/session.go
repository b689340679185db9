// Package session holds the per-call conversation state for Hostline: the
// Session arena keyed by id, the transcript aggregator, and the serialized
// per-session mutation queue.
//
// A Session is owned exclusively by the [Registry]. Transport code never
// mutates a Session directly — all writes flow through the orchestrator's
// per-session [Queue] so that transcript, extracted fields, and conversation
// state stay mutually consistent. The Session's own mutex exists so that
// read-side snapshots (HTTP API, console) are safe while the single mutator
// goroutine is active.
package session

import (
	"sync"
	"time"
)

// State identifies a position in the conversation state machine.
type State string

const (
	StateGreeting              State = "greeting"
	StateIdentifyIntent        State = "identify_intent"
	StateCollectingReservation State = "collecting_reservation"
	StateCheckingAvailability  State = "checking_availability"
	StateOfferingAlternatives  State = "offering_alternatives"
	StateConfirming            State = "confirming"
	StateComplete              State = "complete"
	StateFAQMode               State = "faq_mode"
	StateModifyFlow            State = "modify_flow"
	StateCancelFlow            State = "cancel_flow"
	StateWaitlistFlow          State = "waitlist_flow"
)

// IsTerminal reports whether s is a terminal state: no further transitions
// are taken once it is reached.
func (s State) IsTerminal() bool { return s == StateComplete }

// IsValid reports whether s is a recognised conversation state.
func (s State) IsValid() bool {
	switch s {
	case StateGreeting, StateIdentifyIntent, StateCollectingReservation,
		StateCheckingAvailability, StateOfferingAlternatives, StateConfirming,
		StateComplete, StateFAQMode, StateModifyFlow, StateCancelFlow,
		StateWaitlistFlow:
		return true
	}
	return false
}

// Intent is the caller's classified high-level goal.
type Intent string

const (
	IntentReserve  Intent = "reserve"
	IntentModify   Intent = "modify"
	IntentCancel   Intent = "cancel"
	IntentFAQ      Intent = "faq"
	IntentWaitlist Intent = "waitlist"
)

// IsValid reports whether i is a recognised intent.
func (i Intent) IsValid() bool {
	switch i {
	case IntentReserve, IntentModify, IntentCancel, IntentFAQ, IntentWaitlist:
		return true
	}
	return false
}

// Speaker identifies which side of the call produced a transcript entry.
type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerAgent Speaker = "agent"
)

// Mode is the session's operating mode: bridged to a live model peer, or
// text-driven simulation when the peer is unreachable.
type Mode string

const (
	ModeLive       Mode = "live"
	ModeSimulation Mode = "simulation"
)

// TranscriptEntry is one whole conversational turn. Consecutive fragments
// from the same speaker are merged into a single entry by the aggregator;
// downstream consumers assume one entry = one turn.
type TranscriptEntry struct {
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`

	// Confidence is the recogniser's confidence in this turn's text, when
	// reported. Nil when the source does not provide one.
	Confidence *float64 `json:"confidence,omitempty"`
}

// requiredFields are the fields a reservation cannot be committed without.
var requiredFields = []string{"guest_name", "phone", "party_size", "date_time"}

// Fields is the structured information extracted incrementally from the
// transcript. Every field is nil until observed. Once set, a required field
// is only overwritten by a later observation, never silently cleared.
type Fields struct {
	GuestName        *string    `json:"guest_name"`
	Phone            *string    `json:"phone"`
	PartySize        *int       `json:"party_size"`
	DateTime         *time.Time `json:"date_time"`
	AreaPref         *string    `json:"area_pref"`
	Notes            *string    `json:"notes"`
	Intent           *Intent    `json:"intent"`
	ConfirmationCode *string    `json:"confirmation_code"`
}

// Missing returns the required reservation fields that are still nil.
// It is always recomputed — never stored — so it can never go stale.
func (f Fields) Missing() []string {
	missing := make([]string, 0, len(requiredFields))
	if f.GuestName == nil {
		missing = append(missing, "guest_name")
	}
	if f.Phone == nil {
		missing = append(missing, "phone")
	}
	if f.PartySize == nil {
		missing = append(missing, "party_size")
	}
	if f.DateTime == nil {
		missing = append(missing, "date_time")
	}
	return missing
}

// Complete reports whether all required reservation fields are present.
func (f Fields) Complete() bool { return len(f.Missing()) == 0 }

// IntentOrEmpty returns the classified intent, or "" when none has been
// observed yet.
func (f Fields) IntentOrEmpty() Intent {
	if f.Intent == nil {
		return ""
	}
	return *f.Intent
}

// Session is the state of one call. Mutable fields are protected by mu;
// logical write ordering is enforced by the per-session [Queue], so at most
// one goroutine mutates a session at a time.
type Session struct {
	// Immutable after creation.
	ID           string
	RestaurantID int
	CreatedAt    time.Time

	mu            sync.Mutex
	persona       string
	voiceID       string
	state         State
	resumeState   State // state to restore when leaving faq_mode
	extracted     Fields
	transcript    []TranscriptEntry
	facts         []string
	active        bool
	mode          Mode
	userSpeaking  bool
	agentSpeaking bool
	lastActivity  time.Time
}

// Snapshot is an immutable copy of a session's observable state, suitable
// for JSON encoding on the HTTP API and the event channel.
type Snapshot struct {
	ID            string            `json:"session_id"`
	RestaurantID  int               `json:"restaurant_id"`
	CreatedAt     time.Time         `json:"created_at"`
	Persona       string            `json:"persona_type"`
	VoiceID       string            `json:"voice_id"`
	State         State             `json:"state"`
	Extracted     Fields            `json:"extracted"`
	Transcript    []TranscriptEntry `json:"transcript"`
	Facts         []string          `json:"facts"`
	MissingFields []string          `json:"missing_fields"`
	Active        bool              `json:"is_active"`
	Mode          Mode              `json:"mode"`
	UserSpeaking  bool              `json:"user_speaking"`
	AgentSpeaking bool              `json:"agent_speaking"`
}

// Snapshot returns a deep copy of the session's observable state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	transcript := make([]TranscriptEntry, len(s.transcript))
	copy(transcript, s.transcript)
	facts := make([]string, len(s.facts))
	copy(facts, s.facts)

	return Snapshot{
		ID:            s.ID,
		RestaurantID:  s.RestaurantID,
		CreatedAt:     s.CreatedAt,
		Persona:       s.persona,
		VoiceID:       s.voiceID,
		State:         s.state,
		Extracted:     s.extracted,
		Transcript:    transcript,
		Facts:         facts,
		MissingFields: s.extracted.Missing(),
		Active:        s.active,
		Mode:          s.mode,
		UserSpeaking:  s.userSpeaking,
		AgentSpeaking: s.agentSpeaking,
	}
}

// State returns the current conversation state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetState moves the session to state and records the activity time.
func (s *Session) SetState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.lastActivity = time.Now()
}

// ResumeState returns the state remembered before the session entered
// faq_mode, or "" when none is pending.
func (s *Session) ResumeState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resumeState
}

// SetResumeState stores the state to restore when the session leaves faq_mode.
func (s *Session) SetResumeState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resumeState = state
}

// Extracted returns the current extracted-field snapshot.
func (s *Session) Extracted() Fields {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.extracted
}

// SetExtracted replaces the extracted-field snapshot.
func (s *Session) SetExtracted(f Fields) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extracted = f
	s.lastActivity = time.Now()
}

// Facts returns a copy of the accumulated fact list, in injection order.
func (s *Session) Facts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.facts))
	copy(out, s.facts)
	return out
}

// AddFact appends a fact to the session's fact list. Duplicate facts are
// ignored so repeated operator injections don't bloat the prompt context.
func (s *Session) AddFact(fact string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.facts {
		if f == fact {
			return false
		}
	}
	s.facts = append(s.facts, fact)
	s.lastActivity = time.Now()
	return true
}

// Persona returns the session's persona selection.
func (s *Session) Persona() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persona
}

// VoiceID returns the session's voice selection.
func (s *Session) VoiceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voiceID
}

// SetPersona updates the persona and voice selection together. The voice
// follows the persona's default unless the caller pins a specific voice later
// via [Session.SetVoice].
func (s *Session) SetPersona(persona, voiceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persona = persona
	if voiceID != "" {
		s.voiceID = voiceID
	}
	s.lastActivity = time.Now()
}

// SetVoice updates the voice selection.
func (s *Session) SetVoice(voiceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.voiceID = voiceID
	s.lastActivity = time.Now()
}

// Mode returns the session's operating mode.
func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetMode records whether the session is bridged live or simulated.
func (s *Session) SetMode(mode Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
}

// Active reports whether the call is still in progress.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// SetSpeaking updates the duplex speaking flags.
func (s *Session) SetSpeaking(user, agent bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userSpeaking = user
	s.agentSpeaking = agent
	s.lastActivity = time.Now()
}

// Speaking returns the duplex speaking flags (user, agent).
func (s *Session) Speaking() (bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userSpeaking, s.agentSpeaking
}

// ClearTranscript drops all transcript entries. Used by the operator console.
func (s *Session) ClearTranscript() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = nil
}

// ResetExtraction clears the extracted fields and returns the conversation to
// the greeting state. Used by the operator console.
func (s *Session) ResetExtraction() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extracted = Fields{}
	s.state = StateGreeting
	s.resumeState = ""
}

// LastActivity returns the time of the most recent mutation.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// end marks the session inactive. Called by the registry only.
func (s *Session) end() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
	s.userSpeaking = false
	s.agentSpeaking = false
}
