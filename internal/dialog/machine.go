// Package dialog implements the deterministic conversation state machine
// that tracks a call's progress toward a completed reservation.
//
// The machine is driven exclusively by extraction output and by availability
// results — never by elapsed time. It is deliberately free of I/O so the
// whole transition table can be exercised in unit tests.
package dialog

import (
	"sync"

	"github.com/hostline-ai/hostline/internal/session"
)

// Input carries the per-utterance cues that drive transitions. It is derived
// from the extractor's output for the utterance that was just merged.
type Input struct {
	// Intent is the currently classified intent, "" when none yet.
	Intent session.Intent

	// FieldsComplete is true when all four required reservation fields are
	// present.
	FieldsComplete bool

	// Question is true when the utterance asks a question about the
	// restaurant (hours, parking, menu, …) rather than progressing the flow.
	Question bool

	// Affirmative is true when the utterance is an explicit yes/confirmation.
	Affirmative bool

	// SlotAccepted is true when the caller accepts an offered alternative
	// slot, either affirmatively or by naming one.
	SlotAccepted bool
}

// Machine holds the conversation state for one session, including the state
// remembered before an FAQ interruption. Safe for concurrent use, though in
// practice all calls arrive on the session's single mutator goroutine.
type Machine struct {
	mu     sync.Mutex
	state  session.State
	resume session.State
}

// New creates a machine in the greeting state.
func New() *Machine {
	return &Machine{state: session.StateGreeting}
}

// Restore creates a machine at a known position, e.g. when rebuilding from a
// session snapshot.
func Restore(state, resume session.State) *Machine {
	if !state.IsValid() {
		state = session.StateGreeting
	}
	return &Machine{state: state, resume: resume}
}

// State returns the current conversation state.
func (m *Machine) State() session.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ResumeState returns the state the machine will restore to when the current
// FAQ interruption is answered, or "" when none is pending.
func (m *Machine) ResumeState() session.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resume
}

// Advance applies in to the machine and returns the resulting state and
// whether it changed. A single utterance may satisfy several conditions in
// sequence (e.g. a first utterance with a reserve intent moves greeting →
// identify_intent → collecting_reservation); each condition fires at most
// once. Availability outcomes are applied separately via
// [Machine.ResolveAvailability], so Advance never leaves
// checking_availability on its own.
func (m *Machine) Advance(in Input) (session.State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := m.state
	// The transition table is strictly forward-moving apart from the FAQ
	// restore, so one pass per rule bounds the cascade.
	for range 4 {
		if !m.step(in) {
			break
		}
	}
	return m.state, m.state != start
}

// step applies the highest-priority satisfied rule, returning true when a
// transition fired. Must be called with m.mu held.
func (m *Machine) step(in Input) bool {
	if m.state.IsTerminal() {
		return false
	}

	// FAQ interruption: from any state, remember where we were so the
	// conversation can pick up exactly where it left off.
	if in.Question && m.state != session.StateFAQMode {
		// Greeting is not worth returning to; restoreLocked falls forward to
		// identify_intent instead.
		if m.state != session.StateGreeting {
			m.resume = m.state
		}
		m.state = session.StateFAQMode
		return true
	}

	// Mid-call intent reclassification pulls the conversation into the
	// matching flow from any non-terminal state.
	switch in.Intent {
	case session.IntentModify:
		if m.state != session.StateModifyFlow && m.state != session.StateFAQMode {
			m.state = session.StateModifyFlow
			return true
		}
	case session.IntentCancel:
		if m.state != session.StateCancelFlow && m.state != session.StateFAQMode {
			m.state = session.StateCancelFlow
			return true
		}
	case session.IntentWaitlist:
		if m.state != session.StateWaitlistFlow && m.state != session.StateFAQMode {
			m.state = session.StateWaitlistFlow
			return true
		}
	}

	switch m.state {
	case session.StateFAQMode:
		// A non-question utterance means the interruption is over; restore
		// the exact pre-interruption state.
		if !in.Question {
			m.restoreLocked()
			return true
		}

	case session.StateGreeting:
		if in.Intent != "" {
			m.state = session.StateIdentifyIntent
			return true
		}

	case session.StateIdentifyIntent:
		if in.Intent == session.IntentReserve && !in.FieldsComplete {
			m.state = session.StateCollectingReservation
			return true
		}
		if in.Intent == session.IntentReserve && in.FieldsComplete {
			m.state = session.StateCheckingAvailability
			return true
		}
		if in.Intent == session.IntentFAQ {
			m.resume = session.StateIdentifyIntent
			m.state = session.StateFAQMode
			return true
		}

	case session.StateCollectingReservation:
		if in.FieldsComplete {
			m.state = session.StateCheckingAvailability
			return true
		}

	case session.StateOfferingAlternatives:
		if in.SlotAccepted || in.Affirmative {
			m.state = session.StateConfirming
			return true
		}

	case session.StateConfirming:
		if in.Affirmative && in.FieldsComplete {
			m.state = session.StateComplete
			return true
		}
	}

	return false
}

// ResolveAvailability applies the availability collaborator's result. Only
// meaningful in checking_availability: an available slot moves to confirming,
// an unavailable one to offering_alternatives. Returns the resulting state
// and whether it changed.
func (m *Machine) ResolveAvailability(available bool) (session.State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != session.StateCheckingAvailability {
		return m.state, false
	}
	if available {
		m.state = session.StateConfirming
	} else {
		m.state = session.StateOfferingAlternatives
	}
	return m.state, true
}

// Confirm applies an explicit confirmation action (control message). The
// reservation completes only from confirming and only when the required
// fields are all present.
func (m *Machine) Confirm(fieldsComplete bool) (session.State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != session.StateConfirming || !fieldsComplete {
		return m.state, false
	}
	m.state = session.StateComplete
	return m.state, true
}

// FAQAnswered restores the pre-interruption state after the agent has
// delivered an answer. No-op outside faq_mode.
func (m *Machine) FAQAnswered() (session.State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != session.StateFAQMode {
		return m.state, false
	}
	m.restoreLocked()
	return m.state, true
}

// restoreLocked pops the remembered state. A pending interruption with no
// remembered state (a call that opened with a question) resumes at
// identify_intent rather than re-greeting the caller.
func (m *Machine) restoreLocked() {
	if m.resume != "" {
		m.state = m.resume
	} else {
		m.state = session.StateIdentifyIntent
	}
	m.resume = ""
}
