// Package extract turns the evolving call transcript into structured
// reservation fields.
//
// The central abstraction is [Extractor]: a logically pure function from
// (prior fields, transcript, facts) to an updated field snapshot plus the
// per-utterance [Signals] that drive the conversation state machine. Two
// implementations are provided:
//
//   - [Rules]: regex and phonetic keyword matching, no network calls. This is
//     the canonical implementation and the fallback of last resort.
//   - [LLM]: model-assisted extraction over any LLM backend, for transcripts
//     the rule patterns cannot parse.
//
// All implementations must satisfy the extraction contract:
//
//  1. Monotonic confidence — a required field, once non-nil, is never cleared
//     back to nil; it may only be replaced by a later observation, and only
//     overwritten past the prior value when the utterance carries an explicit
//     correction signal or a new concrete observation.
//  2. Idempotence — re-running extraction on an unchanged transcript yields
//     an identical snapshot.
//  3. Intent is exactly one of reserve/modify/cancel/faq/waitlist, or nil.
//  4. Party size is a positive integer or nil.
//  5. Date/time resolves to an unambiguous absolute instant before being
//     accepted; partial expressions are held until a later turn completes
//     them.
//
// Implementations must be safe for concurrent use.
package extract

import (
	"context"

	"github.com/hostline-ai/hostline/internal/session"
)

// Signals are per-utterance cues derived from the most recent user turn.
// Unlike [session.Fields] they are not accumulated — each extraction call
// reports the signals of the triggering utterance only.
type Signals struct {
	// Correction is true when the utterance explicitly revises earlier
	// information ("actually, make that six").
	Correction bool

	// Question is true when the utterance asks about the restaurant rather
	// than progressing the reservation flow.
	Question bool

	// Affirmative is true when the utterance is an explicit yes/confirmation.
	Affirmative bool

	// SlotAccepted is true when the utterance accepts an offered time slot,
	// either affirmatively or by naming a time.
	SlotAccepted bool
}

// Extractor produces an updated field snapshot after each new transcript
// entry. The prior snapshot, the full transcript so far, and the accumulated
// operator facts are all available as context.
//
// Implementations must never return a snapshot that regresses a non-nil
// required field of prior back to nil.
type Extractor interface {
	Extract(ctx context.Context, prior session.Fields, transcript []session.TranscriptEntry, facts []string) (session.Fields, Signals, error)
}

// merge overlays observed onto prior: every non-nil field of observed wins,
// every nil field keeps the prior value. This is what enforces monotonicity
// regardless of how the observation pass was produced.
func merge(prior, observed session.Fields) session.Fields {
	out := prior
	if observed.GuestName != nil {
		out.GuestName = observed.GuestName
	}
	if observed.Phone != nil {
		out.Phone = observed.Phone
	}
	if observed.PartySize != nil {
		out.PartySize = observed.PartySize
	}
	if observed.DateTime != nil {
		out.DateTime = observed.DateTime
	}
	if observed.AreaPref != nil {
		out.AreaPref = observed.AreaPref
	}
	if observed.Notes != nil {
		out.Notes = observed.Notes
	}
	if observed.Intent != nil {
		out.Intent = observed.Intent
	}
	if observed.ConfirmationCode != nil {
		out.ConfirmationCode = observed.ConfirmationCode
	}
	return out
}
