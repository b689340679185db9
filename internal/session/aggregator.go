package session

import (
	"strings"
	"time"
)

// Fragment is a partial speech-recognition result at sub-utterance
// granularity, as delivered by the model peer or the simulation driver.
type Fragment struct {
	Speaker    Speaker
	Text       string
	Timestamp  time.Time
	Confidence *float64
}

// MergeFragment folds frag into the session transcript following the
// speaker-turn merge rule: when the fragment's speaker matches the last
// entry's speaker, the text is appended to that entry and its timestamp moves
// forward to the fragment's; otherwise a new entry begins. Fragments that are
// empty after trimming are dropped.
//
// Returns the merged (or newly created) entry and true, or the zero entry and
// false when the fragment was dropped.
func (s *Session) MergeFragment(frag Fragment) (TranscriptEntry, bool) {
	text := strings.TrimSpace(frag.Text)
	if text == "" {
		return TranscriptEntry{}, false
	}
	if frag.Timestamp.IsZero() {
		frag.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()

	if n := len(s.transcript); n > 0 && s.transcript[n-1].Speaker == frag.Speaker {
		last := &s.transcript[n-1]
		last.Text = last.Text + " " + text
		last.Timestamp = frag.Timestamp
		if frag.Confidence != nil {
			last.Confidence = frag.Confidence
		}
		return *last, true
	}

	entry := TranscriptEntry{
		Speaker:    frag.Speaker,
		Text:       text,
		Timestamp:  frag.Timestamp,
		Confidence: frag.Confidence,
	}
	s.transcript = append(s.transcript, entry)
	return entry, true
}

// Transcript returns a copy of the merged transcript so far, strictly ordered
// by timestamp.
func (s *Session) Transcript() []TranscriptEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TranscriptEntry, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// LastUserTurn returns the most recent user transcript entry, or false when
// the user has not spoken yet.
func (s *Session) LastUserTurn() (TranscriptEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.transcript) - 1; i >= 0; i-- {
		if s.transcript[i].Speaker == SpeakerUser {
			return s.transcript[i], true
		}
	}
	return TranscriptEntry{}, false
}
