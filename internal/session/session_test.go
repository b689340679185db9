package session_test

import (
	"slices"
	"testing"
	"time"

	"github.com/hostline-ai/hostline/internal/session"
)

func strPtr(s string) *string                    { return &s }
func intPtr(n int) *int                          { return &n }
func timePtr(t time.Time) *time.Time             { return &t }
func intentPtr(i session.Intent) *session.Intent { return &i }

func newSession(t *testing.T) *session.Session {
	t.Helper()
	reg := session.NewRegistry(session.RegistryConfig{})
	sess, err := reg.Create(1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return sess
}

func TestFields_Missing(t *testing.T) {
	t.Parallel()

	var f session.Fields
	want := []string{"guest_name", "phone", "party_size", "date_time"}
	if got := f.Missing(); !slices.Equal(got, want) {
		t.Errorf("Missing() = %v, want %v", got, want)
	}
	if f.Complete() {
		t.Error("Complete() = true for empty fields")
	}

	f.GuestName = strPtr("Dana Reyes")
	f.PartySize = intPtr(4)
	want = []string{"phone", "date_time"}
	if got := f.Missing(); !slices.Equal(got, want) {
		t.Errorf("Missing() = %v, want %v", got, want)
	}

	f.Phone = strPtr("+15550100")
	f.DateTime = timePtr(time.Now())
	if got := f.Missing(); len(got) != 0 {
		t.Errorf("Missing() = %v, want none", got)
	}
	if !f.Complete() {
		t.Error("Complete() = false with all required fields set")
	}
}

func TestFields_IntentOrEmpty(t *testing.T) {
	t.Parallel()

	var f session.Fields
	if got := f.IntentOrEmpty(); got != "" {
		t.Errorf("IntentOrEmpty() = %q, want empty", got)
	}
	f.Intent = intentPtr(session.IntentReserve)
	if got := f.IntentOrEmpty(); got != session.IntentReserve {
		t.Errorf("IntentOrEmpty() = %q, want reserve", got)
	}
}

func TestSession_SnapshotShape(t *testing.T) {
	t.Parallel()
	sess := newSession(t)

	sess.SetExtracted(session.Fields{GuestName: strPtr("Priya")})
	sess.AddFact("chef special tonight")
	sess.MergeFragment(session.Fragment{Speaker: session.SpeakerUser, Text: "Hi there"})

	snap := sess.Snapshot()
	if snap.ID != sess.ID {
		t.Errorf("snapshot ID = %q, want %q", snap.ID, sess.ID)
	}
	if snap.State != session.StateGreeting {
		t.Errorf("snapshot state = %q, want greeting", snap.State)
	}
	if !snap.Active {
		t.Error("snapshot Active = false for a fresh session")
	}
	if snap.Mode != session.ModeSimulation {
		t.Errorf("snapshot mode = %q, want simulation", snap.Mode)
	}
	want := []string{"phone", "party_size", "date_time"}
	if !slices.Equal(snap.MissingFields, want) {
		t.Errorf("missing fields = %v, want %v", snap.MissingFields, want)
	}

	// The snapshot must be isolated from later mutation.
	sess.AddFact("closed for renovation")
	sess.MergeFragment(session.Fragment{Speaker: session.SpeakerAgent, Text: "Hello"})
	if len(snap.Facts) != 1 || len(snap.Transcript) != 1 {
		t.Errorf("snapshot mutated after the fact: %d facts, %d entries", len(snap.Facts), len(snap.Transcript))
	}
}

func TestSession_AddFactDeduplicates(t *testing.T) {
	t.Parallel()
	sess := newSession(t)

	if !sess.AddFact("patio is open") {
		t.Error("first AddFact = false")
	}
	if sess.AddFact("patio is open") {
		t.Error("duplicate AddFact = true")
	}
	if got := sess.Facts(); len(got) != 1 {
		t.Errorf("Facts() = %v, want one entry", got)
	}
}

func TestSession_ResetExtraction(t *testing.T) {
	t.Parallel()
	sess := newSession(t)

	sess.SetExtracted(session.Fields{GuestName: strPtr("Sam")})
	sess.SetState(session.StateFAQMode)
	sess.SetResumeState(session.StateCollectingReservation)

	sess.ResetExtraction()

	if got := sess.Extracted(); got.GuestName != nil {
		t.Errorf("extracted guest name survived reset: %q", *got.GuestName)
	}
	if got := sess.State(); got != session.StateGreeting {
		t.Errorf("state = %q after reset, want greeting", got)
	}
	if got := sess.ResumeState(); got != "" {
		t.Errorf("resume state = %q after reset, want empty", got)
	}
}

func TestSession_SetPersonaKeepsVoiceWhenUnknown(t *testing.T) {
	t.Parallel()
	sess := newSession(t)

	before := sess.VoiceID()
	sess.SetPersona("fine_dining", "")
	if got := sess.VoiceID(); got != before {
		t.Errorf("voice = %q after persona change with no mapped voice, want %q", got, before)
	}
	if got := sess.Persona(); got != "fine_dining" {
		t.Errorf("persona = %q, want fine_dining", got)
	}

	sess.SetPersona("sports_bar", "NATM2")
	if got := sess.VoiceID(); got != "NATM2" {
		t.Errorf("voice = %q, want NATM2", got)
	}
}
