package session_test

import (
	"errors"
	"testing"
	"time"

	"github.com/hostline-ai/hostline/internal/session"
)

func testRegistry(cfg session.RegistryConfig) *session.Registry {
	if cfg.PersonaVoices == nil {
		cfg.PersonaVoices = map[string]string{
			"family":      "NATF1",
			"fine_dining": "NATM0",
		}
	}
	return session.NewRegistry(cfg)
}

func TestRegistry_CreateAndGet(t *testing.T) {
	t.Parallel()
	reg := testRegistry(session.RegistryConfig{})

	sess, err := reg.Create(7)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sess.RestaurantID != 7 {
		t.Errorf("restaurant id = %d, want 7", sess.RestaurantID)
	}
	if !sess.Active() {
		t.Error("new session is not active")
	}
	if got := sess.Persona(); got != "family" {
		t.Errorf("default persona = %q, want family", got)
	}
	if got := sess.VoiceID(); got != "NATF1" {
		t.Errorf("default voice = %q, want NATF1", got)
	}

	got, err := reg.Get(sess.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != sess {
		t.Error("Get returned a different session pointer")
	}

	if _, err := reg.Get("nope"); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Get(unknown) = %v, want ErrNotFound", err)
	}
}

func TestRegistry_MaxSessions(t *testing.T) {
	t.Parallel()
	reg := testRegistry(session.RegistryConfig{MaxSessions: 2})

	for range 2 {
		if _, err := reg.Create(1); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	if _, err := reg.Create(1); !errors.Is(err, session.ErrRegistryFull) {
		t.Errorf("Create at capacity = %v, want ErrRegistryFull", err)
	}
}

func TestRegistry_UpdatePersona(t *testing.T) {
	t.Parallel()
	reg := testRegistry(session.RegistryConfig{})
	sess, _ := reg.Create(1)

	voice, err := reg.UpdatePersona(sess.ID, "fine_dining")
	if err != nil {
		t.Fatalf("UpdatePersona: %v", err)
	}
	if voice != "NATM0" {
		t.Errorf("applicable voice = %q, want NATM0", voice)
	}
	if got := sess.Persona(); got != "fine_dining" {
		t.Errorf("persona = %q, want fine_dining", got)
	}

	// A persona without a mapped voice keeps the current one.
	voice, err = reg.UpdatePersona(sess.ID, "sports_bar")
	if err != nil {
		t.Fatalf("UpdatePersona: %v", err)
	}
	if voice != "NATM0" {
		t.Errorf("applicable voice = %q, want the prior NATM0", voice)
	}

	if _, err := reg.UpdatePersona("nope", "family"); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("UpdatePersona(unknown) = %v, want ErrNotFound", err)
	}
}

func TestRegistry_EndKeepsSessionForLookup(t *testing.T) {
	t.Parallel()
	reg := testRegistry(session.RegistryConfig{})
	sess, _ := reg.Create(1)

	if err := reg.End(sess.ID); err != nil {
		t.Fatalf("End: %v", err)
	}
	if sess.Active() {
		t.Error("session still active after End")
	}

	// Finished calls stay readable for the console.
	if _, err := reg.Get(sess.ID); err != nil {
		t.Errorf("Get after End = %v, want success", err)
	}

	// Mutations are rejected once ended.
	if _, err := reg.UpdatePersona(sess.ID, "family"); !errors.Is(err, session.ErrEnded) {
		t.Errorf("UpdatePersona after End = %v, want ErrEnded", err)
	}
	if err := reg.UpdateVoice(sess.ID, "NATF2"); !errors.Is(err, session.ErrEnded) {
		t.Errorf("UpdateVoice after End = %v, want ErrEnded", err)
	}

	// End is a no-op the second time.
	if err := reg.End(sess.ID); err != nil {
		t.Errorf("second End = %v, want nil", err)
	}
	if err := reg.End("nope"); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("End(unknown) = %v, want ErrNotFound", err)
	}
}

func TestRegistry_Active(t *testing.T) {
	t.Parallel()
	reg := testRegistry(session.RegistryConfig{})
	a, _ := reg.Create(1)
	b, _ := reg.Create(1)

	reg.End(b.ID)

	active := reg.Active()
	if len(active) != 1 || active[0] != a {
		t.Errorf("Active() = %d sessions, want only the live one", len(active))
	}
	if got := reg.Len(); got != 2 {
		t.Errorf("Len() = %d, want 2 (ended session retained)", got)
	}
}

func TestRegistry_ReapRemovesIdleSessions(t *testing.T) {
	t.Parallel()
	// A negative-duration config selects the default timeout, so use a tiny
	// positive one and let the session age past it.
	reg := testRegistry(session.RegistryConfig{IdleTimeout: time.Millisecond})
	sess, _ := reg.Create(1)

	time.Sleep(10 * time.Millisecond)

	reaped := reg.Reap()
	if len(reaped) != 1 || reaped[0] != sess.ID {
		t.Fatalf("Reap() = %v, want [%s]", reaped, sess.ID)
	}
	if sess.Active() {
		t.Error("reaped session still marked active")
	}
	if _, err := reg.Get(sess.ID); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Get after reap = %v, want ErrNotFound", err)
	}
}

func TestRegistry_Remove(t *testing.T) {
	t.Parallel()
	reg := testRegistry(session.RegistryConfig{})
	sess, _ := reg.Create(1)

	reg.Remove(sess.ID)
	reg.Remove(sess.ID) // idempotent

	if _, err := reg.Get(sess.ID); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Get after Remove = %v, want ErrNotFound", err)
	}
}
