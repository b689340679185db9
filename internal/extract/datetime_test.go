package extract

import (
	"testing"
	"time"
)

func resolveTurns(turns ...string) *time.Time {
	r := &dateTimeResolver{now: fixedNow}
	for _, turn := range turns {
		r.observe(turn)
	}
	return r.resolve()
}

// TestResolve_SplitAcrossTurns checks that a date in one turn and a time in
// a later turn combine into one instant.
func TestResolve_SplitAcrossTurns(t *testing.T) {
	t.Parallel()

	got := resolveTurns("friday would be great", "let's say 7 pm")
	if got == nil {
		t.Fatal("resolve = nil, want Friday 7 pm")
	}
	want := time.Date(2026, time.March, 6, 19, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("resolve = %v, want %v", got, want)
	}
}

// TestResolve_TimeOnlyNextOccurrence checks the no-date rule: today when
// the time is still ahead, tomorrow otherwise.
func TestResolve_TimeOnlyNextOccurrence(t *testing.T) {
	t.Parallel()

	// fixedNow is 14:00, so 7 pm is still ahead today.
	got := resolveTurns("can we come at 7")
	if got == nil {
		t.Fatal("resolve = nil")
	}
	if got.Day() != fixedNow.Day() || got.Hour() != 19 {
		t.Errorf("resolve = %v, want today 19:00", got)
	}

	// 1 pm has already passed, so it rolls to tomorrow.
	got = resolveTurns("around 1 would be perfect")
	if got == nil {
		t.Fatal("resolve = nil")
	}
	if got.Day() != fixedNow.Day()+1 || got.Hour() != 13 {
		t.Errorf("resolve = %v, want tomorrow 13:00", got)
	}
}

// TestResolve_DateOnlyHeld checks that a date without a time stays
// unresolved.
func TestResolve_DateOnlyHeld(t *testing.T) {
	t.Parallel()

	if got := resolveTurns("sometime on saturday"); got != nil {
		t.Errorf("resolve = %v, want nil until a time is given", got)
	}
}

// TestResolve_EveningHeuristic checks that a bare hour below 9 means pm.
func TestResolve_EveningHeuristic(t *testing.T) {
	t.Parallel()

	tests := []struct {
		turn     string
		wantHour int
	}{
		{"tomorrow at 7", 19},
		{"tomorrow at 8:30", 20},
		{"tomorrow at 11", 11},
		{"tomorrow at 6 o'clock", 18},
		{"tomorrow at 7 am", 7},
		{"tomorrow at noon", 12},
	}
	for _, tt := range tests {
		t.Run(tt.turn, func(t *testing.T) {
			t.Parallel()
			got := resolveTurns(tt.turn)
			if got == nil {
				t.Fatalf("resolve(%q) = nil", tt.turn)
			}
			if got.Hour() != tt.wantHour {
				t.Errorf("resolve(%q) hour = %d, want %d", tt.turn, got.Hour(), tt.wantHour)
			}
			if got.Day() != fixedNow.Day()+1 {
				t.Errorf("resolve(%q) day = %d, want tomorrow", tt.turn, got.Day())
			}
		})
	}
}

// TestResolve_WeekdayMath checks weekday resolution relative to a Monday.
func TestResolve_WeekdayMath(t *testing.T) {
	t.Parallel()

	// Same weekday as today means a week out, as does "next".
	got := resolveTurns("monday at 7 pm")
	if got == nil || got.Day() != 9 {
		t.Errorf("monday from a Monday = %v, want March 9", got)
	}

	got = resolveTurns("next friday at 7 pm")
	if got == nil || got.Day() != 13 {
		t.Errorf("next friday = %v, want March 13", got)
	}
}

// TestResolve_NumericDate checks M/D and M/D/Y forms.
func TestResolve_NumericDate(t *testing.T) {
	t.Parallel()

	got := resolveTurns("3/14 at 8 pm")
	if got == nil {
		t.Fatal("resolve = nil")
	}
	want := time.Date(2026, time.March, 14, 20, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("resolve = %v, want %v", got, want)
	}

	got = resolveTurns("12/31/26 at 9 pm")
	if got == nil || got.Year() != 2026 || got.Month() != time.December {
		t.Errorf("resolve = %v, want Dec 31 2026", got)
	}
}

// TestResolve_LaterMentionWins checks that a revised time replaces the
// earlier one.
func TestResolve_LaterMentionWins(t *testing.T) {
	t.Parallel()

	got := resolveTurns("tomorrow at 7 pm", "actually let's do 8 pm")
	if got == nil {
		t.Fatal("resolve = nil")
	}
	if got.Hour() != 20 {
		t.Errorf("hour = %d, want 20 after revision", got.Hour())
	}
}

// TestResolve_NoonAndMidnight checks the named times.
func TestResolve_NoonAndMidnight(t *testing.T) {
	t.Parallel()

	got := resolveTurns("tomorrow at midnight")
	if got == nil || got.Hour() != 0 {
		t.Errorf("midnight = %v, want hour 0", got)
	}
}
