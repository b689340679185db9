package extract

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hostline-ai/hostline/internal/session"
	"github.com/hostline-ai/hostline/pkg/provider/llm"
	llmmock "github.com/hostline-ai/hostline/pkg/provider/llm/mock"
)

// TestLLM_ParsesResponse checks that a well-formed JSON reply is mapped onto
// fields and signals.
func TestLLM_ParsesResponse(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: `{
			"guest_name": "Maria Lopez",
			"phone": "5558675309",
			"party_size": 4,
			"date_time": "2026-03-06T19:00:00Z",
			"area_pref": "patio",
			"notes": null,
			"intent": "reserve",
			"confirmation_code": null,
			"correction": false,
			"question": false,
			"affirmative": false,
			"slot_accepted": false
		}`},
	}
	ex := NewLLM(p)

	fields, sig, err := ex.Extract(context.Background(), session.Fields{},
		[]session.TranscriptEntry{userTurn("hi, this is maria lopez, four of us friday at seven")}, nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if fields.GuestName == nil || *fields.GuestName != "Maria Lopez" {
		t.Errorf("GuestName = %v, want Maria Lopez", fields.GuestName)
	}
	if fields.PartySize == nil || *fields.PartySize != 4 {
		t.Errorf("PartySize = %v, want 4", fields.PartySize)
	}
	if fields.Intent == nil || *fields.Intent != session.IntentReserve {
		t.Errorf("Intent = %v, want reserve", fields.Intent)
	}
	if sig.Correction || sig.Question {
		t.Errorf("signals = %+v, want all false", sig)
	}
}

// TestLLM_MergesOverPrior checks that nulls in the reply keep prior values.
func TestLLM_MergesOverPrior(t *testing.T) {
	t.Parallel()

	name := "Daniel"
	prior := session.Fields{GuestName: &name}

	p := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: `{"party_size": 2}`},
	}
	fields, _, err := NewLLM(p).Extract(context.Background(), prior,
		[]session.TranscriptEntry{userTurn("two of us")}, nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if fields.GuestName == nil || *fields.GuestName != "Daniel" {
		t.Errorf("GuestName = %v, want Daniel preserved", fields.GuestName)
	}
	if fields.PartySize == nil || *fields.PartySize != 2 {
		t.Errorf("PartySize = %v, want 2", fields.PartySize)
	}
}

// TestLLM_StripsCodeFence checks tolerance for fenced replies.
func TestLLM_StripsCodeFence(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "```json\n{\"party_size\": 3}\n```"},
	}
	fields, _, err := NewLLM(p).Extract(context.Background(), session.Fields{},
		[]session.TranscriptEntry{userTurn("three of us")}, nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if fields.PartySize == nil || *fields.PartySize != 3 {
		t.Errorf("PartySize = %v, want 3", fields.PartySize)
	}
}

// TestLLM_InvalidValuesFailWhole checks that a malformed model value fails
// the extraction rather than being partially accepted.
func TestLLM_InvalidValuesFailWhole(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{"bad intent", `{"intent": "smalltalk"}`},
		{"bad phone", `{"phone": "12345"}`},
		{"bad party size", `{"party_size": 0}`},
		{"bad date", `{"date_time": "friday-ish"}`},
		{"not json", `sure! here are the fields you asked for`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: tt.content}}
			_, _, err := NewLLM(p).Extract(context.Background(), session.Fields{},
				[]session.TranscriptEntry{userTurn("hello")}, nil)
			if err == nil {
				t.Fatal("Extract succeeded, want error")
			}
		})
	}
}

// TestLLM_ProviderError checks that backend failures surface as errors so a
// fallback can take over.
func TestLLM_ProviderError(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{CompleteErr: errors.New("upstream down")}
	_, _, err := NewLLM(p).Extract(context.Background(), session.Fields{},
		[]session.TranscriptEntry{userTurn("hello")}, nil)
	if err == nil {
		t.Fatal("Extract succeeded, want error")
	}
}

// TestLLM_PromptContents checks that only user turns and facts reach the
// prompt.
func TestLLM_PromptContents(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: `{}`}}
	_, _, err := NewLLM(p).Extract(context.Background(), session.Fields{},
		[]session.TranscriptEntry{
			agentTurn("how can I help you tonight?"),
			userTurn("table for two"),
		},
		[]string{"patio is closed for a private event"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	calls := p.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	prompt := calls[0].Req.Messages[0].Content
	if !strings.Contains(prompt, "table for two") {
		t.Error("prompt missing user turn")
	}
	if strings.Contains(prompt, "how can I help") {
		t.Error("prompt contains agent turn")
	}
	if !strings.Contains(prompt, "patio is closed") {
		t.Error("prompt missing operator fact")
	}
}
