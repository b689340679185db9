package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hostline-ai/hostline/internal/session"
	"github.com/hostline-ai/hostline/pkg/provider/llm"
)

const llmSystemPrompt = `You extract restaurant reservation details from a phone call transcript.
Return ONLY a JSON object, no prose, with exactly these keys (use null for anything not stated):
{
  "guest_name": string|null,
  "phone": string|null,          // 10 digits, no formatting
  "party_size": int|null,
  "date_time": string|null,      // RFC 3339, resolve relative dates against the current time given below
  "area_pref": string|null,
  "notes": string|null,
  "intent": "reserve"|"modify"|"cancel"|"faq"|"waitlist"|null,
  "confirmation_code": string|null,
  "correction": bool,            // last caller turn revises earlier info
  "question": bool,              // last caller turn asks about the restaurant
  "affirmative": bool,           // last caller turn is a yes/confirmation
  "slot_accepted": bool          // last caller turn accepts an offered time
}
Only report what the caller actually said. Never invent values.`

// llmResult is the JSON shape the model is instructed to return.
type llmResult struct {
	GuestName        *string `json:"guest_name"`
	Phone            *string `json:"phone"`
	PartySize        *int    `json:"party_size"`
	DateTime         *string `json:"date_time"`
	AreaPref         *string `json:"area_pref"`
	Notes            *string `json:"notes"`
	Intent           *string `json:"intent"`
	ConfirmationCode *string `json:"confirmation_code"`

	Correction   bool `json:"correction"`
	Question     bool `json:"question"`
	Affirmative  bool `json:"affirmative"`
	SlotAccepted bool `json:"slot_accepted"`
}

// LLM is the model-assisted extractor. It sends the user side of the
// transcript plus any operator facts to a completion backend and parses the
// structured JSON reply. Intended to sit in front of [Rules] behind a
// fallback group: when the model is slow, down, or returns garbage, the
// rule extractor answers instead.
type LLM struct {
	provider llm.Provider
	now      func() time.Time
}

var _ Extractor = (*LLM)(nil)

// NewLLM wraps a completion backend as an [Extractor].
func NewLLM(provider llm.Provider) *LLM {
	return &LLM{provider: provider, now: time.Now}
}

// Extract implements [Extractor].
func (l *LLM) Extract(ctx context.Context, prior session.Fields, transcript []session.TranscriptEntry, facts []string) (session.Fields, Signals, error) {
	resp, err := l.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: llmSystemPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: l.buildPrompt(transcript, facts)},
		},
		Temperature: 0.0,
		MaxTokens:   512,
	})
	if err != nil {
		return prior, Signals{}, fmt.Errorf("extract: llm completion: %w", err)
	}

	var result llmResult
	if err := json.Unmarshal([]byte(stripFences(resp.Content)), &result); err != nil {
		return prior, Signals{}, fmt.Errorf("extract: parse llm response: %w", err)
	}

	observed, err := l.toFields(result)
	if err != nil {
		return prior, Signals{}, err
	}

	sig := Signals{
		Correction:   result.Correction,
		Question:     result.Question,
		Affirmative:  result.Affirmative,
		SlotAccepted: result.SlotAccepted,
	}
	return merge(prior, observed), sig, nil
}

// buildPrompt renders the user turns and facts into the completion input.
func (l *LLM) buildPrompt(transcript []session.TranscriptEntry, facts []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current time: %s\n\nCaller turns, oldest first:\n", l.now().Format(time.RFC3339))
	for _, entry := range transcript {
		if entry.Speaker != session.SpeakerUser {
			continue
		}
		fmt.Fprintf(&b, "- %s\n", entry.Text)
	}
	if len(facts) > 0 {
		b.WriteString("\nOperator-provided facts:\n")
		for _, fact := range facts {
			fmt.Fprintf(&b, "- %s\n", fact)
		}
	}
	return b.String()
}

// toFields validates the model output against the field constraints. A
// malformed value fails the whole extraction so the fallback can take over —
// partially trusting a confused model is worse than not trusting it.
func (l *LLM) toFields(r llmResult) (session.Fields, error) {
	var f session.Fields
	f.GuestName = r.GuestName
	f.AreaPref = r.AreaPref
	f.Notes = r.Notes
	f.ConfirmationCode = r.ConfirmationCode

	if r.Phone != nil {
		phone, ok := normalizePhone(*r.Phone)
		if !ok {
			return session.Fields{}, fmt.Errorf("extract: llm returned invalid phone %q", *r.Phone)
		}
		f.Phone = &phone
	}
	if r.PartySize != nil {
		if *r.PartySize < 1 {
			return session.Fields{}, fmt.Errorf("extract: llm returned invalid party size %d", *r.PartySize)
		}
		f.PartySize = r.PartySize
	}
	if r.DateTime != nil {
		dt, err := time.Parse(time.RFC3339, *r.DateTime)
		if err != nil {
			return session.Fields{}, fmt.Errorf("extract: llm returned invalid date_time %q: %w", *r.DateTime, err)
		}
		f.DateTime = &dt
	}
	if r.Intent != nil {
		intent := session.Intent(*r.Intent)
		if !intent.IsValid() {
			return session.Fields{}, fmt.Errorf("extract: llm returned invalid intent %q", *r.Intent)
		}
		f.Intent = &intent
	}
	return f, nil
}

// stripFences removes a markdown code fence if the model wrapped its JSON in
// one despite instructions.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
