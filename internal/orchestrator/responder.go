package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hostline-ai/hostline/internal/menu"
	"github.com/hostline-ai/hostline/internal/persona"
	"github.com/hostline-ai/hostline/internal/session"
	"github.com/hostline-ai/hostline/pkg/provider/llm"
)

// fieldPrompts maps each required reservation field to the question that
// collects it, in collection order.
var fieldPrompts = map[string]string{
	"guest_name": "May I have a name for the reservation?",
	"phone":      "What's the best phone number to reach you?",
	"party_size": "How many people will be joining you?",
	"date_time":  "What date and time would you like?",
}

// respond generates the simulated agent turn for the current conversation
// state and folds it into the session exactly the way a live peer transcript
// would arrive. Queue goroutine only.
func (c *Call) respond(userText string) {
	text := c.replyText(userText)
	if text == "" {
		return
	}
	if c.orch.responder != nil {
		text = c.reword(text)
	}

	c.sess.SetSpeaking(false, true)
	c.emit(Event{Kind: EventSpeaking, AgentSpeaking: true})

	entry, ok := c.sess.MergeFragment(session.Fragment{
		Speaker: session.SpeakerAgent,
		Text:    text,
	})
	if ok {
		c.orch.metrics.RecordTurn(c.ctx, string(session.SpeakerAgent))
		c.emit(Event{Kind: EventTranscript, Entry: entry})
	}

	c.sess.SetSpeaking(false, false)
	c.emit(Event{Kind: EventSpeaking})

	// Delivering an FAQ answer ends the interruption; the conversation
	// resumes exactly where it left off.
	if c.machine.State() == session.StateFAQMode {
		if st, changed := c.machine.FAQAnswered(); changed {
			c.applyState(st)
		}
	}
}

// rewordTimeout bounds the responder call so a slow model backend cannot
// stall the session's mutation queue.
const rewordTimeout = 5 * time.Second

// reword asks the responder model to restate a canned reply in the active
// persona's tone. Names, times, and confirmation codes must survive
// verbatim, so the model rephrases rather than answers; any failure keeps
// the canned text.
func (c *Call) reword(text string) string {
	ctx, cancel := context.WithTimeout(c.ctx, rewordTimeout)
	defer cancel()

	prompt := persona.BuildSystemPrompt(c.sess.Persona(), c.orch.Restaurant(), c.sess.Facts())
	resp, err := c.orch.responder.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: prompt,
		Messages: []llm.Message{{
			Role: "user",
			Content: fmt.Sprintf("Restate the following reply to the caller in your own voice, "+
				"keeping every name, time, phone number, and confirmation code exactly as written. "+
				"One or two sentences. Reply: %q", text),
		}},
		MaxTokens: 120,
	})
	if err != nil || resp == nil {
		c.orch.log.Debug("responder unavailable, using canned reply",
			"session_id", c.sess.ID, "error", err)
		return text
	}
	if out := strings.TrimSpace(resp.Content); out != "" {
		return out
	}
	return text
}

func (c *Call) replyText(userText string) string {
	r := c.orch.Restaurant()
	fields := c.sess.Extracted()

	switch c.machine.State() {
	case session.StateGreeting:
		return fmt.Sprintf("Thank you for calling %s! How can I help you today?", r.Name)

	case session.StateIdentifyIntent:
		return "Are you calling to make a reservation, change an existing one, or do you have a question?"

	case session.StateCollectingReservation:
		if missing := fields.Missing(); len(missing) > 0 {
			return fieldPrompts[missing[0]]
		}
		return "Let me check availability for you."

	case session.StateOfferingAlternatives:
		if len(c.alternatives) == 0 {
			return "I'm sorry, we don't have anything near that time. Would you like to join the waitlist?"
		}
		times := make([]string, 0, len(c.alternatives))
		for _, s := range c.alternatives {
			times = append(times, slotTime(s.Time))
		}
		return fmt.Sprintf("That time isn't available, but I do have %s. Would any of those work?",
			joinNatural(times))

	case session.StateConfirming:
		if fields.Complete() {
			return fmt.Sprintf("So that's a table for %d under %s on %s. Shall I book it?",
				*fields.PartySize, *fields.GuestName, slotTime(*fields.DateTime))
		}
		return "Let me just confirm the details with you."

	case session.StateComplete:
		if c.reservation != nil {
			return fmt.Sprintf("You're all set! Your confirmation code is %s. We'll see you then!",
				c.reservation.ConfirmationCode)
		}
		return "You're all set! We'll see you then!"

	case session.StateFAQMode:
		return c.answerQuestion(userText, r)

	case session.StateModifyFlow:
		if c.modified {
			return "Done! Your reservation has been updated."
		}
		return "I can change that for you. Could I have your confirmation code, or the name and phone number on the reservation?"

	case session.StateCancelFlow:
		if c.cancelled {
			return "Your reservation has been cancelled. We hope to see you another time!"
		}
		return "I can cancel that for you. Could I have your confirmation code, or the name and phone number on the reservation?"

	case session.StateWaitlistFlow:
		if c.waitlisted {
			return "You're on the waitlist! We'll text you as soon as a table opens up."
		}
		for _, f := range fields.Missing() {
			if f != "date_time" {
				return fieldPrompts[f]
			}
		}
		return "Let me add you to the waitlist."
	}
	return ""
}

// answerQuestion answers a venue question from the configured restaurant
// details, falling back to a generic offer of help.
func (c *Call) answerQuestion(userText string, r persona.Restaurant) string {
	q := strings.ToLower(userText)

	switch {
	case containsAny(q, "hour", "open", "close", "when"):
		if r.Hours != "" {
			return fmt.Sprintf("We're open %s. Anything else I can help with?", r.Hours)
		}
	case containsAny(q, "where", "address", "located", "location", "direction"):
		if r.Address != "" {
			return fmt.Sprintf("You'll find us at %s. Anything else I can help with?", r.Address)
		}
	case containsAny(q, "phone", "number", "reach"):
		if r.Phone != "" {
			return fmt.Sprintf("You can reach us at %s. Anything else I can help with?", r.Phone)
		}
	}

	if answer := c.answerMenuQuestion(q); answer != "" {
		return answer
	}

	for topic, policy := range r.Policies {
		for _, word := range strings.Split(strings.ToLower(topic), "_") {
			if strings.Contains(q, word) {
				return policy + " Anything else I can help with?"
			}
		}
	}
	return "That's a great question! Let me have someone from the restaurant follow up with you. Anything else I can help with?"
}

// menuFactLimit caps how many dishes a single spoken answer lists.
const menuFactLimit = 5

// answerMenuQuestion answers menu questions from the configured catalog:
// first a dish the caller named, then a dietary restriction they mentioned,
// then a general menu overview. Returns "" when no catalog is wired or the
// question is not about the menu.
func (c *Call) answerMenuQuestion(q string) string {
	cat := c.orch.menu
	if cat == nil {
		return ""
	}

	for _, it := range cat.Items(menu.Filter{}) {
		if !strings.Contains(q, strings.ToLower(it.Name)) {
			continue
		}
		facts := menu.Facts(cat.Variants(it.Name), menuFactLimit)
		return facts[0] + ". Anything else I can help with?"
	}

	for _, dietary := range []string{"vegetarian", "vegan", "gluten"} {
		if !strings.Contains(q, dietary) {
			continue
		}
		items := cat.Items(menu.Filter{Dietary: dietary})
		if len(items) == 0 {
			return "I'm afraid we don't have anything marked " + dietary + " on the menu right now. Anything else I can help with?"
		}
		return "We do! " + strings.Join(menu.Facts(items, menuFactLimit), " ") + " Anything else I can help with?"
	}

	if containsAny(q, "menu", "food", "eat", "dish", "serve", "special") {
		return menu.SummaryLine(cat.Categories()) + ". Anything else I can help with?"
	}
	return ""
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func slotTime(t time.Time) string {
	return t.Format("Monday, January 2 at 3:04 PM")
}

// joinNatural joins items with commas and a final "or".
func joinNatural(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	default:
		return strings.Join(items[:len(items)-1], ", ") + " or " + items[len(items)-1]
	}
}
