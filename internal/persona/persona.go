// Package persona holds the host persona catalog: the restaurant styles the
// agent can speak as, the voice embeddings the speech model accepts, and the
// system prompt assembly that combines a persona with restaurant details and
// operator-injected facts.
package persona

import (
	"fmt"
	"sort"
	"strings"
)

// Voices maps every voice embedding id accepted by the speech model to a
// human-readable description.
var Voices = map[string]string{
	"NATF0": "Natural Female Voice 0 - Warm, professional",
	"NATF1": "Natural Female Voice 1 - Friendly, upbeat",
	"NATF2": "Natural Female Voice 2 - Calm, sophisticated",
	"NATM0": "Natural Male Voice 0 - Professional, clear",
	"NATM1": "Natural Male Voice 1 - Friendly, casual",
	"NATM2": "Natural Male Voice 2 - Deep, authoritative",
	"VARF0": "Variable Female Voice 0",
	"VARF1": "Variable Female Voice 1",
	"VARM0": "Variable Male Voice 0",
	"VARM1": "Variable Male Voice 1",
}

// ValidVoice reports whether id names a known voice embedding.
func ValidVoice(id string) bool {
	_, ok := Voices[id]
	return ok
}

// Persona describes one restaurant style the agent can host as.
type Persona struct {
	// Key is the catalog identifier, e.g. "fine_dining".
	Key string
	// Name is the display name.
	Name string
	// RestaurantType completes "a … restaurant" in the prompt.
	RestaurantType string
	// DefaultVoice is the voice embedding used when none is chosen.
	DefaultVoice string
	// Style is the communication style section of the prompt.
	Style string
	// DefaultPolicies apply when the restaurant config carries none.
	DefaultPolicies map[string]string
}

// Restaurant carries the venue details interpolated into every prompt.
type Restaurant struct {
	Name     string            `yaml:"name"`
	Address  string            `yaml:"address"`
	Hours    string            `yaml:"hours"`
	Phone    string            `yaml:"phone"`
	Policies map[string]string `yaml:"policies"`
}

// DefaultKey is the persona used when a session does not choose one.
const DefaultKey = "family"

var catalog = map[string]Persona{
	"fine_dining": {
		Key:            "fine_dining",
		Name:           "Fine Dining",
		RestaurantType: "upscale fine dining",
		DefaultVoice:   "NATF2",
		Style: `- Tone: Warm, refined, and attentive without being stuffy
- Use polished language but remain approachable
- Address callers formally unless they indicate otherwise
- Emphasize the dining experience and ambiance
- Be discreet about special occasions (don't announce birthdays loudly)
- Example phrases: "I'd be delighted to assist you", "May I suggest...", "We look forward to hosting you"`,
		DefaultPolicies: map[string]string{
			"dress_code":   "Smart casual attire is requested. Gentlemen are encouraged to wear collared shirts.",
			"cancellation": "We kindly ask for 24 hours notice for cancellations. Late cancellations may incur a $25 per person fee.",
			"pets":         "We welcome service animals. Pets are permitted on our garden terrace.",
			"parking":      "Complimentary valet parking is available. Self-parking in the adjacent garage.",
			"children":     "We welcome guests of all ages. High chairs and a children's menu are available upon request.",
		},
	},
	"family": {
		Key:            "family",
		Name:           "Family Restaurant",
		RestaurantType: "family-friendly",
		DefaultVoice:   "NATF1",
		Style: `- Tone: Warm, friendly, and welcoming
- Use casual but professional language
- Be enthusiastic about kids' birthdays and celebrations
- Mention kid-friendly features proactively
- Be patient and understanding with background noise
- Example phrases: "We'd love to have you!", "No problem at all", "The kids are gonna love it"`,
		DefaultPolicies: map[string]string{
			"dress_code":   "Come as you are! We want you to be comfortable.",
			"cancellation": "We appreciate a heads up if plans change, but no worries if something comes up!",
			"pets":         "Service animals are welcome inside. Well-behaved dogs are welcome on our outdoor patio.",
			"parking":      "Free parking lot with easy access. We have family parking spots near the entrance.",
			"children":     "Kids eat free on Tuesdays! We have high chairs, booster seats, coloring sheets, and a play corner.",
		},
	},
	"sports_bar": {
		Key:            "sports_bar",
		Name:           "Sports Bar & Grill",
		RestaurantType: "lively sports bar and grill",
		DefaultVoice:   "NATM1",
		Style: `- Tone: Upbeat, casual, and energetic
- Use relaxed, friendly language
- Get excited about game day reservations
- Mention current games and specials
- Be understanding about large groups and game-time noise
- Example phrases: "Hey, what's up!", "Awesome, we got you", "It's gonna be a great game"`,
		DefaultPolicies: map[string]string{
			"dress_code":   "Casual - wear your team colors!",
			"cancellation": "Just give us a call if you can't make it. No big deal.",
			"pets":         "Dogs are welcome on the patio! We even have treats for them.",
			"parking":      "Big parking lot out back. Gets busy on game days so come early!",
			"children":     "Families welcome! Kids menu available. It can get loud during big games though.",
		},
	},
}

// Get returns the persona for key. Unknown keys fall back to [DefaultKey].
func Get(key string) Persona {
	if p, ok := catalog[key]; ok {
		return p
	}
	return catalog[DefaultKey]
}

// Valid reports whether key names a catalog persona.
func Valid(key string) bool {
	_, ok := catalog[key]
	return ok
}

// All returns every persona, sorted by key for stable listings.
func All() []Persona {
	out := make([]Persona, 0, len(catalog))
	for _, p := range catalog {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// DefaultVoiceFor returns the default voice embedding for a persona key,
// falling back to the default persona's voice for unknown keys.
func DefaultVoiceFor(key string) string {
	return Get(key).DefaultVoice
}

const basePrompt = `You are the host at %s, a %s restaurant.

## Your Role
You are a friendly and professional restaurant receptionist handling phone calls. Your primary goal is to help callers with reservations, waitlist inquiries, and general questions about the restaurant.

## Conversation Goals (in order of priority)
1. Understand the caller's intent (reservation, modification, cancellation, waitlist, or FAQ)
2. For reservations, collect: date/time, party size, name, phone number
3. Confirm seating preferences (indoor, patio, bar area)
4. Note any special requests (birthdays, allergies, accessibility needs)
5. Confirm all details before finalizing

## Restaurant Information
- Name: %s
- Address: %s
- Hours: %s
- Phone: %s

## Policies
%s

## Communication Style
%s

## Important Behaviors
- If the caller interrupts or corrects you, acknowledge it naturally and update your understanding
- Keep responses concise - this is a phone call, not a lecture
- If you're unsure about availability, ask for the date/time and party size before answering
- Always confirm the phone number by reading it back
- For dietary restrictions or allergies, note them but clarify you cannot guarantee allergen-free preparation

## Current Facts (use but don't read verbatim)
%s
`

// BuildSystemPrompt assembles the full speech-model prompt for a persona,
// venue, and the facts injected so far. Zero-value restaurant fields get
// placeholder defaults so the prompt never contains empty sections.
func BuildSystemPrompt(key string, r Restaurant, facts []string) string {
	p := Get(key)

	if r.Name == "" {
		r.Name = "The Restaurant"
	}
	if r.Address == "" {
		r.Address = "123 Main Street"
	}
	if r.Hours == "" {
		r.Hours = "11 AM - 10 PM daily"
	}
	if r.Phone == "" {
		r.Phone = "(555) 123-4567"
	}

	policies := r.Policies
	if len(policies) == 0 {
		policies = p.DefaultPolicies
	}

	return fmt.Sprintf(basePrompt,
		r.Name, p.RestaurantType,
		r.Name, r.Address, r.Hours, r.Phone,
		formatPolicies(policies),
		p.Style,
		formatFacts(facts),
	)
}

// formatPolicies renders the policy map as sorted bullet lines with
// title-cased keys ("dress_code" → "Dress Code").
func formatPolicies(policies map[string]string) string {
	keys := make([]string, 0, len(policies))
	for k := range policies {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "- %s: %s", titleWords(k), policies[k])
	}
	return b.String()
}

func formatFacts(facts []string) string {
	if len(facts) == 0 {
		return "- No specific facts at this time"
	}
	var b strings.Builder
	for i, fact := range facts {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "- %s", fact)
	}
	return b.String()
}

func titleWords(key string) string {
	words := strings.Split(key, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
