package extract

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/hostline-ai/hostline/internal/session"
)

var (
	phoneRe = regexp.MustCompile(`(?:\+?1[\s\-.]?)?\(?\d{3}\)?[\s\-.]?\d{3}[\s\-.]?\d{4}`)

	partySizeRe = regexp.MustCompile(`\b(?:party of|table for|reservation for|group of|for)\s+(\d{1,2}|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve)\b`)
	partyCountRe = regexp.MustCompile(`\b(\d{1,2})\s+(?:people|persons|guests|of us)\b`)
	partyFixRe  = regexp.MustCompile(`\bmake (?:that|it)\s+(\d{1,2}|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve)\b`)

	nameRe      = regexp.MustCompile(`(?i)\b(?:my name is|my name's|name is|this is|i'm|i am|it's|under the name|under)\s+([a-z]+(?:\s+[a-z]+)?)\b`)
	codeRe      = regexp.MustCompile(`(?i)\b([a-z0-9]{6})\b`)
	digitOnlyRe = regexp.MustCompile(`\D`)
)

// numberWords covers spoken party sizes up to a table of twelve.
var numberWords = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6,
	"seven": 7, "eight": 8, "nine": 9, "ten": 10, "eleven": 11, "twelve": 12,
}

// nameStopWords are tokens the name patterns capture but that are never
// names ("this is a reservation", "I'm calling about…").
var nameStopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "calling": {}, "looking": {}, "trying": {},
	"wondering": {}, "hoping": {}, "here": {}, "just": {}, "not": {},
	"sorry": {}, "so": {}, "gonna": {}, "going": {}, "my": {}, "our": {},
	"your": {}, "his": {}, "her": {}, "their": {}, "that": {}, "this": {},
	"it": {}, "about": {}, "for": {}, "at": {}, "on": {}, "in": {}, "to": {},
}

// correctionMarkers flag an utterance as revising earlier information.
var correctionMarkers = []string{
	"actually", "make that", "make it", "no wait", "scratch that",
	"i meant", "instead", "change that",
}

// questionOpeners start a question even without a transcribed question mark.
var questionOpeners = []string{
	"what", "when", "where", "how", "why", "who", "which",
	"do you", "does", "is there", "are you", "are there",
	"can i", "can you", "could", "will you", "would you",
}

// areaRule maps spoken seating vocabulary to a canonical area name.
type areaRule struct {
	area    string
	matcher *keywordMatcher
}

// Rules is the regex and phonetic keyword extractor. It never calls out to
// the network, so it serves as the fallback of last resort, and it is the
// canonical reading of the extraction contract. Safe for concurrent use.
type Rules struct {
	now func() time.Time

	cancelKw   *keywordMatcher
	modifyKw   *keywordMatcher
	waitlistKw *keywordMatcher
	reserveKw  *keywordMatcher
	faqKw      *keywordMatcher
	affirmKw   *keywordMatcher
	noteKw     *keywordMatcher

	areas []areaRule
}

var _ Extractor = (*Rules)(nil)

// RulesOption configures a [Rules] extractor.
type RulesOption func(*Rules)

// WithClock overrides the wall clock used for relative date resolution.
func WithClock(now func() time.Time) RulesOption {
	return func(r *Rules) { r.now = now }
}

// NewRules builds the rule-based extractor with the built-in keyword sets.
func NewRules(opts ...RulesOption) *Rules {
	r := &Rules{
		now: time.Now,

		cancelKw:   newKeywordMatcher("cancel", "cancellation", "call off", "don't need the reservation"),
		modifyKw:   newKeywordMatcher("change my reservation", "reschedule", "move my reservation", "push back", "move it", "update my reservation", "modify"),
		waitlistKw: newKeywordMatcher("waitlist", "wait list", "waiting list"),
		reserveKw:  newKeywordMatcher("reservation", "reserve", "book", "booking", "table"),
		faqKw: newKeywordMatcher(
			"hours", "open", "close", "closing", "parking", "menu",
			"dress code", "corkage", "gift card", "location", "address",
			"happy hour", "vegetarian options", "vegan options", "kids menu",
			"private events", "dogs", "patio open",
		),
		affirmKw: newKeywordMatcher(
			"yes", "yeah", "yep", "yup", "sure", "correct", "exactly",
			"sounds good", "that works", "perfect", "absolutely",
			"definitely", "okay", "ok", "fine", "great", "let's do that",
			"book it", "that one",
		),
		noteKw: newKeywordMatcher(
			"birthday", "anniversary", "celebration", "celebrating",
			"allergy", "allergic", "gluten", "dairy", "shellfish", "nut",
			"vegetarian", "vegan", "wheelchair", "accessible",
			"high chair", "highchair", "stroller", "quiet",
		),

		areas: []areaRule{
			{"patio", newKeywordMatcher("patio", "outside", "outdoor", "outdoors", "terrace", "al fresco")},
			{"booth", newKeywordMatcher("booth")},
			{"window", newKeywordMatcher("window", "view")},
			{"bar", newKeywordMatcher("bar", "counter", "bar seating")},
			{"private room", newKeywordMatcher("private room", "private dining")},
			{"main dining", newKeywordMatcher("inside", "indoor", "indoors", "main room", "dining room")},
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Extract recomputes every field from the full user-side transcript in turn
// order, so a later mention always supersedes an earlier one, then overlays
// the result onto prior. Facts are scanned after the transcript and take
// precedence over it.
func (r *Rules) Extract(_ context.Context, prior session.Fields, transcript []session.TranscriptEntry, facts []string) (session.Fields, Signals, error) {
	var observed session.Fields
	resolver := &dateTimeResolver{now: r.now()}
	var notes []string
	lastUser := ""

	for _, entry := range transcript {
		if entry.Speaker != session.SpeakerUser {
			continue
		}
		lastUser = entry.Text
		r.observeTurn(entry.Text, &observed, resolver, &notes)
	}
	for _, fact := range facts {
		r.observeTurn(fact, &observed, resolver, &notes)
	}

	if dt := resolver.resolve(); dt != nil {
		observed.DateTime = dt
	}
	if len(notes) > 0 {
		joined := strings.Join(notes, "; ")
		observed.Notes = &joined
	}

	return merge(prior, observed), r.signals(lastUser), nil
}

// observeTurn scans one utterance (or fact) for every field pattern,
// overwriting earlier observations in place.
func (r *Rules) observeTurn(text string, obs *session.Fields, resolver *dateTimeResolver, notes *[]string) {
	lower := strings.ToLower(text)

	if m := phoneRe.FindString(text); m != "" {
		if phone, ok := normalizePhone(m); ok {
			obs.Phone = &phone
		}
	}
	if n, ok := lastPartySize(lower); ok {
		obs.PartySize = &n
	}
	if name, ok := extractName(text); ok {
		obs.GuestName = &name
	}
	if code, ok := extractCode(text); ok {
		obs.ConfirmationCode = &code
	}
	for _, rule := range r.areas {
		if rule.matcher.Contains(lower) {
			area := rule.area
			obs.AreaPref = &area
			break
		}
	}
	if kw, ok := r.noteKw.First(lower); ok {
		if !containsNote(*notes, kw) {
			*notes = append(*notes, kw)
		}
	}
	if intent, ok := r.classifyIntent(lower); ok {
		obs.Intent = &intent
	}

	resolver.observe(text)
}

// classifyIntent checks the destructive and corrective intents before the
// default reservation vocabulary, so "cancel my reservation" never
// classifies as reserve just because "reservation" appears.
func (r *Rules) classifyIntent(lower string) (session.Intent, bool) {
	switch {
	case r.cancelKw.Contains(lower):
		return session.IntentCancel, true
	case r.modifyKw.Contains(lower):
		return session.IntentModify, true
	case r.waitlistKw.Contains(lower):
		return session.IntentWaitlist, true
	case r.reserveKw.Contains(lower):
		return session.IntentReserve, true
	case r.faqKw.Contains(lower):
		return session.IntentFAQ, true
	}
	return "", false
}

// signals derives the per-utterance cues from the most recent user turn.
func (r *Rules) signals(lastUser string) Signals {
	if lastUser == "" {
		return Signals{}
	}
	lower := strings.ToLower(lastUser)

	var sig Signals
	for _, marker := range correctionMarkers {
		if strings.Contains(lower, marker) {
			sig.Correction = true
			break
		}
	}

	sig.Question = strings.Contains(lastUser, "?") || r.faqKw.Contains(lower)
	if !sig.Question {
		for _, opener := range questionOpeners {
			if strings.HasPrefix(lower, opener+" ") || lower == opener {
				sig.Question = true
				break
			}
		}
	}

	sig.Affirmative = r.affirmKw.Contains(lower)
	sig.SlotAccepted = sig.Affirmative || namesTime(lower)
	return sig
}

// namesTime reports whether the utterance contains an explicit time of day,
// which counts as accepting an offered slot ("7:30 works").
func namesTime(lower string) bool {
	return clockTimeRe.MatchString(lower) ||
		oclockRe.MatchString(lower) ||
		namedTimeRe.MatchString(lower) ||
		bareTimeRe.MatchString(lower)
}

// normalizePhone strips formatting and a leading country code, accepting
// only exact 10-digit numbers.
func normalizePhone(raw string) (string, bool) {
	digits := digitOnlyRe.ReplaceAllString(raw, "")
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	if len(digits) != 10 {
		return "", false
	}
	return digits, true
}

// lastPartySize returns the final party size mentioned in the utterance.
// Corrections read left to right ("table for 4… make that 6"), so the last
// match wins, and explicit "make that N" corrections win over everything.
func lastPartySize(lower string) (int, bool) {
	if m := partyFixRe.FindAllStringSubmatch(lower, -1); len(m) > 0 {
		return parseCount(m[len(m)-1][1])
	}

	n, ok := 0, false
	if m := partySizeRe.FindAllStringSubmatch(lower, -1); len(m) > 0 {
		n, ok = parseCount(m[len(m)-1][1])
	}
	if m := partyCountRe.FindAllStringSubmatch(lower, -1); len(m) > 0 {
		if v, vok := parseCount(m[len(m)-1][1]); vok {
			n, ok = v, true
		}
	}
	return n, ok
}

func parseCount(s string) (int, bool) {
	if n, ok := numberWords[s]; ok {
		return n, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 99 {
		return 0, false
	}
	return n, true
}

// extractName pulls a one- or two-word guest name from a self-introduction
// and title-cases it. Tokens that are common filler words are rejected.
func extractName(text string) (string, bool) {
	m := nameRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	var parts []string
	for _, tok := range strings.Fields(strings.ToLower(m[1])) {
		if _, stop := nameStopWords[tok]; stop {
			break
		}
		parts = append(parts, titleCase(tok))
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, " "), true
}

// extractCode finds a six-character confirmation code. A valid code mixes
// letters and digits; six-letter english words and six-digit numbers are
// rejected.
func extractCode(text string) (string, bool) {
	for _, m := range codeRe.FindAllStringSubmatch(text, -1) {
		candidate := strings.ToUpper(m[1])
		var hasLetter, hasDigit bool
		for _, c := range candidate {
			switch {
			case unicode.IsDigit(c):
				hasDigit = true
			case unicode.IsLetter(c):
				hasLetter = true
			}
		}
		if hasLetter && hasDigit {
			return candidate, true
		}
	}
	return "", false
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func containsNote(notes []string, kw string) bool {
	for _, n := range notes {
		if n == kw {
			return true
		}
	}
	return false
}
