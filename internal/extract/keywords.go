package extract

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// phoneticThreshold is the minimum Jaro-Winkler score required for a
// phonetically-matched keyword to be accepted. Calls arrive through a speech
// recogniser, so "patio" may surface as "paddy oh" and "reserve" as
// "rezerve" — exact substring matching alone misses too much.
const phoneticThreshold = 0.82

// keywordMatcher detects domain keywords in recognised speech, tolerating
// STT mis-hearings via Double Metaphone code overlap ranked by Jaro-Winkler
// similarity. Read-only after construction; safe for concurrent use.
type keywordMatcher struct {
	// codes maps each keyword to its Double Metaphone code set.
	codes map[string]map[string]struct{}
}

// newKeywordMatcher pre-computes phonetic codes for the given keywords.
// Multi-word keywords are matched by substring only.
func newKeywordMatcher(keywords ...string) *keywordMatcher {
	m := &keywordMatcher{codes: make(map[string]map[string]struct{}, len(keywords))}
	for _, kw := range keywords {
		if strings.ContainsRune(kw, ' ') {
			m.codes[kw] = nil // substring-only
			continue
		}
		m.codes[kw] = metaphoneCodes(kw)
	}
	return m
}

// Contains reports whether any of the matcher's keywords occurs in text,
// either as a literal substring or as a phonetically similar token.
func (m *keywordMatcher) Contains(text string) bool {
	_, ok := m.First(text)
	return ok
}

// First returns the first keyword found in text. Multi-word keywords match
// as substrings; single-word keywords match whole tokens only, exactly or
// phonetically, so "ok" never fires inside "booking".
func (m *keywordMatcher) First(text string) (string, bool) {
	lower := strings.ToLower(text)

	for kw, kwCodes := range m.codes {
		if kwCodes == nil && strings.Contains(lower, kw) {
			return kw, true
		}
	}

	tokens := strings.Fields(lower)
	for _, tok := range tokens {
		tok = strings.Trim(tok, ".,!?;:'\"")
		if tok == "" {
			continue
		}
		for kw, kwCodes := range m.codes {
			if kwCodes == nil {
				continue
			}
			if tok == kw {
				return kw, true
			}
		}
		tokCodes := metaphoneCodes(tok)
		for kw, kwCodes := range m.codes {
			if kwCodes == nil {
				continue
			}
			if !codesOverlap(tokCodes, kwCodes) {
				continue
			}
			if matchr.JaroWinkler(tok, kw, false) >= phoneticThreshold {
				return kw, true
			}
		}
	}
	return "", false
}

// metaphoneCodes returns the Double Metaphone code set for a single word.
func metaphoneCodes(word string) map[string]struct{} {
	codes := make(map[string]struct{}, 2)
	p, s := matchr.DoubleMetaphone(word)
	if p != "" {
		codes[p] = struct{}{}
	}
	if s != "" {
		codes[s] = struct{}{}
	}
	return codes
}

// codesOverlap reports whether the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
