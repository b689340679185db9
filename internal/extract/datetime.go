package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Date and time are frequently given in separate turns ("Friday would be
// great" … "let's say seven thirty"), so the resolver accumulates partial
// date and time observations across the whole transcript and only produces
// an instant once the combination is unambiguous. Later mentions override
// earlier ones, which also covers corrections.

var (
	relativeDayRe = regexp.MustCompile(`\b(today|tonight|tomorrow)\b`)
	weekdayRe     = regexp.MustCompile(`\b(next\s+)?(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)
	numericDateRe = regexp.MustCompile(`\b(\d{1,2})[/\-](\d{1,2})(?:[/\-](\d{2,4}))?\b`)

	clockTimeRe = regexp.MustCompile(`\b(\d{1,2})(?:[:.](\d{2}))?\s*(am|pm|a\.m\.|p\.m\.)\b`)
	oclockRe    = regexp.MustCompile(`\b(\d{1,2})\s*o'?clock\b`)
	namedTimeRe = regexp.MustCompile(`\b(noon|midnight)\b`)
	// "at 7", "around 7:30" — hour without an am/pm marker. "make that N"
	// is deliberately not matched here: it is a party-size correction.
	bareTimeRe = regexp.MustCompile(`\b(?:at|around|about)\s+(\d{1,2})(?:[:.](\d{2}))?\b`)
)

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// datePart is a resolved calendar date without a time of day.
type datePart struct {
	year  int
	month time.Month
	day   int
}

// timePart is a resolved time of day without a date.
type timePart struct {
	hour   int
	minute int
}

// dateTimeResolver accumulates partial observations turn by turn.
type dateTimeResolver struct {
	now  time.Time
	date *datePart
	tod  *timePart
}

// observe scans one user turn for date and time expressions, updating the
// accumulated parts. Later observations replace earlier ones.
func (r *dateTimeResolver) observe(text string) {
	lower := strings.ToLower(text)

	if m := relativeDayRe.FindStringSubmatch(lower); m != nil {
		d := r.now
		if m[1] == "tomorrow" {
			d = d.AddDate(0, 0, 1)
		}
		r.date = &datePart{year: d.Year(), month: d.Month(), day: d.Day()}
	} else if m := weekdayRe.FindStringSubmatch(lower); m != nil {
		target := weekdays[m[2]]
		daysAhead := (int(target) - int(r.now.Weekday()) + 7) % 7
		if daysAhead == 0 || m[1] != "" {
			daysAhead += 7
		}
		d := r.now.AddDate(0, 0, daysAhead)
		r.date = &datePart{year: d.Year(), month: d.Month(), day: d.Day()}
	} else if m := numericDateRe.FindStringSubmatch(lower); m != nil {
		month, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])
		year := r.now.Year()
		if m[3] != "" {
			year, _ = strconv.Atoi(m[3])
			if year < 100 {
				year += 2000
			}
		}
		if month >= 1 && month <= 12 && day >= 1 && day <= 31 {
			r.date = &datePart{year: year, month: time.Month(month), day: day}
		}
	}

	if m := clockTimeRe.FindStringSubmatch(lower); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute := 0
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		pm := strings.HasPrefix(m[3], "p")
		if pm && hour != 12 {
			hour += 12
		}
		if !pm && hour == 12 {
			hour = 0
		}
		if hour < 24 && minute < 60 {
			r.tod = &timePart{hour: hour, minute: minute}
		}
	} else if m := namedTimeRe.FindStringSubmatch(lower); m != nil {
		hour := 12
		if m[1] == "midnight" {
			hour = 0
		}
		r.tod = &timePart{hour: hour, minute: 0}
	} else if m := oclockRe.FindStringSubmatch(lower); m != nil {
		hour, _ := strconv.Atoi(m[1])
		r.tod = &timePart{hour: dinnerHour(hour), minute: 0}
	} else if m := bareTimeRe.FindStringSubmatch(lower); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute := 0
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		if hour <= 12 && minute < 60 {
			r.tod = &timePart{hour: dinnerHour(hour), minute: minute}
		}
	}
}

// resolve combines the accumulated parts into an absolute instant, or nil
// when the combination is still ambiguous. A time of day without a date
// resolves to its next occurrence: today when still ahead, tomorrow
// otherwise. A date without a time is held.
func (r *dateTimeResolver) resolve() *time.Time {
	if r.tod == nil {
		return nil
	}

	var t time.Time
	if r.date != nil {
		t = time.Date(r.date.year, r.date.month, r.date.day, r.tod.hour, r.tod.minute, 0, 0, r.now.Location())
	} else {
		t = time.Date(r.now.Year(), r.now.Month(), r.now.Day(), r.tod.hour, r.tod.minute, 0, 0, r.now.Location())
		if !t.After(r.now) {
			t = t.AddDate(0, 0, 1)
		}
	}
	return &t
}

// dinnerHour applies the restaurant-hours heuristic to a bare hour with no
// am/pm marker: callers asking for "7" almost always mean 7 pm. Hours below
// 9 are shifted into the evening.
func dinnerHour(hour int) int {
	if hour >= 1 && hour < 9 {
		return hour + 12
	}
	return hour
}
