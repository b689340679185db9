package reserve

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

// waitPerParty is the rough wait estimate per party ahead in the waitlist.
const waitPerParty = 15 * time.Minute

// alternativeOffsets are the slot offsets tried, in order, when the
// requested time is full. Earlier slots first, then progressively later.
var alternativeOffsets = []time.Duration{
	-30 * time.Minute, -60 * time.Minute,
	30 * time.Minute, 60 * time.Minute, 90 * time.Minute, 120 * time.Minute,
}

const maxAlternatives = 4

// Service applies the booking rules on top of a Store.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService wraps a store with the booking rules.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// WithClock overrides the wall clock; for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CheckAvailability reports whether the requested slot can be booked and,
// when it cannot, proposes up to four nearby alternatives. Alternatives in
// the past are never proposed.
func (s *Service) CheckAvailability(ctx context.Context, restaurantID string, at time.Time, partySize int, areaPref string) (Availability, error) {
	tables, err := s.store.SuitableTables(ctx, restaurantID, partySize, areaPref)
	if err != nil {
		return Availability{}, fmt.Errorf("reserve: count tables: %w", err)
	}
	if tables == 0 {
		return Availability{}, ErrNoTables
	}

	free, err := s.freeTables(ctx, restaurantID, at, tables)
	if err != nil {
		return Availability{}, err
	}
	if free > 0 {
		area := areaPref
		if area == "" {
			area = "main dining"
		}
		return Availability{
			Available: true,
			Slot:      &Slot{Time: at, Area: area, TablesAvailable: free},
		}, nil
	}

	var alternatives []Slot
	for _, offset := range alternativeOffsets {
		alt := at.Add(offset)
		if alt.Before(s.now()) {
			continue
		}
		altFree, err := s.freeTables(ctx, restaurantID, alt, tables)
		if err != nil {
			return Availability{}, err
		}
		if altFree == 0 {
			continue
		}

		areas := []string{areaPref}
		if areaPref == "" {
			areas = []string{"main dining", "patio"}
		}
		for _, area := range areas {
			alternatives = append(alternatives, Slot{Time: alt, Area: area, TablesAvailable: altFree})
		}
		if len(alternatives) >= maxAlternatives {
			break
		}
	}

	return Availability{Available: false, Alternatives: alternatives}, nil
}

// freeTables returns how many of the suitable tables are unbooked for the
// hold window starting at.
func (s *Service) freeTables(ctx context.Context, restaurantID string, at time.Time, tables int) (int, error) {
	booked, err := s.store.OverlappingReservations(ctx, restaurantID, at, at.Add(DefaultDuration))
	if err != nil {
		return 0, fmt.Errorf("reserve: count overlaps: %w", err)
	}
	if booked >= tables {
		return 0, nil
	}
	return tables - booked, nil
}

// Create books a confirmed reservation and assigns a confirmation code.
func (s *Service) Create(ctx context.Context, r Reservation) (*Reservation, error) {
	if r.PartySize < 1 {
		return nil, fmt.Errorf("reserve: party size %d out of range", r.PartySize)
	}
	if r.GuestName == "" || r.Phone == "" {
		return nil, fmt.Errorf("reserve: guest name and phone are required")
	}
	if r.Duration == 0 {
		r.Duration = DefaultDuration
	}
	r.Status = StatusConfirmed
	r.ConfirmationCode = GenerateCode()

	if err := s.store.CreateReservation(ctx, &r); err != nil {
		return nil, fmt.Errorf("reserve: create: %w", err)
	}
	return &r, nil
}

// Find looks a reservation up by confirmation code, phone, or guest name.
func (s *Service) Find(ctx context.Context, restaurantID string, q Query) (*Reservation, error) {
	if q.IsZero() {
		return nil, fmt.Errorf("reserve: find needs at least one identifier")
	}
	q.ConfirmationCode = strings.ToUpper(q.ConfirmationCode)
	return s.store.FindReservation(ctx, restaurantID, q)
}

// Modify updates an existing reservation.
func (s *Service) Modify(ctx context.Context, id int64, u Update) (*Reservation, error) {
	if u.PartySize != nil && *u.PartySize < 1 {
		return nil, fmt.Errorf("reserve: party size %d out of range", *u.PartySize)
	}
	return s.store.UpdateReservation(ctx, id, u)
}

// Cancel cancels the newest reservation matching q.
func (s *Service) Cancel(ctx context.Context, restaurantID string, q Query) (*Reservation, error) {
	if q.IsZero() {
		return nil, fmt.Errorf("reserve: cancel needs at least one identifier")
	}
	q.ConfirmationCode = strings.ToUpper(q.ConfirmationCode)
	return s.store.CancelReservation(ctx, restaurantID, q)
}

// Upcoming lists the next bookings, soonest first.
func (s *Service) Upcoming(ctx context.Context, restaurantID string, limit int) ([]Reservation, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.store.UpcomingReservations(ctx, restaurantID, s.now(), limit)
}

// Waitlist adds a party to the waitlist and returns the entry, its 1-based
// position, and the estimated wait.
func (s *Service) Waitlist(ctx context.Context, e WaitlistEntry) (*WaitlistEntry, int, time.Duration, error) {
	if e.PartySize < 1 {
		return nil, 0, 0, fmt.Errorf("reserve: party size %d out of range", e.PartySize)
	}
	e.Status = WaitWaiting
	position, err := s.store.AddWaitlist(ctx, &e)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("reserve: add waitlist: %w", err)
	}
	return &e, position, time.Duration(position) * waitPerParty, nil
}

// WaitlistStatus reports an entry's current position and estimated wait.
func (s *Service) WaitlistStatus(ctx context.Context, id int64) (*WaitlistEntry, int, time.Duration, error) {
	entry, position, err := s.store.WaitlistPosition(ctx, id)
	if err != nil {
		return nil, 0, 0, err
	}
	return entry, position, time.Duration(position) * waitPerParty, nil
}

// LeaveWaitlist removes an entry with the given terminal status.
func (s *Service) LeaveWaitlist(ctx context.Context, id int64, status WaitStatus) (*WaitlistEntry, error) {
	return s.store.RemoveWaitlist(ctx, id, status)
}

const (
	codeLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	codeDigits  = "0123456789"
	codeLen     = 6
)

// GenerateCode produces a 6-character confirmation code with at least one
// letter and one digit, so codes can never be mistaken for an ordinary word
// or a phone-number fragment.
func GenerateCode() string {
	alphabet := codeLetters + codeDigits
	buf := make([]byte, codeLen)
	for {
		var hasLetter, hasDigit bool
		for i := range buf {
			c := alphabet[rand.IntN(len(alphabet))]
			buf[i] = c
			if c >= '0' && c <= '9' {
				hasDigit = true
			} else {
				hasLetter = true
			}
		}
		if hasLetter && hasDigit {
			return string(buf)
		}
	}
}
