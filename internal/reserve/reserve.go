// Package reserve manages reservations, table availability, and the
// waitlist.
//
// The [Service] holds the booking rules (slot conflicts, alternative-slot
// search, confirmation codes, wait estimates) and delegates persistence to a
// [Store]. Two stores are provided: a Postgres store for production and an
// in-memory store for simulation mode and tests.
package reserve

import (
	"context"
	"errors"
	"time"
)

// Status is the lifecycle state of a reservation.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusSeated    Status = "seated"
	StatusNoShow    Status = "no_show"
)

// WaitStatus is the lifecycle state of a waitlist entry.
type WaitStatus string

const (
	WaitWaiting   WaitStatus = "waiting"
	WaitNotified  WaitStatus = "notified"
	WaitSeated    WaitStatus = "seated"
	WaitCancelled WaitStatus = "cancelled"
)

// DefaultDuration is how long a table is held per reservation.
const DefaultDuration = 90 * time.Minute

// Reservation is one confirmed or pending booking.
type Reservation struct {
	ID               int64         `json:"id"`
	RestaurantID     string        `json:"restaurant_id"`
	GuestName        string        `json:"guest_name"`
	Phone            string        `json:"phone"`
	PartySize        int           `json:"party_size"`
	StartTime        time.Time     `json:"start_time"`
	Duration         time.Duration `json:"-"`
	AreaPref         string        `json:"area_pref,omitempty"`
	Notes            string        `json:"notes,omitempty"`
	Status           Status        `json:"status"`
	ConfirmationCode string        `json:"confirmation_code"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// WaitlistEntry is one party waiting for a table right now.
type WaitlistEntry struct {
	ID           int64      `json:"id"`
	RestaurantID string     `json:"restaurant_id"`
	GuestName    string     `json:"guest_name"`
	Phone        string     `json:"phone"`
	PartySize    int        `json:"party_size"`
	Notes        string     `json:"notes,omitempty"`
	Status       WaitStatus `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Slot describes one bookable time slot.
type Slot struct {
	Time            time.Time `json:"time"`
	Area            string    `json:"area"`
	TablesAvailable int       `json:"tables_available"`
}

// Availability is the answer to an availability check: either the requested
// slot, or up to four nearby alternatives.
type Availability struct {
	Available    bool   `json:"available"`
	Slot         *Slot  `json:"slot,omitempty"`
	Alternatives []Slot `json:"alternatives,omitempty"`
}

// Query selects a reservation by any combination of identifiers. At least
// one field must be set.
type Query struct {
	ConfirmationCode string
	Phone            string
	GuestName        string
}

// IsZero reports whether the query carries no identifier at all.
func (q Query) IsZero() bool {
	return q.ConfirmationCode == "" && q.Phone == "" && q.GuestName == ""
}

// Update carries the modifiable reservation fields; nil means unchanged.
type Update struct {
	PartySize *int
	StartTime *time.Time
	AreaPref  *string
	Notes     *string
}

var (
	// ErrNotFound is returned when no reservation or waitlist entry
	// matches.
	ErrNotFound = errors.New("reserve: not found")

	// ErrNoTables is returned when the venue has no table big enough for
	// the party at all, regardless of time.
	ErrNoTables = errors.New("reserve: no table fits the party size")
)

// Store is the persistence boundary. Implementations must be safe for
// concurrent use.
type Store interface {
	// SuitableTables counts tables that seat at least partySize, optionally
	// restricted to an area ("" means any).
	SuitableTables(ctx context.Context, restaurantID string, partySize int, area string) (int, error)

	// OverlappingReservations counts pending or confirmed reservations
	// whose hold window overlaps [start, end).
	OverlappingReservations(ctx context.Context, restaurantID string, start, end time.Time) (int, error)

	// CreateReservation persists r, filling ID and the timestamps.
	CreateReservation(ctx context.Context, r *Reservation) error

	// FindReservation returns the newest reservation matching q, or
	// ErrNotFound.
	FindReservation(ctx context.Context, restaurantID string, q Query) (*Reservation, error)

	// UpdateReservation applies u to the reservation with the given id.
	UpdateReservation(ctx context.Context, id int64, u Update) (*Reservation, error)

	// CancelReservation cancels the newest reservation matching q.
	CancelReservation(ctx context.Context, restaurantID string, q Query) (*Reservation, error)

	// UpcomingReservations lists pending/confirmed reservations starting at
	// or after from, soonest first.
	UpcomingReservations(ctx context.Context, restaurantID string, from time.Time, limit int) ([]Reservation, error)

	// AddWaitlist persists e and returns its 1-based position among waiting
	// entries.
	AddWaitlist(ctx context.Context, e *WaitlistEntry) (position int, err error)

	// WaitlistPosition returns the entry and its current position. Position
	// is 0 when the entry is no longer waiting.
	WaitlistPosition(ctx context.Context, id int64) (*WaitlistEntry, int, error)

	// RemoveWaitlist moves the entry to the given terminal status.
	RemoveWaitlist(ctx context.Context, id int64, status WaitStatus) (*WaitlistEntry, error)
}
