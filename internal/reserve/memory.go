package reserve

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// Table is one physical table in the venue layout.
type Table struct {
	Name     string `yaml:"name"`
	Capacity int    `yaml:"capacity"`
	Area     string `yaml:"area"`
}

// Memory is an in-memory Store. It backs simulation mode and tests, and it
// is the store of last resort when no database is configured.
type Memory struct {
	mu           sync.RWMutex
	tables       []Table
	reservations []Reservation
	waitlist     []WaitlistEntry
	nextID       int64
	now          func() time.Time
}

var _ Store = (*Memory)(nil)

// NewMemory creates an in-memory store over the given table layout.
func NewMemory(tables []Table) *Memory {
	return &Memory{tables: tables, nextID: 1, now: time.Now}
}

// DefaultLayout is a small venue used when no layout is configured: eight
// main-dining tables, four patio tables, and two large booths.
func DefaultLayout() []Table {
	var tables []Table
	for i := 0; i < 8; i++ {
		tables = append(tables, Table{Name: "main", Capacity: 4, Area: "main dining"})
	}
	for i := 0; i < 4; i++ {
		tables = append(tables, Table{Name: "patio", Capacity: 4, Area: "patio"})
	}
	tables = append(tables,
		Table{Name: "booth-1", Capacity: 8, Area: "booth"},
		Table{Name: "booth-2", Capacity: 8, Area: "booth"},
	)
	return tables
}

// SuitableTables implements Store.
func (m *Memory) SuitableTables(_ context.Context, _ string, partySize int, area string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, t := range m.tables {
		if t.Capacity < partySize {
			continue
		}
		if area != "" && t.Area != area {
			continue
		}
		count++
	}
	return count, nil
}

// OverlappingReservations implements Store.
func (m *Memory) OverlappingReservations(_ context.Context, restaurantID string, start, end time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, r := range m.reservations {
		if r.RestaurantID != restaurantID {
			continue
		}
		if r.Status != StatusPending && r.Status != StatusConfirmed {
			continue
		}
		if r.StartTime.Before(end) && r.StartTime.Add(r.Duration).After(start) {
			count++
		}
	}
	return count, nil
}

// CreateReservation implements Store.
func (m *Memory) CreateReservation(_ context.Context, r *Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r.ID = m.nextID
	m.nextID++
	r.CreatedAt = m.now()
	r.UpdatedAt = r.CreatedAt
	m.reservations = append(m.reservations, *r)
	return nil
}

// FindReservation implements Store.
func (m *Memory) FindReservation(_ context.Context, restaurantID string, q Query) (*Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if idx := m.match(restaurantID, q); idx >= 0 {
		out := m.reservations[idx]
		return &out, nil
	}
	return nil, ErrNotFound
}

// UpdateReservation implements Store.
func (m *Memory) UpdateReservation(_ context.Context, id int64, u Update) (*Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.reservations {
		if m.reservations[i].ID != id {
			continue
		}
		r := &m.reservations[i]
		if u.PartySize != nil {
			r.PartySize = *u.PartySize
		}
		if u.StartTime != nil {
			r.StartTime = *u.StartTime
		}
		if u.AreaPref != nil {
			r.AreaPref = *u.AreaPref
		}
		if u.Notes != nil {
			r.Notes = *u.Notes
		}
		r.UpdatedAt = m.now()
		out := *r
		return &out, nil
	}
	return nil, ErrNotFound
}

// CancelReservation implements Store.
func (m *Memory) CancelReservation(_ context.Context, restaurantID string, q Query) (*Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.match(restaurantID, q)
	if idx < 0 {
		return nil, ErrNotFound
	}
	m.reservations[idx].Status = StatusCancelled
	m.reservations[idx].UpdatedAt = m.now()
	out := m.reservations[idx]
	return &out, nil
}

// match returns the index of the newest reservation matching q, or -1.
// Callers hold the lock.
func (m *Memory) match(restaurantID string, q Query) int {
	best := -1
	for i, r := range m.reservations {
		if r.RestaurantID != restaurantID {
			continue
		}
		if q.ConfirmationCode != "" && r.ConfirmationCode != q.ConfirmationCode {
			continue
		}
		if q.Phone != "" && r.Phone != q.Phone {
			continue
		}
		if q.GuestName != "" && !strings.Contains(strings.ToLower(r.GuestName), strings.ToLower(q.GuestName)) {
			continue
		}
		if best < 0 || r.StartTime.After(m.reservations[best].StartTime) {
			best = i
		}
	}
	return best
}

// UpcomingReservations implements Store.
func (m *Memory) UpcomingReservations(_ context.Context, restaurantID string, from time.Time, limit int) ([]Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Reservation
	for _, r := range m.reservations {
		if r.RestaurantID != restaurantID {
			continue
		}
		if r.Status != StatusPending && r.Status != StatusConfirmed {
			continue
		}
		if r.StartTime.Before(from) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// AddWaitlist implements Store.
func (m *Memory) AddWaitlist(_ context.Context, e *WaitlistEntry) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e.ID = m.nextID
	m.nextID++
	e.CreatedAt = m.now()
	m.waitlist = append(m.waitlist, *e)
	return m.position(e.ID), nil
}

// WaitlistPosition implements Store.
func (m *Memory) WaitlistPosition(_ context.Context, id int64) (*WaitlistEntry, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, e := range m.waitlist {
		if e.ID == id {
			out := e
			if e.Status != WaitWaiting {
				return &out, 0, nil
			}
			return &out, m.position(id), nil
		}
	}
	return nil, 0, ErrNotFound
}

// RemoveWaitlist implements Store.
func (m *Memory) RemoveWaitlist(_ context.Context, id int64, status WaitStatus) (*WaitlistEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.waitlist {
		if m.waitlist[i].ID == id {
			m.waitlist[i].Status = status
			out := m.waitlist[i]
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

// position returns the 1-based position of entry id among waiting entries
// for its restaurant, in arrival order. Callers hold the lock.
func (m *Memory) position(id int64) int {
	var target *WaitlistEntry
	for i := range m.waitlist {
		if m.waitlist[i].ID == id {
			target = &m.waitlist[i]
			break
		}
	}
	if target == nil || target.Status != WaitWaiting {
		return 0
	}

	pos := 0
	for _, e := range m.waitlist {
		if e.RestaurantID != target.RestaurantID || e.Status != WaitWaiting {
			continue
		}
		if !e.CreatedAt.After(target.CreatedAt) {
			pos++
		}
	}
	return pos
}
