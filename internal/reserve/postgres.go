package reserve

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is the production Store, backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Store = (*Postgres)(nil)

// NewPostgres connects to connString and ensures the schema exists.
func NewPostgres(ctx context.Context, connString string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("reserve: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("reserve: ping postgres: %w", err)
	}

	p := &Postgres{pool: pool}
	if err := p.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() { p.pool.Close() }

// Ping reports backend reachability; used by the health endpoint.
func (p *Postgres) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }

const schema = `
CREATE TABLE IF NOT EXISTS tables (
	id            BIGSERIAL PRIMARY KEY,
	restaurant_id TEXT        NOT NULL,
	name          TEXT        NOT NULL,
	capacity      INT         NOT NULL,
	area          TEXT        NOT NULL
);

CREATE TABLE IF NOT EXISTS reservations (
	id                BIGSERIAL PRIMARY KEY,
	restaurant_id     TEXT        NOT NULL,
	guest_name        TEXT        NOT NULL,
	phone             TEXT        NOT NULL,
	party_size        INT         NOT NULL,
	start_time        TIMESTAMPTZ NOT NULL,
	duration_min      INT         NOT NULL DEFAULT 90,
	area_pref         TEXT        NOT NULL DEFAULT '',
	notes             TEXT        NOT NULL DEFAULT '',
	status            TEXT        NOT NULL,
	confirmation_code TEXT        NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS reservations_slot_idx
	ON reservations (restaurant_id, status, start_time);
CREATE INDEX IF NOT EXISTS reservations_code_idx
	ON reservations (restaurant_id, confirmation_code);

CREATE TABLE IF NOT EXISTS waitlist (
	id            BIGSERIAL PRIMARY KEY,
	restaurant_id TEXT        NOT NULL,
	guest_name    TEXT        NOT NULL,
	phone         TEXT        NOT NULL,
	party_size    INT         NOT NULL,
	notes         TEXT        NOT NULL DEFAULT '',
	status        TEXT        NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS waitlist_waiting_idx
	ON waitlist (restaurant_id, status, created_at);
`

func (p *Postgres) ensureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("reserve: ensure schema: %w", err)
	}
	return nil
}

// SeedTables inserts the venue layout if no tables exist yet for the
// restaurant.
func (p *Postgres) SeedTables(ctx context.Context, restaurantID string, tables []Table) error {
	var count int
	err := p.pool.QueryRow(ctx,
		`SELECT count(*) FROM tables WHERE restaurant_id = $1`, restaurantID).Scan(&count)
	if err != nil {
		return fmt.Errorf("reserve: count tables: %w", err)
	}
	if count > 0 {
		return nil
	}
	for _, t := range tables {
		_, err := p.pool.Exec(ctx,
			`INSERT INTO tables (restaurant_id, name, capacity, area) VALUES ($1, $2, $3, $4)`,
			restaurantID, t.Name, t.Capacity, t.Area)
		if err != nil {
			return fmt.Errorf("reserve: seed table %s: %w", t.Name, err)
		}
	}
	return nil
}

// SuitableTables implements Store.
func (p *Postgres) SuitableTables(ctx context.Context, restaurantID string, partySize int, area string) (int, error) {
	query := `SELECT count(*) FROM tables WHERE restaurant_id = $1 AND capacity >= $2`
	args := []any{restaurantID, partySize}
	if area != "" {
		query += ` AND area = $3`
		args = append(args, area)
	}

	var count int
	if err := p.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("reserve: suitable tables: %w", err)
	}
	return count, nil
}

// OverlappingReservations implements Store.
func (p *Postgres) OverlappingReservations(ctx context.Context, restaurantID string, start, end time.Time) (int, error) {
	var count int
	err := p.pool.QueryRow(ctx, `
		SELECT count(*) FROM reservations
		WHERE restaurant_id = $1
		  AND status IN ('pending', 'confirmed')
		  AND start_time < $2
		  AND start_time + make_interval(mins => duration_min) > $3`,
		restaurantID, end, start).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("reserve: overlapping reservations: %w", err)
	}
	return count, nil
}

const reservationColumns = `id, restaurant_id, guest_name, phone, party_size, start_time,
	duration_min, area_pref, notes, status, confirmation_code, created_at, updated_at`

func scanReservation(row pgx.Row) (*Reservation, error) {
	var r Reservation
	var durationMin int
	err := row.Scan(&r.ID, &r.RestaurantID, &r.GuestName, &r.Phone, &r.PartySize,
		&r.StartTime, &durationMin, &r.AreaPref, &r.Notes, &r.Status,
		&r.ConfirmationCode, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	r.Duration = time.Duration(durationMin) * time.Minute
	return &r, nil
}

// CreateReservation implements Store.
func (p *Postgres) CreateReservation(ctx context.Context, r *Reservation) error {
	err := p.pool.QueryRow(ctx, `
		INSERT INTO reservations
			(restaurant_id, guest_name, phone, party_size, start_time,
			 duration_min, area_pref, notes, status, confirmation_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`,
		r.RestaurantID, r.GuestName, r.Phone, r.PartySize, r.StartTime,
		int(r.Duration.Minutes()), r.AreaPref, r.Notes, r.Status, r.ConfirmationCode,
	).Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("reserve: insert reservation: %w", err)
	}
	return nil
}

// queryConditions renders a Query as SQL conditions starting at placeholder
// $2 ($1 is the restaurant id).
func queryConditions(q Query) (string, []any) {
	conds := []string{"restaurant_id = $1"}
	var args []any
	next := 2
	if q.ConfirmationCode != "" {
		conds = append(conds, fmt.Sprintf("confirmation_code = $%d", next))
		args = append(args, q.ConfirmationCode)
		next++
	}
	if q.Phone != "" {
		conds = append(conds, fmt.Sprintf("phone = $%d", next))
		args = append(args, q.Phone)
		next++
	}
	if q.GuestName != "" {
		conds = append(conds, fmt.Sprintf("guest_name ILIKE $%d", next))
		args = append(args, "%"+q.GuestName+"%")
	}
	return strings.Join(conds, " AND "), args
}

// FindReservation implements Store.
func (p *Postgres) FindReservation(ctx context.Context, restaurantID string, q Query) (*Reservation, error) {
	where, args := queryConditions(q)
	row := p.pool.QueryRow(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE `+where+
			` ORDER BY start_time DESC LIMIT 1`,
		append([]any{restaurantID}, args...)...)

	r, err := scanReservation(row)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("reserve: find reservation: %w", err)
	}
	return r, err
}

// UpdateReservation implements Store.
func (p *Postgres) UpdateReservation(ctx context.Context, id int64, u Update) (*Reservation, error) {
	sets := []string{"updated_at = now()"}
	args := []any{id}
	next := 2
	add := func(col string, val any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, next))
		args = append(args, val)
		next++
	}
	if u.PartySize != nil {
		add("party_size", *u.PartySize)
	}
	if u.StartTime != nil {
		add("start_time", *u.StartTime)
	}
	if u.AreaPref != nil {
		add("area_pref", *u.AreaPref)
	}
	if u.Notes != nil {
		add("notes", *u.Notes)
	}

	row := p.pool.QueryRow(ctx,
		`UPDATE reservations SET `+strings.Join(sets, ", ")+
			` WHERE id = $1 RETURNING `+reservationColumns, args...)
	r, err := scanReservation(row)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("reserve: update reservation: %w", err)
	}
	return r, err
}

// CancelReservation implements Store.
func (p *Postgres) CancelReservation(ctx context.Context, restaurantID string, q Query) (*Reservation, error) {
	where, args := queryConditions(q)
	row := p.pool.QueryRow(ctx, `
		UPDATE reservations SET status = 'cancelled', updated_at = now()
		WHERE id = (
			SELECT id FROM reservations WHERE `+where+`
			ORDER BY start_time DESC LIMIT 1
		)
		RETURNING `+reservationColumns,
		append([]any{restaurantID}, args...)...)

	r, err := scanReservation(row)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("reserve: cancel reservation: %w", err)
	}
	return r, err
}

// UpcomingReservations implements Store.
func (p *Postgres) UpcomingReservations(ctx context.Context, restaurantID string, from time.Time, limit int) ([]Reservation, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+reservationColumns+` FROM reservations
		 WHERE restaurant_id = $1 AND start_time >= $2
		   AND status IN ('pending', 'confirmed')
		 ORDER BY start_time ASC LIMIT $3`,
		restaurantID, from, limit)
	if err != nil {
		return nil, fmt.Errorf("reserve: upcoming reservations: %w", err)
	}
	defer rows.Close()

	var out []Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("reserve: scan reservation: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// AddWaitlist implements Store.
func (p *Postgres) AddWaitlist(ctx context.Context, e *WaitlistEntry) (int, error) {
	err := p.pool.QueryRow(ctx, `
		INSERT INTO waitlist (restaurant_id, guest_name, phone, party_size, notes, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		e.RestaurantID, e.GuestName, e.Phone, e.PartySize, e.Notes, e.Status,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("reserve: insert waitlist: %w", err)
	}
	return p.waitPosition(ctx, e.RestaurantID, e.CreatedAt)
}

// WaitlistPosition implements Store.
func (p *Postgres) WaitlistPosition(ctx context.Context, id int64) (*WaitlistEntry, int, error) {
	var e WaitlistEntry
	err := p.pool.QueryRow(ctx, `
		SELECT id, restaurant_id, guest_name, phone, party_size, notes, status, created_at
		FROM waitlist WHERE id = $1`, id,
	).Scan(&e.ID, &e.RestaurantID, &e.GuestName, &e.Phone, &e.PartySize, &e.Notes, &e.Status, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, fmt.Errorf("reserve: waitlist lookup: %w", err)
	}
	if e.Status != WaitWaiting {
		return &e, 0, nil
	}

	position, err := p.waitPosition(ctx, e.RestaurantID, e.CreatedAt)
	if err != nil {
		return nil, 0, err
	}
	return &e, position, nil
}

func (p *Postgres) waitPosition(ctx context.Context, restaurantID string, createdAt time.Time) (int, error) {
	var position int
	err := p.pool.QueryRow(ctx, `
		SELECT count(*) FROM waitlist
		WHERE restaurant_id = $1 AND status = 'waiting' AND created_at <= $2`,
		restaurantID, createdAt).Scan(&position)
	if err != nil {
		return 0, fmt.Errorf("reserve: waitlist position: %w", err)
	}
	return position, nil
}

// RemoveWaitlist implements Store.
func (p *Postgres) RemoveWaitlist(ctx context.Context, id int64, status WaitStatus) (*WaitlistEntry, error) {
	var e WaitlistEntry
	err := p.pool.QueryRow(ctx, `
		UPDATE waitlist SET status = $2 WHERE id = $1
		RETURNING id, restaurant_id, guest_name, phone, party_size, notes, status, created_at`,
		id, status,
	).Scan(&e.ID, &e.RestaurantID, &e.GuestName, &e.Phone, &e.PartySize, &e.Notes, &e.Status, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reserve: remove waitlist: %w", err)
	}
	return &e, nil
}
