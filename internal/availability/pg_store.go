package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the subset of pgx shared by pools and transactions.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// LoadAvailability reads a doctor's schedule and the unavailability windows
// intersecting [from, to). A zero range loads every window. With lock set the
// doctor row is held FOR UPDATE until q's transaction ends.
func LoadAvailability(ctx context.Context, q Querier, doctorID uuid.UUID, from, to time.Time, lock bool) (*Availability, error) {
	query := `
		SELECT weekly_schedule, schedule_version, time_zone
		FROM doctors
		WHERE id = $1
	`
	if lock {
		query += " FOR UPDATE"
	}

	var (
		raw     []byte
		version int
		tz      string
	)
	err := q.QueryRow(ctx, query, doctorID).Scan(&raw, &version, &tz)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	av := &Availability{DoctorID: doctorID, Version: version}
	if err := json.Unmarshal(raw, &av.Schedule); err != nil {
		return nil, fmt.Errorf("decode weekly schedule of doctor %s: %w", doctorID, err)
	}
	av.Location, err = time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("doctor %s time zone %q: %w", doctorID, tz, err)
	}

	windows, err := loadWindows(ctx, q, doctorID, from, to)
	if err != nil {
		return nil, err
	}
	av.Unavailability = windows

	return av, nil
}

func loadWindows(ctx context.Context, q Querier, doctorID uuid.UUID, from, to time.Time) ([]Window, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if from.IsZero() && to.IsZero() {
		rows, err = q.Query(ctx, `
			SELECT id, start_at, end_at
			FROM doctor_unavailability
			WHERE doctor_id = $1
			ORDER BY start_at
		`, doctorID)
	} else {
		rows, err = q.Query(ctx, `
			SELECT id, start_at, end_at
			FROM doctor_unavailability
			WHERE doctor_id = $1
			  AND start_at < $3
			  AND end_at > $2
			ORDER BY start_at
		`, doctorID, from, to)
	}
	if err != nil {
		return nil, fmt.Errorf("query unavailability: %w", err)
	}
	defer rows.Close()

	windows := []Window{}
	for rows.Next() {
		var w Window
		if err := rows.Scan(&w.ID, &w.Start, &w.End); err != nil {
			return nil, err
		}
		windows = append(windows, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return windows, nil
}

func (s *PgStore) GetAvailability(ctx context.Context, doctorID uuid.UUID) (*Availability, error) {
	return LoadAvailability(ctx, s.pool, doctorID, time.Time{}, time.Time{}, false)
}

func (s *PgStore) SaveSchedule(ctx context.Context, doctorID uuid.UUID, schedule WeeklySchedule, expectedVersion int) (int, error) {
	if schedule == nil {
		schedule = WeeklySchedule{}
	}
	raw, err := json.Marshal(schedule)
	if err != nil {
		return 0, fmt.Errorf("encode weekly schedule: %w", err)
	}

	var version int
	err = s.pool.QueryRow(ctx, `
		UPDATE doctors
		SET weekly_schedule = $2::jsonb,
		    schedule_version = schedule_version + 1,
		    updated_at = now()
		WHERE id = $1
		  AND schedule_version = $3
		RETURNING schedule_version
	`, doctorID, string(raw), expectedVersion).Scan(&version)
	if err == nil {
		return version, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}

	// nothing matched: either the doctor is gone or the version moved on
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM doctors WHERE id = $1)`, doctorID).Scan(&exists); err != nil {
		return 0, err
	}
	if !exists {
		return 0, ErrDoctorNotFound
	}
	return 0, ErrScheduleVersion
}

func (s *PgStore) AddUnavailability(ctx context.Context, doctorID uuid.UUID, w Window) (*Window, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM doctors WHERE id = $1)`, doctorID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrDoctorNotFound
	}

	var out Window
	err := s.pool.QueryRow(ctx, `
		INSERT INTO doctor_unavailability (id, doctor_id, start_at, end_at, created_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING id, start_at, end_at
	`, w.ID, doctorID, w.Start, w.End).Scan(&out.ID, &out.Start, &out.End)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *PgStore) BookedWithin(ctx context.Context, doctorID uuid.UUID, iv Interval) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id
		FROM appointments
		WHERE doctor_id = $1
		  AND status = 'booked'
		  AND start_time < $3
		  AND end_time > $2
		ORDER BY start_time
	`, doctorID, iv.Start, iv.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
