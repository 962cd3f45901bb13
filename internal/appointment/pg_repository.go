package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/hackgods/doctor-appointment-booking/internal/availability"
)

// Postgres error codes the booking transaction reacts to.
const (
	pgExclusionViolation   = "23P01"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

const appointmentColumns = `id, doctor_id, patient_id, hospital_id, start_time, end_time, fee::text, status, created_at, updated_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var email *string

	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.Name,
		&email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	p.Email = email
	return &p, nil
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	var rate string

	err := row.Scan(
		&d.ID,
		&d.UserID,
		&d.HospitalID,
		&d.Name,
		&d.Specialization,
		&rate,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	d.HourlyRate, err = decimal.NewFromString(rate)
	if err != nil {
		return nil, fmt.Errorf("doctor %s hourly rate %q: %w", d.ID, rate, err)
	}
	return &d, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var fee string

	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.PatientID,
		&a.HospitalID,
		&a.StartTime,
		&a.EndTime,
		&fee,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Fee, err = decimal.NewFromString(fee)
	if err != nil {
		return nil, fmt.Errorf("appointment %s fee %q: %w", a.ID, fee, err)
	}
	return &a, nil
}

func scanAppointmentDetail(row pgx.Row) (*AppointmentDetail, error) {
	var d AppointmentDetail
	var fee string

	err := row.Scan(
		&d.ID,
		&d.DoctorID,
		&d.PatientID,
		&d.HospitalID,
		&d.StartTime,
		&d.EndTime,
		&fee,
		&d.Status,
		&d.CreatedAt,
		&d.UpdatedAt,
		&d.Doctor.UserID,
		&d.Doctor.Name,
		&d.Patient.UserID,
		&d.Patient.Name,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	d.Doctor.ID = d.DoctorID
	d.Patient.ID = d.PatientID
	d.Fee, err = decimal.NewFromString(fee)
	if err != nil {
		return nil, fmt.Errorf("appointment %s fee %q: %w", d.ID, fee, err)
	}
	return &d, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// classifyTxError turns constraint and concurrency failures of the booking
// transaction into domain errors.
func classifyTxError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgExclusionViolation:
		return ErrSlotConflict.Wrap(err)
	case pgSerializationFailure, pgDeadlockDetected:
		return fmt.Errorf("%w: %v", ErrRetryable, err)
	}
	return err
}

// Interface methods

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, user_id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetPatientByUserID(ctx context.Context, userID uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, user_id, name, email, created_at, updated_at
		FROM patients
		WHERE user_id = $1
	`, userID)
	return scanPatient(row)
}

// GetDoctorByID loads the doctor's profile fields. Availability is left empty.
func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, user_id, hospital_id, name, specialization, hourly_rate::text
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

const detailQuery = `
	SELECT a.id, a.doctor_id, a.patient_id, a.hospital_id, a.start_time, a.end_time, a.fee::text,
	       a.status, a.created_at, a.updated_at,
	       d.user_id, d.name, p.user_id, p.name
	FROM appointments a
	JOIN doctors d ON d.id = a.doctor_id
	JOIN patients p ON p.id = a.patient_id
`

func (r *PgRepository) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	row := r.pool.QueryRow(ctx, detailQuery+` WHERE a.id = $1`, id)
	return scanAppointmentDetail(row)
}

func (r *PgRepository) ListAppointments(ctx context.Context, filter ListFilter) ([]AppointmentDetail, error) {
	var (
		where string
		arg   uuid.UUID
	)
	switch {
	case filter.DoctorID != nil:
		where, arg = "a.doctor_id = $1", *filter.DoctorID
	case filter.PatientID != nil:
		where, arg = "a.patient_id = $1", *filter.PatientID
	default:
		return nil, ErrInvalidFilter
	}

	rows, err := r.pool.Query(ctx, detailQuery+`
		WHERE `+where+`
		ORDER BY a.start_time DESC, a.created_at DESC
		LIMIT $2 OFFSET $3
	`, arg, filter.Limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []AppointmentDetail{}
	for rows.Next() {
		d, err := scanAppointmentDetail(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) InBookingTx(ctx context.Context, fn func(tx BookingTx) error) error {
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(&pgBookingTx{tx: tx})
	})
	return classifyTxError(err)
}

func (r *PgRepository) DeleteAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		DELETE FROM appointments
		WHERE id = $1
		RETURNING `+appointmentColumns, id)
	return scanAppointment(row)
}

func (r *PgRepository) CompleteElapsed(ctx context.Context, now time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE appointments
		SET status = 'completed',
		    updated_at = now()
		WHERE status = 'booked'
		  AND end_time <= $1
		RETURNING `+appointmentColumns, now)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

type pgBookingTx struct {
	tx pgx.Tx
}

func (t *pgBookingTx) LockDoctor(ctx context.Context, doctorID uuid.UUID, window availability.Interval) (*Doctor, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT id, user_id, hospital_id, name, specialization, hourly_rate::text
		FROM doctors
		WHERE id = $1
		FOR UPDATE
	`, doctorID)
	d, err := scanDoctor(row)
	if err != nil {
		return nil, err
	}

	av, err := availability.LoadAvailability(ctx, t.tx, doctorID, window.Start, window.End, false)
	if err != nil {
		return nil, fmt.Errorf("load availability: %w", err)
	}
	d.Availability = *av
	return d, nil
}

func (t *pgBookingTx) ActiveAppointments(ctx context.Context, doctorID uuid.UUID, window availability.Interval) ([]Appointment, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND status = 'booked'
		  AND start_time < $3
		  AND end_time > $2
		ORDER BY start_time
	`, doctorID, window.Start, window.End)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (t *pgBookingTx) InsertAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	row := t.tx.QueryRow(ctx, `
		INSERT INTO appointments (id, doctor_id, patient_id, hospital_id, start_time, end_time, fee, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, now(), now())
		RETURNING `+appointmentColumns,
		a.ID, a.DoctorID, a.PatientID, a.HospitalID, a.StartTime, a.EndTime, a.Fee.String(), a.Status)
	return scanAppointment(row)
}
