package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/doctor-appointment-booking/internal/apperr"
	"github.com/hackgods/doctor-appointment-booking/internal/availability"
	"github.com/hackgods/doctor-appointment-booking/internal/config"
	redisclient "github.com/hackgods/doctor-appointment-booking/internal/redis"
)

const (
	EventAppointmentBooked    = "APPOINTMENT_BOOKED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

var (
	ErrInvalidInterval     = availability.ErrInvalidInterval
	ErrSlotConflict        = availability.ErrSlotConflict
	ErrOutsideWorkingHours = availability.ErrOutsideWorkingHours
	ErrDoctorUnavailable   = availability.ErrDoctorUnavailable

	ErrForbidden          = apperr.New(apperr.KindForbidden, "forbidden", "only the doctor or the patient on the appointment may do this")
	ErrInvalidFilter      = apperr.New(apperr.KindInvalid, "invalid_filter", "exactly one of doctorId or patientId is required")
	ErrBookingBusy        = apperr.New(apperr.KindInternal, "booking_busy", "doctor's calendar is busy, please retry shortly")
	ErrDeleteFailed       = apperr.New(apperr.KindInternal, "delete_failed", "unable to delete the appointment")
	ErrNotificationFailed = apperr.New(apperr.KindInternal, "notification_failed", "appointment cancelled but the notification could not be sent")

	// ErrRetryable marks storage failures that may succeed when the whole
	// booking unit is run again (serialization failures, deadlocks).
	ErrRetryable = errors.New("retryable storage conflict")
)

// Locker serializes critical sections per doctor across processes.
type Locker interface {
	WithDoctorLock(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context) error) error
}

// Notifier delivers a message to a user. A nil error means delivery was accepted.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// CheckoutGateway creates a hosted payment session and returns its redirect URL.
type CheckoutGateway interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (string, error)
}

type Service struct {
	repo     Repository
	locker   Locker
	notifier Notifier
	payments CheckoutGateway
	cfg      config.Config
}

// NewService wires the booking engine. payments may be nil when checkout is disabled.
func NewService(repo Repository, locker Locker, notifier Notifier, payments CheckoutGateway, cfg config.Config) *Service {
	return &Service{
		repo:     repo,
		locker:   locker,
		notifier: notifier,
		payments: payments,
		cfg:      cfg,
	}
}

// BookAppointment reserves iv with the doctor for the patient.
// The conflict check and the insert run under a per-doctor lock inside one
// transaction that also locks the doctor row, so two racing requests for
// overlapping time cannot both commit.
func (s *Service) BookAppointment(ctx context.Context, doctorID, patientID uuid.UUID, iv availability.Interval) (*Appointment, error) {
	if err := iv.Validate(); err != nil {
		return nil, err
	}

	patient, err := s.repo.GetPatientByID(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("load patient: %w", err)
	}

	var created *Appointment

	err = s.locker.WithDoctorLock(ctx, doctorID, func(lockCtx context.Context) error {
		return s.retryTransient(lockCtx, func() error {
			created = nil
			return s.repo.InBookingTx(lockCtx, func(tx BookingTx) error {
				doctor, err := tx.LockDoctor(lockCtx, doctorID, iv)
				if err != nil {
					return err
				}

				active, err := tx.ActiveAppointments(lockCtx, doctorID, iv)
				if err != nil {
					return fmt.Errorf("load active appointments: %w", err)
				}
				intervals := make([]availability.Interval, 0, len(active))
				for _, a := range active {
					intervals = append(intervals, a.Interval())
				}

				if err := availability.ValidateSlot(doctor.Availability, intervals, iv); err != nil {
					return err
				}

				appt, err := tx.InsertAppointment(lockCtx, Appointment{
					ID:         uuid.New(),
					DoctorID:   doctor.ID,
					PatientID:  patient.ID,
					HospitalID: doctor.HospitalID,
					StartTime:  iv.Start,
					EndTime:    iv.End,
					Fee:        CalculateFee(iv, doctor.HourlyRate),
					Status:     StatusBooked,
				})
				if err != nil {
					return err
				}
				created = appt
				return nil
			})
		})
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrBookingBusy.Wrap(err)
		}
		return nil, err
	}

	s.logEvent(ctx, created.ID, EventAppointmentBooked, map[string]any{
		"doctor_id":  created.DoctorID.String(),
		"patient_id": created.PatientID.String(),
		"start_time": created.StartTime,
		"end_time":   created.EndTime,
		"fee":        created.Fee.String(),
	})

	zerolog.Ctx(ctx).Info().
		Str("appointment_id", created.ID.String()).
		Str("doctor_id", created.DoctorID.String()).
		Str("fee", created.Fee.String()).
		Msg("appointment booked")

	return created, nil
}

// retryTransient reruns op while it fails with ErrRetryable. Any other
// error, slot conflicts included, ends the loop at once.
func (s *Service) retryTransient(ctx context.Context, op func() error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 20 * time.Millisecond
	eb.MaxInterval = 250 * time.Millisecond

	retries := s.cfg.BookingRetries
	if retries < 0 {
		retries = 0
	}
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(retries)), ctx)

	return backoff.RetryNotify(func() error {
		err := op()
		if err == nil || errors.Is(err, ErrRetryable) {
			return err
		}
		return backoff.Permanent(err)
	}, b, func(err error, next time.Duration) {
		zerolog.Ctx(ctx).Warn().Err(err).Dur("retry_in", next).Msg("booking transaction retry")
	})
}

// GetAppointment retrieves a fully hydrated appointment by ID
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	detail, err := s.repo.GetAppointmentDetail(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return detail, nil
}

// ListAppointments returns a doctor's or a patient's appointments, latest first.
func (s *Service) ListAppointments(ctx context.Context, filter ListFilter) ([]AppointmentDetail, error) {
	if (filter.DoctorID == nil) == (filter.PatientID == nil) {
		return nil, ErrInvalidFilter
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	appointments, err := s.repo.ListAppointments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appointments, nil
}

// PatientForUser resolves the patient profile of an authenticated user.
func (s *Service) PatientForUser(ctx context.Context, userID uuid.UUID) (*Patient, error) {
	p, err := s.repo.GetPatientByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load patient: %w", err)
	}
	return p, nil
}

// AuthorizeDoctor checks that the actor is the doctor whose calendar is being changed.
func (s *Service) AuthorizeDoctor(ctx context.Context, doctorID, actorUserID uuid.UUID) error {
	d, err := s.repo.GetDoctorByID(ctx, doctorID)
	if err != nil {
		return fmt.Errorf("load doctor: %w", err)
	}
	if d.UserID != actorUserID {
		return ErrForbidden.WithDetail("only the doctor may change this calendar")
	}
	return nil
}

// CompleteElapsedAppointments is intended to be called by the worker periodically
func (s *Service) CompleteElapsedAppointments(ctx context.Context) (int, error) {
	completed, err := s.repo.CompleteElapsed(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("complete elapsed appointments: %w", err)
	}

	for _, appt := range completed {
		s.logEvent(ctx, appt.ID, EventAppointmentCompleted, map[string]any{
			"reason":   "worker",
			"end_time": appt.EndTime,
		})
	}
	return len(completed), nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	logger := zerolog.Ctx(ctx)

	data, err := json.Marshal(payload)
	if err != nil {
		logger.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		logger.Error().Err(err).
			Str("event_type", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("failed to insert event log")
	}
}
