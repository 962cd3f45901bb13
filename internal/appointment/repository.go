package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-appointment-booking/internal/apperr"
	"github.com/hackgods/doctor-appointment-booking/internal/availability"
)

var (
	ErrDoctorNotFound      = availability.ErrDoctorNotFound
	ErrPatientNotFound     = apperr.New(apperr.KindNotFound, "patient_not_found", "patient profile not found")
	ErrAppointmentNotFound = apperr.New(apperr.KindNotFound, "appointment_not_found", "appointment not found")
)

// ListFilter selects appointments by exactly one of DoctorID or PatientID.
type ListFilter struct {
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
	Limit     int
	Offset    int
}

// BookingTx is the view of the store inside one atomic booking unit. Every
// read sees the unit's own writes and the doctor stays locked until it ends.
type BookingTx interface {
	// LockDoctor loads the doctor with availability relevant to window and
	// holds it against concurrent bookings.
	LockDoctor(ctx context.Context, doctorID uuid.UUID, window availability.Interval) (*Doctor, error)

	// ActiveAppointments lists booked appointments of the doctor overlapping window.
	ActiveAppointments(ctx context.Context, doctorID uuid.UUID, window availability.Interval) ([]Appointment, error)

	InsertAppointment(ctx context.Context, a Appointment) (*Appointment, error)
}

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetPatientByUserID(ctx context.Context, userID uuid.UUID) (*Patient, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error)
	ListAppointments(ctx context.Context, filter ListFilter) ([]AppointmentDetail, error)

	// InBookingTx runs fn as one atomic unit. Any error aborts it.
	InBookingTx(ctx context.Context, fn func(tx BookingTx) error) error

	// DeleteAppointment hard-deletes the row and returns it as it was.
	// ErrAppointmentNotFound when no row was removed.
	DeleteAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// CompleteElapsed moves booked appointments that ended before now to completed.
	CompleteElapsed(ctx context.Context, now time.Time) ([]Appointment, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
