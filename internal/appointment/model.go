package appointment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hackgods/doctor-appointment-booking/internal/availability"
)

type AppointmentStatus string

const (
	StatusBooked    AppointmentStatus = "booked"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

type Patient struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Doctor is the read model the booking engine needs. Profile data is owned elsewhere.
type Doctor struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	HospitalID     uuid.UUID
	Name           string
	Specialization *string
	HourlyRate     decimal.Decimal
	Availability   availability.Availability
}

type Appointment struct {
	ID         uuid.UUID
	DoctorID   uuid.UUID
	PatientID  uuid.UUID
	HospitalID uuid.UUID
	StartTime  time.Time
	EndTime    time.Time
	Fee        decimal.Decimal
	Status     AppointmentStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (a Appointment) Interval() availability.Interval {
	return availability.Interval{Start: a.StartTime, End: a.EndTime}
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// PartySummary is the public face of a doctor or patient on an appointment.
type PartySummary struct {
	ID     uuid.UUID
	UserID uuid.UUID
	Name   string
}

type AppointmentDetail struct {
	Appointment
	Doctor  PartySummary
	Patient PartySummary
}

// Cancellation is what the caller gets back after a successful delete.
type Cancellation struct {
	AppointmentID uuid.UUID
	PatientID     uuid.UUID
	PriorStatus   AppointmentStatus
	Message       string
	Notified      bool
}

// Notification is handed to the external notifier.
type Notification struct {
	Recipient   uuid.UUID
	Message     string
	ReferenceID uuid.UUID
}

// CheckoutRequest is the payment gateway contract.
type CheckoutRequest struct {
	AppointmentID uuid.UUID
	FeeInCents    int64
	Currency      string
	Description   string
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string
}
