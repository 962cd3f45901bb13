package api

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/hackgods/doctor-appointment-booking/internal/appointment"
	"github.com/hackgods/doctor-appointment-booking/internal/availability"
)

type BookAppointmentRequest struct {
	StartTime *time.Time `json:"startTime" validate:"required"`
	EndTime   *time.Time `json:"endTime" validate:"required"`
}

type SetScheduleRequest struct {
	WeeklySchedule availability.WeeklySchedule `json:"weeklySchedule" validate:"required"`
}

type UpdateScheduleEntryRequest struct {
	Index *int                    `json:"index" validate:"required"`
	Patch availability.EntryPatch `json:"patch"`
}

type AddUnavailabilityRequest struct {
	StartDate *time.Time `json:"startDate" validate:"required"`
	EndDate   *time.Time `json:"endDate" validate:"required"`
}

type AppointmentResponse struct {
	ID        uuid.UUID   `json:"id"`
	Doctor    uuid.UUID   `json:"doctor"`
	Patient   uuid.UUID   `json:"patient"`
	Hospital  uuid.UUID   `json:"hospital"`
	StartTime time.Time   `json:"startTime"`
	EndTime   time.Time   `json:"endTime"`
	Fee       json.Number `json:"fee"`
	Status    string      `json:"status"`
}

type PartyResponse struct {
	ID     uuid.UUID `json:"id"`
	UserID uuid.UUID `json:"userId"`
	Name   string    `json:"name"`
}

type AppointmentDetailResponse struct {
	ID        uuid.UUID     `json:"id"`
	Doctor    PartyResponse `json:"doctor"`
	Patient   PartyResponse `json:"patient"`
	Hospital  uuid.UUID     `json:"hospital"`
	StartTime time.Time     `json:"startTime"`
	EndTime   time.Time     `json:"endTime"`
	Fee       json.Number   `json:"fee"`
	Status    string        `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
}

type CancelResponse struct {
	Confirmation string `json:"confirmation"`
}

type CheckoutResponse struct {
	URL string `json:"url"`
}

type AvailabilityResponse struct {
	DoctorID       uuid.UUID                   `json:"doctorId"`
	WeeklySchedule availability.WeeklySchedule `json:"weeklySchedule"`
	Version        int                         `json:"version"`
	TimeZone       string                      `json:"timeZone"`
	Unavailability []availability.Window       `json:"unavailability"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:        a.ID,
		Doctor:    a.DoctorID,
		Patient:   a.PatientID,
		Hospital:  a.HospitalID,
		StartTime: a.StartTime,
		EndTime:   a.EndTime,
		Fee:       json.Number(a.Fee.String()),
		Status:    string(a.Status),
	}
}

func toDetailResponse(d appointment.AppointmentDetail) AppointmentDetailResponse {
	return AppointmentDetailResponse{
		ID:        d.ID,
		Doctor:    PartyResponse{ID: d.Doctor.ID, UserID: d.Doctor.UserID, Name: d.Doctor.Name},
		Patient:   PartyResponse{ID: d.Patient.ID, UserID: d.Patient.UserID, Name: d.Patient.Name},
		Hospital:  d.HospitalID,
		StartTime: d.StartTime,
		EndTime:   d.EndTime,
		Fee:       json.Number(d.Fee.String()),
		Status:    string(d.Status),
		CreatedAt: d.CreatedAt,
	}
}

func toAvailabilityResponse(av *availability.Availability) AvailabilityResponse {
	resp := AvailabilityResponse{
		DoctorID:       av.DoctorID,
		WeeklySchedule: av.Schedule,
		Version:        av.Version,
		TimeZone:       "UTC",
		Unavailability: av.Unavailability,
	}
	if av.Location != nil {
		resp.TimeZone = av.Location.String()
	}
	if resp.WeeklySchedule == nil {
		resp.WeeklySchedule = availability.WeeklySchedule{}
	}
	if resp.Unavailability == nil {
		resp.Unavailability = []availability.Window{}
	}
	return resp
}
