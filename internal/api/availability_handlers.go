package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-appointment-booking/internal/availability"
)

// CalendarService is the part of availability.Manager the HTTP layer uses.
type CalendarService interface {
	GetAvailability(ctx context.Context, doctorID uuid.UUID) (*availability.Availability, error)
	SetSchedule(ctx context.Context, doctorID uuid.UUID, schedule availability.WeeklySchedule) (*availability.Availability, error)
	UpdateScheduleEntry(ctx context.Context, doctorID uuid.UUID, index int, patch availability.EntryPatch) (*availability.Availability, error)
	AddUnavailability(ctx context.Context, doctorID uuid.UUID, start, end time.Time) (*availability.UnavailabilityResult, error)
}

func getAvailabilityHandler(cal CalendarService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := pathUUID(w, r, "id", "doctorId")
		if !ok {
			return
		}

		av, err := cal.GetAvailability(r.Context(), doctorID)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAvailabilityResponse(av))
	}
}

// authorizeCalendar parses the doctor id and checks the actor owns that calendar.
func authorizeCalendar(w http.ResponseWriter, r *http.Request, svc BookingService) (uuid.UUID, bool) {
	actor, ok := mustActor(w, r)
	if !ok {
		return uuid.Nil, false
	}
	doctorID, ok := pathUUID(w, r, "id", "doctorId")
	if !ok {
		return uuid.Nil, false
	}
	if err := svc.AuthorizeDoctor(r.Context(), doctorID, actor); err != nil {
		writeAppError(w, r, err)
		return uuid.Nil, false
	}
	return doctorID, true
}

func setScheduleHandler(svc BookingService, cal CalendarService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := authorizeCalendar(w, r, svc)
		if !ok {
			return
		}

		var req SetScheduleRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		av, err := cal.SetSchedule(r.Context(), doctorID, req.WeeklySchedule)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAvailabilityResponse(av))
	}
}

func updateScheduleEntryHandler(svc BookingService, cal CalendarService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := authorizeCalendar(w, r, svc)
		if !ok {
			return
		}

		var req UpdateScheduleEntryRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		av, err := cal.UpdateScheduleEntry(r.Context(), doctorID, *req.Index, req.Patch)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAvailabilityResponse(av))
	}
}

func addUnavailabilityHandler(svc BookingService, cal CalendarService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := authorizeCalendar(w, r, svc)
		if !ok {
			return
		}

		var req AddUnavailabilityRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		res, err := cal.AddUnavailability(r.Context(), doctorID, *req.StartDate, *req.EndDate)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, res)
	}
}
