package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/doctor-appointment-booking/internal/appointment"
	"github.com/hackgods/doctor-appointment-booking/internal/availability"
)

// BookingService is the part of appointment.Service the HTTP layer uses.
type BookingService interface {
	BookAppointment(ctx context.Context, doctorID, patientID uuid.UUID, iv availability.Interval) (*appointment.Appointment, error)
	CancelAppointment(ctx context.Context, appointmentID, actorUserID uuid.UUID) (*appointment.Cancellation, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*appointment.AppointmentDetail, error)
	ListAppointments(ctx context.Context, filter appointment.ListFilter) ([]appointment.AppointmentDetail, error)
	PatientForUser(ctx context.Context, userID uuid.UUID) (*appointment.Patient, error)
	CreateCheckout(ctx context.Context, appointmentID, actorUserID uuid.UUID) (string, error)
	AuthorizeDoctor(ctx context.Context, doctorID, actorUserID uuid.UUID) error
}

// pathUUID parses a UUID route parameter; name is how the error reports it.
func pathUUID(w http.ResponseWriter, r *http.Request, param, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+toSnake(name), name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func toSnake(s string) string {
	var b strings.Builder
	for _, c := range s {
		if unicode.IsUpper(c) {
			b.WriteByte('_')
			c = unicode.ToLower(c)
		}
		b.WriteRune(c)
	}
	return b.String()
}

func mustActor(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := ActorFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing credentials")
	}
	return id, ok
}

func bookAppointmentHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := mustActor(w, r)
		if !ok {
			return
		}
		doctorID, ok := pathUUID(w, r, "id", "doctorId")
		if !ok {
			return
		}

		var req BookAppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		iv := availability.Interval{Start: *req.StartTime, End: *req.EndTime}
		if err := iv.Validate(); err != nil {
			writeAppError(w, r, err)
			return
		}

		patient, err := svc.PatientForUser(r.Context(), actor)
		if err != nil {
			writeAppError(w, r, err)
			return
		}

		appt, err := svc.BookAppointment(r.Context(), doctorID, patient.ID, iv)
		if err != nil {
			writeAppError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := mustActor(w, r)
		if !ok {
			return
		}
		id, ok := pathUUID(w, r, "id", "appointmentId")
		if !ok {
			return
		}

		c, err := svc.CancelAppointment(r.Context(), id, actor)
		if err != nil {
			writeAppError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, CancelResponse{Confirmation: c.Message})
	}
}

func getAppointmentHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := mustActor(w, r)
		if !ok {
			return
		}
		id, ok := pathUUID(w, r, "id", "appointmentId")
		if !ok {
			return
		}

		detail, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		if actor != detail.Doctor.UserID && actor != detail.Patient.UserID {
			writeAppError(w, r, appointment.ErrForbidden)
			return
		}

		writeJSON(w, http.StatusOK, toDetailResponse(*detail))
	}
}

func listAppointmentsHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var filter appointment.ListFilter

		if raw := q.Get("doctorId"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctorId must be a valid UUID")
				return
			}
			filter.DoctorID = &id
		}
		if raw := q.Get("patientId"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_patient_id", "patientId must be a valid UUID")
				return
			}
			filter.PatientID = &id
		}

		var err error
		if filter.Limit, err = queryInt(q.Get("limit")); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_pagination", "limit must be a non-negative integer")
			return
		}
		if filter.Offset, err = queryInt(q.Get("offset")); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_pagination", "offset must be a non-negative integer")
			return
		}

		list, err := svc.ListAppointments(r.Context(), filter)
		if err != nil {
			writeAppError(w, r, err)
			return
		}

		resp := make([]AppointmentDetailResponse, 0, len(list))
		for _, d := range list {
			resp = append(resp, toDetailResponse(d))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func queryInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errors.New("negative")
	}
	return n, nil
}

func checkoutHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := mustActor(w, r)
		if !ok {
			return
		}
		id, ok := pathUUID(w, r, "id", "appointmentId")
		if !ok {
			return
		}

		url, err := svc.CreateCheckout(r.Context(), id, actor)
		if err != nil {
			writeAppError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, CheckoutResponse{URL: url})
	}
}
