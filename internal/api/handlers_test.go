package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/doctor-appointment-booking/internal/appointment"
	"github.com/hackgods/doctor-appointment-booking/internal/availability"
)

type mockBookings struct{ mock.Mock }

func (m *mockBookings) BookAppointment(ctx context.Context, doctorID, patientID uuid.UUID, iv availability.Interval) (*appointment.Appointment, error) {
	args := m.Called(ctx, doctorID, patientID, iv)
	a, _ := args.Get(0).(*appointment.Appointment)
	return a, args.Error(1)
}

func (m *mockBookings) CancelAppointment(ctx context.Context, id, actor uuid.UUID) (*appointment.Cancellation, error) {
	args := m.Called(ctx, id, actor)
	c, _ := args.Get(0).(*appointment.Cancellation)
	return c, args.Error(1)
}

func (m *mockBookings) GetAppointment(ctx context.Context, id uuid.UUID) (*appointment.AppointmentDetail, error) {
	args := m.Called(ctx, id)
	d, _ := args.Get(0).(*appointment.AppointmentDetail)
	return d, args.Error(1)
}

func (m *mockBookings) ListAppointments(ctx context.Context, filter appointment.ListFilter) ([]appointment.AppointmentDetail, error) {
	args := m.Called(ctx, filter)
	l, _ := args.Get(0).([]appointment.AppointmentDetail)
	return l, args.Error(1)
}

func (m *mockBookings) PatientForUser(ctx context.Context, userID uuid.UUID) (*appointment.Patient, error) {
	args := m.Called(ctx, userID)
	p, _ := args.Get(0).(*appointment.Patient)
	return p, args.Error(1)
}

func (m *mockBookings) CreateCheckout(ctx context.Context, id, actor uuid.UUID) (string, error) {
	args := m.Called(ctx, id, actor)
	return args.String(0), args.Error(1)
}

func (m *mockBookings) AuthorizeDoctor(ctx context.Context, doctorID, actor uuid.UUID) error {
	return m.Called(ctx, doctorID, actor).Error(0)
}

type mockCalendars struct{ mock.Mock }

func (m *mockCalendars) GetAvailability(ctx context.Context, doctorID uuid.UUID) (*availability.Availability, error) {
	args := m.Called(ctx, doctorID)
	a, _ := args.Get(0).(*availability.Availability)
	return a, args.Error(1)
}

func (m *mockCalendars) SetSchedule(ctx context.Context, doctorID uuid.UUID, ws availability.WeeklySchedule) (*availability.Availability, error) {
	args := m.Called(ctx, doctorID, ws)
	a, _ := args.Get(0).(*availability.Availability)
	return a, args.Error(1)
}

func (m *mockCalendars) UpdateScheduleEntry(ctx context.Context, doctorID uuid.UUID, index int, patch availability.EntryPatch) (*availability.Availability, error) {
	args := m.Called(ctx, doctorID, index, patch)
	a, _ := args.Get(0).(*availability.Availability)
	return a, args.Error(1)
}

func (m *mockCalendars) AddUnavailability(ctx context.Context, doctorID uuid.UUID, start, end time.Time) (*availability.UnavailabilityResult, error) {
	args := m.Called(ctx, doctorID, start, end)
	r, _ := args.Get(0).(*availability.UnavailabilityResult)
	return r, args.Error(1)
}

type testServer struct {
	bookings  *mockBookings
	calendars *mockCalendars
	handler   http.Handler
	actor     uuid.UUID
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		bookings:  &mockBookings{},
		calendars: &mockCalendars{},
		actor:     uuid.New(),
	}
	ts.handler = NewRouter(RouterConfig{
		Bookings:    ts.bookings,
		Calendars:   ts.calendars,
		Health:      NewHealthHandler("test", "v0"),
		CORSOrigins: []string{"*"},
	})
	t.Cleanup(func() {
		ts.bookings.AssertExpectations(t)
		ts.calendars.AssertExpectations(t)
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(UserIDHeader, ts.actor.String())
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

var (
	nineAM   = time.Date(2030, 1, 7, 9, 0, 0, 0, time.UTC)
	elevenAM = time.Date(2030, 1, 7, 11, 0, 0, 0, time.UTC)
)

func TestBookAppointment(t *testing.T) {
	ts := newTestServer(t)
	doctorID := uuid.New()
	patient := &appointment.Patient{ID: uuid.New(), UserID: ts.actor}
	iv := availability.Interval{Start: nineAM, End: elevenAM}

	ts.bookings.On("PatientForUser", mock.Anything, ts.actor).Return(patient, nil)
	ts.bookings.On("BookAppointment", mock.Anything, doctorID, patient.ID, iv).Return(&appointment.Appointment{
		ID:         uuid.New(),
		DoctorID:   doctorID,
		PatientID:  patient.ID,
		HospitalID: uuid.New(),
		StartTime:  iv.Start,
		EndTime:    iv.End,
		Fee:        decimal.NewFromInt(200),
		Status:     appointment.StatusBooked,
	}, nil)

	rec := ts.do(t, http.MethodPost, "/appointments/"+doctorID.String()+"/book",
		map[string]string{"startTime": "2030-01-07T09:00:00Z", "endTime": "2030-01-07T11:00:00Z"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, float64(200), got["fee"])
	assert.Equal(t, "booked", got["status"])
	assert.Equal(t, doctorID.String(), got["doctor"])
	assert.Equal(t, patient.ID.String(), got["patient"])
	assert.NotEmpty(t, got["hospital"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestBookAppointmentBadRequests(t *testing.T) {
	tests := []struct {
		name     string
		doctorID string
		body     any
		wantCode string
	}{
		{name: "malformed doctor id", doctorID: "nope", body: map[string]string{}, wantCode: "invalid_doctor_id"},
		{name: "not json", doctorID: uuid.NewString(), body: "{", wantCode: "invalid_request_body"},
		{name: "malformed time", doctorID: uuid.NewString(), body: map[string]string{"startTime": "9am", "endTime": "2030-01-07T11:00:00Z"}, wantCode: "invalid_request_body"},
		{name: "missing end", doctorID: uuid.NewString(), body: map[string]string{"startTime": "2030-01-07T09:00:00Z"}, wantCode: "validation_failed"},
		{name: "end before start", doctorID: uuid.NewString(), body: map[string]string{"startTime": "2030-01-07T11:00:00Z", "endTime": "2030-01-07T09:00:00Z"}, wantCode: "invalid_interval"},
		{name: "empty interval", doctorID: uuid.NewString(), body: map[string]string{"startTime": "2030-01-07T11:00:00Z", "endTime": "2030-01-07T11:00:00Z"}, wantCode: "invalid_interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			rec := ts.do(t, http.MethodPost, "/appointments/"+tt.doctorID+"/book", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.wantCode, decodeError(t, rec).Error)
		})
	}
}

func TestBookAppointmentDomainErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"slot conflict", appointment.ErrSlotConflict, http.StatusConflict, "slot_conflict"},
		{"outside hours", appointment.ErrOutsideWorkingHours, http.StatusConflict, "outside_working_hours"},
		{"unavailable", appointment.ErrDoctorUnavailable, http.StatusConflict, "doctor_unavailable"},
		{"doctor missing", fmt.Errorf("load doctor: %w", appointment.ErrDoctorNotFound), http.StatusNotFound, "doctor_not_found"},
		{"lock busy", appointment.ErrBookingBusy, http.StatusInternalServerError, "booking_busy"},
		{"raw infra error", errors.New("conn refused"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			patient := &appointment.Patient{ID: uuid.New(), UserID: ts.actor}
			ts.bookings.On("PatientForUser", mock.Anything, ts.actor).Return(patient, nil)
			ts.bookings.On("BookAppointment", mock.Anything, mock.Anything, patient.ID, mock.Anything).Return(nil, tt.err)

			rec := ts.do(t, http.MethodPost, "/appointments/"+uuid.NewString()+"/book",
				map[string]string{"startTime": "2030-01-07T09:00:00Z", "endTime": "2030-01-07T11:00:00Z"})
			assert.Equal(t, tt.wantStatus, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, tt.wantCode, resp.Error)
			assert.NotContains(t, resp.Details, "conn refused")
		})
	}
}

func TestBookAppointmentWithoutPatientProfile(t *testing.T) {
	ts := newTestServer(t)
	ts.bookings.On("PatientForUser", mock.Anything, ts.actor).Return(nil, appointment.ErrPatientNotFound)

	rec := ts.do(t, http.MethodPost, "/appointments/"+uuid.NewString()+"/book",
		map[string]string{"startTime": "2030-01-07T09:00:00Z", "endTime": "2030-01-07T11:00:00Z"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequiresActor(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/appointments?doctorId="+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeError(t, rec).Error)
}

func TestCancelAppointment(t *testing.T) {
	id := uuid.New()

	t.Run("ok", func(t *testing.T) {
		ts := newTestServer(t)
		msg := appointment.CancellationMessage(id, appointment.StatusBooked)
		ts.bookings.On("CancelAppointment", mock.Anything, id, ts.actor).
			Return(&appointment.Cancellation{AppointmentID: id, Message: msg, Notified: true}, nil)

		rec := ts.do(t, http.MethodDelete, "/appointments/"+id.String(), nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp CancelResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, msg, resp.Confirmation)
	})

	errorCases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"forbidden", appointment.ErrForbidden, http.StatusForbidden, "forbidden"},
		{"not found", fmt.Errorf("load appointment: %w", appointment.ErrAppointmentNotFound), http.StatusNotFound, "appointment_not_found"},
		{"delete failed", appointment.ErrDeleteFailed.Wrap(errors.New("timeout")), http.StatusInternalServerError, "delete_failed"},
		{"notification failed", appointment.ErrNotificationFailed.Wrap(errors.New("queue down")), http.StatusInternalServerError, "notification_failed"},
	}
	for _, tt := range errorCases {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.bookings.On("CancelAppointment", mock.Anything, id, ts.actor).Return(nil, tt.err)

			rec := ts.do(t, http.MethodDelete, "/appointments/"+id.String(), nil)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, decodeError(t, rec).Error)
		})
	}

	t.Run("malformed id", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(t, http.MethodDelete, "/appointments/123", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_appointment_id", decodeError(t, rec).Error)
	})
}

func TestListAppointments(t *testing.T) {
	ts := newTestServer(t)
	doctorID := uuid.New()
	apptID := uuid.New()

	ts.bookings.On("ListAppointments", mock.Anything, appointment.ListFilter{DoctorID: &doctorID, Limit: 5, Offset: 10}).
		Return([]appointment.AppointmentDetail{{
			Appointment: appointment.Appointment{ID: apptID, DoctorID: doctorID, Fee: decimal.RequireFromString("150"), Status: appointment.StatusBooked},
			Doctor:      appointment.PartySummary{ID: doctorID, Name: "Dr. Grey"},
			Patient:     appointment.PartySummary{Name: "Meredith"},
		}}, nil)

	rec := ts.do(t, http.MethodGet, "/appointments?doctorId="+doctorID.String()+"&limit=5&offset=10", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var list []AppointmentDetailResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, apptID, list[0].ID)
	assert.Equal(t, "Dr. Grey", list[0].Doctor.Name)
	assert.Equal(t, "Meredith", list[0].Patient.Name)
	assert.Equal(t, "150", list[0].Fee.String())
}

func TestListAppointmentsRejectsBadFilters(t *testing.T) {
	ts := newTestServer(t)
	ts.bookings.On("ListAppointments", mock.Anything, appointment.ListFilter{}).Return(nil, appointment.ErrInvalidFilter)

	rec := ts.do(t, http.MethodGet, "/appointments", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_filter", decodeError(t, rec).Error)

	rec = ts.do(t, http.MethodGet, "/appointments?patientId=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_patient_id", decodeError(t, rec).Error)

	rec = ts.do(t, http.MethodGet, "/appointments?patientId="+uuid.NewString()+"&limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_pagination", decodeError(t, rec).Error)
}

func TestGetAppointmentOnlyForParties(t *testing.T) {
	ts := newTestServer(t)
	id := uuid.New()
	detail := &appointment.AppointmentDetail{
		Appointment: appointment.Appointment{ID: id, Fee: decimal.NewFromInt(1)},
		Doctor:      appointment.PartySummary{UserID: uuid.New()},
		Patient:     appointment.PartySummary{UserID: ts.actor},
	}
	ts.bookings.On("GetAppointment", mock.Anything, id).Return(detail, nil).Twice()

	rec := ts.do(t, http.MethodGet, "/appointments/"+id.String(), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	detail.Patient.UserID = uuid.New()
	rec = ts.do(t, http.MethodGet, "/appointments/"+id.String(), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCheckout(t *testing.T) {
	ts := newTestServer(t)
	id := uuid.New()
	ts.bookings.On("CreateCheckout", mock.Anything, id, ts.actor).Return("https://pay.test/s/1", nil).Once()
	ts.bookings.On("CreateCheckout", mock.Anything, id, ts.actor).Return("", appointment.ErrCheckoutFailed).Once()

	rec := ts.do(t, http.MethodPost, "/appointments/"+id.String()+"/checkout", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp CheckoutResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "https://pay.test/s/1", resp.URL)

	rec = ts.do(t, http.MethodPost, "/appointments/"+id.String()+"/checkout", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "checkout_failed", decodeError(t, rec).Error)
}

func TestGetAvailability(t *testing.T) {
	ts := newTestServer(t)
	doctorID := uuid.New()
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	ts.calendars.On("GetAvailability", mock.Anything, doctorID).Return(&availability.Availability{
		DoctorID: doctorID,
		Version:  4,
		Location: loc,
	}, nil)

	rec := ts.do(t, http.MethodGet, "/doctors/"+doctorID.String()+"/availability", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(4), resp["version"])
	assert.Equal(t, "Europe/Berlin", resp["timeZone"])
	assert.Equal(t, []any{}, resp["weeklySchedule"])
	assert.Equal(t, []any{}, resp["unavailability"])
}

func TestSetSchedule(t *testing.T) {
	ts := newTestServer(t)
	doctorID := uuid.New()
	want := availability.WeeklySchedule{{
		Day:       availability.Weekday(time.Tuesday),
		StartTime: availability.MustClock("08:00"),
		EndTime:   availability.MustClock("12:30"),
		Breaks:    []availability.Break{{Start: availability.MustClock("10:00"), End: availability.MustClock("10:15")}},
	}}

	ts.bookings.On("AuthorizeDoctor", mock.Anything, doctorID, ts.actor).Return(nil)
	ts.calendars.On("SetSchedule", mock.Anything, doctorID, want).
		Return(&availability.Availability{DoctorID: doctorID, Schedule: want, Version: 1}, nil)

	body := `{"weeklySchedule":[{"day":"Tuesday","startTime":"08:00","endTime":"12:30","breaks":[{"breakStart":"10:00","breakEnd":"10:15"}]}]}`
	rec := ts.do(t, http.MethodPatch, "/doctors/"+doctorID.String()+"/schedule", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestSetScheduleForbidden(t *testing.T) {
	ts := newTestServer(t)
	doctorID := uuid.New()
	ts.bookings.On("AuthorizeDoctor", mock.Anything, doctorID, ts.actor).Return(appointment.ErrForbidden)

	rec := ts.do(t, http.MethodPatch, "/doctors/"+doctorID.String()+"/schedule", `{"weeklySchedule":[]}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUpdateScheduleEntry(t *testing.T) {
	ts := newTestServer(t)
	doctorID := uuid.New()
	end := availability.MustClock("18:00")

	ts.bookings.On("AuthorizeDoctor", mock.Anything, doctorID, ts.actor).Return(nil)
	ts.calendars.On("UpdateScheduleEntry", mock.Anything, doctorID, 1, availability.EntryPatch{EndTime: &end}).
		Return(&availability.Availability{DoctorID: doctorID}, nil).Once()
	ts.calendars.On("UpdateScheduleEntry", mock.Anything, doctorID, 9, mock.Anything).
		Return(nil, availability.ErrIndexOutOfRange).Once()

	rec := ts.do(t, http.MethodPatch, "/doctors/"+doctorID.String()+"/schedule/entry", `{"index":1,"patch":{"endTime":"18:00"}}`)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPatch, "/doctors/"+doctorID.String()+"/schedule/entry", `{"index":9,"patch":{}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "index_out_of_range", decodeError(t, rec).Error)

	rec = ts.do(t, http.MethodPatch, "/doctors/"+doctorID.String()+"/schedule/entry", `{"patch":{}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_failed", decodeError(t, rec).Error)
}

func TestAddUnavailability(t *testing.T) {
	ts := newTestServer(t)
	doctorID := uuid.New()
	booked := uuid.New()

	ts.bookings.On("AuthorizeDoctor", mock.Anything, doctorID, ts.actor).Return(nil)
	ts.calendars.On("AddUnavailability", mock.Anything, doctorID, nineAM, elevenAM).Return(&availability.UnavailabilityResult{
		Window:      availability.Window{ID: uuid.New(), Start: nineAM, End: elevenAM},
		Overlapping: []uuid.UUID{booked},
	}, nil)

	rec := ts.do(t, http.MethodPost, "/doctors/"+doctorID.String()+"/unavailability",
		map[string]string{"startDate": "2030-01-07T09:00:00Z", "endDate": "2030-01-07T11:00:00Z"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp availability.UnavailabilityResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []uuid.UUID{booked}, resp.Overlapping)
}

func TestReadiness(t *testing.T) {
	h := NewHealthHandler("test", "v1").
		Require("postgres", func(context.Context) error { return nil }).
		Optional("redis", func(context.Context) error { return errors.New("down") })

	rec := httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp ReadinessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "down", resp.Dependencies["redis"])

	h.Require("amqp", func(context.Context) error { return errors.New("down") })
	rec = httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
