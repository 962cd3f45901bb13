package availability

import "github.com/hackgods/doctor-appointment-booking/internal/apperr"

var (
	ErrInvalidInterval     = apperr.New(apperr.KindInvalid, "invalid_interval", "end time must be after start time")
	ErrInvalidSchedule     = apperr.New(apperr.KindInvalid, "invalid_schedule", "invalid weekly schedule")
	ErrIndexOutOfRange     = apperr.New(apperr.KindInvalid, "index_out_of_range", "schedule index out of range")
	ErrSlotConflict        = apperr.New(apperr.KindConflict, "slot_conflict", "doctor already booked for this time slot")
	ErrOutsideWorkingHours = apperr.New(apperr.KindConflict, "outside_working_hours", "requested time is outside the doctor's working hours")
	ErrDoctorUnavailable   = apperr.New(apperr.KindConflict, "doctor_unavailable", "doctor is unavailable during the requested time")
	ErrDoctorNotFound      = apperr.New(apperr.KindNotFound, "doctor_not_found", "doctor not found")
	ErrScheduleVersion     = apperr.New(apperr.KindConflict, "schedule_modified", "schedule was modified concurrently")
)
