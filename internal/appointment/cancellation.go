package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RefundWindowDays is how long a refund for a cancelled booking may take.
const RefundWindowDays = 7

// CancellationMessage is the text sent to the patient. Only appointments that
// were still booked get the refund clause.
func CancellationMessage(appointmentID uuid.UUID, prior AppointmentStatus) string {
	if prior == StatusBooked {
		return fmt.Sprintf("Your appointment with id: %s has been cancelled, your amount will be refunded within %d days",
			appointmentID, RefundWindowDays)
	}
	return fmt.Sprintf("Your appointment with id: %s has been cancelled", appointmentID)
}

// CancelAppointment deletes the appointment on behalf of its doctor or patient
// and notifies the patient. A failed notification is returned together with
// the cancellation; the delete is not undone.
func (s *Service) CancelAppointment(ctx context.Context, appointmentID, actorUserID uuid.UUID) (*Cancellation, error) {
	logger := zerolog.Ctx(ctx)

	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	doctor, err := s.repo.GetDoctorByID(ctx, appt.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	patient, err := s.repo.GetPatientByID(ctx, appt.PatientID)
	if err != nil {
		return nil, fmt.Errorf("load patient: %w", err)
	}

	if actorUserID != doctor.UserID && actorUserID != patient.UserID {
		return nil, ErrForbidden
	}

	// the returned row is the snapshot used from here on; the record is gone after this
	deleted, err := s.repo.DeleteAppointment(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, ErrDeleteFailed.Wrap(err)
	}

	c := &Cancellation{
		AppointmentID: deleted.ID,
		PatientID:     deleted.PatientID,
		PriorStatus:   deleted.Status,
		Message:       CancellationMessage(deleted.ID, deleted.Status),
	}

	s.logEvent(ctx, deleted.ID, EventAppointmentCancelled, map[string]any{
		"actor_user_id": actorUserID.String(),
		"doctor_id":     deleted.DoctorID.String(),
		"patient_id":    deleted.PatientID.String(),
		"prior_status":  string(deleted.Status),
		"start_time":    deleted.StartTime,
		"end_time":      deleted.EndTime,
		"fee":           deleted.Fee.String(),
	})

	if err := s.notify(ctx, Notification{
		Recipient:   patient.UserID,
		Message:     c.Message,
		ReferenceID: deleted.ID,
	}); err != nil {
		logger.Error().Err(err).Str("appointment_id", deleted.ID.String()).Msg("cancellation notification failed")
		return c, ErrNotificationFailed.Wrap(err)
	}
	c.Notified = true

	logger.Info().
		Str("appointment_id", deleted.ID.String()).
		Str("prior_status", string(deleted.Status)).
		Msg("appointment cancelled")

	return c, nil
}

func (s *Service) notify(ctx context.Context, n Notification) error {
	if s.cfg.NotifyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.NotifyTimeout)
		defer cancel()
	}
	return s.notifier.Notify(ctx, n)
}
