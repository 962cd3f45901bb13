package appointment

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-appointment-booking/internal/apperr"
)

var (
	ErrCheckoutUnavailable = apperr.New(apperr.KindInternal, "checkout_unavailable", "payments are not configured")
	ErrCheckoutFailed      = apperr.New(apperr.KindInternal, "checkout_failed", "unable to create checkout session")
	ErrNotPayable          = apperr.New(apperr.KindConflict, "not_payable", "only booked appointments can be paid")
)

// CreateCheckout starts a hosted payment for the appointment's fee and returns
// the redirect URL. Only the patient on the appointment may start it.
func (s *Service) CreateCheckout(ctx context.Context, appointmentID, actorUserID uuid.UUID) (string, error) {
	if s.payments == nil {
		return "", ErrCheckoutUnavailable
	}

	detail, err := s.repo.GetAppointmentDetail(ctx, appointmentID)
	if err != nil {
		return "", fmt.Errorf("load appointment: %w", err)
	}
	if detail.Patient.UserID != actorUserID {
		return "", ErrForbidden
	}
	if detail.Status != StatusBooked {
		return "", ErrNotPayable
	}

	url, err := s.payments.CreateCheckoutSession(ctx, CheckoutRequest{
		AppointmentID: detail.ID,
		FeeInCents:    FeeInCents(detail.Fee),
		Currency:      s.cfg.CheckoutCurrency,
		Description:   fmt.Sprintf("Appointment with %s", detail.Doctor.Name),
		SuccessURL:    s.cfg.CheckoutSuccessURL,
		CancelURL:     s.cfg.CheckoutCancelURL,
		Metadata: map[string]string{
			"appointmentId": detail.ID.String(),
			"userId":        actorUserID.String(),
		},
	})
	if err != nil {
		return "", ErrCheckoutFailed.Wrap(err)
	}
	return url, nil
}
