package notification

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-appointment-booking/internal/appointment"
)

const TypeAppointmentCancelled = "appointment_cancelled"

// Message is the stored and published form of a notification.
type Message struct {
	ID        uuid.UUID         `json:"id"`
	Type      string            `json:"type"`
	Recipient uuid.UUID         `json:"recipient"`
	Message   string            `json:"message"`
	Data      map[string]string `json:"data,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

func newMessage(n appointment.Notification) Message {
	return Message{
		ID:        uuid.New(),
		Type:      TypeAppointmentCancelled,
		Recipient: n.Recipient,
		Message:   n.Message,
		Data:      map[string]string{"appointmentId": n.ReferenceID.String()},
		CreatedAt: time.Now().UTC(),
	}
}
