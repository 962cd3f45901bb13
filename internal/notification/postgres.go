package notification

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/doctor-appointment-booking/internal/appointment"
)

// PgNotifier stores notifications in the notifications table for the
// recipient's inbox.
type PgNotifier struct {
	pool *pgxpool.Pool
}

func NewPgNotifier(pool *pgxpool.Pool) *PgNotifier {
	return &PgNotifier{pool: pool}
}

func (n *PgNotifier) Notify(ctx context.Context, note appointment.Notification) error {
	msg := newMessage(note)

	data, err := json.Marshal(msg.Data)
	if err != nil {
		return fmt.Errorf("encode notification data: %w", err)
	}

	_, err = n.pool.Exec(ctx, `
		INSERT INTO notifications (id, recipient, message, read, data, created_at)
		VALUES ($1, $2, $3, false, $4, $5)
	`, msg.ID, msg.Recipient, msg.Message, data, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}
