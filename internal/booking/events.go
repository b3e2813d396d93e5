package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	EventAppointmentBooked    = "APPOINTMENT_BOOKED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventPayoutRequested      = "PAYOUT_REQUESTED"
)

// appendEvent writes one audit row through the given repository. Called
// with a tx-bound repository the event commits or rolls back with the
// rest of the unit of work.
func appendEvent(ctx context.Context, r Repository, appointmentID uuid.UUID, eventType string, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	apptID := appointmentID

	ev := BookingEvent{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}

	return r.InsertEvent(ctx, ev)
}
