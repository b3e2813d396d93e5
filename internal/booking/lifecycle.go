package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Complete moves a scheduled appointment to completed, making its price
// eligible for a future payout. No money moves here. Completing an
// already-completed appointment is a no-op.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	switch appt.Status {
	case StatusCompleted:
		return appt, nil
	case StatusCancelled:
		return nil, ErrAlreadyFinal
	}

	var completed *Appointment
	err = s.repo.InTx(ctx, func(r Repository) error {
		updated, err := r.UpdateAppointmentStatus(ctx, id, StatusScheduled, StatusCompleted, nil)
		if err != nil {
			if errors.Is(err, ErrStatusConflict) {
				// Lost a race with another completion or a cancellation.
				current, getErr := r.GetAppointmentByID(ctx, id)
				if getErr != nil {
					return getErr
				}
				if current.Status == StatusCompleted {
					completed = current
					return nil
				}
				return ErrAlreadyFinal
			}
			return fmt.Errorf("complete appointment: %w", err)
		}

		if err := appendEvent(ctx, r, updated.ID, EventAppointmentCompleted, map[string]any{}); err != nil {
			return err
		}

		completed = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveCompletion()
	return completed, nil
}

// Cancel reverses a scheduled appointment: the status flips, the slot is
// re-published and the patient's deduction is compensated with a refund
// entry, all in one unit of work.
func (s *Service) Cancel(ctx context.Context, id, actorID uuid.UUID, reason string) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	actor, err := s.repo.GetUserByID(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if actor.Role != RoleAdmin && actorID != appt.PatientID && actorID != appt.DoctorID {
		return nil, ErrNotParticipant
	}

	if appt.Status != StatusScheduled {
		return nil, ErrAlreadyFinal
	}
	if !time.Now().Add(s.cfg.CancelWindow).Before(appt.StartTime) {
		return nil, ErrTooLateToCancel
	}

	var cancelled *Appointment
	err = s.repo.InTx(ctx, func(r Repository) error {
		updated, err := r.UpdateAppointmentStatus(ctx, id, StatusScheduled, StatusCancelled, &reason)
		if err != nil {
			if errors.Is(err, ErrStatusConflict) {
				return ErrAlreadyFinal
			}
			return fmt.Errorf("cancel appointment: %w", err)
		}

		if _, err := r.UpdateSlotStatus(ctx, updated.SlotID, SlotBooked, SlotAvailable); err != nil {
			return fmt.Errorf("release slot %s: %w", updated.SlotID, err)
		}

		if _, err := r.ApplyCredit(ctx, updated.PatientID, updated.PriceCredits); err != nil {
			return fmt.Errorf("refund credits: %w", err)
		}

		if _, err := r.InsertLedgerEntry(ctx, LedgerEntry{
			UserID:        updated.PatientID,
			Amount:        updated.PriceCredits,
			Kind:          KindRefund,
			AppointmentID: &updated.ID,
		}); err != nil {
			return fmt.Errorf("insert refund entry: %w", err)
		}

		if err := appendEvent(ctx, r, updated.ID, EventAppointmentCancelled, map[string]any{
			"actor_id": actorID.String(),
			"reason":   reason,
		}); err != nil {
			return err
		}

		cancelled = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveCancellation()
	s.log.Info("appointment cancelled",
		zap.String("appointment_id", id.String()),
		zap.String("actor_id", actorID.String()),
	)
	return cancelled, nil
}

// CompleteDueAppointments is called by the worker periodically; any
// scheduled appointment whose end time has passed becomes completed.
func (s *Service) CompleteDueAppointments(ctx context.Context) error {
	due, err := s.repo.FindDueForCompletion(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("find due appointments: %w", err)
	}

	for _, appt := range due {
		if _, err := s.Complete(ctx, appt.ID); err != nil && !errors.Is(err, ErrAlreadyFinal) {
			s.log.Warn("failed to complete due appointment",
				zap.String("appointment_id", appt.ID.String()),
				zap.Error(err),
			)
		}
	}

	return nil
}

// GetAppointment retrieves an appointment by ID.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetAppointmentByID(ctx, id)
}

// ListAppointmentsByPatient retrieves appointments for a specific patient.
func (s *Service) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	limit, offset = clampPage(limit, offset)
	appts, err := s.repo.ListAppointmentsByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appts, nil
}

// ListAppointmentsByDoctor retrieves appointments for a specific doctor.
func (s *Service) ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]Appointment, error) {
	limit, offset = clampPage(limit, offset)
	appts, err := s.repo.ListAppointmentsByDoctor(ctx, doctorID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by doctor: %w", err)
	}
	return appts, nil
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20 // default
	}
	if limit > 100 {
		limit = 100 // max
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
