package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	redisclient "github.com/clinicore/booking-ledger/internal/redisclient"
)

// Reserve turns "patient wants slot" into either a fully consistent
// booking or no effect at all.
//
// Inside one unit of work: slot available→booked (CAS), patient debit,
// appointment insert, deduction ledger entry, audit event. The slot is
// claimed before the debit so a patient is never charged for a slot a
// concurrent request already took; an insufficient-funds debit rolls the
// claim back, leaving the slot available.
func (s *Service) Reserve(ctx context.Context, patientID, slotID uuid.UUID, priceCredits int64) (*Appointment, error) {
	start := time.Now()
	appt, err := s.reserve(ctx, patientID, slotID, priceCredits)
	s.metrics.ObserveReserve(reserveOutcome(err), time.Since(start).Seconds())
	return appt, err
}

func (s *Service) reserve(ctx context.Context, patientID, slotID uuid.UUID, priceCredits int64) (*Appointment, error) {
	if priceCredits <= 0 {
		return nil, ErrInvalidPrice
	}

	patient, err := s.repo.GetUserByID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if patient.Role != RolePatient {
		return nil, ErrNotPatient
	}

	slot, err := s.repo.GetSlotByID(ctx, slotID)
	if err != nil {
		return nil, err
	}

	doctor, err := s.repo.GetUserByID(ctx, slot.DoctorID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrDoctorInactive
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	if doctor.Role != RoleDoctor {
		return nil, ErrDoctorInactive
	}

	// Fast-path checks outside the lock; the CAS inside is authoritative.
	if slot.Status != SlotAvailable {
		return nil, ErrSlotUnavailable
	}
	if time.Until(slot.StartTime) < s.cfg.MinLeadTime {
		return nil, ErrTooSoonToBook
	}

	var created *Appointment

	err = s.locker.WithSlotLock(ctx, slotID, func(lockCtx context.Context) error {
		return s.repo.InTx(lockCtx, func(r Repository) error {
			if _, err := r.UpdateSlotStatus(lockCtx, slotID, SlotAvailable, SlotBooked); err != nil {
				if errors.Is(err, ErrStatusConflict) {
					return ErrSlotUnavailable
				}
				return fmt.Errorf("claim slot: %w", err)
			}

			// Rolls the slot claim back when the balance cannot cover
			// the price.
			if _, err := r.ApplyCredit(lockCtx, patientID, -priceCredits); err != nil {
				return err
			}

			appt, err := r.InsertAppointment(lockCtx, Appointment{
				ID:           uuid.New(),
				SlotID:       slot.ID,
				PatientID:    patientID,
				DoctorID:     slot.DoctorID,
				StartTime:    slot.StartTime,
				EndTime:      slot.EndTime,
				Status:       StatusScheduled,
				PriceCredits: priceCredits,
			})
			if err != nil {
				return fmt.Errorf("create appointment: %w", err)
			}

			if _, err := r.InsertLedgerEntry(lockCtx, LedgerEntry{
				UserID:        patientID,
				Amount:        -priceCredits,
				Kind:          KindDeduction,
				AppointmentID: &appt.ID,
			}); err != nil {
				return fmt.Errorf("insert deduction entry: %w", err)
			}

			if err := appendEvent(lockCtx, r, appt.ID, EventAppointmentBooked, map[string]any{
				"slot_id":       slot.ID.String(),
				"patient_id":    patientID.String(),
				"price_credits": priceCredits,
			}); err != nil {
				return err
			}

			created = appt
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotContended
		}
		return nil, err
	}

	s.log.Info("appointment reserved",
		zap.String("appointment_id", created.ID.String()),
		zap.String("slot_id", slot.ID.String()),
		zap.String("patient_id", patientID.String()),
		zap.Int64("price_credits", priceCredits),
	)
	return created, nil
}

func reserveOutcome(err error) string {
	switch {
	case err == nil:
		return "booked"
	case errors.Is(err, ErrSlotUnavailable):
		return "slot_unavailable"
	case errors.Is(err, ErrInsufficientCredits):
		return "insufficient_credits"
	case errors.Is(err, ErrSlotContended):
		return "contended"
	default:
		return "error"
	}
}
