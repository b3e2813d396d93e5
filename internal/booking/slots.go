package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PublishSlot creates a new bookable slot after checking the [start, end)
// range against the doctor's existing slots. The storage-level exclusion
// constraint backs the same invariant against concurrent publishes.
func (s *Service) PublishSlot(ctx context.Context, doctorID uuid.UUID, start, end time.Time) (*Slot, error) {
	doctor, err := s.repo.GetUserByID(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if doctor.Role != RoleDoctor {
		return nil, ErrNotDoctor
	}

	if !end.After(start) || start.Before(time.Now()) {
		return nil, ErrInvalidSlotRange
	}

	var created *Slot
	err = s.repo.InTx(ctx, func(r Repository) error {
		overlaps, err := r.SlotOverlapExists(ctx, doctorID, start, end)
		if err != nil {
			return fmt.Errorf("check slot overlap: %w", err)
		}
		if overlaps {
			return ErrSlotOverlap
		}

		slot, err := r.InsertSlot(ctx, Slot{
			ID:        uuid.New(),
			DoctorID:  doctorID,
			StartTime: start,
			EndTime:   end,
			Status:    SlotAvailable,
		})
		if err != nil {
			return err
		}

		created = slot
		return nil
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

// BlockSlot withdraws an available slot from booking.
func (s *Service) BlockSlot(ctx context.Context, doctorID, slotID uuid.UUID) (*Slot, error) {
	slot, err := s.repo.GetSlotByID(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if slot.DoctorID != doctorID {
		return nil, ErrNotSlotOwner
	}

	blocked, err := s.repo.UpdateSlotStatus(ctx, slotID, SlotAvailable, SlotBlocked)
	if err != nil {
		if errors.Is(err, ErrStatusConflict) {
			return nil, ErrSlotUnavailable
		}
		return nil, fmt.Errorf("block slot: %w", err)
	}
	return blocked, nil
}

// ListOpenSlots returns the doctor's still-bookable slots starting at or
// after from.
func (s *Service) ListOpenSlots(ctx context.Context, doctorID uuid.UUID, from time.Time) ([]Slot, error) {
	slots, err := s.repo.ListOpenSlotsByDoctor(ctx, doctorID, from)
	if err != nil {
		return nil, fmt.Errorf("list open slots: %w", err)
	}
	return slots, nil
}
