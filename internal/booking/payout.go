package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestPayout converts the doctor's unclaimed completed appointments
// into a payout request. The claimed rows are locked for the duration of
// the unit of work and stamped with the payout id, so a concurrent
// request for the same doctor finds nothing left to claim.
func (s *Service) RequestPayout(ctx context.Context, doctorID uuid.UUID) (*PayoutRequest, error) {
	doctor, err := s.repo.GetUserByID(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if doctor.Role != RoleDoctor {
		return nil, ErrNotDoctor
	}

	var created *PayoutRequest
	err = s.repo.InTx(ctx, func(r Repository) error {
		appts, err := r.LockUnclaimedCompleted(ctx, doctorID)
		if err != nil {
			return fmt.Errorf("lock unclaimed appointments: %w", err)
		}
		if len(appts) == 0 {
			return ErrNoEligibleCredits
		}

		var credits int64
		ids := make([]uuid.UUID, 0, len(appts))
		for _, a := range appts {
			credits += a.PriceCredits
			ids = append(ids, a.ID)
		}

		amount := credits * s.cfg.CreditRateCents
		fee := amount * int64(s.cfg.PlatformFeePct) / 100
		net := amount - fee

		payout, err := r.InsertPayoutRequest(ctx, PayoutRequest{
			ID:             uuid.New(),
			DoctorID:       doctorID,
			CreditsClaimed: credits,
			AmountCents:    amount,
			FeeCents:       fee,
			NetCents:       net,
			Status:         PayoutProcessing,
		})
		if err != nil {
			return fmt.Errorf("insert payout request: %w", err)
		}

		claimed, err := r.MarkAppointmentsClaimed(ctx, ids, payout.ID)
		if err != nil {
			return fmt.Errorf("mark appointments claimed: %w", err)
		}
		if claimed != int64(len(ids)) {
			return fmt.Errorf("claimed %d of %d locked appointments", claimed, len(ids))
		}

		if err := appendEvent(ctx, r, ids[0], EventPayoutRequested, map[string]any{
			"payout_id":       payout.ID.String(),
			"doctor_id":       doctorID.String(),
			"credits_claimed": credits,
			"appointments":    len(ids),
		}); err != nil {
			return err
		}

		created = payout
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObservePayout()
	s.log.Info("payout requested",
		zap.String("payout_id", created.ID.String()),
		zap.String("doctor_id", doctorID.String()),
		zap.Int64("credits_claimed", created.CreditsClaimed),
		zap.Int64("net_cents", created.NetCents),
	)
	return created, nil
}

// MarkPayoutProcessed is the admin-side transition once money has moved.
func (s *Service) MarkPayoutProcessed(ctx context.Context, id uuid.UUID) (*PayoutRequest, error) {
	payout, err := s.repo.UpdatePayoutStatus(ctx, id, PayoutProcessing, PayoutProcessed)
	if err != nil {
		if errors.Is(err, ErrStatusConflict) {
			return nil, ErrAlreadyFinal
		}
		return nil, err
	}
	return payout, nil
}

// ListPayouts returns the doctor's payout requests, newest first.
func (s *Service) ListPayouts(ctx context.Context, doctorID uuid.UUID) ([]PayoutRequest, error) {
	payouts, err := s.repo.ListPayoutsByDoctor(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list payouts: %w", err)
	}
	return payouts, nil
}
