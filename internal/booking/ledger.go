package booking

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"go.uber.org/zap"
)

// AppendCredit is the only legal way to change a user's balance. The
// cached projection and the ledger row move in one storage transaction,
// so the balance can never drift from the sum of the entries.
func (s *Service) AppendCredit(ctx context.Context, userID uuid.UUID, amount int64, kind EntryKind, paymentRef *string) (*LedgerEntry, error) {
	switch kind {
	case KindPurchase, KindRefund:
		if amount <= 0 {
			return nil, ErrInvalidAmount
		}
	case KindDeduction:
		if amount >= 0 {
			return nil, ErrInvalidAmount
		}
	case KindAdjustment:
		if amount == 0 {
			return nil, ErrInvalidAmount
		}
	default:
		return nil, fmt.Errorf("unknown entry kind %q", kind)
	}

	var entry *LedgerEntry
	err := s.repo.InTx(ctx, func(r Repository) error {
		balance, err := r.ApplyCredit(ctx, userID, amount)
		if err != nil {
			return err
		}

		e, err := r.InsertLedgerEntry(ctx, LedgerEntry{
			UserID:     userID,
			Amount:     amount,
			Kind:       kind,
			PaymentRef: paymentRef,
		})
		if err != nil {
			return fmt.Errorf("insert ledger entry: %w", err)
		}

		entry = e
		s.log.Debug("ledger entry appended",
			zap.String("user_id", userID.String()),
			zap.Int64("amount", amount),
			zap.String("kind", string(kind)),
			zap.Int64("balance", balance),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return entry, nil
}

// BalanceOf returns the cached projection.
func (s *Service) BalanceOf(ctx context.Context, userID uuid.UUID) (int64, error) {
	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return 0, err
	}
	return u.Credits, nil
}

// History returns the user's ledger entries in insertion order.
func (s *Service) History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]LedgerEntry, error) {
	if limit <= 0 {
		limit = 20 // default
	}
	if limit > 100 {
		limit = 100 // max
	}
	if offset < 0 {
		offset = 0
	}

	entries, err := s.repo.ListLedgerEntries(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	return entries, nil
}
