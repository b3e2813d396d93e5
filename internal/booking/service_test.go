package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinicore/booking-ledger/internal/config"
)

// passLocker runs the critical section directly; the repository's own
// serialization plus the CAS decide the winner, same as when redis is
// degraded in production.
type passLocker struct{}

func (passLocker) WithSlotLock(ctx context.Context, slotID uuid.UUID, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func testConfig() config.Config {
	return config.Config{
		MinLeadTime:     30 * time.Minute,
		CancelWindow:    2 * time.Hour,
		CreditRateCents: 100,
		PlatformFeePct:  10,
	}
}

func newTestService(repo Repository) *Service {
	return NewService(repo, passLocker{}, testConfig(), zap.NewNop(), nil)
}
