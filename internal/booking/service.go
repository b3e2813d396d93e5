package booking

import (
	"errors"

	"go.uber.org/zap"

	"github.com/clinicore/booking-ledger/internal/config"
	"github.com/clinicore/booking-ledger/internal/metrics"
	redisclient "github.com/clinicore/booking-ledger/internal/redisclient"
)

// Business-rule failures. These are expected outcomes of contention and
// normal flow, returned as values and mapped to HTTP statuses at the edge.
var (
	ErrNotPatient        = errors.New("user cannot book appointments")
	ErrNotDoctor         = errors.New("user is not a doctor")
	ErrDoctorInactive    = errors.New("slot does not belong to an active doctor")
	ErrInvalidPrice      = errors.New("price must be positive")
	ErrInvalidSlotRange  = errors.New("slot time range is invalid")
	ErrInvalidAmount     = errors.New("amount is not valid for this entry kind")
	ErrSlotOverlap       = errors.New("slot overlaps an existing slot for this doctor")
	ErrNotSlotOwner      = errors.New("slot belongs to a different doctor")
	ErrSlotUnavailable   = errors.New("slot is not available")
	ErrSlotContended     = errors.New("slot is currently being booked, please retry")
	ErrTooSoonToBook     = errors.New("slot starts within the minimum lead time")
	ErrAlreadyFinal      = errors.New("already in a terminal state")
	ErrTooLateToCancel   = errors.New("appointment starts within the cancellation window")
	ErrNotParticipant    = errors.New("actor may not act on this appointment")
	ErrNoEligibleCredits = errors.New("no unclaimed completed appointments")
)

// Service is the reservation and ledger engine. The repository supplies
// atomic units of work via InTx; the locker serializes bookers per slot
// so that losers observe the slot CAS conflict instead of piling
// transactions onto the store.
type Service struct {
	repo    Repository
	locker  redisclient.Locker
	cfg     config.Config
	log     *zap.Logger
	metrics *metrics.BookingMetrics
}

func NewService(repo Repository, locker redisclient.Locker, cfg config.Config, log *zap.Logger, m *metrics.BookingMetrics) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		repo:    repo,
		locker:  locker,
		cfg:     cfg,
		log:     log,
		metrics: m,
	}
}
