package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrSlotNotFound        = errors.New("slot not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrPayoutNotFound      = errors.New("payout request not found")

	// ErrStatusConflict is returned by the compare-and-swap updates when
	// the row exists but its current status does not match the expected
	// one. Callers decide whether that means contention or a terminal
	// state.
	ErrStatusConflict = errors.New("status does not match expected value")

	ErrInsufficientCredits = errors.New("insufficient credits")
)

// Repository contains all DB interactions needed by the service.
//
// InTx runs fn against a repository bound to a single storage
// transaction; every error returned from fn rolls the whole unit of work
// back. All multi-row invariants (debit + entry, slot + appointment,
// payout + claim marks) rely on it.
type Repository interface {
	InTx(ctx context.Context, fn func(Repository) error) error

	// Users and ledger
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	// ApplyCredit atomically adjusts the cached balance, refusing any
	// adjustment that would drive it negative (ErrInsufficientCredits).
	// Returns the balance after the adjustment.
	ApplyCredit(ctx context.Context, userID uuid.UUID, amount int64) (int64, error)
	InsertLedgerEntry(ctx context.Context, e LedgerEntry) (*LedgerEntry, error)
	ListLedgerEntries(ctx context.Context, userID uuid.UUID, limit, offset int) ([]LedgerEntry, error)
	SumLedgerEntries(ctx context.Context, userID uuid.UUID) (int64, error)

	// Slots
	GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error)
	SlotOverlapExists(ctx context.Context, doctorID uuid.UUID, start, end time.Time) (bool, error)
	InsertSlot(ctx context.Context, s Slot) (*Slot, error)
	// UpdateSlotStatus is the CAS primitive: the update only applies if
	// the slot is currently in the from status.
	UpdateSlotStatus(ctx context.Context, id uuid.UUID, from, to SlotStatus) (*Slot, error)
	ListOpenSlotsByDoctor(ctx context.Context, doctorID uuid.UUID, from time.Time) ([]Slot, error)

	// Appointments
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	InsertAppointment(ctx context.Context, a Appointment) (*Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus, reason *string) (*Appointment, error)
	FindDueForCompletion(ctx context.Context, now time.Time) ([]Appointment, error)
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)
	ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]Appointment, error)

	// Payouts
	LockUnclaimedCompleted(ctx context.Context, doctorID uuid.UUID) ([]Appointment, error)
	InsertPayoutRequest(ctx context.Context, p PayoutRequest) (*PayoutRequest, error)
	MarkAppointmentsClaimed(ctx context.Context, ids []uuid.UUID, payoutID uuid.UUID) (int64, error)
	GetPayoutByID(ctx context.Context, id uuid.UUID) (*PayoutRequest, error)
	UpdatePayoutStatus(ctx context.Context, id uuid.UUID, from, to PayoutStatus) (*PayoutRequest, error)
	ListPayoutsByDoctor(ctx context.Context, doctorID uuid.UUID) ([]PayoutRequest, error)

	// Event trail
	InsertEvent(ctx context.Context, ev BookingEvent) error
}
