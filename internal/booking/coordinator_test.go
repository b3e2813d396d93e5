package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisclient "github.com/clinicore/booking-ledger/internal/redisclient"
)

func TestReserveHappyPath(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo)

	doctorID := repo.AddUser(RoleDoctor, 0)
	patientID := repo.AddUser(RolePatient, 100)
	start := time.Now().Add(2 * time.Hour)
	slotID := repo.AddSlot(doctorID, start, start.Add(30*time.Minute), SlotAvailable)

	appt, err := svc.Reserve(context.Background(), patientID, slotID, 40)
	require.NoError(t, err)
	require.NotNil(t, appt)
	assert.Equal(t, StatusScheduled, appt.Status)
	assert.Equal(t, slotID, appt.SlotID)
	assert.Equal(t, int64(40), appt.PriceCredits)

	slot, err := repo.GetSlotByID(context.Background(), slotID)
	require.NoError(t, err)
	assert.Equal(t, SlotBooked, slot.Status)

	balance, err := svc.BalanceOf(context.Background(), patientID)
	require.NoError(t, err)
	assert.Equal(t, int64(60), balance)

	entries, err := repo.ListLedgerEntries(context.Background(), patientID, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2) // seed purchase + deduction
	deduction := entries[1]
	assert.Equal(t, KindDeduction, deduction.Kind)
	assert.Equal(t, int64(-40), deduction.Amount)
	require.NotNil(t, deduction.AppointmentID)
	assert.Equal(t, appt.ID, *deduction.AppointmentID)
}

func TestReserveConcurrentSingleWinner(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo)

	doctorID := repo.AddUser(RoleDoctor, 0)
	start := time.Now().Add(2 * time.Hour)
	slotID := repo.AddSlot(doctorID, start, start.Add(30*time.Minute), SlotAvailable)

	const contenders = 20
	patients := make([]uuid.UUID, contenders)
	for i := range patients {
		patients[i] = repo.AddUser(RolePatient, 100)
	}

	var wg sync.WaitGroup
	results := make([]error, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.Reserve(context.Background(), patients[i], slotID, 50)
		}(i)
	}
	wg.Wait()

	var wins, losses int
	for i, err := range results {
		switch {
		case err == nil:
			wins++
			balance, berr := svc.BalanceOf(context.Background(), patients[i])
			require.NoError(t, berr)
			assert.Equal(t, int64(50), balance, "winner should be debited")
		case errors.Is(err, ErrSlotUnavailable):
			losses++
			balance, berr := svc.BalanceOf(context.Background(), patients[i])
			require.NoError(t, berr)
			assert.Equal(t, int64(100), balance, "loser must not be charged")
		default:
			t.Fatalf("unexpected reserve error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, contenders-1, losses)

	var appts int
	for _, a := range repo.state.appointments {
		if a.SlotID == slotID {
			appts++
		}
	}
	assert.Equal(t, 1, appts)
}

func TestReserveInsufficientCreditsRollsBack(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo)

	doctorID := repo.AddUser(RoleDoctor, 0)
	patientID := repo.AddUser(RolePatient, 10)
	start := time.Now().Add(2 * time.Hour)
	slotID := repo.AddSlot(doctorID, start, start.Add(30*time.Minute), SlotAvailable)

	_, err := svc.Reserve(context.Background(), patientID, slotID, 50)
	require.ErrorIs(t, err, ErrInsufficientCredits)

	// The whole unit of work rolled back: the slot claim is undone and
	// no appointment or ledger entry survives.
	slot, err := repo.GetSlotByID(context.Background(), slotID)
	require.NoError(t, err)
	assert.Equal(t, SlotAvailable, slot.Status)

	balance, err := svc.BalanceOf(context.Background(), patientID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance)

	entries, err := repo.ListLedgerEntries(context.Background(), patientID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1) // only the seed purchase

	assert.Empty(t, repo.state.appointments)
}

func TestReserveValidation(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo)

	doctorID := repo.AddUser(RoleDoctor, 0)
	patientID := repo.AddUser(RolePatient, 100)
	start := time.Now().Add(2 * time.Hour)
	slotID := repo.AddSlot(doctorID, start, start.Add(30*time.Minute), SlotAvailable)

	_, err := svc.Reserve(context.Background(), patientID, slotID, 0)
	assert.ErrorIs(t, err, ErrInvalidPrice)

	_, err = svc.Reserve(context.Background(), patientID, slotID, -5)
	assert.ErrorIs(t, err, ErrInvalidPrice)

	_, err = svc.Reserve(context.Background(), doctorID, slotID, 10)
	assert.ErrorIs(t, err, ErrNotPatient)

	_, err = svc.Reserve(context.Background(), patientID, uuid.New(), 10)
	assert.ErrorIs(t, err, ErrSlotNotFound)

	_, err = svc.Reserve(context.Background(), uuid.New(), slotID, 10)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestReserveTooSoon(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo)

	doctorID := repo.AddUser(RoleDoctor, 0)
	patientID := repo.AddUser(RolePatient, 100)
	start := time.Now().Add(10 * time.Minute) // inside the 30m lead time
	slotID := repo.AddSlot(doctorID, start, start.Add(30*time.Minute), SlotAvailable)

	_, err := svc.Reserve(context.Background(), patientID, slotID, 10)
	assert.ErrorIs(t, err, ErrTooSoonToBook)
}

func TestReserveBlockedSlot(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo)

	doctorID := repo.AddUser(RoleDoctor, 0)
	patientID := repo.AddUser(RolePatient, 100)
	start := time.Now().Add(2 * time.Hour)
	slotID := repo.AddSlot(doctorID, start, start.Add(30*time.Minute), SlotBlocked)

	_, err := svc.Reserve(context.Background(), patientID, slotID, 10)
	assert.ErrorIs(t, err, ErrSlotUnavailable)
}

// contendedLocker simulates an exhausted lock wait.
type contendedLocker struct{}

func (contendedLocker) WithSlotLock(ctx context.Context, slotID uuid.UUID, fn func(ctx context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

func TestReserveLockContention(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo, contendedLocker{}, testConfig(), nil, nil)

	doctorID := repo.AddUser(RoleDoctor, 0)
	patientID := repo.AddUser(RolePatient, 100)
	start := time.Now().Add(2 * time.Hour)
	slotID := repo.AddSlot(doctorID, start, start.Add(30*time.Minute), SlotAvailable)

	_, err := svc.Reserve(context.Background(), patientID, slotID, 10)
	assert.ErrorIs(t, err, ErrSlotContended)

	slot, err := repo.GetSlotByID(context.Background(), slotID)
	require.NoError(t, err)
	assert.Equal(t, SlotAvailable, slot.Status)
}
