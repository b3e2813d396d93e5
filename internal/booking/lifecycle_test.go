package booking

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCancelRefundsAndReleasesSlot(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo)

	doctorID := repo.AddUser(RoleDoctor, 0)
	patientID := repo.AddUser(RolePatient, 100)
	start := time.Now().Add(4 * time.Hour)
	slotID := repo.AddSlot(doctorID, start, start.Add(30*time.Minute), SlotAvailable)

	appt, err := svc.Reserve(context.Background(), patientID, slotID, 40)
	require.NoError(t, err)

	cancelled, err := svc.Cancel(context.Background(), appt.ID, patientID, "feeling better")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelReason)
	assert.Equal(t, "feeling better", *cancelled.CancelReason)

	slot, err := repo.GetSlotByID(context.Background(), slotID)
	require.NoError(t, err)
	assert.Equal(t, SlotAvailable, slot.Status)

	balance, err := svc.BalanceOf(context.Background(), patientID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance, "refund must restore the exact deduction")

	entries, err := repo.ListLedgerEntries(context.Background(), patientID, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3) // purchase, deduction, refund
	refund := entries[2]
	assert.Equal(t, KindRefund, refund.Kind)
	assert.Equal(t, int64(40), refund.Amount)
	require.NotNil(t, refund.AppointmentID)
	assert.Equal(t, appt.ID, *refund.AppointmentID)
}

func TestCancelActorChecks(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo)

	doctorID := repo.AddUser(RoleDoctor, 0)
	patientID := repo.AddUser(RolePatient, 100)
	strangerID := repo.AddUser(RolePatient, 0)
	adminID := repo.AddUser(RoleAdmin, 0)
	start := time.Now().Add(4 * time.Hour)
	slotID := repo.AddSlot(doctorID, start, start.Add(30*time.Minute), SlotAvailable)

	appt, err := svc.Reserve(context.Background(), patientID, slotID, 10)
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), appt.ID, strangerID, "")
	assert.ErrorIs(t, err, ErrNotParticipant)

	// Admin may cancel on behalf of either participant.
	_, err = svc.Cancel(context.Background(), appt.ID, adminID, "clinic closure")
	require.NoError(t, err)
}

func TestCancelTooLate(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo)

	doctorID := repo.AddUser(RoleDoctor, 0)
	patientID := repo.AddUser(RolePatient, 100)
	start := time.Now().Add(time.Hour) // inside the 2h cancellation window
	slotID := repo.AddSlot(doctorID, start, start.Add(30*time.Minute), SlotAvailable)

	appt, err := svc.Reserve(context.Background(), patientID, slotID, 10)
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), appt.ID, patientID, "")
	assert.ErrorIs(t, err, ErrTooLateToCancel)

	// Nothing moved.
	balance, err := svc.BalanceOf(context.Background(), patientID)
	require.NoError(t, err)
	assert.Equal(t, int64(90), balance)
}

func TestCancelTerminalStates(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo)

	doctorID := repo.AddUser(RoleDoctor, 0)
	patientID := repo.AddUser(RolePatient, 100)
	start := time.Now().Add(4 * time.Hour)
	slotID := repo.AddSlot(doctorID, start, start.Add(30*time.Minute), SlotAvailable)

	appt, err := svc.Reserve(context.Background(), patientID, slotID, 10)
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), appt.ID, patientID, "")
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), appt.ID, patientID, "")
	assert.ErrorIs(t, err, ErrAlreadyFinal)

	_, err = svc.Complete(context.Background(), appt.ID)
	assert.ErrorIs(t, err, ErrAlreadyFinal)
}

func TestCompleteIdempotent(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo)

	doctorID := repo.AddUser(RoleDoctor, 0)
	patientID := repo.AddUser(RolePatient, 100)
	start := time.Now().Add(4 * time.Hour)
	slotID := repo.AddSlot(doctorID, start, start.Add(30*time.Minute), SlotAvailable)

	appt, err := svc.Reserve(context.Background(), patientID, slotID, 10)
	require.NoError(t, err)

	first, err := svc.Complete(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, first.Status)

	second, err := svc.Complete(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, second.Status)

	// Completion does not touch the ledger.
	balance, err := svc.BalanceOf(context.Background(), patientID)
	require.NoError(t, err)
	assert.Equal(t, int64(90), balance)
}

func TestCompleteDueAppointments(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo)

	doctorID := repo.AddUser(RoleDoctor, 0)
	patientID := repo.AddUser(RolePatient, 0)

	// A past appointment written directly, as if booked yesterday.
	past := time.Now().Add(-2 * time.Hour)
	slotID := repo.AddSlot(doctorID, past, past.Add(30*time.Minute), SlotBooked)
	overdue, err := repo.InsertAppointment(context.Background(), Appointment{
		ID:           uuid.New(),
		SlotID:       slotID,
		PatientID:    patientID,
		DoctorID:     doctorID,
		StartTime:    past,
		EndTime:      past.Add(30 * time.Minute),
		Status:       StatusScheduled,
		PriceCredits: 10,
	})
	require.NoError(t, err)

	// A future appointment that must stay scheduled.
	future := time.Now().Add(4 * time.Hour)
	futureSlotID := repo.AddSlot(doctorID, future, future.Add(30*time.Minute), SlotBooked)
	pending, err := repo.InsertAppointment(context.Background(), Appointment{
		ID:           uuid.New(),
		SlotID:       futureSlotID,
		PatientID:    patientID,
		DoctorID:     doctorID,
		StartTime:    future,
		EndTime:      future.Add(30 * time.Minute),
		Status:       StatusScheduled,
		PriceCredits: 10,
	})
	require.NoError(t, err)

	require.NoError(t, svc.CompleteDueAppointments(context.Background()))

	got, err := svc.GetAppointment(context.Background(), overdue.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)

	got, err = svc.GetAppointment(context.Background(), pending.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, got.Status)
}

// A cancelled booking frees the slot for the patient who lost the
// original race.
func TestRebookAfterCancel(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo)

	doctorID := repo.AddUser(RoleDoctor, 0)
	first := repo.AddUser(RolePatient, 100)
	second := repo.AddUser(RolePatient, 100)
	start := time.Now().Add(4 * time.Hour)
	slotID := repo.AddSlot(doctorID, start, start.Add(30*time.Minute), SlotAvailable)

	appt, err := svc.Reserve(context.Background(), first, slotID, 30)
	require.NoError(t, err)

	_, err = svc.Reserve(context.Background(), second, slotID, 30)
	require.ErrorIs(t, err, ErrSlotUnavailable)

	_, err = svc.Cancel(context.Background(), appt.ID, first, "schedule change")
	require.NoError(t, err)

	rebooked, err := svc.Reserve(context.Background(), second, slotID, 30)
	require.NoError(t, err)
	assert.Equal(t, second, rebooked.PatientID)

	firstBalance, err := svc.BalanceOf(context.Background(), first)
	require.NoError(t, err)
	assert.Equal(t, int64(100), firstBalance)

	secondBalance, err := svc.BalanceOf(context.Background(), second)
	require.NoError(t, err)
	assert.Equal(t, int64(70), secondBalance)
}
