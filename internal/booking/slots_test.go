package booking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSlot(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo)

	doctorID := repo.AddUser(RoleDoctor, 0)
	patientID := repo.AddUser(RolePatient, 0)
	start := time.Now().Add(24 * time.Hour)

	slot, err := svc.PublishSlot(context.Background(), doctorID, start, start.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, SlotAvailable, slot.Status)
	assert.Equal(t, doctorID, slot.DoctorID)

	_, err = svc.PublishSlot(context.Background(), patientID, start.Add(time.Hour), start.Add(2*time.Hour))
	assert.ErrorIs(t, err, ErrNotDoctor)
}

func TestPublishSlotInvalidRange(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo)
	doctorID := repo.AddUser(RoleDoctor, 0)

	start := time.Now().Add(24 * time.Hour)

	// End before start.
	_, err := svc.PublishSlot(context.Background(), doctorID, start, start.Add(-time.Hour))
	assert.ErrorIs(t, err, ErrInvalidSlotRange)

	// Zero-length.
	_, err = svc.PublishSlot(context.Background(), doctorID, start, start)
	assert.ErrorIs(t, err, ErrInvalidSlotRange)

	// Start in the past.
	past := time.Now().Add(-time.Hour)
	_, err = svc.PublishSlot(context.Background(), doctorID, past, past.Add(30*time.Minute))
	assert.ErrorIs(t, err, ErrInvalidSlotRange)
}

func TestPublishSlotOverlap(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo)

	doctorID := repo.AddUser(RoleDoctor, 0)
	otherID := repo.AddUser(RoleDoctor, 0)
	start := time.Now().Add(24 * time.Hour)

	_, err := svc.PublishSlot(context.Background(), doctorID, start, start.Add(time.Hour))
	require.NoError(t, err)

	// Partial overlap with the existing slot.
	_, err = svc.PublishSlot(context.Background(), doctorID, start.Add(30*time.Minute), start.Add(90*time.Minute))
	assert.ErrorIs(t, err, ErrSlotOverlap)

	// Back-to-back is fine: ranges are half-open.
	_, err = svc.PublishSlot(context.Background(), doctorID, start.Add(time.Hour), start.Add(2*time.Hour))
	require.NoError(t, err)

	// A different doctor can occupy the same window.
	_, err = svc.PublishSlot(context.Background(), otherID, start, start.Add(time.Hour))
	require.NoError(t, err)
}

func TestBlockSlot(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo)

	doctorID := repo.AddUser(RoleDoctor, 0)
	otherID := repo.AddUser(RoleDoctor, 0)
	start := time.Now().Add(24 * time.Hour)
	slotID := repo.AddSlot(doctorID, start, start.Add(30*time.Minute), SlotAvailable)

	_, err := svc.BlockSlot(context.Background(), otherID, slotID)
	assert.ErrorIs(t, err, ErrNotSlotOwner)

	blocked, err := svc.BlockSlot(context.Background(), doctorID, slotID)
	require.NoError(t, err)
	assert.Equal(t, SlotBlocked, blocked.Status)

	// Blocking a non-available slot is a conflict.
	_, err = svc.BlockSlot(context.Background(), doctorID, slotID)
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	bookedID := repo.AddSlot(doctorID, start.Add(time.Hour), start.Add(2*time.Hour), SlotBooked)
	_, err = svc.BlockSlot(context.Background(), doctorID, bookedID)
	assert.ErrorIs(t, err, ErrSlotUnavailable)
}

func TestListOpenSlots(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo)

	doctorID := repo.AddUser(RoleDoctor, 0)
	now := time.Now()

	openID := repo.AddSlot(doctorID, now.Add(24*time.Hour), now.Add(25*time.Hour), SlotAvailable)
	repo.AddSlot(doctorID, now.Add(26*time.Hour), now.Add(27*time.Hour), SlotBooked)
	repo.AddSlot(doctorID, now.Add(28*time.Hour), now.Add(29*time.Hour), SlotBlocked)
	repo.AddSlot(doctorID, now.Add(-2*time.Hour), now.Add(-time.Hour), SlotAvailable)

	slots, err := svc.ListOpenSlots(context.Background(), doctorID, now)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, openID, slots[0].ID)
}
