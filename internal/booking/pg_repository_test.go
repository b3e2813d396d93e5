package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (pgxmock.PgxPoolIface, *PgRepository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewPgRepository(mock)
}

func TestPgApplyCredit(t *testing.T) {
	mock, repo := newMockRepo(t)
	userID := uuid.New()

	mock.ExpectQuery("UPDATE users").
		WithArgs(userID, int64(50)).
		WillReturnRows(pgxmock.NewRows([]string{"credits"}).AddRow(int64(150)))

	balance, err := repo.ApplyCredit(context.Background(), userID, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(150), balance)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgApplyCreditInsufficient(t *testing.T) {
	mock, repo := newMockRepo(t)
	userID := uuid.New()

	// The conditional update matches no row; the follow-up existence
	// check distinguishes a missing user from an overdraft.
	mock.ExpectQuery("UPDATE users").
		WithArgs(userID, int64(-500)).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(userID).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	_, err := repo.ApplyCredit(context.Background(), userID, -500)
	assert.ErrorIs(t, err, ErrInsufficientCredits)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgApplyCreditUserMissing(t *testing.T) {
	mock, repo := newMockRepo(t)
	userID := uuid.New()

	mock.ExpectQuery("UPDATE users").
		WithArgs(userID, int64(10)).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(userID).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	_, err := repo.ApplyCredit(context.Background(), userID, 10)
	assert.ErrorIs(t, err, ErrUserNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func slotRow(id, doctorID uuid.UUID, status SlotStatus, start, end time.Time) *pgxmock.Rows {
	now := time.Now()
	return pgxmock.NewRows([]string{"id", "doctor_id", "start_time", "end_time", "status", "created_at", "updated_at"}).
		AddRow(id, doctorID, start, end, status, now, now)
}

func TestPgUpdateSlotStatus(t *testing.T) {
	mock, repo := newMockRepo(t)
	slotID := uuid.New()
	doctorID := uuid.New()
	start := time.Now().Add(time.Hour)

	mock.ExpectQuery("UPDATE slots").
		WithArgs(slotID, SlotAvailable, SlotBooked).
		WillReturnRows(slotRow(slotID, doctorID, SlotBooked, start, start.Add(30*time.Minute)))

	slot, err := repo.UpdateSlotStatus(context.Background(), slotID, SlotAvailable, SlotBooked)
	require.NoError(t, err)
	assert.Equal(t, SlotBooked, slot.Status)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgUpdateSlotStatusConflict(t *testing.T) {
	mock, repo := newMockRepo(t)
	slotID := uuid.New()
	doctorID := uuid.New()
	start := time.Now().Add(time.Hour)

	// No row matched the expected status; the slot itself exists, so the
	// caller gets a status conflict rather than not-found.
	mock.ExpectQuery("UPDATE slots").
		WithArgs(slotID, SlotAvailable, SlotBooked).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT id, doctor_id").
		WithArgs(slotID).
		WillReturnRows(slotRow(slotID, doctorID, SlotBooked, start, start.Add(30*time.Minute)))

	_, err := repo.UpdateSlotStatus(context.Background(), slotID, SlotAvailable, SlotBooked)
	assert.ErrorIs(t, err, ErrStatusConflict)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgUpdateSlotStatusNotFound(t *testing.T) {
	mock, repo := newMockRepo(t)
	slotID := uuid.New()

	mock.ExpectQuery("UPDATE slots").
		WithArgs(slotID, SlotAvailable, SlotBlocked).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT id, doctor_id").
		WithArgs(slotID).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.UpdateSlotStatus(context.Background(), slotID, SlotAvailable, SlotBlocked)
	assert.ErrorIs(t, err, ErrSlotNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgInsertSlotOverlapConstraint(t *testing.T) {
	mock, repo := newMockRepo(t)
	s := Slot{
		ID:        uuid.New(),
		DoctorID:  uuid.New(),
		StartTime: time.Now().Add(time.Hour),
		EndTime:   time.Now().Add(2 * time.Hour),
		Status:    SlotAvailable,
	}

	mock.ExpectQuery("INSERT INTO slots").
		WithArgs(s.ID, s.DoctorID, s.StartTime, s.EndTime, s.Status).
		WillReturnError(&pgconn.PgError{Code: "23P01"})

	_, err := repo.InsertSlot(context.Background(), s)
	assert.ErrorIs(t, err, ErrSlotOverlap)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgInTxCommit(t *testing.T) {
	mock, repo := newMockRepo(t)
	userID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE users").
		WithArgs(userID, int64(25)).
		WillReturnRows(pgxmock.NewRows([]string{"credits"}).AddRow(int64(25)))
	mock.ExpectCommit()

	err := repo.InTx(context.Background(), func(r Repository) error {
		_, err := r.ApplyCredit(context.Background(), userID, 25)
		return err
	})
	require.NoError(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgInTxRollbackOnError(t *testing.T) {
	mock, repo := newMockRepo(t)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := repo.InTx(context.Background(), func(r Repository) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgMarkAppointmentsClaimed(t *testing.T) {
	mock, repo := newMockRepo(t)
	payoutID := uuid.New()
	ids := []uuid.UUID{uuid.New(), uuid.New()}

	mock.ExpectExec("UPDATE appointments").
		WithArgs(payoutID, ids).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	n, err := repo.MarkAppointmentsClaimed(context.Background(), ids, payoutID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgGetUserByID(t *testing.T) {
	mock, repo := newMockRepo(t)
	userID := uuid.New()
	now := time.Now()

	mock.ExpectQuery("SELECT id, name, role").
		WithArgs(userID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "role", "credits", "created_at", "updated_at"}).
			AddRow(userID, "Dr. Reyes", RoleDoctor, int64(0), now, now))

	u, err := repo.GetUserByID(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, RoleDoctor, u.Role)

	mock.ExpectQuery("SELECT id, name, role").
		WithArgs(userID).
		WillReturnError(pgx.ErrNoRows)

	_, err = repo.GetUserByID(context.Background(), userID)
	assert.ErrorIs(t, err, ErrUserNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}
