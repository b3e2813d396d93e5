package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/clinicore/booking-ledger/internal/db"
)

type PgRepository struct {
	db db.DB
}

func NewPgRepository(d db.DB) *PgRepository {
	return &PgRepository{db: d}
}

// InTx starts a transaction and hands fn a repository bound to it. A
// nested call gets a savepoint via pgx.Tx.Begin, so the same code path
// works at any depth.
func (r *PgRepository) InTx(ctx context.Context, fn func(Repository) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&PgRepository{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Helpers

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Role,
		&u.Credits,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	err := row.Scan(
		&s.ID,
		&s.DoctorID,
		&s.StartTime,
		&s.EndTime,
		&s.Status,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}
	return &s, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var payoutID *uuid.UUID
	var reason *string

	err := row.Scan(
		&a.ID,
		&a.SlotID,
		&a.PatientID,
		&a.DoctorID,
		&a.StartTime,
		&a.EndTime,
		&a.Status,
		&a.PriceCredits,
		&payoutID,
		&reason,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.PayoutID = payoutID
	a.CancelReason = reason
	return &a, nil
}

func scanEntry(row pgx.Row) (*LedgerEntry, error) {
	var e LedgerEntry
	var apptID *uuid.UUID
	var ref *string

	err := row.Scan(
		&e.ID,
		&e.UserID,
		&e.Amount,
		&e.Kind,
		&apptID,
		&ref,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.AppointmentID = apptID
	e.PaymentRef = ref
	return &e, nil
}

func scanPayout(row pgx.Row) (*PayoutRequest, error) {
	var p PayoutRequest
	err := row.Scan(
		&p.ID,
		&p.DoctorID,
		&p.CreditsClaimed,
		&p.AmountCents,
		&p.FeeCents,
		&p.NetCents,
		&p.Status,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPayoutNotFound
		}
		return nil, err
	}
	return &p, nil
}

const appointmentCols = `id, slot_id, patient_id, doctor_id, start_time, end_time, status, price_credits, payout_id, cancel_reason, created_at, updated_at`

// Users and ledger

func (r *PgRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, role, credits, created_at, updated_at
		FROM users
		WHERE id = $1
	`, id)
	return scanUser(row)
}

// ApplyCredit adjusts the cached balance projection in a single
// conditional update. The row lock it takes is what serializes a debit
// against a concurrent top-up on the same user.
func (r *PgRepository) ApplyCredit(ctx context.Context, userID uuid.UUID, amount int64) (int64, error) {
	var balance int64
	err := r.db.QueryRow(ctx, `
		UPDATE users
		SET credits = credits + $2,
		    updated_at = now()
		WHERE id = $1
		  AND credits + $2 >= 0
		RETURNING credits
	`, userID, amount).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}

	// No row updated: missing user or a balance that would go negative.
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
		return 0, err
	}
	if !exists {
		return 0, ErrUserNotFound
	}
	return 0, ErrInsufficientCredits
}

func (r *PgRepository) InsertLedgerEntry(ctx context.Context, e LedgerEntry) (*LedgerEntry, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO credit_ledger (user_id, amount, kind, appointment_id, payment_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING id, user_id, amount, kind, appointment_id, payment_ref, created_at
	`, e.UserID, e.Amount, e.Kind, e.AppointmentID, e.PaymentRef)
	return scanEntry(row)
}

func (r *PgRepository) ListLedgerEntries(ctx context.Context, userID uuid.UUID, limit, offset int) ([]LedgerEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, amount, kind, appointment_id, payment_ref, created_at
		FROM credit_ledger
		WHERE user_id = $1
		ORDER BY id
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}
	return result, rows.Err()
}

func (r *PgRepository) SumLedgerEntries(ctx context.Context, userID uuid.UUID) (int64, error) {
	var sum int64
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM credit_ledger
		WHERE user_id = $1
	`, userID).Scan(&sum)
	return sum, err
}

// Slots

func (r *PgRepository) GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, doctor_id, start_time, end_time, status, created_at, updated_at
		FROM slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

// SlotOverlapExists checks [start, end) intersection against every slot
// of the doctor regardless of status; blocked and booked time still
// occupies the calendar.
func (r *PgRepository) SlotOverlapExists(ctx context.Context, doctorID uuid.UUID, start, end time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM slots
			WHERE doctor_id = $1
			  AND start_time < $3
			  AND end_time > $2
		)
	`, doctorID, start, end).Scan(&exists)
	return exists, err
}

func (r *PgRepository) InsertSlot(ctx context.Context, s Slot) (*Slot, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO slots (id, doctor_id, start_time, end_time, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		RETURNING id, doctor_id, start_time, end_time, status, created_at, updated_at
	`, s.ID, s.DoctorID, s.StartTime, s.EndTime, s.Status)

	created, err := scanSlot(row)
	if err != nil {
		// The exclusion constraint closes the check/insert race between
		// two concurrent publishes for the same doctor.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23P01" {
			return nil, ErrSlotOverlap
		}
		return nil, err
	}
	return created, nil
}

func (r *PgRepository) UpdateSlotStatus(ctx context.Context, id uuid.UUID, from, to SlotStatus) (*Slot, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE slots
		SET status = $3,
		    updated_at = now()
		WHERE id = $1
		  AND status = $2
		RETURNING id, doctor_id, start_time, end_time, status, created_at, updated_at
	`, id, from, to)

	s, err := scanSlot(row)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, ErrSlotNotFound) {
		return nil, err
	}

	if _, getErr := r.GetSlotByID(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, ErrStatusConflict
}

func (r *PgRepository) ListOpenSlotsByDoctor(ctx context.Context, doctorID uuid.UUID, from time.Time) ([]Slot, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, doctor_id, start_time, end_time, status, created_at, updated_at
		FROM slots
		WHERE doctor_id = $1
		  AND status = 'available'
		  AND start_time >= $2
		ORDER BY start_time
	`, doctorID, from)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	return result, rows.Err()
}

// Appointments

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentCols+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) InsertAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO appointments (id, slot_id, patient_id, doctor_id, start_time, end_time, status, price_credits, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		RETURNING `+appointmentCols+`
	`, a.ID, a.SlotID, a.PatientID, a.DoctorID, a.StartTime, a.EndTime, a.Status, a.PriceCredits)
	return scanAppointment(row)
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus, reason *string) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = $3,
		    cancel_reason = COALESCE($4, cancel_reason),
		    updated_at = now()
		WHERE id = $1
		  AND status = $2
		RETURNING `+appointmentCols+`
	`, id, from, to, reason)

	a, err := scanAppointment(row)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, ErrAppointmentNotFound) {
		return nil, err
	}

	if _, getErr := r.GetAppointmentByID(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, ErrStatusConflict
}

func (r *PgRepository) FindDueForCompletion(ctx context.Context, now time.Time) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentCols+`
		FROM appointments
		WHERE status = 'scheduled'
		  AND end_time < $1
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentCols+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY start_time DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentCols+`
		FROM appointments
		WHERE doctor_id = $1
		ORDER BY start_time DESC
		LIMIT $2 OFFSET $3
	`, doctorID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

// Payouts

// LockUnclaimedCompleted takes row locks on the payout snapshot so a
// concurrent payout request for the same doctor blocks until this unit
// of work commits, then sees payout_id already set.
func (r *PgRepository) LockUnclaimedCompleted(ctx context.Context, doctorID uuid.UUID) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentCols+`
		FROM appointments
		WHERE doctor_id = $1
		  AND status = 'completed'
		  AND payout_id IS NULL
		ORDER BY end_time
		FOR UPDATE
	`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) InsertPayoutRequest(ctx context.Context, p PayoutRequest) (*PayoutRequest, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO payout_requests (id, doctor_id, credits_claimed, amount_cents, fee_cents, net_cents, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING id, doctor_id, credits_claimed, amount_cents, fee_cents, net_cents, status, created_at, updated_at
	`, p.ID, p.DoctorID, p.CreditsClaimed, p.AmountCents, p.FeeCents, p.NetCents, p.Status)
	return scanPayout(row)
}

func (r *PgRepository) MarkAppointmentsClaimed(ctx context.Context, ids []uuid.UUID, payoutID uuid.UUID) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE appointments
		SET payout_id = $1,
		    updated_at = now()
		WHERE id = ANY($2)
		  AND payout_id IS NULL
	`, payoutID, ids)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PgRepository) GetPayoutByID(ctx context.Context, id uuid.UUID) (*PayoutRequest, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, doctor_id, credits_claimed, amount_cents, fee_cents, net_cents, status, created_at, updated_at
		FROM payout_requests
		WHERE id = $1
	`, id)
	return scanPayout(row)
}

func (r *PgRepository) UpdatePayoutStatus(ctx context.Context, id uuid.UUID, from, to PayoutStatus) (*PayoutRequest, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE payout_requests
		SET status = $3,
		    updated_at = now()
		WHERE id = $1
		  AND status = $2
		RETURNING id, doctor_id, credits_claimed, amount_cents, fee_cents, net_cents, status, created_at, updated_at
	`, id, from, to)

	p, err := scanPayout(row)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrPayoutNotFound) {
		return nil, err
	}

	if _, getErr := r.GetPayoutByID(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, ErrStatusConflict
}

func (r *PgRepository) ListPayoutsByDoctor(ctx context.Context, doctorID uuid.UUID) ([]PayoutRequest, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, doctor_id, credits_claimed, amount_cents, fee_cents, net_cents, status, created_at, updated_at
		FROM payout_requests
		WHERE doctor_id = $1
		ORDER BY created_at DESC
	`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []PayoutRequest
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	return result, rows.Err()
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev BookingEvent) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO booking_events (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert booking event: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
