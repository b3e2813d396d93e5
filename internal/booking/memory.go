package booking

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is an in-memory Repository. It backs the unit tests
// and local development without Postgres. InTx serializes units of work
// behind one mutex and restores a snapshot on error, matching the
// commit/rollback contract of the pg repository.
type MemoryRepository struct {
	mu    sync.Mutex
	state *memState
	inTx  bool
}

type memState struct {
	users        map[uuid.UUID]*User
	slots        map[uuid.UUID]*Slot
	appointments map[uuid.UUID]*Appointment
	entries      []LedgerEntry
	payouts      map[uuid.UUID]*PayoutRequest
	events       []BookingEvent
	nextEntryID  int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		state: &memState{
			users:        make(map[uuid.UUID]*User),
			slots:        make(map[uuid.UUID]*Slot),
			appointments: make(map[uuid.UUID]*Appointment),
			payouts:      make(map[uuid.UUID]*PayoutRequest),
			nextEntryID:  1,
		},
	}
}

func (s *memState) clone() *memState {
	c := &memState{
		users:        make(map[uuid.UUID]*User, len(s.users)),
		slots:        make(map[uuid.UUID]*Slot, len(s.slots)),
		appointments: make(map[uuid.UUID]*Appointment, len(s.appointments)),
		payouts:      make(map[uuid.UUID]*PayoutRequest, len(s.payouts)),
		entries:      append([]LedgerEntry(nil), s.entries...),
		events:       append([]BookingEvent(nil), s.events...),
		nextEntryID:  s.nextEntryID,
	}
	for k, v := range s.users {
		u := *v
		c.users[k] = &u
	}
	for k, v := range s.slots {
		sl := *v
		c.slots[k] = &sl
	}
	for k, v := range s.appointments {
		a := *v
		c.appointments[k] = &a
	}
	for k, v := range s.payouts {
		p := *v
		c.payouts[k] = &p
	}
	return c
}

func (r *MemoryRepository) InTx(ctx context.Context, fn func(Repository) error) error {
	if !r.inTx {
		r.mu.Lock()
		defer r.mu.Unlock()
	}

	snapshot := r.state.clone()
	bound := &MemoryRepository{state: r.state, inTx: true}
	if err := fn(bound); err != nil {
		*r.state = *snapshot
		return err
	}
	return nil
}

func (r *MemoryRepository) lock() func() {
	if r.inTx {
		return func() {}
	}
	r.mu.Lock()
	return r.mu.Unlock
}

// AddUser seeds a user. Users are owned by the identity subsystem in
// production, so this writes the row directly; a non-zero starting
// balance gets a matching purchase entry to keep the ledger consistent.
func (r *MemoryRepository) AddUser(role Role, credits int64) uuid.UUID {
	defer r.lock()()
	id := uuid.New()
	r.state.users[id] = &User{ID: id, Name: string(role), Role: role, Credits: credits}
	if credits != 0 {
		r.state.entries = append(r.state.entries, LedgerEntry{
			ID:        r.state.nextEntryID,
			UserID:    id,
			Amount:    credits,
			Kind:      KindPurchase,
			CreatedAt: time.Now(),
		})
		r.state.nextEntryID++
	}
	return id
}

// AddSlot seeds a slot in the given status, bypassing overlap checks.
func (r *MemoryRepository) AddSlot(doctorID uuid.UUID, start, end time.Time, status SlotStatus) uuid.UUID {
	defer r.lock()()
	id := uuid.New()
	r.state.slots[id] = &Slot{ID: id, DoctorID: doctorID, StartTime: start, EndTime: end, Status: status}
	return id
}

func (r *MemoryRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	defer r.lock()()
	u, ok := r.state.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *MemoryRepository) ApplyCredit(ctx context.Context, userID uuid.UUID, amount int64) (int64, error) {
	defer r.lock()()
	u, ok := r.state.users[userID]
	if !ok {
		return 0, ErrUserNotFound
	}
	if u.Credits+amount < 0 {
		return 0, ErrInsufficientCredits
	}
	u.Credits += amount
	return u.Credits, nil
}

func (r *MemoryRepository) InsertLedgerEntry(ctx context.Context, e LedgerEntry) (*LedgerEntry, error) {
	defer r.lock()()
	e.ID = r.state.nextEntryID
	r.state.nextEntryID++
	e.CreatedAt = time.Now()
	r.state.entries = append(r.state.entries, e)
	cp := e
	return &cp, nil
}

func (r *MemoryRepository) ListLedgerEntries(ctx context.Context, userID uuid.UUID, limit, offset int) ([]LedgerEntry, error) {
	defer r.lock()()
	var all []LedgerEntry
	for _, e := range r.state.entries {
		if e.UserID == userID {
			all = append(all, e)
		}
	}
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (r *MemoryRepository) SumLedgerEntries(ctx context.Context, userID uuid.UUID) (int64, error) {
	defer r.lock()()
	var sum int64
	for _, e := range r.state.entries {
		if e.UserID == userID {
			sum += e.Amount
		}
	}
	return sum, nil
}

func (r *MemoryRepository) GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	defer r.lock()()
	s, ok := r.state.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *MemoryRepository) SlotOverlapExists(ctx context.Context, doctorID uuid.UUID, start, end time.Time) (bool, error) {
	defer r.lock()()
	for _, s := range r.state.slots {
		if s.DoctorID == doctorID && s.StartTime.Before(end) && s.EndTime.After(start) {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryRepository) InsertSlot(ctx context.Context, s Slot) (*Slot, error) {
	defer r.lock()()
	for _, existing := range r.state.slots {
		if existing.DoctorID == s.DoctorID && existing.StartTime.Before(s.EndTime) && existing.EndTime.After(s.StartTime) {
			return nil, ErrSlotOverlap
		}
	}
	cp := s
	r.state.slots[s.ID] = &cp
	out := cp
	return &out, nil
}

func (r *MemoryRepository) UpdateSlotStatus(ctx context.Context, id uuid.UUID, from, to SlotStatus) (*Slot, error) {
	defer r.lock()()
	s, ok := r.state.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	if s.Status != from {
		return nil, ErrStatusConflict
	}
	s.Status = to
	cp := *s
	return &cp, nil
}

func (r *MemoryRepository) ListOpenSlotsByDoctor(ctx context.Context, doctorID uuid.UUID, from time.Time) ([]Slot, error) {
	defer r.lock()()
	var out []Slot
	for _, s := range r.state.slots {
		if s.DoctorID == doctorID && s.Status == SlotAvailable && !s.StartTime.Before(from) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *MemoryRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	defer r.lock()()
	a, ok := r.state.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *MemoryRepository) InsertAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	defer r.lock()()
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	cp := a
	r.state.appointments[a.ID] = &cp
	out := cp
	return &out, nil
}

func (r *MemoryRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus, reason *string) (*Appointment, error) {
	defer r.lock()()
	a, ok := r.state.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if a.Status != from {
		return nil, ErrStatusConflict
	}
	a.Status = to
	if reason != nil {
		a.CancelReason = reason
	}
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (r *MemoryRepository) FindDueForCompletion(ctx context.Context, now time.Time) ([]Appointment, error) {
	defer r.lock()()
	var out []Appointment
	for _, a := range r.state.appointments {
		if a.Status == StatusScheduled && a.EndTime.Before(now) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *MemoryRepository) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	defer r.lock()()
	var out []Appointment
	for _, a := range r.state.appointments {
		if a.PatientID == patientID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *MemoryRepository) ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]Appointment, error) {
	defer r.lock()()
	var out []Appointment
	for _, a := range r.state.appointments {
		if a.DoctorID == doctorID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *MemoryRepository) LockUnclaimedCompleted(ctx context.Context, doctorID uuid.UUID) ([]Appointment, error) {
	defer r.lock()()
	var out []Appointment
	for _, a := range r.state.appointments {
		if a.DoctorID == doctorID && a.Status == StatusCompleted && a.PayoutID == nil {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *MemoryRepository) InsertPayoutRequest(ctx context.Context, p PayoutRequest) (*PayoutRequest, error) {
	defer r.lock()()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	cp := p
	r.state.payouts[p.ID] = &cp
	out := cp
	return &out, nil
}

func (r *MemoryRepository) MarkAppointmentsClaimed(ctx context.Context, ids []uuid.UUID, payoutID uuid.UUID) (int64, error) {
	defer r.lock()()
	var n int64
	for _, id := range ids {
		a, ok := r.state.appointments[id]
		if ok && a.PayoutID == nil {
			pid := payoutID
			a.PayoutID = &pid
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) GetPayoutByID(ctx context.Context, id uuid.UUID) (*PayoutRequest, error) {
	defer r.lock()()
	p, ok := r.state.payouts[id]
	if !ok {
		return nil, ErrPayoutNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *MemoryRepository) UpdatePayoutStatus(ctx context.Context, id uuid.UUID, from, to PayoutStatus) (*PayoutRequest, error) {
	defer r.lock()()
	p, ok := r.state.payouts[id]
	if !ok {
		return nil, ErrPayoutNotFound
	}
	if p.Status != from {
		return nil, ErrStatusConflict
	}
	p.Status = to
	p.UpdatedAt = time.Now()
	cp := *p
	return &cp, nil
}

func (r *MemoryRepository) ListPayoutsByDoctor(ctx context.Context, doctorID uuid.UUID) ([]PayoutRequest, error) {
	defer r.lock()()
	var out []PayoutRequest
	for _, p := range r.state.payouts {
		if p.DoctorID == doctorID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *MemoryRepository) InsertEvent(ctx context.Context, ev BookingEvent) error {
	defer r.lock()()
	ev.ID = int64(len(r.state.events) + 1)
	r.state.events = append(r.state.events, ev)
	return nil
}
