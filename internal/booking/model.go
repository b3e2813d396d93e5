package booking

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

type SlotStatus string

const (
	SlotAvailable SlotStatus = "available"
	SlotBooked    SlotStatus = "booked"
	SlotBlocked   SlotStatus = "blocked"
)

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

// EntryKind classifies a ledger entry. The signed amount carries the
// direction; the kind records why the balance moved.
type EntryKind string

const (
	KindPurchase   EntryKind = "purchase"
	KindDeduction  EntryKind = "deduction"
	KindRefund     EntryKind = "refund"
	KindAdjustment EntryKind = "adjustment"
)

type PayoutStatus string

const (
	PayoutProcessing PayoutStatus = "processing"
	PayoutProcessed  PayoutStatus = "processed"
)

// User is owned by the identity subsystem; the engine only reads the role
// and moves Credits through ledger appends.
type User struct {
	ID        uuid.UUID
	Name      string
	Role      Role
	Credits   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Slot struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	StartTime time.Time
	EndTime   time.Time
	Status    SlotStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Appointment struct {
	ID           uuid.UUID
	SlotID       uuid.UUID
	PatientID    uuid.UUID
	DoctorID     uuid.UUID
	StartTime    time.Time
	EndTime      time.Time
	Status       AppointmentStatus
	PriceCredits int64
	PayoutID     *uuid.UUID
	CancelReason *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// LedgerEntry is written exactly once per credit movement and never
// mutated afterwards. The user's credits column is a projection of these
// rows, updated in the same transaction as the insert.
type LedgerEntry struct {
	ID            int64
	UserID        uuid.UUID
	Amount        int64
	Kind          EntryKind
	AppointmentID *uuid.UUID
	PaymentRef    *string
	CreatedAt     time.Time
}

type PayoutRequest struct {
	ID             uuid.UUID
	DoctorID       uuid.UUID
	CreditsClaimed int64
	AmountCents    int64
	FeeCents       int64
	NetCents       int64
	Status         PayoutStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type BookingEvent struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
