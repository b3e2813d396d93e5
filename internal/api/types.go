package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/booking-ledger/internal/booking"
)

type PublishSlotRequest struct {
	DoctorID  string    `json:"doctor_id" validate:"required,uuid"`
	StartTime time.Time `json:"start_time" validate:"required"`
	EndTime   time.Time `json:"end_time" validate:"required,gtfield=StartTime"`
}

type BlockSlotRequest struct {
	DoctorID string `json:"doctor_id" validate:"required,uuid"`
}

type ReserveRequest struct {
	SlotID       string `json:"slot_id" validate:"required,uuid"`
	PatientID    string `json:"patient_id" validate:"required,uuid"`
	PriceCredits int64  `json:"price_credits" validate:"required,gt=0"`
}

type CancelRequest struct {
	ActorID string `json:"actor_id" validate:"required,uuid"`
	Reason  string `json:"reason" validate:"max=500"`
}

type CreditRequest struct {
	Amount     int64   `json:"amount" validate:"required"`
	Kind       string  `json:"kind" validate:"required,oneof=purchase adjustment"`
	PaymentRef *string `json:"payment_ref,omitempty"`
}

type SlotResponse struct {
	ID        uuid.UUID `json:"id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Status    string    `json:"status"`
}

func toSlotResponse(s *booking.Slot) SlotResponse {
	return SlotResponse{
		ID:        s.ID,
		DoctorID:  s.DoctorID,
		StartTime: s.StartTime,
		EndTime:   s.EndTime,
		Status:    string(s.Status),
	}
}

type AppointmentResponse struct {
	ID           uuid.UUID  `json:"id"`
	SlotID       uuid.UUID  `json:"slot_id"`
	PatientID    uuid.UUID  `json:"patient_id"`
	DoctorID     uuid.UUID  `json:"doctor_id"`
	StartTime    time.Time  `json:"start_time"`
	EndTime      time.Time  `json:"end_time"`
	Status       string     `json:"status"`
	PriceCredits int64      `json:"price_credits"`
	PayoutID     *uuid.UUID `json:"payout_id,omitempty"`
	CancelReason *string    `json:"cancel_reason,omitempty"`
}

func toAppointmentResponse(a *booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:           a.ID,
		SlotID:       a.SlotID,
		PatientID:    a.PatientID,
		DoctorID:     a.DoctorID,
		StartTime:    a.StartTime,
		EndTime:      a.EndTime,
		Status:       string(a.Status),
		PriceCredits: a.PriceCredits,
		PayoutID:     a.PayoutID,
		CancelReason: a.CancelReason,
	}
}

type LedgerEntryResponse struct {
	ID            int64      `json:"id"`
	Amount        int64      `json:"amount"`
	Kind          string     `json:"kind"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
	PaymentRef    *string    `json:"payment_ref,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

type BalanceResponse struct {
	UserID  uuid.UUID `json:"user_id"`
	Credits int64     `json:"credits"`
}

type PayoutResponse struct {
	ID             uuid.UUID `json:"id"`
	DoctorID       uuid.UUID `json:"doctor_id"`
	CreditsClaimed int64     `json:"credits_claimed"`
	AmountCents    int64     `json:"amount_cents"`
	FeeCents       int64     `json:"fee_cents"`
	NetCents       int64     `json:"net_cents"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

func toPayoutResponse(p *booking.PayoutRequest) PayoutResponse {
	return PayoutResponse{
		ID:             p.ID,
		DoctorID:       p.DoctorID,
		CreditsClaimed: p.CreditsClaimed,
		AmountCents:    p.AmountCents,
		FeeCents:       p.FeeCents,
		NetCents:       p.NetCents,
		Status:         string(p.Status),
		CreatedAt:      p.CreatedAt,
	}
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
