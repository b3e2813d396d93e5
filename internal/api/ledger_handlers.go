package api

import (
	"net/http"

	"github.com/clinicore/booking-ledger/internal/booking"
)

func balanceHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		credits, err := svc.BalanceOf(r.Context(), userID)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, BalanceResponse{UserID: userID, Credits: credits})
	}
}

func ledgerHistoryHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		limit, offset := parsePage(r)
		entries, err := svc.History(r.Context(), userID, limit, offset)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := make([]LedgerEntryResponse, 0, len(entries))
		for _, e := range entries {
			resp = append(resp, LedgerEntryResponse{
				ID:            e.ID,
				Amount:        e.Amount,
				Kind:          string(e.Kind),
				AppointmentID: e.AppointmentID,
				PaymentRef:    e.PaymentRef,
				CreatedAt:     e.CreatedAt,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// appendCreditHandler is the intake for purchase confirmations and admin
// adjustments; deductions and refunds only ever happen inside the
// reservation and cancellation flows.
func appendCreditHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		var req CreditRequest
		if err := decodeAndValidate(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		entry, err := svc.AppendCredit(r.Context(), userID, req.Amount, booking.EntryKind(req.Kind), req.PaymentRef)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, LedgerEntryResponse{
			ID:         entry.ID,
			Amount:     entry.Amount,
			Kind:       string(entry.Kind),
			PaymentRef: entry.PaymentRef,
			CreatedAt:  entry.CreatedAt,
		})
	}
}

func requestPayoutHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		payout, err := svc.RequestPayout(r.Context(), doctorID)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toPayoutResponse(payout))
	}
}

func listPayoutsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		payouts, err := svc.ListPayouts(r.Context(), doctorID)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := make([]PayoutResponse, 0, len(payouts))
		for i := range payouts {
			resp = append(resp, toPayoutResponse(&payouts[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func markPayoutProcessedHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		payout, err := svc.MarkPayoutProcessed(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toPayoutResponse(payout))
	}
}
