package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/clinicore/booking-ledger/internal/booking"
)

var validate = validator.New()

func decodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return err
	}
	return validate.Struct(dst)
}

func publishSlotHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PublishSlotRequest
		if err := decodeAndValidate(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}

		slot, err := svc.PublishSlot(r.Context(), doctorID, req.StartTime, req.EndTime)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toSlotResponse(slot))
	}
}

func blockSlotHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slotID, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		var req BlockSlotRequest
		if err := decodeAndValidate(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}

		slot, err := svc.BlockSlot(r.Context(), doctorID, slotID)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSlotResponse(slot))
	}
}

func listOpenSlotsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		from := time.Now()
		if v := r.URL.Query().Get("from"); v != "" {
			parsed, err := time.Parse(time.RFC3339, v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_from", "from must be RFC3339")
				return
			}
			from = parsed
		}

		slots, err := svc.ListOpenSlots(r.Context(), doctorID, from)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := make([]SlotResponse, 0, len(slots))
		for i := range slots {
			resp = append(resp, toSlotResponse(&slots[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func reserveHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ReserveRequest
		if err := decodeAndValidate(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		slotID, err := uuid.Parse(req.SlotID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "slot_id must be a valid UUID")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		appt, err := svc.Reserve(r.Context(), patientID, slotID, req.PriceCredits)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		var req CancelRequest
		if err := decodeAndValidate(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		actorID, err := uuid.Parse(req.ActorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_actor_id", "actor_id must be a valid UUID")
			return
		}

		appt, err := svc.Cancel(r.Context(), id, actorID, req.Reason)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func completeAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		appt, err := svc.Complete(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listAppointmentsByPatientHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		limit, offset := parsePage(r)
		appts, err := svc.ListAppointmentsByPatient(r.Context(), id, limit, offset)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, appointmentResponses(appts))
	}
}

func listAppointmentsByDoctorHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		limit, offset := parsePage(r)
		appts, err := svc.ListAppointmentsByDoctor(r.Context(), id, limit, offset)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, appointmentResponses(appts))
	}
}

func appointmentResponses(appts []booking.Appointment) []AppointmentResponse {
	resp := make([]AppointmentResponse, 0, len(appts))
	for i := range appts {
		resp = append(resp, toAppointmentResponse(&appts[i]))
	}
	return resp
}

func parseIDParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parsePage(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	return limit, offset
}

// handleServiceError maps the engine's business failures onto HTTP
// statuses. Unknown errors are infrastructure failures: the unit of work
// has rolled back, so retrying is safe.
func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrUserNotFound),
		errors.Is(err, booking.ErrSlotNotFound),
		errors.Is(err, booking.ErrAppointmentNotFound),
		errors.Is(err, booking.ErrPayoutNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, booking.ErrInsufficientCredits):
		writeError(w, http.StatusPaymentRequired, "insufficient_credits", err.Error())
	case errors.Is(err, booking.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", err.Error())
	case errors.Is(err, booking.ErrSlotContended):
		writeError(w, http.StatusConflict, "slot_contended", "slot is currently being booked, please retry shortly")
	case errors.Is(err, booking.ErrSlotOverlap):
		writeError(w, http.StatusConflict, "slot_overlap", err.Error())
	case errors.Is(err, booking.ErrAlreadyFinal):
		writeError(w, http.StatusConflict, "already_final", err.Error())
	case errors.Is(err, booking.ErrNoEligibleCredits):
		writeError(w, http.StatusConflict, "no_eligible_credits", err.Error())
	case errors.Is(err, booking.ErrTooSoonToBook),
		errors.Is(err, booking.ErrTooLateToCancel),
		errors.Is(err, booking.ErrInvalidPrice),
		errors.Is(err, booking.ErrInvalidSlotRange),
		errors.Is(err, booking.ErrInvalidAmount):
		writeError(w, http.StatusUnprocessableEntity, "policy_violation", err.Error())
	case errors.Is(err, booking.ErrNotPatient),
		errors.Is(err, booking.ErrNotDoctor),
		errors.Is(err, booking.ErrDoctorInactive),
		errors.Is(err, booking.ErrNotSlotOwner),
		errors.Is(err, booking.ErrNotParticipant):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
