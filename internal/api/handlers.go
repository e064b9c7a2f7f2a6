package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/consultation-slot-scheduling/internal/appointment"
)

func parseUUIDParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

func bookAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		providerID, err := uuid.Parse(req.ProviderID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
			return
		}
		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		date, err := appointment.ParseDate(req.Date)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		paymentStatus, err := appointment.ParsePaymentStatus(req.Payment.Status)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		appt, err := svc.Book(r.Context(), appointment.BookRequest{
			ProviderID: providerID,
			PatientID:  patientID,
			Date:       date,
			Time:       req.Time,
			Payment: appointment.PaymentInfo{
				Method: req.Payment.Method,
				Status: paymentStatus,
				Amount: req.Payment.Amount,
			},
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(w, r, "id")
		if !ok {
			return
		}
		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		patientID, err := uuid.Parse(q.Get("patient_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id query parameter must be a valid UUID")
			return
		}

		limit, offset := 0, 0
		if v := q.Get("limit"); v != "" {
			if limit, err = strconv.Atoi(v); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer")
				return
			}
		}
		if v := q.Get("offset"); v != "" {
			if offset, err = strconv.Atoi(v); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_offset", "offset must be an integer")
				return
			}
		}
		if limit <= 0 {
			limit = appointment.DefaultPageSize
		}
		if limit > appointment.MaxPageSize {
			limit = appointment.MaxPageSize
		}
		if offset < 0 {
			offset = 0
		}

		appts, err := svc.ListAppointmentsByPatient(r.Context(), patientID, limit, offset)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		resp := ListAppointmentsResponse{
			Appointments: make([]AppointmentResponse, len(appts)),
			Limit:        limit,
			Offset:       offset,
		}
		for i := range appts {
			resp.Appointments[i] = toAppointmentResponse(&appts[i])
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// appointmentAction adapts the single-id status operations.
func appointmentAction(op func(r *http.Request, id uuid.UUID) (*appointment.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(w, r, "id")
		if !ok {
			return
		}
		appt, err := op(r, id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return appointmentAction(func(r *http.Request, id uuid.UUID) (*appointment.Appointment, error) {
		return svc.Cancel(r.Context(), id)
	})
}

func confirmAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return appointmentAction(func(r *http.Request, id uuid.UUID) (*appointment.Appointment, error) {
		return svc.Confirm(r.Context(), id)
	})
}

func completeAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return appointmentAction(func(r *http.Request, id uuid.UUID) (*appointment.Appointment, error) {
		return svc.Complete(r.Context(), id)
	})
}

func missedAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return appointmentAction(func(r *http.Request, id uuid.UUID) (*appointment.Appointment, error) {
		return svc.MarkMissed(r.Context(), id)
	})
}

func rescheduleAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(w, r, "id")
		if !ok {
			return
		}
		var req RescheduleRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		date, err := appointment.ParseDate(req.Date)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		appt, err := svc.Reschedule(r.Context(), id, date, req.Time)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func deleteAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(w, r, "id")
		if !ok {
			return
		}
		if err := svc.HardCancel(r.Context(), id); err != nil {
			writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
