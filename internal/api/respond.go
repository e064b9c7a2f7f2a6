package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/hackgods/consultation-slot-scheduling/internal/appointment"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

var errorCodes = []struct {
	err  error
	code string
}{
	{appointment.ErrInvalidRange, "invalid_range"},
	{appointment.ErrInvalidCapacity, "invalid_capacity"},
	{appointment.ErrAmbiguousBaseSlot, "ambiguous_base_slot"},
	{appointment.ErrInvalidStatus, "invalid_status"},
	{appointment.ErrInvalidPayment, "invalid_payment"},
	{appointment.ErrInvalidDate, "invalid_date"},
	{appointment.ErrInvalidWeekCount, "invalid_week_count"},
	{appointment.ErrInvalidRequest, "invalid_request"},
	{appointment.ErrTargetSlotFull, "target_slot_full"},
	{appointment.ErrSlotFull, "slot_full"},
	{appointment.ErrSlotNotFound, "slot_not_found"},
	{appointment.ErrAppointmentNotFound, "appointment_not_found"},
	{appointment.ErrLockTimeout, "retryable"},
	{appointment.ErrAlreadyCancelled, "already_cancelled"},
	{appointment.ErrAppointmentExpired, "appointment_expired"},
	{appointment.ErrInvalidStatusTransition, "invalid_status_transition"},
}

var kindStatus = map[appointment.Kind]int{
	appointment.KindConfiguration: http.StatusBadRequest,
	appointment.KindContention:    http.StatusConflict,
	appointment.KindNotFound:      http.StatusNotFound,
	appointment.KindConcurrency:   http.StatusServiceUnavailable,
	appointment.KindState:         http.StatusConflict,
}

// writeServiceError maps a service error to its HTTP status and a stable code.
// Internal errors are logged and their details withheld.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	kind := appointment.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error: "internal_error",
			Kind:  string(appointment.KindInternal),
		})
		return
	}

	code := string(kind)
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			code = c.code
			break
		}
	}
	if kind == appointment.KindConcurrency {
		w.Header().Set("Retry-After", "1")
		code = "retryable"
	}

	writeJSON(w, status, ErrorResponse{Error: code, Details: err.Error(), Kind: string(kind)})
}
