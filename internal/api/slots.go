package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hackgods/consultation-slot-scheduling/internal/appointment"
	"github.com/hackgods/consultation-slot-scheduling/internal/slot"
)

// parseCapacity defaults to exclusive when no kind is given.
func parseCapacity(kind string, maxOccupants int) (slot.Capacity, error) {
	if kind == "" {
		return slot.Exclusive(), nil
	}
	k, err := slot.ParseKind(kind)
	if err != nil {
		return slot.Capacity{}, err
	}
	if k == slot.KindShared {
		return slot.Shared(maxOccupants), nil
	}
	return slot.Exclusive(), nil
}

func bookableDatesHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := parseUUIDParam(w, r, "providerID")
		if !ok {
			return
		}
		dates, err := svc.GetBookableDates(r.Context(), providerID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		resp := DatesResponse{ProviderID: providerID, Dates: make([]string, len(dates))}
		for i, d := range dates {
			resp.Dates[i] = appointment.FormatDate(d)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func bookableTimesHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := parseUUIDParam(w, r, "providerID")
		if !ok {
			return
		}
		date, err := appointment.ParseDate(chi.URLParam(r, "date"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		points, err := svc.GetBookableTimePoints(r.Context(), providerID, date)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, TimesResponse{
			ProviderID: providerID,
			Date:       appointment.FormatDate(date),
			Times:      points,
		})
	}
}

func listSlotsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := parseUUIDParam(w, r, "providerID")
		if !ok {
			return
		}
		slots, err := svc.ListSlots(r.Context(), providerID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toSlotResponses(slots))
	}
}

func publishSlotHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := parseUUIDParam(w, r, "providerID")
		if !ok {
			return
		}
		var req PublishSlotRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		date, err := appointment.ParseDate(req.Date)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		capacity, err := parseCapacity(req.CapacityKind, req.MaxOccupants)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		created, err := svc.PublishSlot(r.Context(), appointment.SlotInput{
			ProviderID:      providerID,
			Date:            date,
			StartTime:       req.StartTime,
			EndTime:         req.EndTime,
			DurationMinutes: req.DurationMinutes,
			Capacity:        capacity,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toSlotResponse(created))
	}
}

func updateSlotHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(w, r, "id")
		if !ok {
			return
		}
		var req UpdateSlotRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		patch := appointment.SlotPatch{
			StartTime:       req.StartTime,
			EndTime:         req.EndTime,
			DurationMinutes: req.DurationMinutes,
			IsActive:        req.IsActive,
		}
		if req.CapacityKind != nil || req.MaxOccupants != nil {
			current, err := svc.GetSlot(r.Context(), id)
			if err != nil {
				writeServiceError(w, r, err)
				return
			}
			kind := string(current.Capacity.Kind)
			if req.CapacityKind != nil {
				kind = *req.CapacityKind
			}
			maxOccupants := current.Capacity.MaxOccupants
			if req.MaxOccupants != nil {
				maxOccupants = *req.MaxOccupants
			}
			capacity, err := parseCapacity(kind, maxOccupants)
			if err != nil {
				writeServiceError(w, r, err)
				return
			}
			patch.Capacity = &capacity
		}

		updated, err := svc.UpdateSlot(r.Context(), id, patch)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toSlotResponse(updated))
	}
}

func deleteSlotHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(w, r, "id")
		if !ok {
			return
		}
		if err := svc.DeleteSlot(r.Context(), id); err != nil {
			writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func generateRecurringHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(w, r, "id")
		if !ok {
			return
		}
		var req RecurrenceRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		created, err := svc.GenerateRecurring(r.Context(), id, req.WeekCount)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toSlotResponses(created))
	}
}
