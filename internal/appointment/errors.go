package appointment

import (
	"context"
	"errors"

	redisclient "github.com/hackgods/consultation-slot-scheduling/internal/redis"
	"github.com/hackgods/consultation-slot-scheduling/internal/slot"
)

var (
	ErrSlotNotFound            = errors.New("slot not found")
	ErrAppointmentNotFound     = errors.New("appointment not found")
	ErrSlotFull                = errors.New("time-point has no remaining seats")
	ErrTargetSlotFull          = errors.New("target time-point has no remaining seats")
	ErrAlreadyCancelled        = errors.New("appointment is already cancelled")
	ErrAmbiguousBaseSlot       = errors.New("base slot has no date to derive a weekday from")
	ErrInvalidStatus           = errors.New("invalid appointment status")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrInvalidPayment          = errors.New("invalid payment info")
	ErrInvalidDate             = errors.New("invalid date")
	ErrInvalidWeekCount        = errors.New("week count must be between 1 and 104")
	ErrInvalidRequest          = errors.New("invalid request")
	ErrAppointmentExpired      = errors.New("appointment hold has expired")

	ErrInvalidRange    = slot.ErrInvalidRange
	ErrInvalidCapacity = slot.ErrInvalidCapacity
	ErrLockTimeout     = redisclient.ErrLockTimeout
)

// Kind groups errors by how a caller should react to them.
type Kind string

const (
	KindConfiguration Kind = "configuration" // malformed provider/caller input, never retried
	KindContention    Kind = "contention"    // pick another time-point
	KindNotFound      Kind = "not_found"     // no longer available
	KindConcurrency   Kind = "concurrency"   // transient, try again
	KindState         Kind = "state"         // invalid for the appointment's current status
	KindInternal      Kind = "internal"
)

func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidRange),
		errors.Is(err, ErrInvalidCapacity),
		errors.Is(err, ErrAmbiguousBaseSlot),
		errors.Is(err, ErrInvalidStatus),
		errors.Is(err, ErrInvalidPayment),
		errors.Is(err, ErrInvalidDate),
		errors.Is(err, ErrInvalidWeekCount),
		errors.Is(err, ErrInvalidRequest):
		return KindConfiguration
	case errors.Is(err, ErrSlotFull), errors.Is(err, ErrTargetSlotFull):
		return KindContention
	case errors.Is(err, ErrSlotNotFound), errors.Is(err, ErrAppointmentNotFound):
		return KindNotFound
	case errors.Is(err, ErrLockTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindConcurrency
	case errors.Is(err, ErrAlreadyCancelled),
		errors.Is(err, ErrInvalidStatusTransition),
		errors.Is(err, ErrAppointmentExpired):
		return KindState
	}
	return KindInternal
}
