package slot

import (
	"errors"
	"fmt"
	"strings"
)

// Kind distinguishes individual consultations from group ones.
type Kind string

const (
	// KindExclusive ("stream") admits one occupant per time-point.
	KindExclusive Kind = "exclusive"
	// KindShared ("wave") admits up to MaxOccupants per time-point.
	KindShared Kind = "shared"
)

var ErrInvalidCapacity = errors.New("invalid capacity")

// ParseKind accepts the canonical names and the legacy stream/wave aliases, in any case.
func ParseKind(v string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "exclusive", "stream":
		return KindExclusive, nil
	case "shared", "wave":
		return KindShared, nil
	}
	return "", fmt.Errorf("%w: unknown capacity kind %q", ErrInvalidCapacity, v)
}

// Capacity is the occupancy model of a slot, applied to each of its time-points.
type Capacity struct {
	Kind         Kind `json:"kind"`
	MaxOccupants int  `json:"max_occupants,omitempty"`
}

func Exclusive() Capacity {
	return Capacity{Kind: KindExclusive}
}

func Shared(maxOccupants int) Capacity {
	return Capacity{Kind: KindShared, MaxOccupants: maxOccupants}
}

func (c Capacity) Validate() error {
	switch c.Kind {
	case KindExclusive:
		return nil
	case KindShared:
		if c.MaxOccupants < 1 {
			return fmt.Errorf("%w: shared capacity needs max_occupants >= 1, got %d", ErrInvalidCapacity, c.MaxOccupants)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown capacity kind %q", ErrInvalidCapacity, c.Kind)
}

// Limit is the number of seats per time-point.
func (c Capacity) Limit() int {
	if c.Kind == KindShared {
		return c.MaxOccupants
	}
	return 1
}

// RemainingSeats is Limit minus occupants, floored at zero.
func (c Capacity) RemainingSeats(occupants int) int {
	left := c.Limit() - occupants
	if left < 0 {
		return 0
	}
	return left
}

func (c Capacity) IsFull(occupants int) bool {
	return c.RemainingSeats(occupants) == 0
}

func (c Capacity) String() string {
	if c.Kind == KindShared {
		return fmt.Sprintf("shared(%d)", c.MaxOccupants)
	}
	return string(c.Kind)
}
