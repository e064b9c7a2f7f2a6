package slot

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCapacity_Exclusive(t *testing.T) {
	c := Exclusive()
	assert.NoError(t, c.Validate())
	assert.Equal(t, 1, c.RemainingSeats(0))
	assert.Equal(t, 0, c.RemainingSeats(1))
	assert.Equal(t, 0, c.RemainingSeats(3))
	assert.False(t, c.IsFull(0))
	assert.True(t, c.IsFull(1))
}

func TestCapacity_Shared(t *testing.T) {
	c := Shared(10)
	assert.NoError(t, c.Validate())
	assert.Equal(t, 1, c.RemainingSeats(9))
	assert.False(t, c.IsFull(9))
	assert.True(t, c.IsFull(10))
	assert.Equal(t, 0, c.RemainingSeats(12))
}

func TestCapacity_ValidateRejectsEmptyShared(t *testing.T) {
	err := Shared(0).Validate()
	assert.True(t, errors.Is(err, ErrInvalidCapacity))

	err = Capacity{Kind: "bunk"}.Validate()
	assert.True(t, errors.Is(err, ErrInvalidCapacity))
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("Stream")
	assert.NoError(t, err)
	assert.Equal(t, KindExclusive, k)

	k, err = ParseKind("WAVE")
	assert.NoError(t, err)
	assert.Equal(t, KindShared, k)

	_, err = ParseKind("queue")
	assert.True(t, errors.Is(err, ErrInvalidCapacity))
}
