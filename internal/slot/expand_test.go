package slot

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpand_HalfHourWindow(t *testing.T) {
	for i := 0; i < 3; i++ {
		points, err := Expand("09:00", "10:00", 30)
		require.NoError(t, err)
		assert.Equal(t, []string{"09:00", "09:30"}, points)
	}
}

func TestExpand_WorkingDay(t *testing.T) {
	points, err := Expand("09:00", "17:00", 30)
	require.NoError(t, err)
	require.Len(t, points, 16)
	assert.Equal(t, "09:00", points[0])
	assert.Equal(t, "16:30", points[len(points)-1])
}

func TestExpand_LastPointStrictlyBeforeEnd(t *testing.T) {
	points, err := Expand("09:00", "10:00", 25)
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "09:25", "09:50"}, points)
}

func TestExpand_NormalizesInput(t *testing.T) {
	points, err := Expand("9:00", "10:00:00", 60)
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00"}, points)
}

func TestParseClock(t *testing.T) {
	valid := map[string]int{
		"09:00":    540,
		"9:00":     540,
		"9:00:00":  540,
		"09:30:00": 570,
		" 23:45 ":  1425,
		"00:00":    0,
	}
	for in, want := range valid {
		got, err := ParseClock(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"09:00:zz", "09:00:30", "09:00:", "0900", "24:00", "9", ""} {
		_, err := ParseClock(in)
		assert.ErrorIs(t, err, ErrInvalidRange, in)
	}
}

func TestExpand_InvalidInput(t *testing.T) {
	cases := []struct {
		name       string
		start, end string
		duration   int
	}{
		{"zero duration", "09:00", "10:00", 0},
		{"negative duration", "09:00", "10:00", -15},
		{"end equals start", "09:00", "09:00", 30},
		{"end before start", "11:00", "10:00", 30},
		{"garbage start", "nine", "10:00", 30},
		{"junk seconds", "09:00:zz", "10:00", 30},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			points, err := Expand(tc.start, tc.end, tc.duration)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidRange))
			assert.NotNil(t, points)
			assert.Empty(t, points)
		})
	}
}

func TestContains(t *testing.T) {
	assert.True(t, Contains("09:00", "10:00", 30, "09:30"))
	assert.True(t, Contains("09:00", "10:00", 30, "9:00"))
	assert.False(t, Contains("09:00", "10:00", 30, "10:00"))
	assert.False(t, Contains("09:00", "10:00", 30, "09:15"))
	assert.False(t, Contains("09:00", "10:00", 30, "08:30"))
	assert.False(t, Contains("09:00", "10:00", 0, "09:00"))
}
