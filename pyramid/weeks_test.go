package pyramid

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWeekStart(t *testing.T) {
	// Wednesday 2024-03-13
	wed := time.Date(2024, 3, 13, 18, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), WeekStart(wed, time.UTC))
	assert.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), PreviousWeekStart(wed, time.UTC))

	// Sunday belongs to the week that started six days earlier.
	sun := time.Date(2024, 3, 17, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), WeekStart(sun, time.UTC))

	mon := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, mon, WeekStart(mon, time.UTC))
}

func TestWeekStartUsesLocation(t *testing.T) {
	loc := time.FixedZone("CST", -6*60*60)

	// Monday 03:00 UTC is still Sunday evening six hours west.
	instant := time.Date(2024, 3, 11, 3, 0, 0, 0, time.UTC)
	got := WeekStart(instant, loc)
	assert.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, loc), got)
}
