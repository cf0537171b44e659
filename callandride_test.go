package triptimes_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidbyt.dev/triptimes"
	"tidbyt.dev/triptimes/model"
)

// Flex trip leaving at 10:00 and arriving at 11:00, where travel takes
// twice the direct time and rides must be booked an hour ahead.
func callAndRideFixture(t *testing.T) (*triptimes.TripTimes, model.ServiceDay) {
	tt, err := triptimes.New(&model.Trip{
		ID:                "flex",
		DrtMaxTravelTime:  "2*t",
		DrtAdvanceBookMin: 60,
	}, stopTimes("flex", []int{36000, 39600}, []int{36000, 39600}), nil)
	require.NoError(t, err)

	sd := model.NewServiceDay(time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC))
	return tt, sd
}

func TestCallAndRideBoardTime(t *testing.T) {
	tt, sd := callAndRideFixture(t)

	for _, tc := range []struct {
		name     string
		t        int
		enforce  bool
		bookedAt time.Time
		expected int
	}{
		{"within window", 37000, false, time.Time{}, 37000},
		{"before departure", 30000, false, time.Time{}, 36000},
		{"too late to make it", 39500, false, time.Time{}, 39000},
		{"booked well ahead", 37000, true, sd.Time(32400), 37000},
		{"pushed by booking lead", 37000, true, sd.Time(35400), 39000},
		{"booked too late", 37000, true, sd.Time(36000), triptimes.Infeasible},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tt.CallAndRideBoardTime(0, tc.t, 300, sd, tc.enforce, tc.bookedAt))
		})
	}
}

func TestCallAndRideAlightTime(t *testing.T) {
	tt, sd := callAndRideFixture(t)

	for _, tc := range []struct {
		name     string
		t        int
		enforce  bool
		bookedAt time.Time
		expected int
	}{
		{"within window", 38000, false, time.Time{}, 38000},
		{"after arrival", 40000, false, time.Time{}, 39600},
		{"before vehicle can get there", 36000, false, time.Time{}, 36600},
		{"booked well ahead", 38000, true, sd.Time(32400), 38000},
		{"pushed by booking lead", 38000, true, sd.Time(35400), 39600},
		{"booked too late", 38000, true, sd.Time(35460), triptimes.Infeasible},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tt.CallAndRideAlightTime(1, tc.t, 300, sd, tc.enforce, tc.bookedAt))
		})
	}
}

func TestCallAndRideUsesRealtimeTimes(t *testing.T) {
	tt, sd := callAndRideFixture(t)
	tt.UpdateArrivalDelay(1, 600)

	// Later arrival leaves more room to board
	assert.Equal(t, 39600, tt.CallAndRideBoardTime(0, 39600, 300, sd, false, time.Time{}))
}

func TestInfeasibleIsNotATime(t *testing.T) {
	assert.Less(t, triptimes.Infeasible, -48*3600)
}
