package triptimes

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrNegativeDwell   = errors.New("negative dwell time")
	ErrNegativeRunning = errors.New("negative running time")
)

// Checks that times never go backwards along the trip. Returns nil if
// they don't, or an error wrapping ErrNegativeDwell or
// ErrNegativeRunning naming the first offending stop index.
func (tt *TripTimes) TimesIncreasing() error {
	prevDeparture := -1
	for s := 0; s < tt.NumStops(); s++ {
		arrival := tt.Arrival(s)
		departure := tt.Departure(s)

		if departure < arrival {
			return errors.Wrapf(ErrNegativeDwell, "trip %s at stop index %d", tt.Trip.ID, s)
		}
		if prevDeparture > arrival {
			return errors.Wrapf(ErrNegativeRunning, "trip %s before stop index %d", tt.Trip.ID, s)
		}
		prevDeparture = departure
	}
	return nil
}

// Formats seconds after midnight as HH:MM:SS. Hours may exceed 23.
func FormatSeconds(s int) string {
	sign := ""
	if s < 0 {
		sign = "-"
		s = -s
	}
	return fmt.Sprintf("%s%02d:%02d:%02d", sign, s/3600, s/60%60, s%60)
}
