package triptimes

import (
	"fmt"
	"math"

	"github.com/bits-and-blooms/bitset"

	"tidbyt.dev/triptimes/model"
)

// Absolute times outside int32 are pinned to its bounds. MinInt32 is
// left out, being Infeasible.
func clampTime(t int) int32 {
	if t > math.MaxInt32 {
		return math.MaxInt32
	}
	if t <= math.MinInt32 {
		return math.MinInt32 + 1
	}
	return int32(t)
}

// Creates the overlay, if missing, as a shifted copy of the schedule.
// The first call moves the trip from Scheduled to Updated.
func (tt *TripTimes) ensureOverlay() {
	if tt.overlay != nil {
		return
	}

	n := tt.NumStops()
	o := &overlay{
		arrivals:   make([]int32, n),
		departures: make([]int32, n),
	}
	for i := 0; i < n; i++ {
		o.arrivals[i] = clampTime(tt.ScheduledArrival(i))
		o.departures[i] = clampTime(tt.ScheduledDeparture(i))
	}
	tt.overlay = o

	if tt.state == model.RealTimeStateScheduled {
		tt.state = model.RealTimeStateUpdated
	}
}

// Sets the absolute arrival time at stop.
func (tt *TripTimes) UpdateArrivalTime(stop int, time int) {
	tt.ensureOverlay()
	tt.overlay.arrivals[stop] = clampTime(time)
}

// Sets the absolute departure time at stop.
func (tt *TripTimes) UpdateDepartureTime(stop int, time int) {
	tt.ensureOverlay()
	tt.overlay.departures[stop] = clampTime(time)
}

func (tt *TripTimes) UpdateArrivalDelay(stop int, delay int) {
	tt.ensureOverlay()
	tt.overlay.arrivals[stop] = clampTime(tt.ScheduledArrival(stop) + delay)
}

func (tt *TripTimes) UpdateDepartureDelay(stop int, delay int) {
	tt.ensureOverlay()
	tt.overlay.departures[stop] = clampTime(tt.ScheduledDeparture(stop) + delay)
}

// Cancels the entire trip. Every stop is marked canceled in both
// directions and the state becomes Canceled for good.
func (tt *TripTimes) Cancel() {
	n := uint(tt.NumStops())
	tt.canceledArrivals = bitset.New(n).FlipRange(0, n)
	tt.canceledDepartures = bitset.New(n).FlipRange(0, n)
	tt.state = model.RealTimeStateCanceled
}

func (tt *TripTimes) CancelArrival(stop int) {
	if tt.canceledArrivals == nil {
		tt.canceledArrivals = bitset.New(uint(tt.NumStops()))
	}
	tt.canceledArrivals.Set(uint(stop))
}

// Clears the arrival cancellation at stop. Does not affect a trip
// level cancellation.
func (tt *TripTimes) UncancelArrival(stop int) {
	if tt.canceledArrivals != nil {
		tt.canceledArrivals.Clear(uint(stop))
	}
}

func (tt *TripTimes) CancelDeparture(stop int) {
	if tt.canceledDepartures == nil {
		tt.canceledDepartures = bitset.New(uint(tt.NumStops()))
	}
	tt.canceledDepartures.Set(uint(stop))
}

// Clears the departure cancellation at stop. Does not affect a trip
// level cancellation.
func (tt *TripTimes) UncancelDeparture(stop int) {
	if tt.canceledDepartures != nil {
		tt.canceledDepartures.Clear(uint(stop))
	}
}

// Sets the realtime state. Canceled is terminal: moving a canceled
// trip to any other state fails. Moving to Canceled is the same as
// Cancel(). A trip carrying realtime data can't go back to Scheduled;
// use Copy() for that.
func (tt *TripTimes) SetRealTimeState(state model.RealTimeState) error {
	if tt.state == model.RealTimeStateCanceled && state != model.RealTimeStateCanceled {
		return fmt.Errorf("trip %s is canceled, can't move to %s", tt.Trip.ID, state)
	}
	switch state {
	case model.RealTimeStateCanceled:
		tt.Cancel()
		return nil
	case model.RealTimeStateScheduled:
		if !tt.IsScheduled() {
			return fmt.Errorf("trip %s has realtime data, can't move to %s", tt.Trip.ID, state)
		}
	}
	tt.state = state
	return nil
}

// Applies delay to every stop from the first one onward, up to (but
// not including) the first stop that already has a non-zero arrival
// delay.
func (tt *TripTimes) PropagateDelayBackwards(delay int) {
	for i := 0; i < tt.NumStops(); i++ {
		if tt.ArrivalDelay(i) != 0 {
			break
		}
		tt.UpdateArrivalDelay(i, delay)
		tt.UpdateDepartureDelay(i, delay)
	}
}

// Returns a copy in which the vehicle arrives at (or departs from,
// if depart is set) stop at the given time. Only the scheduled times
// can be shifted, so nil is returned if realtime data has been
// applied or the trip is canceled.
func (tt *TripTimes) TimeShift(stop int, time int, depart bool) *TripTimes {
	if !tt.IsScheduled() || tt.IsCanceled() {
		return nil
	}

	current := tt.Arrival(stop)
	if depart {
		current = tt.Departure(stop)
	}

	shifted := tt.Clone()
	shifted.timeShift += time - current
	return shifted
}

// Returns a fully independent copy. The schedule is shared, while
// overlay, cancellations and state are copied.
func (tt *TripTimes) Clone() *TripTimes {
	c := *tt
	if tt.overlay != nil {
		c.overlay = &overlay{
			arrivals:   append([]int32(nil), tt.overlay.arrivals...),
			departures: append([]int32(nil), tt.overlay.departures...),
		}
	}
	if tt.canceledArrivals != nil {
		c.canceledArrivals = tt.canceledArrivals.Clone()
	}
	if tt.canceledDepartures != nil {
		c.canceledDepartures = tt.canceledDepartures.Clone()
	}
	return &c
}

// Returns a copy with only the scheduled times. Realtime data is
// dropped.
func (tt *TripTimes) Copy() *TripTimes {
	c := *tt
	c.overlay = nil
	c.canceledArrivals = nil
	c.canceledDepartures = nil
	c.state = model.RealTimeStateScheduled
	return &c
}
