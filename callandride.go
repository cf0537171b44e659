package triptimes

import (
	"math"
	"time"

	"tidbyt.dev/triptimes/model"
)

// Returned by the call-and-ride computations when no time satisfies
// both the trip's schedule and the booking lead time.
const Infeasible = math.MinInt32

// Earliest time of day (seconds after midnight) a ride booked at
// bookedAt can be served, given the trip's advance booking minutes.
func (tt *TripTimes) earliestBookable(sd model.ServiceDay, bookedAt time.Time) int {
	lead := int(math.Round(tt.Trip.DrtAdvanceBookMin * 60))
	return int(sd.SecondsSinceMidnight(bookedAt)) + lead
}

// Time a rider can be picked up between stop and the next stop, when
// ready at clock time t. directTime is the non-detour travel time to
// the destination; the vehicle must still reach the next stop in
// time. If enforceBooking is set, the pickup can't happen before
// bookedAt plus the advance booking lead time.
//
// Returns Infeasible if the booking lead time can't be met.
func (tt *TripTimes) CallAndRideBoardTime(
	stop int,
	t int,
	directTime int,
	sd model.ServiceDay,
	enforceBooking bool,
	bookedAt time.Time,
) int {
	travelTime := tt.DemandResponseMaxTime(directTime)
	latestBoard := tt.Arrival(stop+1) - travelTime
	ret := min(max(t, tt.Departure(stop)), latestBoard)

	if !enforceBooking {
		return ret
	}

	earliest := tt.earliestBookable(sd, bookedAt)
	if ret >= earliest {
		return ret
	}
	if earliest <= latestBoard {
		return earliest
	}
	return Infeasible
}

// Time a rider can be dropped off between the previous stop and stop,
// when wanting to arrive by clock time t. directTime is the non-detour
// travel time from the origin. If enforceBooking is set, the implied
// pickup (drop off minus travel time) can't happen before bookedAt
// plus the advance booking lead time.
//
// Returns Infeasible if the booking lead time can't be met.
func (tt *TripTimes) CallAndRideAlightTime(
	stop int,
	t int,
	directTime int,
	sd model.ServiceDay,
	enforceBooking bool,
	bookedAt time.Time,
) int {
	travelTime := tt.DemandResponseMaxTime(directTime)
	earliestAlight := tt.Departure(stop-1) + travelTime
	ret := max(min(t, tt.Arrival(stop)), earliestAlight)

	if !enforceBooking {
		return ret
	}

	earliest := tt.earliestBookable(sd, bookedAt)
	board := ret - travelTime
	if board >= earliest {
		return ret
	}

	ret += earliest - board
	if ret > tt.Arrival(stop) {
		return Infeasible
	}
	return ret
}
