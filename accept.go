package triptimes

import (
	"tidbyt.dev/triptimes/model"
)

// Checks whether the trip can be boarded at stop, given the search's
// bans, accessibility requirements and traverse mode.
func (tt *TripTimes) TripAcceptable(opts model.RoutingOptions, stop int) bool {
	if banned, found := opts.BannedTrips[tt.Trip.ID]; found && banned.Contains(stop) {
		return false
	}
	if opts.WheelchairAccessible && tt.Trip.WheelchairAccessible != model.WheelchairAccessibleYes {
		return false
	}
	if opts.NonTransitMode == model.TraverseModeBicycle && tt.Trip.BikesAllowed != model.BikeAccessAllowed {
		return false
	}
	return true
}
