package model

import (
	"fmt"
	"time"
)

// Holds all external facing types and constants.

type RealTimeState int

const (
	RealTimeStateScheduled RealTimeState = iota
	RealTimeStateUpdated
	RealTimeStateCanceled
)

func (s RealTimeState) String() string {
	switch s {
	case RealTimeStateScheduled:
		return "SCHEDULED"
	case RealTimeStateUpdated:
		return "UPDATED"
	case RealTimeStateCanceled:
		return "CANCELED"
	}
	return fmt.Sprintf("RealTimeState(%d)", int(s))
}

type WheelchairAccessible int8

const (
	WheelchairAccessibleUnknown WheelchairAccessible = 0
	WheelchairAccessibleYes     WheelchairAccessible = 1
	WheelchairAccessibleNo      WheelchairAccessible = 2
)

// Matches the bikes_allowed codes of trips.txt.
type BikeAccess int8

const (
	BikeAccessUnknown    BikeAccess = 0
	BikeAccessAllowed    BikeAccess = 1
	BikeAccessNotAllowed BikeAccess = 2
)

// Codes of continuous_pickup and continuous_drop_off. An empty
// field in stop_times.txt means ContinuousStoppingNone.
type ContinuousStopping int8

const (
	ContinuousStoppingAllowed    ContinuousStopping = 0
	ContinuousStoppingNone       ContinuousStopping = 1
	ContinuousStoppingPhone      ContinuousStopping = 2
	ContinuousStoppingWithDriver ContinuousStopping = 3
)

type TraverseMode int

const (
	TraverseModeWalk TraverseMode = iota
	TraverseModeBicycle
	TraverseModeCar
)

type Trip struct {
	ID                   string
	RouteID              string
	ServiceID            string
	Headsign             string
	ShortName            string
	DirectionID          int8
	WheelchairAccessible WheelchairAccessible
	BikesAllowed         BikeAccess

	// Demand responsive (flex) parameters. The travel time
	// formulas are kept as the raw specs found in the feed, and
	// are parsed when a TripTimes is built.
	DrtMaxTravelTime  string
	DrtAvgTravelTime  string
	DrtAdvanceBookMin float64
}

// A trip's visit to a single stop. Times are seconds after midnight
// of the service day, and may exceed 24h.
type StopTime struct {
	TripID            string
	StopID            string
	Headsign          string
	StopSequence      uint32
	Arrival           int
	Departure         int
	Timepoint         bool
	ContinuousPickup  ContinuousStopping
	ContinuousDropOff ContinuousStopping

	// Flex service areas. An area opened at one stop stays in
	// effect until a stop closes it with a matching end marker.
	StartServiceArea       string
	EndServiceArea         string
	StartServiceAreaRadius *float64
	EndServiceAreaRadius   *float64
}

// A frequencies.txt record. Start and End are seconds after midnight.
type Frequency struct {
	TripID     string
	Start      int
	End        int
	Headway    int
	ExactTimes bool
}

// The day a trip's times are relative to. Midnight is derived as
// noon minus 12h, which is how GTFS defines it across DST changes.
type ServiceDay struct {
	Midnight time.Time
}

func NewServiceDay(date time.Time) ServiceDay {
	noon := time.Date(date.Year(), date.Month(), date.Day(), 12, 0, 0, 0, date.Location())
	return ServiceDay{Midnight: noon.Add(-12 * time.Hour)}
}

func (sd ServiceDay) SecondsSinceMidnight(t time.Time) int64 {
	return t.Unix() - sd.Midnight.Unix()
}

// Converts seconds after midnight into a point in time.
func (sd ServiceDay) Time(seconds int) time.Time {
	return sd.Midnight.Add(time.Duration(seconds) * time.Second)
}

// Set of stop indexes on which a trip may not be boarded. All bans
// every stop.
type BannedStops struct {
	All   bool
	Stops map[int]bool
}

func (b BannedStops) Contains(stopIndex int) bool {
	return b.All || b.Stops[stopIndex]
}

// The parts of a route search request that decide whether a trip can
// be used at all.
type RoutingOptions struct {
	BannedTrips          map[string]BannedStops
	WheelchairAccessible bool
	NonTransitMode       TraverseMode
}
