package triptimes

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
	"github.com/pkg/errors"

	"tidbyt.dev/triptimes/dedup"
	"tidbyt.dev/triptimes/drt"
	"tidbyt.dev/triptimes/model"
)

var (
	ErrNoStopTimes               = errors.New("trip has no stop times")
	ErrServiceAreaMismatch       = errors.New("end service area does not match start")
	ErrServiceAreaRadiusMismatch = errors.New("end service area radius does not match start")
)

// The parts of a trip's timetable that never change once built. These
// are interned, and shared by every copy of a TripTimes as well as by
// other trips with the same contents.
type schedule struct {
	// Zero-based, i.e. relative to TripTimes.timeShift
	arrivals   []int32
	departures []int32

	stopIDs           []string
	stopSequences     []int32
	timepoints        *bitset.BitSet
	continuousPickup  []int32
	continuousDropOff []int32
	serviceArea       []string
	serviceAreaRadius []float64

	// nil when the trip headsign applies at every stop
	headsigns []string
}

// Realtime times for every stop. Absolute, i.e. not shifted.
type overlay struct {
	arrivals   []int32
	departures []int32
}

// TripTimes holds the arrival and departure times of a single trip,
// at every stop of its pattern. Scheduled times are immutable. Realtime
// updates go into an overlay which is created on first update.
//
// Queries are safe for concurrent use. Mutators are not, and must only
// be called on records not yet visible to readers (see Store).
type TripTimes struct {
	Trip *model.Trip

	// Assigned by whoever builds the calendar. Not interpreted here.
	ServiceCode int

	timeShift int
	sched     *schedule
	overlay   *overlay

	// nil until the first cancellation
	canceledArrivals   *bitset.BitSet
	canceledDepartures *bitset.BitSet

	state model.RealTimeState

	maxTravelTime *drt.TravelTime
	avgTravelTime *drt.TravelTime
}

// Builds a TripTimes from a trip and its stop times, which must be
// ordered by stop_sequence. Arrays are interned through d.
//
// Times are not checked for monotonicity; see TimesIncreasing. Flex
// service areas are, and a mismatched end marker fails construction.
func New(trip *model.Trip, stopTimes []*model.StopTime, d *dedup.Deduplicator) (*TripTimes, error) {
	if len(stopTimes) == 0 {
		return nil, errors.Wrapf(ErrNoStopTimes, "trip %s", trip.ID)
	}
	if d == nil {
		d = dedup.New()
	}

	n := len(stopTimes)
	arrivals := make([]int32, n)
	departures := make([]int32, n)
	stopIDs := make([]string, n)
	sequences := make([]int32, n)
	pickup := make([]int32, n)
	dropOff := make([]int32, n)
	areas := make([]string, n)
	radii := make([]float64, n)
	timepoints := bitset.New(uint(n))

	// Shifting to zero lets trips with the same pattern share
	// arrays, and is what frequency based trips build upon.
	timeShift := stopTimes[0].Arrival

	radius := 0.0
	area := ""
	for s, st := range stopTimes {
		arrivals[s] = int32(st.Arrival - timeShift)
		departures[s] = int32(st.Departure - timeShift)
		stopIDs[s] = st.StopID
		sequences[s] = int32(st.StopSequence)
		pickup[s] = int32(st.ContinuousPickup)
		dropOff[s] = int32(st.ContinuousDropOff)
		if st.Timepoint {
			timepoints.Set(uint(s))
		}

		if st.StartServiceAreaRadius != nil {
			radius = *st.StartServiceAreaRadius
		}
		radii[s] = radius
		if st.EndServiceAreaRadius != nil {
			if *st.EndServiceAreaRadius != radius {
				return nil, errors.Wrapf(
					ErrServiceAreaRadiusMismatch,
					"trip %s: start radius %g, end radius %g",
					trip.ID, radius, *st.EndServiceAreaRadius,
				)
			}
			radius = 0
		}

		if st.StartServiceArea != "" {
			area = st.StartServiceArea
		}
		areas[s] = area
		if st.EndServiceArea != "" {
			if st.EndServiceArea != area {
				return nil, errors.Wrapf(
					ErrServiceAreaMismatch,
					"trip %s: start area '%s', end area '%s'",
					trip.ID, area, st.EndServiceArea,
				)
			}
			area = ""
		}
	}

	tt := &TripTimes{
		Trip:      trip,
		timeShift: timeShift,
		state:     model.RealTimeStateScheduled,
		sched: &schedule{
			arrivals:          d.Int32s(arrivals),
			departures:        d.Int32s(departures),
			stopIDs:           d.Strings(stopIDs),
			stopSequences:     d.Int32s(sequences),
			timepoints:        d.BitSet(timepoints),
			continuousPickup:  d.Int32s(pickup),
			continuousDropOff: d.Int32s(dropOff),
			serviceArea:       d.Strings(areas),
			serviceAreaRadius: d.Float64s(radii),
			headsigns:         d.Strings(makeHeadsigns(trip, stopTimes)),
		},
	}

	var err error
	if trip.DrtMaxTravelTime != "" {
		tt.maxTravelTime, err = drt.Parse(trip.DrtMaxTravelTime)
		if err != nil {
			return nil, fmt.Errorf("trip %s: drt_max_travel_time: %w", trip.ID, err)
		}
	}
	if trip.DrtAvgTravelTime != "" {
		tt.avgTravelTime, err = drt.Parse(trip.DrtAvgTravelTime)
		if err != nil {
			return nil, fmt.Errorf("trip %s: drt_avg_travel_time: %w", trip.ID, err)
		}
	}

	return tt, nil
}

// Per stop headsigns, or nil if the trip's headsign can be used
// throughout. Empty string means no headsign.
func makeHeadsigns(trip *model.Trip, stopTimes []*model.StopTime) []string {
	if trip.Headsign != "" {
		uniform := true
		for _, st := range stopTimes {
			if st.Headsign != trip.Headsign {
				uniform = false
				break
			}
		}
		if uniform {
			return nil
		}
	}

	allEmpty := true
	headsigns := make([]string, len(stopTimes))
	for i, st := range stopTimes {
		headsigns[i] = st.Headsign
		if st.Headsign != "" {
			allEmpty = false
		}
	}
	if allEmpty {
		return nil
	}
	return headsigns
}

func (tt *TripTimes) NumStops() int {
	return len(tt.sched.arrivals)
}

// Offset added to the zero-based scheduled times. Equals the
// scheduled arrival at the first stop, unless time shifted.
func (tt *TripTimes) Offset() int {
	return tt.timeShift
}

// Headsign at stop, falling back on the trip's headsign.
func (tt *TripTimes) Headsign(stop int) string {
	if tt.sched.headsigns == nil || tt.sched.headsigns[stop] == "" {
		return tt.Trip.Headsign
	}
	return tt.sched.headsigns[stop]
}

// Seconds after midnight the vehicle is scheduled to arrive at stop.
func (tt *TripTimes) ScheduledArrival(stop int) int {
	return int(tt.sched.arrivals[stop]) + tt.timeShift
}

// Seconds after midnight the vehicle is scheduled to depart from stop.
func (tt *TripTimes) ScheduledDeparture(stop int) int {
	return int(tt.sched.departures[stop]) + tt.timeShift
}

// Seconds after midnight the vehicle arrives at stop, taking realtime
// updates into account.
func (tt *TripTimes) Arrival(stop int) int {
	if tt.overlay == nil {
		return tt.ScheduledArrival(stop)
	}
	return int(tt.overlay.arrivals[stop])
}

// Seconds after midnight the vehicle departs from stop, taking
// realtime updates into account.
func (tt *TripTimes) Departure(stop int) int {
	if tt.overlay == nil {
		return tt.ScheduledDeparture(stop)
	}
	return int(tt.overlay.departures[stop])
}

// Seconds spent waiting at stop.
func (tt *TripTimes) Dwell(stop int) int {
	return tt.Departure(stop) - tt.Arrival(stop)
}

// Seconds spent getting from stop to the next one.
func (tt *TripTimes) RunningTime(stop int) int {
	return tt.Arrival(stop+1) - tt.Departure(stop)
}

func (tt *TripTimes) ArrivalDelay(stop int) int {
	return tt.Arrival(stop) - tt.ScheduledArrival(stop)
}

func (tt *TripTimes) DepartureDelay(stop int) int {
	return tt.Departure(stop) - tt.ScheduledDeparture(stop)
}

func (tt *TripTimes) StopID(stop int) string {
	return tt.sched.stopIDs[stop]
}

func (tt *TripTimes) StopSequence(stop int) uint32 {
	return uint32(tt.sched.stopSequences[stop])
}

// Stop index with the given stop_sequence, or -1.
func (tt *TripTimes) StopIndex(stopSequence uint32) int {
	for i, seq := range tt.sched.stopSequences {
		if uint32(seq) == stopSequence {
			return i
		}
	}
	return -1
}

func (tt *TripTimes) IsTimepoint(stop int) bool {
	return tt.sched.timepoints.Test(uint(stop))
}

func (tt *TripTimes) ContinuousPickup(stop int) model.ContinuousStopping {
	return model.ContinuousStopping(tt.sched.continuousPickup[stop])
}

func (tt *TripTimes) ContinuousDropOff(stop int) model.ContinuousStopping {
	return model.ContinuousStopping(tt.sched.continuousDropOff[stop])
}

// ID of the flex service area in effect at stop, or "".
func (tt *TripTimes) ServiceArea(stop int) string {
	return tt.sched.serviceArea[stop]
}

// Pickup/drop off radius in effect at stop, or 0.
func (tt *TripTimes) ServiceAreaRadius(stop int) float64 {
	return tt.sched.serviceAreaRadius[stop]
}

// Maximum travel time of a demand responsive ride, given the direct
// travel time. Without a formula, the direct time is used as is.
func (tt *TripTimes) DemandResponseMaxTime(directTime int) int {
	if tt.maxTravelTime == nil {
		return directTime
	}
	return tt.maxTravelTime.Seconds(directTime)
}

// Average travel time of a demand responsive ride, given the direct
// travel time.
func (tt *TripTimes) DemandResponseAvgTime(directTime int) int {
	if tt.avgTravelTime == nil {
		return directTime
	}
	return tt.avgTravelTime.Seconds(directTime)
}

// True if no realtime data has been applied, i.e. no overlay and no
// canceled stops. Unlike RealTimeState(), this reflects what's
// actually stored.
func (tt *TripTimes) IsScheduled() bool {
	return tt.overlay == nil && noneSet(tt.canceledArrivals) && noneSet(tt.canceledDepartures)
}

func (tt *TripTimes) IsCanceled() bool {
	return tt.state == model.RealTimeStateCanceled
}

func (tt *TripTimes) RealTimeState() model.RealTimeState {
	return tt.state
}

func (tt *TripTimes) IsCanceledArrival(stop int) bool {
	return tt.canceledArrivals != nil && tt.canceledArrivals.Test(uint(stop))
}

func (tt *TripTimes) IsCanceledDeparture(stop int) bool {
	return tt.canceledDepartures != nil && tt.canceledDepartures.Test(uint(stop))
}

// True if the stop is canceled in either direction, or if the whole
// trip is.
func (tt *TripTimes) IsTimeCanceled(stop int) bool {
	return tt.IsCanceledArrival(stop) || tt.IsCanceledDeparture(stop) || tt.IsCanceled()
}

func noneSet(b *bitset.BitSet) bool {
	return b == nil || b.None()
}
