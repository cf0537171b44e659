package triptimes

import (
	"fmt"
	"sort"
	"time"

	"tidbyt.dev/triptimes/metrics"
	"tidbyt.dev/triptimes/model"
	"tidbyt.dev/triptimes/parse"
)

// Applies GTFS-rt TripUpdates to the records of a batch. Should
// (mostly) cover the basics of canceled trips, skipped stops, and
// delays. Added trips are not handled.
type RealtimeApplier struct {
	// Timezone of the static feed. Service days start at noon
	// minus 12h in this zone.
	Location *time.Location

	// Used for service day of updates lacking start_date
	Now func() time.Time

	Metrics *metrics.Collector
}

// What happened when applying a realtime feed.
type RealtimeStats struct {
	TripsUpdated  int
	TripsCanceled int
	StopsSkipped  int
	UnknownTrips  int

	// Trips whose updates produced decreasing times. These are
	// reset to schedule.
	TripsRejected int
}

// An update matched to a stop index on its trip.
type resolvedUpdate struct {
	stop   int
	update *parse.StopTimeUpdate
}

func (a *RealtimeApplier) location() *time.Location {
	if a.Location == nil {
		return time.UTC
	}
	return a.Location
}

func (a *RealtimeApplier) now() time.Time {
	if a.Now == nil {
		return time.Now()
	}
	return a.Now()
}

// Service day an update's absolute times are relative to.
func (a *RealtimeApplier) serviceDay(u *parse.StopTimeUpdate) (model.ServiceDay, error) {
	if u.StartDate == "" {
		return model.NewServiceDay(a.now().In(a.location())), nil
	}
	date, err := time.ParseInLocation("20060102", u.StartDate, a.location())
	if err != nil {
		return model.ServiceDay{}, fmt.Errorf("parsing start_date '%s': %w", u.StartDate, err)
	}
	return model.NewServiceDay(date), nil
}

// Applies rt to the records in batch. Records are obtained through
// batch.Modify(), so the published Timetable is left untouched.
func (a *RealtimeApplier) Apply(batch *Batch, rt *parse.Realtime) (*RealtimeStats, error) {
	stats := &RealtimeStats{}

	canceled := make([]string, 0, len(rt.CanceledTrips))
	for tripID := range rt.CanceledTrips {
		canceled = append(canceled, tripID)
	}
	sort.Strings(canceled)

	for _, tripID := range canceled {
		tt, err := batch.Modify(tripID)
		if err != nil {
			stats.UnknownTrips++
			continue
		}
		tt.Cancel()
		stats.TripsCanceled++
	}

	updatesByTrip := rt.UpdatesByTrip()
	tripIDs := make([]string, 0, len(updatesByTrip))
	for tripID := range updatesByTrip {
		tripIDs = append(tripIDs, tripID)
	}
	sort.Strings(tripIDs)

	for _, tripID := range tripIDs {
		if rt.CanceledTrips[tripID] {
			continue
		}

		tt, err := batch.Modify(tripID)
		if err != nil {
			stats.UnknownTrips++
			continue
		}

		skipped, err := a.applyTripUpdates(tt, updatesByTrip[tripID])
		if err != nil {
			return nil, fmt.Errorf("applying updates to trip %s: %w", tripID, err)
		}

		if tt.TimesIncreasing() != nil {
			batch.Put(tripID, tt.Copy())
			stats.TripsRejected++
			continue
		}

		stats.StopsSkipped += skipped
		if !tt.IsScheduled() {
			stats.TripsUpdated++
		}
	}

	a.Metrics.ObserveRealtime(
		stats.TripsUpdated,
		stats.TripsCanceled,
		stats.StopsSkipped,
		stats.UnknownTrips,
		stats.TripsRejected,
	)

	return stats, nil
}

// Matches updates to stop indexes on tt, ordered along the trip.
// Updates referencing stops not on the trip are dropped.
//
// GTFS-rt can reference a stop by stop_sequence, stop_id or both. A
// stop_sequence is preferred, unless it disagrees with a given
// stop_id. Zero stop_sequence is legal, but also what's seen when only
// stop_id is given.
func resolveStopReferences(tt *TripTimes, updates []*parse.StopTimeUpdate) []resolvedUpdate {
	resolved := make([]resolvedUpdate, 0, len(updates))

	sorted := append([]*parse.StopTimeUpdate{}, updates...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StopSequence < sorted[j].StopSequence
	})

	from := 0
	for _, u := range sorted {
		stop := tt.StopIndex(u.StopSequence)
		if stop >= 0 && u.StopID != "" && tt.StopID(stop) != u.StopID {
			stop = -1
		}
		if stop < 0 && u.StopID != "" {
			for i := from; i < tt.NumStops(); i++ {
				if tt.StopID(i) == u.StopID {
					stop = i
					break
				}
			}
		}
		if stop < 0 {
			continue
		}
		resolved = append(resolved, resolvedUpdate{stop: stop, update: u})
		from = stop + 1
	}

	sort.SliceStable(resolved, func(i, j int) bool {
		return resolved[i].stop < resolved[j].stop
	})

	return resolved
}

// Delays of a SCHEDULED update. Absolute times win over delays. A
// missing departure takes the arrival delay, unless early, in which
// case the vehicle is assumed to wait for its scheduled departure. A
// missing arrival takes the departure delay.
func (a *RealtimeApplier) updateDelays(
	tt *TripTimes,
	stop int,
	u *parse.StopTimeUpdate,
	carried int,
) (int, int, error) {
	if !u.ArrivalIsSet && !u.DepartureIsSet {
		return carried, carried, nil
	}

	var sd model.ServiceDay
	if !u.ArrivalTime.IsZero() || !u.DepartureTime.IsZero() {
		var err error
		sd, err = a.serviceDay(u)
		if err != nil {
			return 0, 0, err
		}
	}

	arrival := int(u.ArrivalDelay.Seconds())
	if !u.ArrivalTime.IsZero() {
		arrival = int(sd.SecondsSinceMidnight(u.ArrivalTime)) - tt.ScheduledArrival(stop)
	}

	departure := int(u.DepartureDelay.Seconds())
	if !u.DepartureTime.IsZero() {
		departure = int(sd.SecondsSinceMidnight(u.DepartureTime)) - tt.ScheduledDeparture(stop)
	}

	if !u.DepartureIsSet {
		departure = max(arrival, 0)
	}
	if !u.ArrivalIsSet {
		arrival = departure
	}

	return arrival, departure, nil
}

// Writes delays at stop. Zero delays on a trip without overlay are
// left alone, so that the trip keeps reporting IsScheduled().
func setDelay(tt *TripTimes, stop int, arrival, departure int) {
	if arrival == 0 && departure == 0 && tt.overlay == nil {
		return
	}
	tt.UpdateArrivalDelay(stop, arrival)
	tt.UpdateDepartureDelay(stop, departure)
}

// Applies one trip's updates. Delays propagate forward to stops
// lacking updates of their own, and the first delay is applied to
// stops before the first update. Returns number of skipped stops.
func (a *RealtimeApplier) applyTripUpdates(tt *TripTimes, updates []*parse.StopTimeUpdate) (int, error) {
	resolved := resolveStopReferences(tt, updates)
	if len(resolved) == 0 {
		return 0, nil
	}

	skipped := 0
	delay := 0
	haveDelay := false
	firstDelay := 0
	haveFirst := false

	next := 0
	for _, r := range resolved {
		if r.stop < next {
			// Several updates for the same stop. First one wins.
			continue
		}

		if haveDelay {
			for s := next; s < r.stop; s++ {
				setDelay(tt, s, delay, delay)
			}
		}

		switch r.update.Type {

		case parse.StopTimeUpdateScheduled:
			arrival, departure, err := a.updateDelays(tt, r.stop, r.update, delay)
			if err != nil {
				return 0, err
			}
			setDelay(tt, r.stop, arrival, departure)
			if !haveFirst {
				firstDelay = arrival
				haveFirst = true
			}
			delay = departure
			haveDelay = true

		case parse.StopTimeUpdateSkipped:
			tt.CancelArrival(r.stop)
			tt.CancelDeparture(r.stop)
			if haveDelay {
				setDelay(tt, r.stop, delay, delay)
			}
			skipped++

		case parse.StopTimeUpdateNoData:
			// Back to schedule from here on
			delay = 0
			haveDelay = true
			setDelay(tt, r.stop, 0, 0)
		}

		next = r.stop + 1
	}

	if haveDelay {
		for s := next; s < tt.NumStops(); s++ {
			setDelay(tt, s, delay, delay)
		}
	}

	if haveFirst && firstDelay != 0 {
		tt.PropagateDelayBackwards(firstDelay)
	}

	return skipped, nil
}
