package parse

import (
	"context"
	"fmt"
	"time"

	gtfsproto "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	proto "google.golang.org/protobuf/proto"
)

type StopTimeUpdateScheduleRelationship int

const (
	StopTimeUpdateScheduled StopTimeUpdateScheduleRelationship = iota
	StopTimeUpdateSkipped
	StopTimeUpdateNoData
)

func (r StopTimeUpdateScheduleRelationship) String() string {
	switch r {
	case StopTimeUpdateScheduled:
		return "SCHEDULED"
	case StopTimeUpdateSkipped:
		return "SKIPPED"
	case StopTimeUpdateNoData:
		return "NO_DATA"
	}
	return fmt.Sprintf("StopTimeUpdateScheduleRelationship(%d)", int(r))
}

// A single stop_time_update of a TripUpdate. Zero ArrivalTime or
// DepartureTime means only the delay was given.
type StopTimeUpdate struct {
	TripID         string
	StartDate      string
	StopID         string
	StopSequence   uint32
	ArrivalIsSet   bool
	ArrivalTime    time.Time
	ArrivalDelay   time.Duration
	DepartureIsSet bool
	DepartureTime  time.Time
	DepartureDelay time.Duration
	Type           StopTimeUpdateScheduleRelationship
}

// The TripUpdates of one or more GTFS Realtime feeds.
type Realtime struct {
	// Timestamp of the feed. If loaded from multiple feeds, the
	// last one wins.
	Timestamp     uint64
	CanceledTrips map[string]bool
	Updates       []*StopTimeUpdate

	NumScheduledTrips   int
	NumAddedTrips       int
	NumUnscheduledTrips int
	NumCanceledTrips    int
	NumDuplicatedTrips  int
}

// Updates grouped by trip ID, in feed order.
func (rt *Realtime) UpdatesByTrip() map[string][]*StopTimeUpdate {
	byTrip := map[string][]*StopTimeUpdate{}
	for _, u := range rt.Updates {
		byTrip[u.TripID] = append(byTrip[u.TripID], u)
	}
	return byTrip
}

func ParseRealtime(ctx context.Context, feeds [][]byte) (*Realtime, error) {
	rt := &Realtime{
		CanceledTrips: map[string]bool{},
		Updates:       []*StopTimeUpdate{},
	}

	for _, feed := range feeds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		f := &gtfsproto.FeedMessage{}
		err := proto.Unmarshal(feed, f)
		if err != nil {
			return nil, fmt.Errorf("unmarshaling protobuf: %w", err)
		}

		header := f.GetHeader()

		version := header.GetGtfsRealtimeVersion()
		if version != "2.0" && version != "1.0" {
			return nil, fmt.Errorf("version %s not supported", version)
		}

		if header.GetIncrementality() != gtfsproto.FeedHeader_FULL_DATASET {
			return nil, fmt.Errorf("feed incrementality %s not supported", header.GetIncrementality())
		}

		rt.Timestamp = header.GetTimestamp()

		err = processEntities(rt, f.GetEntity())
		if err != nil {
			return nil, fmt.Errorf("processing entities: %w", err)
		}
	}

	return rt, nil
}

func processEntities(rt *Realtime, entities []*gtfsproto.FeedEntity) error {
	for _, entity := range entities {
		// Vehicle positions and alerts don't affect trip times
		if entity.TripUpdate == nil {
			continue
		}

		trip := entity.TripUpdate.Trip
		if trip == nil {
			return fmt.Errorf("trip_update missing trip")
		}

		// Trips identified by route, direction and start time
		// are not supported.
		if trip.GetTripId() == "" {
			continue
		}

		switch trip.GetScheduleRelationship() {

		case gtfsproto.TripDescriptor_SCHEDULED:
			for _, update := range entity.TripUpdate.GetStopTimeUpdate() {
				err := processStopTimeUpdate(rt, trip, update)
				if err != nil {
					return fmt.Errorf("processing stop time update: %w", err)
				}
			}
			rt.NumScheduledTrips++

		case gtfsproto.TripDescriptor_ADDED:
			rt.NumAddedTrips++

		case gtfsproto.TripDescriptor_UNSCHEDULED:
			rt.NumUnscheduledTrips++

		case gtfsproto.TripDescriptor_CANCELED:
			rt.CanceledTrips[trip.GetTripId()] = true
			rt.NumCanceledTrips++

		case gtfsproto.TripDescriptor_DUPLICATED:
			rt.NumDuplicatedTrips++

		}
	}

	return nil
}

func stopTimeEvent(ev *gtfsproto.TripUpdate_StopTimeEvent) (bool, time.Time, time.Duration) {
	if ev == nil {
		return false, time.Time{}, 0
	}
	var t time.Time
	if unix := ev.GetTime(); unix != 0 {
		t = time.Unix(unix, 0).UTC()
	}
	return true, t, time.Duration(ev.GetDelay()) * time.Second
}

func processStopTimeUpdate(
	rt *Realtime,
	trip *gtfsproto.TripDescriptor,
	update *gtfsproto.TripUpdate_StopTimeUpdate,
) error {

	stup := &StopTimeUpdate{
		TripID:       trip.GetTripId(),
		StartDate:    trip.GetStartDate(),
		StopID:       update.GetStopId(),
		StopSequence: update.GetStopSequence(),
	}
	stup.ArrivalIsSet, stup.ArrivalTime, stup.ArrivalDelay = stopTimeEvent(update.Arrival)
	stup.DepartureIsSet, stup.DepartureTime, stup.DepartureDelay = stopTimeEvent(update.Departure)

	if update.StopId == nil && update.StopSequence == nil {
		return fmt.Errorf("stop_time_update missing stop_id and stop_sequence")
	}

	switch update.GetScheduleRelationship() {

	case gtfsproto.TripUpdate_StopTimeUpdate_SCHEDULED:
		stup.Type = StopTimeUpdateScheduled
		rt.Updates = append(rt.Updates, stup)

	case gtfsproto.TripUpdate_StopTimeUpdate_SKIPPED:
		stup.Type = StopTimeUpdateSkipped
		rt.Updates = append(rt.Updates, stup)

	case gtfsproto.TripUpdate_StopTimeUpdate_NO_DATA:
		stup.Type = StopTimeUpdateNoData
		rt.Updates = append(rt.Updates, stup)

	case gtfsproto.TripUpdate_StopTimeUpdate_UNSCHEDULED:
		// Frequency based trips only
	}

	return nil
}
