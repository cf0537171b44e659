package storage

import (
	"fmt"

	"tidbyt.dev/triptimes/model"
)

// Groups stop times by trip ID. Relative order within each trip is
// preserved, so grouping the output of FeedReader.StopTimes() yields
// per-trip sequences ordered by stop_sequence.
func GroupByTrip(stopTimes []*model.StopTime) map[string][]*model.StopTime {
	byTrip := map[string][]*model.StopTime{}
	for _, st := range stopTimes {
		byTrip[st.TripID] = append(byTrip[st.TripID], st)
	}
	return byTrip
}

// Column lists shared by the SQL backends. Scan helpers below expect
// rows selected in exactly this order.
const (
	tripColumns = `id, route_id, service_id, headsign, short_name, direction_id,
    wheelchair_accessible, bikes_allowed,
    drt_max_travel_time, drt_avg_travel_time, drt_advance_book_min`

	stopTimeColumns = `trip_id, stop_id, headsign, stop_sequence, arrival_time, departure_time,
    timepoint, continuous_pickup, continuous_drop_off,
    start_service_area_id, end_service_area_id,
    start_service_area_radius, end_service_area_radius`

	frequencyColumns = `trip_id, start_time, end_time, headway_secs, exact_times`
)

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanTrips(rows rowScanner) ([]*model.Trip, error) {
	trips := []*model.Trip{}
	for rows.Next() {
		t := &model.Trip{}
		err := rows.Scan(
			&t.ID,
			&t.RouteID,
			&t.ServiceID,
			&t.Headsign,
			&t.ShortName,
			&t.DirectionID,
			&t.WheelchairAccessible,
			&t.BikesAllowed,
			&t.DrtMaxTravelTime,
			&t.DrtAvgTravelTime,
			&t.DrtAdvanceBookMin,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning trip: %w", err)
		}
		trips = append(trips, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating trips: %w", err)
	}
	return trips, nil
}

func scanStopTimes(rows rowScanner) ([]*model.StopTime, error) {
	stopTimes := []*model.StopTime{}
	for rows.Next() {
		st := &model.StopTime{}
		err := rows.Scan(
			&st.TripID,
			&st.StopID,
			&st.Headsign,
			&st.StopSequence,
			&st.Arrival,
			&st.Departure,
			&st.Timepoint,
			&st.ContinuousPickup,
			&st.ContinuousDropOff,
			&st.StartServiceArea,
			&st.EndServiceArea,
			&st.StartServiceAreaRadius,
			&st.EndServiceAreaRadius,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning stop time: %w", err)
		}
		stopTimes = append(stopTimes, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating stop times: %w", err)
	}
	return stopTimes, nil
}

func scanFrequencies(rows rowScanner) ([]*model.Frequency, error) {
	frequencies := []*model.Frequency{}
	for rows.Next() {
		f := &model.Frequency{}
		err := rows.Scan(&f.TripID, &f.Start, &f.End, &f.Headway, &f.ExactTimes)
		if err != nil {
			return nil, fmt.Errorf("scanning frequency: %w", err)
		}
		frequencies = append(frequencies, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating frequencies: %w", err)
	}
	return frequencies, nil
}
