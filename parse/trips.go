package parse

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"

	"tidbyt.dev/triptimes/model"
	"tidbyt.dev/triptimes/storage"
)

type TripCSV struct {
	ID                   string  `csv:"trip_id"`
	RouteID              string  `csv:"route_id"`
	ServiceID            string  `csv:"service_id"`
	Headsign             string  `csv:"trip_headsign"`
	ShortName            string  `csv:"trip_short_name"`
	DirectionID          int8    `csv:"direction_id"`
	WheelchairAccessible int8    `csv:"wheelchair_accessible"`
	BikesAllowed         int8    `csv:"bikes_allowed"`
	DrtMaxTravelTime     string  `csv:"drt_max_travel_time"`
	DrtAvgTravelTime     string  `csv:"drt_avg_travel_time"`
	DrtAdvanceBookMin    float64 `csv:"drt_advance_book_min"`
}

// Parses trips.txt. Returns the set of trip IDs seen.
func ParseTrips(writer storage.FeedWriter, data io.Reader) (map[string]bool, error) {
	tripCsv := []*TripCSV{}
	if err := gocsv.Unmarshal(data, &tripCsv); err != nil {
		return nil, fmt.Errorf("unmarshaling trips csv: %w", err)
	}

	trips := map[string]bool{}
	for _, t := range tripCsv {
		if t.ID == "" {
			return nil, fmt.Errorf("empty trip_id")
		}
		if trips[t.ID] {
			return nil, fmt.Errorf("repeated trip_id '%s'", t.ID)
		}
		trips[t.ID] = true

		if t.RouteID == "" {
			return nil, fmt.Errorf("empty route_id")
		}
		if t.ServiceID == "" {
			return nil, fmt.Errorf("empty service_id")
		}
		if t.DirectionID != 0 && t.DirectionID != 1 {
			return nil, fmt.Errorf("invalid direction_id '%d'", t.DirectionID)
		}
		if t.WheelchairAccessible < 0 || t.WheelchairAccessible > 2 {
			return nil, fmt.Errorf("invalid wheelchair_accessible '%d'", t.WheelchairAccessible)
		}
		if t.BikesAllowed < 0 || t.BikesAllowed > 2 {
			return nil, fmt.Errorf("invalid bikes_allowed '%d'", t.BikesAllowed)
		}
		if t.DrtAdvanceBookMin < 0 {
			return nil, fmt.Errorf("negative drt_advance_book_min for trip_id '%s'", t.ID)
		}

		err := writer.WriteTrip(&model.Trip{
			ID:                   t.ID,
			RouteID:              t.RouteID,
			ServiceID:            t.ServiceID,
			Headsign:             t.Headsign,
			ShortName:            t.ShortName,
			DirectionID:          t.DirectionID,
			WheelchairAccessible: model.WheelchairAccessible(t.WheelchairAccessible),
			BikesAllowed:         model.BikeAccess(t.BikesAllowed),
			DrtMaxTravelTime:     t.DrtMaxTravelTime,
			DrtAvgTravelTime:     t.DrtAvgTravelTime,
			DrtAdvanceBookMin:    t.DrtAdvanceBookMin,
		})
		if err != nil {
			return nil, fmt.Errorf("writing trip: %w", err)
		}
	}

	return trips, nil
}
