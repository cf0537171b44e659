package triptimes

import (
	"fmt"
	"sort"

	"tidbyt.dev/triptimes/dedup"
	"tidbyt.dev/triptimes/metrics"
	"tidbyt.dev/triptimes/model"
	"tidbyt.dev/triptimes/storage"
)

// The static side of a feed: trip times for every trip in the feed,
// with frequency based trips materialized.
type Static struct {
	// Keyed by trip ID, or by FrequencyKey() for materialized
	// frequency trips.
	Records map[string]*TripTimes

	// Frequency templates by trip ID. Templates are not part of
	// Records.
	Templates map[string]*TripTimes

	// Trips that could not be built, with the reason.
	Rejected map[string]error
}

// Builds trip times for all trips in a stored feed. Trips failing
// construction end up in Static.Rejected rather than failing the
// whole feed.
func NewStatic(reader storage.FeedReader, d *dedup.Deduplicator, m *metrics.Collector) (*Static, error) {
	trips, err := reader.Trips()
	if err != nil {
		return nil, fmt.Errorf("reading trips: %w", err)
	}

	stopTimes, err := reader.StopTimes()
	if err != nil {
		return nil, fmt.Errorf("reading stop times: %w", err)
	}
	stopTimesByTrip := storage.GroupByTrip(stopTimes)

	frequencies, err := reader.Frequencies()
	if err != nil {
		return nil, fmt.Errorf("reading frequencies: %w", err)
	}
	frequenciesByTrip := map[string][]*model.Frequency{}
	for _, f := range frequencies {
		frequenciesByTrip[f.TripID] = append(frequenciesByTrip[f.TripID], f)
	}

	s := &Static{
		Records:   map[string]*TripTimes{},
		Templates: map[string]*TripTimes{},
		Rejected:  map[string]error{},
	}

	for _, trip := range trips {
		sts := stopTimesByTrip[trip.ID]

		// StopTimes() is ordered by stop_sequence, but readers
		// are not all equally careful.
		sort.SliceStable(sts, func(i, j int) bool {
			return sts[i].StopSequence < sts[j].StopSequence
		})

		tt, err := New(trip, sts, d)
		m.ObserveTripBuilt(err)
		if err != nil {
			s.Rejected[trip.ID] = err
			continue
		}

		freqs, found := frequenciesByTrip[trip.ID]
		if !found {
			s.Records[trip.ID] = tt
			continue
		}

		// All of a trip's frequencies, or none of them
		var instances []*TripTimes
		for _, f := range freqs {
			var materialized []*TripTimes
			materialized, err = Materialize(tt, f)
			if err != nil {
				break
			}
			instances = append(instances, materialized...)
		}
		if err != nil {
			s.Rejected[trip.ID] = err
			continue
		}

		s.Templates[trip.ID] = tt
		for _, instance := range instances {
			s.Records[FrequencyKey(trip.ID, instance.Departure(0))] = instance
		}
	}

	return s, nil
}

// Record keys in sorted order.
func (s *Static) Keys() []string {
	keys := make([]string, 0, len(s.Records))
	for key := range s.Records {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
