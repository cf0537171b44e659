package parse

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"

	"tidbyt.dev/triptimes/model"
	"tidbyt.dev/triptimes/storage"
)

type StopTimeCSV struct {
	TripID                 string `csv:"trip_id"`
	StopID                 string `csv:"stop_id"`
	StopSequence           uint32 `csv:"stop_sequence"`
	ArrivalTime            string `csv:"arrival_time"`
	DepartureTime          string `csv:"departure_time"`
	Headsign               string `csv:"stop_headsign"`
	Timepoint              string `csv:"timepoint"`
	ContinuousPickup       string `csv:"continuous_pickup"`
	ContinuousDropOff      string `csv:"continuous_drop_off"`
	StartServiceArea       string `csv:"start_service_area_id"`
	EndServiceArea         string `csv:"end_service_area_id"`
	StartServiceAreaRadius string `csv:"start_service_area_radius"`
	EndServiceAreaRadius   string `csv:"end_service_area_radius"`
}

// Counts and extremes found while parsing stop_times.txt.
type StopTimesSummary struct {
	Count        int
	MaxArrival   int
	MaxDeparture int
}

// Parses "HH:MM:SS" into seconds after midnight. Hours may exceed 23
// for trips running past midnight.
func ParseTime(s string) (int, error) {
	split := strings.Split(strings.TrimSpace(s), ":")
	if len(split) != 3 {
		return 0, fmt.Errorf("found %d parts in '%s'", len(split), s)
	}

	hms := [3]int{}
	for i, str := range split {
		j, err := strconv.Atoi(str)
		if err != nil {
			return 0, fmt.Errorf("non-integer in '%s' pos %d", s, i)
		}
		hms[i] = j
	}

	if hms[0] < 0 || hms[0] > 99 {
		return 0, fmt.Errorf("invalid hour in '%s'", s)
	}

	if hms[1] < 0 || hms[1] > 59 {
		return 0, fmt.Errorf("invalid minute in '%s'", s)
	}

	if hms[2] < 0 || hms[2] > 59 {
		return 0, fmt.Errorf("invalid second in '%s'", s)
	}

	return hms[0]*3600 + hms[1]*60 + hms[2], nil
}

func parseTimepoint(s string) (bool, error) {
	switch strings.TrimSpace(s) {
	case "", "1":
		return true, nil
	case "0":
		return false, nil
	}
	return false, fmt.Errorf("invalid timepoint '%s'", s)
}

func parseContinuous(s string) (model.ContinuousStopping, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return model.ContinuousStoppingNone, nil
	}
	i, err := strconv.Atoi(s)
	if err != nil || i < 0 || i > 3 {
		return 0, fmt.Errorf("invalid continuous stopping '%s'", s)
	}
	return model.ContinuousStopping(i), nil
}

func parseRadius(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	r, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("non-numeric radius '%s'", s)
	}
	if r < 0 {
		return nil, fmt.Errorf("negative radius '%s'", s)
	}
	return &r, nil
}

// Parses stop_times.txt. Every record must reference a trip in
// trips, and stop_sequence must be unique per trip.
func ParseStopTimes(
	writer storage.FeedWriter,
	data io.Reader,
	trips map[string]bool,
) (*StopTimesSummary, error) {

	summary := &StopTimesSummary{}

	stopSeq := map[string]map[uint32]bool{}

	i := -1
	err := gocsv.UnmarshalToCallbackWithError(data, func(st *StopTimeCSV) error {
		i += 1
		if !trips[st.TripID] {
			return fmt.Errorf("unknown trip_id: '%s' (row %d)", st.TripID, i+1)
		}
		if st.StopID == "" {
			return fmt.Errorf("missing stop_id (row %d)", i+1)
		}

		if st.ArrivalTime == "" && st.DepartureTime == "" {
			return fmt.Errorf("missing both arrival_time and departure_time (row %d)", i+1)
		}
		// A single given time serves as both
		if st.ArrivalTime == "" {
			st.ArrivalTime = st.DepartureTime
		}
		if st.DepartureTime == "" {
			st.DepartureTime = st.ArrivalTime
		}

		arrival, err := ParseTime(st.ArrivalTime)
		if err != nil {
			return errors.Wrapf(err, "parsing arrival_time (row %d)", i+1)
		}

		departure, err := ParseTime(st.DepartureTime)
		if err != nil {
			return errors.Wrapf(err, "parsing departure_time (row %d)", i+1)
		}

		timepoint, err := parseTimepoint(st.Timepoint)
		if err != nil {
			return errors.Wrapf(err, "parsing timepoint (row %d)", i+1)
		}

		pickup, err := parseContinuous(st.ContinuousPickup)
		if err != nil {
			return errors.Wrapf(err, "parsing continuous_pickup (row %d)", i+1)
		}

		dropOff, err := parseContinuous(st.ContinuousDropOff)
		if err != nil {
			return errors.Wrapf(err, "parsing continuous_drop_off (row %d)", i+1)
		}

		startRadius, err := parseRadius(st.StartServiceAreaRadius)
		if err != nil {
			return errors.Wrapf(err, "parsing start_service_area_radius (row %d)", i+1)
		}

		endRadius, err := parseRadius(st.EndServiceAreaRadius)
		if err != nil {
			return errors.Wrapf(err, "parsing end_service_area_radius (row %d)", i+1)
		}

		seen := stopSeq[st.TripID]
		if seen == nil {
			seen = map[uint32]bool{}
			stopSeq[st.TripID] = seen
		}
		if seen[st.StopSequence] {
			return fmt.Errorf("duplicate stop_sequence %d for trip_id '%s'", st.StopSequence, st.TripID)
		}
		seen[st.StopSequence] = true

		if arrival > summary.MaxArrival {
			summary.MaxArrival = arrival
		}
		if departure > summary.MaxDeparture {
			summary.MaxDeparture = departure
		}
		summary.Count++

		err = writer.WriteStopTime(&model.StopTime{
			TripID:                 st.TripID,
			StopID:                 st.StopID,
			Headsign:               st.Headsign,
			StopSequence:           st.StopSequence,
			Arrival:                arrival,
			Departure:              departure,
			Timepoint:              timepoint,
			ContinuousPickup:       pickup,
			ContinuousDropOff:      dropOff,
			StartServiceArea:       st.StartServiceArea,
			EndServiceArea:         st.EndServiceArea,
			StartServiceAreaRadius: startRadius,
			EndServiceAreaRadius:   endRadius,
		})
		if err != nil {
			return errors.Wrapf(err, "writing stop_time (row %d)", i+1)
		}

		return nil
	})

	if err != nil {
		return nil, errors.Wrap(err, "unmarshaling stop_times csv")
	}

	return summary, nil
}
