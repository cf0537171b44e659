package parse

import (
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"

	"tidbyt.dev/triptimes/model"
	"tidbyt.dev/triptimes/storage"
)

type FrequencyCSV struct {
	TripID      string `csv:"trip_id"`
	StartTime   string `csv:"start_time"`
	EndTime     string `csv:"end_time"`
	HeadwaySecs int    `csv:"headway_secs"`
	ExactTimes  string `csv:"exact_times"`
}

// Parses frequencies.txt. Returns the number of records written.
func ParseFrequencies(
	writer storage.FeedWriter,
	data io.Reader,
	trips map[string]bool,
) (int, error) {
	n := 0

	i := -1
	err := gocsv.UnmarshalToCallbackWithError(data, func(f *FrequencyCSV) error {
		i += 1
		if !trips[f.TripID] {
			return fmt.Errorf("unknown trip_id: '%s' (row %d)", f.TripID, i+1)
		}

		start, err := ParseTime(f.StartTime)
		if err != nil {
			return errors.Wrapf(err, "parsing start_time (row %d)", i+1)
		}

		end, err := ParseTime(f.EndTime)
		if err != nil {
			return errors.Wrapf(err, "parsing end_time (row %d)", i+1)
		}

		if end < start {
			return fmt.Errorf("end_time before start_time (row %d)", i+1)
		}

		if f.HeadwaySecs <= 0 {
			return fmt.Errorf("non-positive headway_secs %d (row %d)", f.HeadwaySecs, i+1)
		}

		var exact bool
		switch strings.TrimSpace(f.ExactTimes) {
		case "", "0":
		case "1":
			exact = true
		default:
			return fmt.Errorf("invalid exact_times '%s' (row %d)", f.ExactTimes, i+1)
		}

		err = writer.WriteFrequency(&model.Frequency{
			TripID:     f.TripID,
			Start:      start,
			End:        end,
			Headway:    f.HeadwaySecs,
			ExactTimes: exact,
		})
		if err != nil {
			return errors.Wrapf(err, "writing frequency (row %d)", i+1)
		}
		n++

		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "unmarshaling frequencies csv")
	}

	return n, nil
}
