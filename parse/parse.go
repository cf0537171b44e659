package parse

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/spkg/bom"

	"tidbyt.dev/triptimes/storage"
)

// Key figures of a parsed static feed.
type Summary struct {
	NumTrips       int
	NumStopTimes   int
	NumFrequencies int

	// Largest arrival and departure times seen, in seconds after
	// midnight.
	MaxArrival   int
	MaxDeparture int
}

func init() {
	// LazyCSVReader required (at least) to survive sloppy use of
	// quotes. The BOM reader strips unicode BOMs if present.
	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		return gocsv.LazyCSVReader(bom.NewReader(in))
	})
}

// Parses the parts of a static GTFS zip archive needed to build trip
// times: trips.txt, stop_times.txt and (optionally) frequencies.txt.
func ParseStatic(writer storage.FeedWriter, buf []byte) (*Summary, error) {
	file := map[string]io.ReadCloser{
		"trips.txt":       nil,
		"stop_times.txt":  nil,
		"frequencies.txt": nil,
	}

	defer func() {
		for _, rc := range file {
			if rc != nil {
				rc.Close()
			}
		}
	}()

	r, err := zip.NewReader(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		return nil, fmt.Errorf("unzipping: %w", err)
	}

	for _, f := range r.File {
		// There should not be any subdirectories. But, some
		// agencies don't care.
		if f.FileInfo().IsDir() {
			continue
		}
		path := strings.Split(f.Name, "/")
		fName := path[len(path)-1]

		if _, found := file[fName]; !found {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", f.Name, err)
		}

		file[fName] = rc
	}

	for _, required := range []string{"trips.txt", "stop_times.txt"} {
		if file[required] == nil {
			return nil, fmt.Errorf("missing %s", required)
		}
	}

	summary := &Summary{}

	err = writer.BeginTrips()
	if err != nil {
		return nil, fmt.Errorf("beginning trips: %w", err)
	}
	trips, err := ParseTrips(writer, file["trips.txt"])
	if err != nil {
		return nil, fmt.Errorf("parsing trips.txt: %w", err)
	}
	err = writer.EndTrips()
	if err != nil {
		return nil, fmt.Errorf("ending trips: %w", err)
	}
	summary.NumTrips = len(trips)

	err = writer.BeginStopTimes()
	if err != nil {
		return nil, fmt.Errorf("beginning stop_times: %w", err)
	}
	stopTimes, err := ParseStopTimes(writer, file["stop_times.txt"], trips)
	if err != nil {
		return nil, fmt.Errorf("parsing stop_times.txt: %w", err)
	}
	err = writer.EndStopTimes()
	if err != nil {
		return nil, fmt.Errorf("ending stop_times: %w", err)
	}
	summary.NumStopTimes = stopTimes.Count
	summary.MaxArrival = stopTimes.MaxArrival
	summary.MaxDeparture = stopTimes.MaxDeparture

	if file["frequencies.txt"] != nil {
		n, err := ParseFrequencies(writer, file["frequencies.txt"], trips)
		if err != nil {
			return nil, fmt.Errorf("parsing frequencies.txt: %w", err)
		}
		summary.NumFrequencies = n
	}

	err = writer.Close()
	if err != nil {
		return nil, fmt.Errorf("closing feed writer: %w", err)
	}

	return summary, nil
}
