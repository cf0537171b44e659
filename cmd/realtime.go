package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"tidbyt.dev/triptimes"
)

var realtimeCmd = &cobra.Command{
	Use:   "realtime <static zip|url> <rt.pb|url>...",
	Short: "Applies realtime feeds and lists trips that changed",
	Args:  cobra.MinimumNArgs(2),
	RunE:  realtime,
}

var showAll bool

func init() {
	realtimeCmd.Flags().BoolVarP(&showAll, "all", "a", false, "List scheduled trips too")
}

// One line summary of a trip at stop.
func FormatTrip(tt *triptimes.TripTimes, stop int) string {
	return fmt.Sprintf(
		"%s %s (%+ds) %s",
		tt.Trip.ID,
		triptimes.FormatSeconds(tt.Departure(stop)),
		tt.DepartureDelay(stop),
		tt.Headsign(stop),
	)
}

func realtime(cmd *cobra.Command, args []string) error {
	m, _, err := loadStatic(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	var timetable *triptimes.Timetable
	var stats *triptimes.RealtimeStats
	sources := args[1:]
	if isURL(sources[0]) {
		headers, err := headersFor(realtimeHeaders)
		if err != nil {
			return err
		}
		timetable, stats, err = m.ApplyRealtimeURL(cmd.Context(), sources, headers)
		if err != nil {
			return err
		}
	} else {
		feeds := make([][]byte, 0, len(sources))
		for _, source := range sources {
			buf, err := os.ReadFile(source)
			if err != nil {
				return fmt.Errorf("reading %s: %w", source, err)
			}
			feeds = append(feeds, buf)
		}
		timetable, stats, err = m.ApplyRealtime(cmd.Context(), feeds)
		if err != nil {
			return err
		}
	}

	for i, tt := range timetable.Trips() {
		if tt.IsScheduled() && !showAll {
			continue
		}

		skipped := []string{}
		for s := 0; s < tt.NumStops(); s++ {
			if tt.IsCanceledArrival(s) && tt.IsCanceledDeparture(s) && !tt.IsCanceled() {
				skipped = append(skipped, tt.StopID(s))
			}
		}

		line := fmt.Sprintf("%-10s %s", tt.RealTimeState(), FormatTrip(tt, 0))
		if key := timetable.Keys()[i]; key != tt.Trip.ID {
			line += " [" + key + "]"
		}
		if len(skipped) > 0 {
			line += " skipping " + strings.Join(skipped, ",")
		}
		fmt.Println(line)
	}

	fmt.Printf(
		"updated: %d, canceled: %d, skipped stops: %d, unknown: %d, rejected: %d\n",
		stats.TripsUpdated,
		stats.TripsCanceled,
		stats.StopsSkipped,
		stats.UnknownTrips,
		stats.TripsRejected,
	)

	return nil
}
