package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var loadCmd = &cobra.Command{
	Use:   "load <zip|url>",
	Short: "Loads a static feed and summarizes the trip times built from it",
	Args:  cobra.ExactArgs(1),
	RunE:  load,
}

func load(cmd *cobra.Command, args []string) error {
	m, timetable, err := loadStatic(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	summary := m.Summary()
	fmt.Printf("trips: %d\n", summary.NumTrips)
	fmt.Printf("stop times: %d\n", summary.NumStopTimes)
	fmt.Printf("frequencies: %d\n", summary.NumFrequencies)
	fmt.Printf("records: %d (%d rejected)\n", timetable.Len(), len(m.Static().Rejected))

	stats := m.Deduplicator.Stats()
	fmt.Printf("interned: %d int arrays, %d float arrays, %d string arrays, %d bitsets\n",
		stats.Ints, stats.Floats, stats.Strings, stats.BitSets)

	if timetable.Len() > 0 {
		trips := timetable.Trips()
		fmt.Printf("first departure: %s\n", FormatTrip(trips[0], 0))
		fmt.Printf("last departure: %s\n", FormatTrip(trips[len(trips)-1], 0))
	}

	return nil
}
