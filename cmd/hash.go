package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var hashCmd = &cobra.Command{
	Use:   "hash <zip|url>",
	Short: "Prints the pattern hash of every trip",
	Args:  cobra.ExactArgs(1),
	RunE:  hash,
}

var groupByHash bool

func init() {
	hashCmd.Flags().BoolVarP(&groupByHash, "group", "g", false, "Print number of trips per hash instead")
}

func hash(cmd *cobra.Command, args []string) error {
	_, timetable, err := loadStatic(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if !groupByHash {
		for i, tt := range timetable.Trips() {
			fmt.Printf("%016x %s\n", tt.PatternHash(), timetable.Keys()[i])
		}
		return nil
	}

	counts := map[uint64]int{}
	order := []uint64{}
	for _, tt := range timetable.Trips() {
		h := tt.PatternHash()
		if counts[h] == 0 {
			order = append(order, h)
		}
		counts[h]++
	}
	for _, h := range order {
		fmt.Printf("%016x %d\n", h, counts[h])
	}

	return nil
}
