package main

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check <zip|url>",
	Short: "Reports trips with times going backwards",
	Args:  cobra.ExactArgs(1),
	RunE:  check,
}

func check(cmd *cobra.Command, args []string) error {
	_, timetable, err := loadStatic(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	violations := 0
	for _, tt := range timetable.Trips() {
		if err := tt.TimesIncreasing(); err != nil {
			log.Println(err)
			violations++
		}
	}

	if violations > 0 {
		return fmt.Errorf("%d of %d trips have decreasing times", violations, timetable.Len())
	}

	fmt.Printf("all %d trips ok\n", timetable.Len())
	return nil
}
