package triptimes

import (
	"fmt"

	"tidbyt.dev/triptimes/model"
)

// Key of a trip instance materialized from a frequency template,
// e.g. "t1@08:30:00".
func FrequencyKey(tripID string, departure int) string {
	return fmt.Sprintf("%s@%s", tripID, FormatSeconds(departure))
}

// Expands a frequencies.txt entry into concrete trips, departing the
// first stop at f.Start, f.Start+f.Headway, ... up to (not including)
// f.End. The template must not carry realtime data.
func Materialize(template *TripTimes, f *model.Frequency) ([]*TripTimes, error) {
	if f.Headway <= 0 {
		return nil, fmt.Errorf("trip %s: non-positive headway %d", f.TripID, f.Headway)
	}
	if f.End < f.Start {
		return nil, fmt.Errorf("trip %s: frequency ends before it starts", f.TripID)
	}
	if !template.IsScheduled() || template.IsCanceled() {
		return nil, fmt.Errorf("trip %s: can't materialize from realtime updated template", f.TripID)
	}

	instances := make([]*TripTimes, 0, (f.End-f.Start+f.Headway-1)/f.Headway)
	for t := f.Start; t < f.End; t += f.Headway {
		instances = append(instances, template.TimeShift(0, t, true))
	}
	return instances, nil
}
