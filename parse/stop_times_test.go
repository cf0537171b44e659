package parse_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidbyt.dev/triptimes/model"
	"tidbyt.dev/triptimes/parse"
	"tidbyt.dev/triptimes/storage"
)

func radius(r float64) *float64 {
	return &r
}

func TestParseTime(t *testing.T) {
	for _, tc := range []struct {
		in      string
		seconds int
		err     bool
	}{
		{"00:00:00", 0, false},
		{"10:00:01", 36001, false},
		{"25:30:00", 91800, false},
		{" 7:05:09", 25509, false},
		{"99:59:59", 359999, false},
		{"10:00", 0, true},
		{"10:60:00", 0, true},
		{"10:00:60", 0, true},
		{"100:00:00", 0, true},
		{"-1:00:00", 0, true},
		{"aa:00:00", 0, true},
		{"", 0, true},
	} {
		t.Run(tc.in, func(t *testing.T) {
			s, err := parse.ParseTime(tc.in)
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.seconds, s)
		})
	}
}

func TestParseStopTimes(t *testing.T) {
	for _, tc := range []struct {
		name      string
		content   string
		trips     map[string]bool
		err       bool
		stopTimes []*model.StopTime
	}{
		{
			"minimal",
			`
trip_id,arrival_time,departure_time,stop_id,stop_sequence
t,10:00:00,10:00:01,s,1`,
			map[string]bool{"t": true},
			false,
			[]*model.StopTime{
				{
					TripID:            "t",
					Arrival:           36000,
					Departure:         36001,
					StopID:            "s",
					StopSequence:      1,
					Timepoint:         true,
					ContinuousPickup:  model.ContinuousStoppingNone,
					ContinuousDropOff: model.ContinuousStoppingNone,
				},
			},
		},

		{
			"all_fields_set_and_multiple_records",
			`
trip_id,arrival_time,departure_time,stop_id,stop_sequence,stop_headsign,timepoint,continuous_pickup,continuous_drop_off,start_service_area_id,end_service_area_id,start_service_area_radius,end_service_area_radius
t,10:00:02,10:00:03,s2,2,sh2,0,0,3,,z,,12.5
t,10:00:00,10:00:01,s1,1,sh1,1,2,1,z,,12.5,
`,
			map[string]bool{"t": true},
			false,
			[]*model.StopTime{
				{
					TripID:                 "t",
					Arrival:                36000,
					Departure:              36001,
					StopID:                 "s1",
					StopSequence:           1,
					Headsign:               "sh1",
					Timepoint:              true,
					ContinuousPickup:       model.ContinuousStoppingPhone,
					ContinuousDropOff:      model.ContinuousStoppingNone,
					StartServiceArea:       "z",
					StartServiceAreaRadius: radius(12.5),
				},
				{
					TripID:               "t",
					Arrival:              36002,
					Departure:            36003,
					StopID:               "s2",
					StopSequence:         2,
					Headsign:             "sh2",
					Timepoint:            false,
					ContinuousPickup:     model.ContinuousStoppingAllowed,
					ContinuousDropOff:    model.ContinuousStoppingWithDriver,
					EndServiceArea:       "z",
					EndServiceAreaRadius: radius(12.5),
				},
			},
		},

		{
			"times above 24h",
			`
trip_id,arrival_time,departure_time,stop_id,stop_sequence
t,25:00:00,25:00:01,s,1`,
			map[string]bool{"t": true},
			false,
			[]*model.StopTime{
				{
					TripID:            "t",
					Arrival:           90000,
					Departure:         90001,
					StopID:            "s",
					StopSequence:      1,
					Timepoint:         true,
					ContinuousPickup:  model.ContinuousStoppingNone,
					ContinuousDropOff: model.ContinuousStoppingNone,
				},
			},
		},

		{
			"one time given",
			`
trip_id,arrival_time,departure_time,stop_id,stop_sequence
t,,10:00:00,s1,1
t,10:05:00,,s2,2`,
			map[string]bool{"t": true},
			false,
			[]*model.StopTime{
				{
					TripID:            "t",
					Arrival:           36000,
					Departure:         36000,
					StopID:            "s1",
					StopSequence:      1,
					Timepoint:         true,
					ContinuousPickup:  model.ContinuousStoppingNone,
					ContinuousDropOff: model.ContinuousStoppingNone,
				},
				{
					TripID:            "t",
					Arrival:           36300,
					Departure:         36300,
					StopID:            "s2",
					StopSequence:      2,
					Timepoint:         true,
					ContinuousPickup:  model.ContinuousStoppingNone,
					ContinuousDropOff: model.ContinuousStoppingNone,
				},
			},
		},

		{
			"no times",
			`
trip_id,arrival_time,departure_time,stop_id,stop_sequence
t,,,s,1`,
			map[string]bool{"t": true},
			true,
			nil,
		},

		{
			"unknown trip",
			`
trip_id,arrival_time,departure_time,stop_id,stop_sequence
t2,10:00:00,10:00:01,s,1`,
			map[string]bool{"t": true},
			true,
			nil,
		},

		{
			"missing stop_id",
			`
trip_id,arrival_time,departure_time,stop_id,stop_sequence
t,10:00:00,10:00:01,,1`,
			map[string]bool{"t": true},
			true,
			nil,
		},

		{
			"malformed arrival",
			`
trip_id,arrival_time,departure_time,stop_id,stop_sequence
t,10:0x:00,10:00:01,s,1`,
			map[string]bool{"t": true},
			true,
			nil,
		},

		{
			"malformed departure",
			`
trip_id,arrival_time,departure_time,stop_id,stop_sequence
t,10:00:00,10:00,s,1`,
			map[string]bool{"t": true},
			true,
			nil,
		},

		{
			"duplicate stop_sequence",
			`
trip_id,arrival_time,departure_time,stop_id,stop_sequence
t,10:00:00,10:00:01,s1,1
t,10:00:02,10:00:03,s2,1`,
			map[string]bool{"t": true},
			true,
			nil,
		},

		{
			"invalid timepoint",
			`
trip_id,arrival_time,departure_time,stop_id,stop_sequence,timepoint
t,10:00:00,10:00:01,s,1,2`,
			map[string]bool{"t": true},
			true,
			nil,
		},

		{
			"invalid continuous_pickup",
			`
trip_id,arrival_time,departure_time,stop_id,stop_sequence,continuous_pickup
t,10:00:00,10:00:01,s,1,4`,
			map[string]bool{"t": true},
			true,
			nil,
		},

		{
			"negative radius",
			`
trip_id,arrival_time,departure_time,stop_id,stop_sequence,start_service_area_radius
t,10:00:00,10:00:01,s,1,-3`,
			map[string]bool{"t": true},
			true,
			nil,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s := storage.NewMemoryStorage()
			writer, err := s.GetWriter("test")
			require.NoError(t, err)

			require.NoError(t, writer.BeginStopTimes())
			summary, err := parse.ParseStopTimes(writer, bytes.NewBufferString(tc.content), tc.trips)
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NoError(t, writer.EndStopTimes())
			require.NoError(t, writer.Close())

			reader, err := s.GetReader("test")
			require.NoError(t, err)
			stopTimes, err := reader.StopTimes()
			require.NoError(t, err)
			assert.Equal(t, tc.stopTimes, stopTimes)

			maxArrival, maxDeparture := 0, 0
			for _, st := range tc.stopTimes {
				maxArrival = max(maxArrival, st.Arrival)
				maxDeparture = max(maxDeparture, st.Departure)
			}
			assert.Equal(t, len(tc.stopTimes), summary.Count)
			assert.Equal(t, maxArrival, summary.MaxArrival)
			assert.Equal(t, maxDeparture, summary.MaxDeparture)
		})
	}
}
