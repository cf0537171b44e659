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

func TestParseTrips(t *testing.T) {
	for _, tc := range []struct {
		name    string
		content string
		trips   []*model.Trip
		err     bool
	}{
		{
			"minimal",
			`
trip_id,route_id,service_id
t,r,s`,
			[]*model.Trip{{
				ID:        "t",
				RouteID:   "r",
				ServiceID: "s",
			}},
			false,
		},

		{
			"all_fields_set",
			`
trip_id,route_id,service_id,trip_headsign,trip_short_name,direction_id,wheelchair_accessible,bikes_allowed,drt_max_travel_time,drt_avg_travel_time,drt_advance_book_min
t,r,s,head,short,1,1,2,2*t+5,1.5*t,30`,
			[]*model.Trip{{
				ID:                   "t",
				RouteID:              "r",
				ServiceID:            "s",
				Headsign:             "head",
				ShortName:            "short",
				DirectionID:          1,
				WheelchairAccessible: model.WheelchairAccessibleYes,
				BikesAllowed:         model.BikeAccessNotAllowed,
				DrtMaxTravelTime:     "2*t+5",
				DrtAvgTravelTime:     "1.5*t",
				DrtAdvanceBookMin:    30,
			}},
			false,
		},

		{
			"multiple trips",
			`
trip_id,route_id,service_id,direction_id
t2,r2,s1,1
t1,r1,s2,0`,
			[]*model.Trip{
				{
					ID:          "t1",
					RouteID:     "r1",
					ServiceID:   "s2",
					DirectionID: 0,
				},
				{
					ID:          "t2",
					RouteID:     "r2",
					ServiceID:   "s1",
					DirectionID: 1,
				},
			},
			false,
		},

		{
			"blank trip_id",
			`
route_id,service_id
r,s`,
			nil,
			true,
		},

		{
			"blank route_id",
			`
trip_id,service_id
t,s`,
			nil,
			true,
		},

		{
			"blank service_id",
			`
trip_id,route_id
t,r`,
			nil,
			true,
		},

		{
			"repeated trip_id",
			`
trip_id,route_id,service_id
t,r1,s1
t,r2,s2`,
			nil,
			true,
		},

		{
			"invalid direction_id",
			`
trip_id,route_id,service_id,direction_id
t,r,s,2`,
			nil,
			true,
		},

		{
			"invalid wheelchair_accessible",
			`
trip_id,route_id,service_id,wheelchair_accessible
t,r,s,3`,
			nil,
			true,
		},

		{
			"invalid bikes_allowed",
			`
trip_id,route_id,service_id,bikes_allowed
t,r,s,7`,
			nil,
			true,
		},

		{
			"negative advance booking",
			`
trip_id,route_id,service_id,drt_advance_book_min
t,r,s,-1`,
			nil,
			true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s := storage.NewMemoryStorage()
			writer, err := s.GetWriter("test")
			require.NoError(t, err)

			require.NoError(t, writer.BeginTrips())
			tripIDs, err := parse.ParseTrips(writer, bytes.NewBufferString(tc.content))
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NoError(t, writer.EndTrips())
			require.NoError(t, writer.Close())

			reader, err := s.GetReader("test")
			require.NoError(t, err)
			trips, err := reader.Trips()
			require.NoError(t, err)
			assert.Equal(t, tc.trips, trips)

			assert.Len(t, tripIDs, len(tc.trips))
			for _, trip := range trips {
				assert.True(t, tripIDs[trip.ID])
			}
		})
	}
}
