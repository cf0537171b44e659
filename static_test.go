package triptimes_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidbyt.dev/triptimes"
	"tidbyt.dev/triptimes/dedup"
	"tidbyt.dev/triptimes/metrics"
	"tidbyt.dev/triptimes/model"
	"tidbyt.dev/triptimes/parse"
	"tidbyt.dev/triptimes/storage"
	"tidbyt.dev/triptimes/testutil"
)

func staticFromFiles(t *testing.T, backend string, files map[string][]string) *triptimes.Static {
	s := testutil.BuildStorage(t, backend)

	writer, err := s.GetWriter("test")
	require.NoError(t, err)
	_, err = parse.ParseStatic(writer, testutil.BuildZip(t, files))
	require.NoError(t, err)

	reader, err := s.GetReader("test")
	require.NoError(t, err)

	static, err := triptimes.NewStatic(reader, dedup.New(), metrics.NewCollector())
	require.NoError(t, err)

	return static
}

func testStaticRecords(t *testing.T, backend string) {
	static := staticFromFiles(t, backend, map[string][]string{
		"trips.txt": {
			"trip_id,route_id,service_id,trip_headsign,wheelchair_accessible,drt_max_travel_time",
			"plain,r,s,Downtown,1,",
			"flex,r,s,,0,2*t+5",
		},
		"stop_times.txt": {
			"trip_id,stop_id,stop_sequence,arrival_time,departure_time,stop_headsign,timepoint,continuous_pickup,start_service_area_id,end_service_area_id",
			"plain,a,10,08:00:00,08:00:00,,1,,,",
			"plain,b,20,08:10:00,08:12:00,Uptown,0,0,,",
			"plain,c,30,08:20:00,08:20:00,,,,,",
			"flex,a,1,09:00:00,09:00:00,,,,zone,",
			"flex,c,2,09:30:00,09:30:00,,,,,zone",
		},
	})

	assert.Empty(t, static.Rejected)
	assert.Equal(t, []string{"flex", "plain"}, static.Keys())

	plain := static.Records["plain"]
	require.NotNil(t, plain)
	assert.Equal(t, 3, plain.NumStops())
	assert.Equal(t, 8*3600, plain.Offset())
	assert.Equal(t, 8*3600+12*60, plain.Departure(1))
	assert.Equal(t, uint32(20), plain.StopSequence(1))
	assert.Equal(t, "Downtown", plain.Headsign(0))
	assert.Equal(t, "Uptown", plain.Headsign(1))
	assert.True(t, plain.IsTimepoint(0))
	assert.False(t, plain.IsTimepoint(1))
	assert.True(t, plain.IsTimepoint(2))
	assert.Equal(t, 0, int(plain.ContinuousPickup(1)))
	assert.Equal(t, 1, int(plain.ContinuousPickup(2)))

	flex := static.Records["flex"]
	require.NotNil(t, flex)
	assert.Equal(t, "zone", flex.ServiceArea(0))
	assert.Equal(t, "zone", flex.ServiceArea(1))
	assert.Equal(t, 5*60+200, flex.DemandResponseMaxTime(100))
}

func testStaticRejectsBadTrips(t *testing.T, backend string) {
	static := staticFromFiles(t, backend, map[string][]string{
		"trips.txt": {
			"trip_id,route_id,service_id,drt_max_travel_time",
			"good,r,s,",
			"mismatch,r,s,",
			"badformula,r,s,x+1",
			"nostops,r,s,",
		},
		"stop_times.txt": {
			"trip_id,stop_id,stop_sequence,arrival_time,departure_time,start_service_area_id,end_service_area_id",
			"good,a,1,08:00:00,08:00:00,,",
			"good,b,2,08:10:00,08:10:00,,",
			"mismatch,a,1,08:00:00,08:00:00,north,",
			"mismatch,b,2,08:10:00,08:10:00,,south",
			"badformula,a,1,08:00:00,08:00:00,,",
		},
	})

	assert.Equal(t, []string{"good"}, static.Keys())
	assert.Len(t, static.Rejected, 3)
	assert.True(t, errors.Is(static.Rejected["mismatch"], triptimes.ErrServiceAreaMismatch))
	assert.True(t, errors.Is(static.Rejected["nostops"], triptimes.ErrNoStopTimes))
	assert.Error(t, static.Rejected["badformula"])
}

func testStaticFrequencies(t *testing.T, backend string) {
	static := staticFromFiles(t, backend, map[string][]string{
		"trips.txt": {
			"trip_id,route_id,service_id",
			"template,r,s",
			"regular,r,s",
		},
		"stop_times.txt": {
			"trip_id,stop_id,stop_sequence,arrival_time,departure_time",
			"template,a,1,00:00:00,00:00:00",
			"template,b,2,00:05:00,00:06:00",
			"regular,a,1,12:00:00,12:00:00",
			"regular,b,2,12:05:00,12:06:00",
		},
		"frequencies.txt": {
			"trip_id,start_time,end_time,headway_secs",
			"template,08:00:00,08:30:00,600",
			"template,17:00:00,17:20:00,1200",
		},
	})

	assert.Equal(t, []string{
		"regular",
		"template@08:00:00",
		"template@08:10:00",
		"template@08:20:00",
		"template@17:00:00",
	}, static.Keys())

	require.Contains(t, static.Templates, "template")
	assert.NotContains(t, static.Records, "template")

	tt := static.Records["template@08:10:00"]
	assert.Equal(t, 8*3600+10*60, tt.Departure(0))
	assert.Equal(t, 8*3600+16*60, tt.Departure(1))
	assert.Equal(t, "template", tt.Trip.ID)

	// All instances share a pattern with the regular trip
	assert.Equal(t, static.Records["regular"].PatternHash(), tt.PatternHash())
}

func TestStaticFrequenciesAllOrNothing(t *testing.T) {
	s := storage.NewMemoryStorage()
	writer, err := s.GetWriter("test")
	require.NoError(t, err)

	require.NoError(t, writer.BeginTrips())
	require.NoError(t, writer.WriteTrip(&model.Trip{ID: "template", RouteID: "r", ServiceID: "s"}))
	require.NoError(t, writer.EndTrips())
	require.NoError(t, writer.BeginStopTimes())
	for _, st := range stopTimes("template", []int{0, 300}, []int{0, 360}) {
		require.NoError(t, writer.WriteStopTime(st))
	}
	require.NoError(t, writer.EndStopTimes())

	// Second row is broken, which rejects the first as well
	require.NoError(t, writer.WriteFrequency(&model.Frequency{TripID: "template", Start: 28800, End: 30600, Headway: 600}))
	require.NoError(t, writer.WriteFrequency(&model.Frequency{TripID: "template", Start: 61200, End: 62400, Headway: 0}))
	require.NoError(t, writer.Close())

	reader, err := s.GetReader("test")
	require.NoError(t, err)
	static, err := triptimes.NewStatic(reader, dedup.New(), nil)
	require.NoError(t, err)

	assert.Empty(t, static.Records)
	assert.Empty(t, static.Templates)
	assert.Error(t, static.Rejected["template"])
}

func TestStatic(t *testing.T) {
	for _, backend := range testutil.Backends() {
		t.Run(backend, func(t *testing.T) {
			t.Run("Records", func(t *testing.T) { testStaticRecords(t, backend) })
			t.Run("RejectsBadTrips", func(t *testing.T) { testStaticRejectsBadTrips(t, backend) })
			t.Run("Frequencies", func(t *testing.T) { testStaticFrequencies(t, backend) })
		})
	}
}
