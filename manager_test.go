package triptimes_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidbyt.dev/triptimes"
	"tidbyt.dev/triptimes/metrics"
	"tidbyt.dev/triptimes/testutil"
)

type MockGTFSServer struct {
	Feeds    map[string][]byte
	Requests []string
	Server   *httptest.Server

	mutex sync.Mutex
}

func (m *MockGTFSServer) handler(w http.ResponseWriter, r *http.Request) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.Requests = append(m.Requests, r.URL.Path)
	if feed, found := m.Feeds[r.URL.Path]; found {
		w.Write(feed)
	} else {
		w.WriteHeader(http.StatusNotFound)
	}
}

func mockServer() *MockGTFSServer {
	m := &MockGTFSServer{
		Feeds:    map[string][]byte{},
		Requests: []string{},
	}

	m.Server = httptest.NewServer(http.HandlerFunc(m.handler))

	return m
}

func validFeed() map[string][]string {
	return map[string][]string{
		"trips.txt": {
			"route_id,service_id,trip_id",
			"r,mondays,t",
			"r,mondays,u",
		},
		"stop_times.txt": {
			"trip_id,arrival_time,departure_time,stop_id,stop_sequence",
			"t,12:00:00,12:00:00,s,1",
			"t,12:10:00,12:10:00,x,2",
			"u,13:00:00,13:00:00,s,1",
			"u,13:10:00,13:10:00,x,2",
		},
	}
}

func TestManagerLoadStaticURL(t *testing.T) {
	for _, backend := range testutil.Backends() {
		t.Run(backend, func(t *testing.T) {
			server := mockServer()
			defer server.Server.Close()
			server.Feeds["/static.zip"] = testutil.BuildZip(t, validFeed())

			m := triptimes.NewManager(testutil.BuildStorage(t, backend))

			timetable, err := m.LoadStaticURL(context.Background(), server.Server.URL+"/static.zip", nil)
			require.NoError(t, err)

			assert.Equal(t, []string{"t", "u"}, timetable.Keys())
			assert.Same(t, timetable, m.Store.Current())

			summary := m.Summary()
			require.NotNil(t, summary)
			assert.Equal(t, 2, summary.NumTrips)
			assert.Equal(t, 4, summary.NumStopTimes)

			tt := getTrip(t, timetable, "u")
			assert.Equal(t, 13*3600, tt.Departure(0))
			assert.Equal(t, "x", tt.StopID(1))
		})
	}
}

func TestManagerLoadSameFeedTwice(t *testing.T) {
	m := triptimes.NewManager(testutil.BuildStorage(t, "memory"))
	buf := testutil.BuildZip(t, validFeed())

	first, err := m.LoadStatic(buf)
	require.NoError(t, err)
	second, err := m.LoadStatic(buf)
	require.NoError(t, err)

	assert.Same(t, first, second)
}

func TestManagerLoadReplacesTrips(t *testing.T) {
	m := triptimes.NewManager(testutil.BuildStorage(t, "sqlite"))

	_, err := m.LoadStatic(testutil.BuildZip(t, validFeed()))
	require.NoError(t, err)

	timetable, err := m.LoadStatic(testutil.BuildZip(t, map[string][]string{
		"trips.txt": {
			"route_id,service_id,trip_id",
			"r,mondays,u",
			"r,mondays,v",
		},
		"stop_times.txt": {
			"trip_id,arrival_time,departure_time,stop_id,stop_sequence",
			"u,13:00:00,13:00:00,s,1",
			"u,13:20:00,13:20:00,x,2",
			"v,07:00:00,07:00:00,s,1",
			"v,07:10:00,07:10:00,x,2",
		},
	}))
	require.NoError(t, err)

	assert.Equal(t, []string{"v", "u"}, timetable.Keys())
	assert.Equal(t, 13*3600+20*60, getTrip(t, timetable, "u").Arrival(1))
}

func TestManagerBrokenData(t *testing.T) {
	server := mockServer()
	defer server.Server.Close()

	server.Feeds["/static.zip"] = testutil.BuildZip(t, map[string][]string{"parse": {"fail"}})

	m := triptimes.NewManager(testutil.BuildStorage(t, "memory"))

	// With a malformed feed, manager returns error
	_, err := m.LoadStaticURL(context.Background(), server.Server.URL+"/static.zip", nil)
	require.Error(t, err)
	assert.Nil(t, m.Static())
	assert.Equal(t, 0, m.Store.Current().Len())

	// Missing feed too
	_, err = m.LoadStaticURL(context.Background(), server.Server.URL+"/missing.zip", nil)
	require.Error(t, err)

	// Serve valid data and it gets loaded
	server.Feeds["/static.zip"] = testutil.BuildZip(t, validFeed())
	timetable, err := m.LoadStaticURL(context.Background(), server.Server.URL+"/static.zip", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, timetable.Len())

	// Bad data again leaves the loaded feed in place
	server.Feeds["/static.zip"] = []byte("not a zip")
	_, err = m.LoadStaticURL(context.Background(), server.Server.URL+"/static.zip", nil)
	require.Error(t, err)
	assert.Same(t, timetable, m.Store.Current())

	assert.Equal(t, []string{
		"/static.zip",
		"/missing.zip",
		"/static.zip",
		"/static.zip",
	}, server.Requests)
}

func TestManagerStaticTooLarge(t *testing.T) {
	server := mockServer()
	defer server.Server.Close()
	server.Feeds["/static.zip"] = testutil.BuildZip(t, validFeed())

	m := triptimes.NewManager(testutil.BuildStorage(t, "memory"))
	m.StaticMaxSize = 10

	_, err := m.LoadStaticURL(context.Background(), server.Server.URL+"/static.zip", nil)
	require.Error(t, err)
}

func TestManagerRealtimeWithoutStatic(t *testing.T) {
	m := triptimes.NewManager(testutil.BuildStorage(t, "memory"))

	_, _, err := m.ApplyRealtime(context.Background(), [][]byte{
		testutil.BuildFeed(t, nil),
	})
	assert.True(t, errors.Is(err, triptimes.ErrNoActiveFeed))
}

func TestManagerRealtimeURLIsCached(t *testing.T) {
	server := mockServer()
	defer server.Server.Close()

	server.Feeds["/rt1.pb"] = testutil.BuildFeed(t, []testutil.TripUpdate{{TripID: "t", Canceled: true}})
	server.Feeds["/rt2.pb"] = testutil.BuildFeed(t, []testutil.TripUpdate{
		{
			TripID: "u",
			StopUpdates: []testutil.StopUpdate{
				{StopSequence: 2, ArrivalSet: true, ArrivalDelay: 60},
			},
		},
	})

	m := triptimes.NewManager(testutil.BuildStorage(t, "memory"))
	m.Metrics = metrics.NewCollector()
	_, err := m.LoadStatic(testutil.BuildZip(t, validFeed()))
	require.NoError(t, err)

	urls := []string{server.Server.URL + "/rt1.pb", server.Server.URL + "/rt2.pb"}

	timetable, stats, err := m.ApplyRealtimeURL(context.Background(), urls, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TripsCanceled)
	assert.Equal(t, 1, stats.TripsUpdated)
	assert.True(t, getTrip(t, timetable, "t").IsCanceled())
	assert.Equal(t, 60, getTrip(t, timetable, "u").ArrivalDelay(1))

	// Second round is served from cache
	_, _, err = m.ApplyRealtimeURL(context.Background(), urls, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"/rt1.pb", "/rt2.pb"}, server.Requests)

	assert.Equal(t, float64(2), testCounterValue(t, m.Metrics, "triptimes_realtime_trips_canceled_total"))
}

// Reads a counter off the collector's registry.
func testCounterValue(t *testing.T, c *metrics.Collector, name string) float64 {
	families, err := c.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			require.Len(t, f.GetMetric(), 1)
			return f.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("no metric %s", name)
	return 0
}
