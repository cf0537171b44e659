package testutil

// Helpers and configuration for tests.

import (
	"archive/zip"
	"bytes"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	p "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/stretchr/testify/require"
	proto "google.golang.org/protobuf/proto"

	"tidbyt.dev/triptimes"
	"tidbyt.dev/triptimes/storage"
)

// Postgres tests run only when this is set.
var PostgresConnStr = os.Getenv("TRIPTIMES_TEST_POSTGRES")

// Backends available for tests.
func Backends() []string {
	backends := []string{"memory", "sqlite"}
	if PostgresConnStr != "" {
		backends = append(backends, "postgres")
	}
	return backends
}

func BuildStorage(t testing.TB, backend string) storage.Storage {
	var s storage.Storage
	var err error
	switch backend {
	case "memory":
		s = storage.NewMemoryStorage()
	case "sqlite":
		s, err = storage.NewSQLiteStorage()
		require.NoError(t, err)
	case "postgres":
		s, err = storage.NewPSQLStorage(PostgresConnStr, true)
		require.NoError(t, err)
	}
	require.NotNil(t, s, "unknown backend %q", backend)

	return s
}

func BuildZip(
	t testing.TB,
	files map[string][]string,
) []byte {

	buf := &bytes.Buffer{}
	w := zip.NewWriter(buf)
	for filename, content := range files {
		f, err := w.Create(filename)
		require.NoError(t, err)
		_, err = f.Write([]byte(strings.Join(content, "\n")))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	return buf.Bytes()
}

// Builds a feed from files, filling in the required ones if
// missing, and loads it into a new Manager.
func BuildManager(
	t testing.TB,
	backend string,
	files map[string][]string,
) *triptimes.Manager {

	if files["trips.txt"] == nil {
		files["trips.txt"] = []string{"trip_id,route_id,service_id"}
	}
	if files["stop_times.txt"] == nil {
		files["stop_times.txt"] = []string{"trip_id,stop_id,stop_sequence,arrival_time,departure_time"}
	}

	m := triptimes.NewManager(BuildStorage(t, backend))
	_, err := m.LoadStatic(BuildZip(t, files))
	require.NoError(t, err)

	return m
}

// Helpers for building gtfs-realtime feeds
type StopUpdate struct {
	ArrivalSet     bool
	ArrivalDelay   int32
	ArrivalTime    time.Time
	DepartureSet   bool
	DepartureDelay int32
	DepartureTime  time.Time
	StopID         string
	StopSequence   uint32
	SchedRel       string
}

type TripUpdate struct {
	TripID      string
	StartDate   string
	StopUpdates []StopUpdate
	Canceled    bool
}

func stopTimeEvent(delay int32, t time.Time) *p.TripUpdate_StopTimeEvent {
	unix := int64(0)
	if !t.IsZero() {
		unix = t.Unix()
	}
	return &p.TripUpdate_StopTimeEvent{
		Delay: proto.Int32(delay),
		Time:  proto.Int64(unix),
	}
}

func BuildFeed(t testing.TB, tripUpdates []TripUpdate) []byte {
	entity := make([]*p.FeedEntity, 0, len(tripUpdates))

	for _, tripUpdate := range tripUpdates {
		stopTimeUpdate := make([]*p.TripUpdate_StopTimeUpdate, 0, len(tripUpdate.StopUpdates))

		for _, stopUpdate := range tripUpdate.StopUpdates {
			var scheduleRelationship p.TripUpdate_StopTimeUpdate_ScheduleRelationship
			switch stopUpdate.SchedRel {
			case "SKIPPED":
				scheduleRelationship = p.TripUpdate_StopTimeUpdate_SKIPPED
			case "NO_DATA":
				scheduleRelationship = p.TripUpdate_StopTimeUpdate_NO_DATA
			case "", "SCHEDULED":
				scheduleRelationship = p.TripUpdate_StopTimeUpdate_SCHEDULED
			default:
				t.Fatal(fmt.Sprintf("bad SchedRel: %s", stopUpdate.SchedRel))
			}

			stup := &p.TripUpdate_StopTimeUpdate{
				ScheduleRelationship: &scheduleRelationship,
				StopSequence:         proto.Uint32(stopUpdate.StopSequence),
				StopId:               proto.String(stopUpdate.StopID),
			}
			if stopUpdate.DepartureSet {
				stup.Departure = stopTimeEvent(stopUpdate.DepartureDelay, stopUpdate.DepartureTime)
			}
			if stopUpdate.ArrivalSet {
				stup.Arrival = stopTimeEvent(stopUpdate.ArrivalDelay, stopUpdate.ArrivalTime)
			}

			stopTimeUpdate = append(stopTimeUpdate, stup)
		}

		tripScheduleRelationship := p.TripDescriptor_SCHEDULED
		if tripUpdate.Canceled {
			tripScheduleRelationship = p.TripDescriptor_CANCELED
		}
		trip := &p.TripDescriptor{
			TripId:               proto.String(tripUpdate.TripID),
			ScheduleRelationship: &tripScheduleRelationship,
		}
		if tripUpdate.StartDate != "" {
			trip.StartDate = proto.String(tripUpdate.StartDate)
		}
		entity = append(entity, &p.FeedEntity{
			Id: proto.String(tripUpdate.TripID),
			TripUpdate: &p.TripUpdate{
				Trip:           trip,
				StopTimeUpdate: stopTimeUpdate,
			},
		})
	}

	incrementality := p.FeedHeader_FULL_DATASET
	timestamp := uint64(time.Date(2020, 1, 15, 23, 0, 0, 0, time.UTC).Unix())
	feed := &p.FeedMessage{
		Header: &p.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Incrementality:      &incrementality,
			Timestamp:           proto.Uint64(timestamp),
		},
		Entity: entity,
	}

	data, err := proto.Marshal(feed)
	require.NoError(t, err)

	return data
}
