package storage

import (
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"tidbyt.dev/triptimes/model"
)

const (
	PSQLTripBatchSize     = 10000
	PSQLStopTimeBatchSize = 100000
)

// PSQLStorage keeps all feeds in shared tables, keyed by a feed
// column.
type PSQLStorage struct {
	db *sql.DB
}

type PSQLFeedWriter struct {
	id          string
	db          *sql.DB
	tripBuf     []*model.Trip
	stopTimeBuf []*model.StopTime
}

type PSQLFeedReader struct {
	id string
	db *sql.DB
}

// Creates a new Postgres Storage using the provided connection string.
//
// If clearDB is true, the database will be cleared on startup. You
// probably only want this for testing.
func NewPSQLStorage(connStr string, clearDB bool) (*PSQLStorage, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	err = db.Ping()
	if err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	if clearDB {
		_, err = db.Exec(`
DROP TABLE IF EXISTS trips;
DROP TABLE IF EXISTS stop_times;
DROP TABLE IF EXISTS frequencies;
`)
		if err != nil {
			return nil, fmt.Errorf("clearing db: %w", err)
		}
	}

	for name, query := range map[string]string{
		"trips": `
CREATE TABLE IF NOT EXISTS trips (
    feed TEXT NOT NULL,
    id TEXT NOT NULL,
    route_id TEXT NOT NULL,
    service_id TEXT NOT NULL,
    headsign TEXT NOT NULL,
    short_name TEXT NOT NULL,
    direction_id SMALLINT NOT NULL,
    wheelchair_accessible SMALLINT NOT NULL,
    bikes_allowed SMALLINT NOT NULL,
    drt_max_travel_time TEXT NOT NULL,
    drt_avg_travel_time TEXT NOT NULL,
    drt_advance_book_min DOUBLE PRECISION NOT NULL,
    PRIMARY KEY (feed, id)
);`,
		"stop_times": `
CREATE TABLE IF NOT EXISTS stop_times (
    feed TEXT NOT NULL,
    trip_id TEXT NOT NULL,
    stop_id TEXT NOT NULL,
    headsign TEXT NOT NULL,
    stop_sequence INTEGER NOT NULL,
    arrival_time INTEGER NOT NULL,
    departure_time INTEGER NOT NULL,
    timepoint BOOLEAN NOT NULL,
    continuous_pickup SMALLINT NOT NULL,
    continuous_drop_off SMALLINT NOT NULL,
    start_service_area_id TEXT NOT NULL,
    end_service_area_id TEXT NOT NULL,
    start_service_area_radius DOUBLE PRECISION,
    end_service_area_radius DOUBLE PRECISION,
    PRIMARY KEY (feed, trip_id, stop_sequence)
);`,
		"frequencies": `
CREATE TABLE IF NOT EXISTS frequencies (
    feed TEXT NOT NULL,
    trip_id TEXT NOT NULL,
    start_time INTEGER NOT NULL,
    end_time INTEGER NOT NULL,
    headway_secs INTEGER NOT NULL,
    exact_times BOOLEAN NOT NULL
);
CREATE INDEX IF NOT EXISTS frequencies_feed_trip_id ON frequencies (feed, trip_id);
`,
	} {
		_, err = db.Exec(query)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("creating %s table: %w", name, err)
		}
	}

	return &PSQLStorage{
		db: db,
	}, nil
}

func (s *PSQLStorage) Close() error {
	err := s.db.Close()
	if err != nil {
		return fmt.Errorf("failed to close db: %w", err)
	}
	return nil
}

func (s *PSQLStorage) GetReader(feed string) (FeedReader, error) {
	return &PSQLFeedReader{
		id: feed,
		db: s.db,
	}, nil
}

func (s *PSQLStorage) GetWriter(feed string) (FeedWriter, error) {
	// In case feed already exists, delete all records
	for _, table := range []string{"trips", "stop_times", "frequencies"} {
		_, err := s.db.Exec(`DELETE FROM `+table+` WHERE feed = $1`, feed)
		if err != nil {
			return nil, fmt.Errorf("deleting %s records: %w", table, err)
		}
	}

	return &PSQLFeedWriter{
		id: feed,
		db: s.db,
	}, nil
}

func (w *PSQLFeedWriter) BeginTrips() error {
	return nil
}

func (w *PSQLFeedWriter) WriteTrip(trip *model.Trip) error {
	w.tripBuf = append(w.tripBuf, trip)

	if len(w.tripBuf) >= PSQLTripBatchSize {
		err := w.flushTrips()
		if err != nil {
			return fmt.Errorf("flushing trips: %w", err)
		}
	}

	return nil
}

func (w *PSQLFeedWriter) EndTrips() error {
	if len(w.tripBuf) > 0 {
		err := w.flushTrips()
		if err != nil {
			return fmt.Errorf("flushing trips: %w", err)
		}
	}
	return nil
}

// Runs a COPY of rows into table within a single transaction.
func (w *PSQLFeedWriter) copyIn(table string, columns []string, rows [][]any) error {
	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(pq.CopyIn(table, columns...))
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		_, err = stmt.Exec(row...)
		if err != nil {
			return fmt.Errorf("COPY %s: %w", table, err)
		}
	}

	_, err = stmt.Exec()
	if err != nil {
		return fmt.Errorf("executing statement: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("committing: %w", err)
	}

	return nil
}

func (w *PSQLFeedWriter) flushTrips() error {
	rows := make([][]any, 0, len(w.tripBuf))
	for _, t := range w.tripBuf {
		rows = append(rows, []any{
			w.id,
			t.ID,
			t.RouteID,
			t.ServiceID,
			t.Headsign,
			t.ShortName,
			int(t.DirectionID),
			int(t.WheelchairAccessible),
			int(t.BikesAllowed),
			t.DrtMaxTravelTime,
			t.DrtAvgTravelTime,
			t.DrtAdvanceBookMin,
		})
	}

	err := w.copyIn("trips", []string{
		"feed", "id", "route_id", "service_id", "headsign", "short_name", "direction_id",
		"wheelchair_accessible", "bikes_allowed",
		"drt_max_travel_time", "drt_avg_travel_time", "drt_advance_book_min",
	}, rows)
	if err != nil {
		return err
	}

	w.tripBuf = nil
	return nil
}

func (w *PSQLFeedWriter) BeginStopTimes() error {
	return nil
}

func (w *PSQLFeedWriter) WriteStopTime(stopTime *model.StopTime) error {
	w.stopTimeBuf = append(w.stopTimeBuf, stopTime)

	if len(w.stopTimeBuf) >= PSQLStopTimeBatchSize {
		err := w.flushStopTimes()
		if err != nil {
			return fmt.Errorf("flushing stop_times: %w", err)
		}
	}

	return nil
}

func (w *PSQLFeedWriter) EndStopTimes() error {
	if len(w.stopTimeBuf) > 0 {
		err := w.flushStopTimes()
		if err != nil {
			return fmt.Errorf("flushing stop_times: %w", err)
		}
	}
	return nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func (w *PSQLFeedWriter) flushStopTimes() error {
	rows := make([][]any, 0, len(w.stopTimeBuf))
	for _, st := range w.stopTimeBuf {
		rows = append(rows, []any{
			w.id,
			st.TripID,
			st.StopID,
			st.Headsign,
			int64(st.StopSequence),
			st.Arrival,
			st.Departure,
			st.Timepoint,
			int(st.ContinuousPickup),
			int(st.ContinuousDropOff),
			st.StartServiceArea,
			st.EndServiceArea,
			nullFloat(st.StartServiceAreaRadius),
			nullFloat(st.EndServiceAreaRadius),
		})
	}

	err := w.copyIn("stop_times", []string{
		"feed", "trip_id", "stop_id", "headsign", "stop_sequence", "arrival_time", "departure_time",
		"timepoint", "continuous_pickup", "continuous_drop_off",
		"start_service_area_id", "end_service_area_id",
		"start_service_area_radius", "end_service_area_radius",
	}, rows)
	if err != nil {
		return err
	}

	w.stopTimeBuf = nil
	return nil
}

func (w *PSQLFeedWriter) WriteFrequency(f *model.Frequency) error {
	_, err := w.db.Exec(`
INSERT INTO frequencies (feed, `+frequencyColumns+`)
VALUES ($1, $2, $3, $4, $5, $6)`,
		w.id,
		f.TripID,
		f.Start,
		f.End,
		f.Headway,
		f.ExactTimes,
	)
	if err != nil {
		return fmt.Errorf("inserting frequency: %w", err)
	}
	return nil
}

func (w *PSQLFeedWriter) Close() error {
	_, err := w.db.Exec(`ANALYZE`)
	if err != nil {
		return fmt.Errorf("analyzing: %w", err)
	}
	return nil
}

func (r *PSQLFeedReader) Trips() ([]*model.Trip, error) {
	rows, err := r.db.Query(`SELECT `+tripColumns+`
FROM trips
WHERE feed = $1
ORDER BY id`, r.id)
	if err != nil {
		return nil, fmt.Errorf("querying trips: %w", err)
	}
	defer rows.Close()

	return scanTrips(rows)
}

func (r *PSQLFeedReader) StopTimes() ([]*model.StopTime, error) {
	rows, err := r.db.Query(`SELECT `+stopTimeColumns+`
FROM stop_times
WHERE feed = $1
ORDER BY trip_id, stop_sequence`, r.id)
	if err != nil {
		return nil, fmt.Errorf("querying stop times: %w", err)
	}
	defer rows.Close()

	return scanStopTimes(rows)
}

func (r *PSQLFeedReader) TripStopTimes(tripID string) ([]*model.StopTime, error) {
	rows, err := r.db.Query(`SELECT `+stopTimeColumns+`
FROM stop_times
WHERE feed = $1 AND trip_id = $2
ORDER BY stop_sequence`, r.id, tripID)
	if err != nil {
		return nil, fmt.Errorf("querying stop times: %w", err)
	}
	defer rows.Close()

	return scanStopTimes(rows)
}

func (r *PSQLFeedReader) Frequencies() ([]*model.Frequency, error) {
	rows, err := r.db.Query(`SELECT `+frequencyColumns+`
FROM frequencies
WHERE feed = $1
ORDER BY trip_id, start_time`, r.id)
	if err != nil {
		return nil, fmt.Errorf("querying frequencies: %w", err)
	}
	defer rows.Close()

	return scanFrequencies(rows)
}
