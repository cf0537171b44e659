package storage

import (
	"database/sql"
	"fmt"
	"os"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"tidbyt.dev/triptimes/model"
)

type SQLiteConfig struct {
	OnDisk    bool
	Directory string
}

// SQLiteStorage keeps each feed in a database of its own, in memory
// or as <Directory>/<feed>.db.
type SQLiteStorage struct {
	SQLiteConfig

	mutex sync.Mutex
	feeds map[string]*sql.DB
}

type SQLiteFeedWriter struct {
	db *sql.DB

	tx   *sql.Tx
	stmt *sql.Stmt
}

type SQLiteFeedReader struct {
	db *sql.DB
}

func NewSQLiteStorage(cfg ...SQLiteConfig) (*SQLiteStorage, error) {
	s := &SQLiteStorage{
		feeds: map[string]*sql.DB{},
	}
	if len(cfg) > 0 {
		s.SQLiteConfig = cfg[0]
	}

	if s.OnDisk {
		err := os.MkdirAll(s.Directory, 0o755)
		if err != nil {
			return nil, fmt.Errorf("creating directory: %w", err)
		}
	}

	return s, nil
}

func (s *SQLiteStorage) sourceName(feedID string) string {
	if s.OnDisk {
		return s.Directory + "/" + feedID + ".db"
	}
	return ":memory:"
}

func (s *SQLiteStorage) open(sourceName string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", sourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Every connection to :memory: is a database of its own.
	if !s.OnDisk {
		db.SetMaxOpenConns(1)
	}

	return db, nil
}

func (s *SQLiteStorage) GetReader(feedID string) (FeedReader, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	db, found := s.feeds[feedID]
	if found {
		return &SQLiteFeedReader{db: db}, nil
	}
	if !s.OnDisk {
		return nil, fmt.Errorf("feed %s does not exist", feedID)
	}

	sourceName := s.sourceName(feedID)
	if _, err := os.Stat(sourceName); os.IsNotExist(err) {
		return nil, fmt.Errorf("feed %s does not exist at %s", feedID, sourceName)
	}

	db, err := s.open(sourceName)
	if err != nil {
		return nil, err
	}
	s.feeds[feedID] = db

	return &SQLiteFeedReader{db: db}, nil
}

func (s *SQLiteStorage) GetWriter(feedID string) (FeedWriter, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if db, found := s.feeds[feedID]; found {
		db.Close()
		delete(s.feeds, feedID)
	}

	sourceName := s.sourceName(feedID)
	if s.OnDisk {
		if _, err := os.Stat(sourceName); err == nil {
			err := os.Remove(sourceName)
			if err != nil {
				return nil, fmt.Errorf("removing existing database: %w", err)
			}
		}
	}

	db, err := s.open(sourceName)
	if err != nil {
		return nil, err
	}

	for name, query := range map[string]string{
		"trips": `
CREATE TABLE trips (
    id TEXT PRIMARY KEY,
    route_id TEXT NOT NULL,
    service_id TEXT NOT NULL,
    headsign TEXT NOT NULL,
    short_name TEXT NOT NULL,
    direction_id INTEGER NOT NULL,
    wheelchair_accessible INTEGER NOT NULL,
    bikes_allowed INTEGER NOT NULL,
    drt_max_travel_time TEXT NOT NULL,
    drt_avg_travel_time TEXT NOT NULL,
    drt_advance_book_min REAL NOT NULL
);`,
		"stop_times": `
CREATE TABLE stop_times (
    trip_id TEXT NOT NULL,
    stop_id TEXT NOT NULL,
    headsign TEXT NOT NULL,
    stop_sequence INTEGER NOT NULL,
    arrival_time INTEGER NOT NULL,
    departure_time INTEGER NOT NULL,
    timepoint INTEGER NOT NULL,
    continuous_pickup INTEGER NOT NULL,
    continuous_drop_off INTEGER NOT NULL,
    start_service_area_id TEXT NOT NULL,
    end_service_area_id TEXT NOT NULL,
    start_service_area_radius REAL,
    end_service_area_radius REAL,
    PRIMARY KEY (trip_id, stop_sequence)
);`,
		"frequencies": `
CREATE TABLE frequencies (
    trip_id TEXT NOT NULL,
    start_time INTEGER NOT NULL,
    end_time INTEGER NOT NULL,
    headway_secs INTEGER NOT NULL,
    exact_times INTEGER NOT NULL
);
CREATE INDEX frequencies_trip_id ON frequencies (trip_id);
`,
	} {
		_, err = db.Exec(query)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("creating %s table: %w", name, err)
		}
	}

	s.feeds[feedID] = db

	return &SQLiteFeedWriter{db: db}, nil
}

// Starts a transaction with a prepared insert, used by the
// Begin*/End* pairs.
func (f *SQLiteFeedWriter) begin(query string) error {
	var err error
	f.tx, err = f.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	f.stmt, err = f.tx.Prepare(query)
	if err != nil {
		f.tx.Rollback()
		f.tx = nil
		return fmt.Errorf("preparing insert: %w", err)
	}

	return nil
}

func (f *SQLiteFeedWriter) exec(args ...any) error {
	if f.stmt == nil {
		return fmt.Errorf("no transaction in progress")
	}

	_, err := f.stmt.Exec(args...)
	if err != nil {
		f.stmt.Close()
		f.tx.Rollback()
		f.stmt = nil
		f.tx = nil
		return err
	}

	return nil
}

func (f *SQLiteFeedWriter) end() error {
	if f.tx == nil {
		return fmt.Errorf("no transaction in progress")
	}

	f.stmt.Close()
	err := f.tx.Commit()
	f.stmt = nil
	f.tx = nil
	if err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

func (f *SQLiteFeedWriter) BeginTrips() error {
	return f.begin(`INSERT INTO trips (` + tripColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
}

func (f *SQLiteFeedWriter) WriteTrip(t *model.Trip) error {
	err := f.exec(
		t.ID,
		t.RouteID,
		t.ServiceID,
		t.Headsign,
		t.ShortName,
		t.DirectionID,
		t.WheelchairAccessible,
		t.BikesAllowed,
		t.DrtMaxTravelTime,
		t.DrtAvgTravelTime,
		t.DrtAdvanceBookMin,
	)
	if err != nil {
		return fmt.Errorf("inserting trip: %w", err)
	}
	return nil
}

func (f *SQLiteFeedWriter) EndTrips() error {
	return f.end()
}

func (f *SQLiteFeedWriter) BeginStopTimes() error {
	return f.begin(`INSERT INTO stop_times (` + stopTimeColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
}

func (f *SQLiteFeedWriter) WriteStopTime(st *model.StopTime) error {
	err := f.exec(
		st.TripID,
		st.StopID,
		st.Headsign,
		st.StopSequence,
		st.Arrival,
		st.Departure,
		st.Timepoint,
		st.ContinuousPickup,
		st.ContinuousDropOff,
		st.StartServiceArea,
		st.EndServiceArea,
		st.StartServiceAreaRadius,
		st.EndServiceAreaRadius,
	)
	if err != nil {
		return fmt.Errorf("inserting stop_time: %w", err)
	}
	return nil
}

func (f *SQLiteFeedWriter) EndStopTimes() error {
	return f.end()
}

func (f *SQLiteFeedWriter) WriteFrequency(fr *model.Frequency) error {
	_, err := f.db.Exec(`
INSERT INTO frequencies (`+frequencyColumns+`)
VALUES (?, ?, ?, ?, ?)`,
		fr.TripID,
		fr.Start,
		fr.End,
		fr.Headway,
		fr.ExactTimes,
	)
	if err != nil {
		return fmt.Errorf("inserting frequency: %w", err)
	}
	return nil
}

func (f *SQLiteFeedWriter) Close() error {
	if f.tx != nil {
		f.stmt.Close()
		f.tx.Rollback()
		f.stmt = nil
		f.tx = nil
	}
	return nil
}

func (r *SQLiteFeedReader) Trips() ([]*model.Trip, error) {
	rows, err := r.db.Query(`SELECT ` + tripColumns + ` FROM trips ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying trips: %w", err)
	}
	defer rows.Close()

	return scanTrips(rows)
}

func (r *SQLiteFeedReader) StopTimes() ([]*model.StopTime, error) {
	rows, err := r.db.Query(`SELECT ` + stopTimeColumns + `
FROM stop_times
ORDER BY trip_id, stop_sequence`)
	if err != nil {
		return nil, fmt.Errorf("querying stop times: %w", err)
	}
	defer rows.Close()

	return scanStopTimes(rows)
}

func (r *SQLiteFeedReader) TripStopTimes(tripID string) ([]*model.StopTime, error) {
	rows, err := r.db.Query(`SELECT `+stopTimeColumns+`
FROM stop_times
WHERE trip_id = ?
ORDER BY stop_sequence`, tripID)
	if err != nil {
		return nil, fmt.Errorf("querying stop times: %w", err)
	}
	defer rows.Close()

	return scanStopTimes(rows)
}

func (r *SQLiteFeedReader) Frequencies() ([]*model.Frequency, error) {
	rows, err := r.db.Query(`SELECT ` + frequencyColumns + `
FROM frequencies
ORDER BY trip_id, start_time`)
	if err != nil {
		return nil, fmt.Errorf("querying frequencies: %w", err)
	}
	defer rows.Close()

	return scanFrequencies(rows)
}
