package storage

import (
	"tidbyt.dev/triptimes/model"
)

// Storage holds parsed static feeds, keyed by an arbitrary feed
// identifier (typically the hash of the feed's zip archive).
type Storage interface {
	// Gets a reader for the feed with the given ID.
	GetReader(feed string) (FeedReader, error)

	// Gets a writer for the feed with the given ID. Any data
	// previously written for the same ID is discarded.
	GetWriter(feed string) (FeedWriter, error)
}

// Writes GTFS records for a single feed.
//
// As trips.txt and stop_times.txt tend to be large, Begin/End calls
// bracket all calls to WriteTrip() and WriteStopTime(), allowing
// transactions/batching/whathaveyou.
type FeedWriter interface {
	BeginTrips() error
	WriteTrip(trip *model.Trip) error
	EndTrips() error
	BeginStopTimes() error
	WriteStopTime(stopTime *model.StopTime) error
	EndStopTimes() error
	WriteFrequency(frequency *model.Frequency) error
	Close() error
}

type FeedReader interface {
	Trips() ([]*model.Trip, error)

	// All stop times, ordered by trip_id and stop_sequence.
	StopTimes() ([]*model.StopTime, error)

	// Stop times of a single trip, ordered by stop_sequence.
	TripStopTimes(tripID string) ([]*model.StopTime, error)

	Frequencies() ([]*model.Frequency, error)
}
