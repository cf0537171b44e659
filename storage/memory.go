package storage

import (
	"fmt"
	"sort"
	"sync"

	"tidbyt.dev/triptimes/model"
)

// In memory implementation of Storage below

type MemoryStorage struct {
	mutex sync.Mutex
	Feeds map[string]*MemoryStorageFeed
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		Feeds: map[string]*MemoryStorageFeed{},
	}
}

func (s *MemoryStorage) GetReader(feed string) (FeedReader, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	f, ok := s.Feeds[feed]
	if !ok {
		return nil, fmt.Errorf("feed %s not found", feed)
	}
	return f, nil
}

func (s *MemoryStorage) GetWriter(feed string) (FeedWriter, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	f := &MemoryStorageFeed{
		trips:           map[string]*model.Trip{},
		stopTimesByTrip: map[string][]*model.StopTime{},
	}
	s.Feeds[feed] = f

	return f, nil
}

type MemoryStorageFeed struct {
	trips           map[string]*model.Trip
	stopTimesByTrip map[string][]*model.StopTime
	frequencies     []*model.Frequency
}

func (f *MemoryStorageFeed) BeginTrips() error {
	return nil
}

func (f *MemoryStorageFeed) WriteTrip(trip *model.Trip) error {
	f.trips[trip.ID] = trip
	return nil
}

func (f *MemoryStorageFeed) EndTrips() error {
	return nil
}

func (f *MemoryStorageFeed) BeginStopTimes() error {
	return nil
}

func (f *MemoryStorageFeed) WriteStopTime(stopTime *model.StopTime) error {
	f.stopTimesByTrip[stopTime.TripID] = append(f.stopTimesByTrip[stopTime.TripID], stopTime)
	return nil
}

func (f *MemoryStorageFeed) EndStopTimes() error {
	for _, sts := range f.stopTimesByTrip {
		sort.SliceStable(sts, func(i, j int) bool {
			return sts[i].StopSequence < sts[j].StopSequence
		})
	}
	return nil
}

func (f *MemoryStorageFeed) WriteFrequency(frequency *model.Frequency) error {
	f.frequencies = append(f.frequencies, frequency)
	return nil
}

func (f *MemoryStorageFeed) Close() error {
	return nil
}

func (f *MemoryStorageFeed) Trips() ([]*model.Trip, error) {
	trips := make([]*model.Trip, 0, len(f.trips))
	for _, t := range f.trips {
		trips = append(trips, t)
	}
	sort.Slice(trips, func(i, j int) bool {
		return trips[i].ID < trips[j].ID
	})
	return trips, nil
}

func (f *MemoryStorageFeed) StopTimes() ([]*model.StopTime, error) {
	tripIDs := make([]string, 0, len(f.stopTimesByTrip))
	for tripID := range f.stopTimesByTrip {
		tripIDs = append(tripIDs, tripID)
	}
	sort.Strings(tripIDs)

	stopTimes := []*model.StopTime{}
	for _, tripID := range tripIDs {
		stopTimes = append(stopTimes, f.stopTimesByTrip[tripID]...)
	}
	return stopTimes, nil
}

func (f *MemoryStorageFeed) TripStopTimes(tripID string) ([]*model.StopTime, error) {
	return append([]*model.StopTime{}, f.stopTimesByTrip[tripID]...), nil
}

func (f *MemoryStorageFeed) Frequencies() ([]*model.Frequency, error) {
	frequencies := append([]*model.Frequency{}, f.frequencies...)
	sort.SliceStable(frequencies, func(i, j int) bool {
		if frequencies[i].TripID != frequencies[j].TripID {
			return frequencies[i].TripID < frequencies[j].TripID
		}
		return frequencies[i].Start < frequencies[j].Start
	})
	return frequencies, nil
}
