package triptimes

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"
	"time"

	"tidbyt.dev/triptimes/dedup"
	"tidbyt.dev/triptimes/downloader"
	"tidbyt.dev/triptimes/metrics"
	"tidbyt.dev/triptimes/parse"
	"tidbyt.dev/triptimes/storage"
)

const (
	DefaultRealtimeTTL     = 1 * time.Minute
	DefaultRealtimeTimeout = 30 * time.Second
	DefaultRealtimeMaxSize = 1 << 20 // 1 MB
	DefaultStaticTimeout   = 60 * time.Second
	DefaultStaticMaxSize   = 800 << 20 // 800 MB
)

var ErrNoActiveFeed = errors.New("no active feed found")

// Manager keeps a Store's Timetable in sync with a static feed and
// any number of realtime feed refreshes.
//
// Static feeds are parsed into storage, and trip times built from
// there. Realtime feeds are full datasets: each one replaces the
// realtime data of the previous.
type Manager struct {
	RealtimeTTL     time.Duration
	RealtimeTimeout time.Duration
	RealtimeMaxSize int
	StaticTimeout   time.Duration
	StaticMaxSize   int
	Downloader      downloader.Downloader

	// Timezone of the static feed, for realtime updates carrying
	// absolute times.
	Location *time.Location

	Store        *Store
	Deduplicator *dedup.Deduplicator
	Metrics      *metrics.Collector

	storage storage.Storage

	// Serializes loads, so batches are never stale.
	mutex   sync.Mutex
	feed    string
	static  *Static
	summary *parse.Summary
}

// Creates a new Manager on top of the given storage.
//
// By default, the manager uses an in memory cache for realtime data,
// but not for static schedules as these are persisted in storage.
func NewManager(s storage.Storage) *Manager {
	return &Manager{
		RealtimeTTL:     DefaultRealtimeTTL,
		RealtimeTimeout: DefaultRealtimeTimeout,
		RealtimeMaxSize: DefaultRealtimeMaxSize,
		StaticTimeout:   DefaultStaticTimeout,
		StaticMaxSize:   DefaultStaticMaxSize,

		Downloader: downloader.NewMemoryDownloader(),
		Location:   time.UTC,

		Store:        NewStore(),
		Deduplicator: dedup.New(),

		storage: s,
	}
}

// Feed identifier for a static feed archive.
func FeedID(buf []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(buf))
}

// Loads a static feed (zip archive) and publishes its trip times,
// replacing everything in the current Timetable. Loading the same
// archive as last time is a no-op.
func (m *Manager) LoadStatic(buf []byte) (*Timetable, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	feed := FeedID(buf)
	if feed == m.feed {
		return m.Store.Current(), nil
	}

	writer, err := m.storage.GetWriter(feed)
	if err != nil {
		return nil, fmt.Errorf("getting writer: %w", err)
	}

	summary, err := parse.ParseStatic(writer, buf)
	if err != nil {
		return nil, fmt.Errorf("parsing static: %w", err)
	}

	reader, err := m.storage.GetReader(feed)
	if err != nil {
		return nil, fmt.Errorf("getting reader: %w", err)
	}

	static, err := NewStatic(reader, m.Deduplicator, m.Metrics)
	if err != nil {
		return nil, fmt.Errorf("building trip times: %w", err)
	}

	batch := m.Store.Begin()
	for _, key := range batch.Base().Keys() {
		if _, found := static.Records[key]; !found {
			batch.Remove(key)
		}
	}
	for key, tt := range static.Records {
		batch.Put(key, tt)
	}

	timetable, err := m.Store.Commit(batch)
	if err != nil {
		return nil, fmt.Errorf("publishing: %w", err)
	}

	m.feed = feed
	m.static = static
	m.summary = summary

	return timetable, nil
}

// Downloads and loads a static feed.
func (m *Manager) LoadStaticURL(ctx context.Context, url string, headers map[string]string) (*Timetable, error) {
	buf, err := m.Downloader.Get(ctx, url, headers, downloader.GetOptions{
		Timeout: m.StaticTimeout,
		MaxSize: m.StaticMaxSize,
	})
	if err != nil {
		return nil, fmt.Errorf("downloading static: %w", err)
	}

	return m.LoadStatic(buf)
}

// The currently loaded static feed, or nil.
func (m *Manager) Static() *Static {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.static
}

// Summary of the currently loaded static feed, or nil.
func (m *Manager) Summary() *parse.Summary {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.summary
}

// Applies one or more realtime feeds, forming a single full dataset,
// and publishes the result. Records modified by earlier realtime
// data are reset to schedule first.
func (m *Manager) ApplyRealtime(ctx context.Context, feeds [][]byte) (*Timetable, *RealtimeStats, error) {
	rt, err := parse.ParseRealtime(ctx, feeds)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing realtime: %w", err)
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.static == nil {
		return nil, nil, ErrNoActiveFeed
	}

	batch := m.Store.Begin()
	base := batch.Base()
	for key, tt := range m.static.Records {
		current, found := base.Get(key)
		if !found || current != tt {
			batch.Put(key, tt)
		}
	}

	applier := &RealtimeApplier{
		Location: m.Location,
		Metrics:  m.Metrics,
	}
	stats, err := applier.Apply(batch, rt)
	if err != nil {
		return nil, nil, fmt.Errorf("applying realtime: %w", err)
	}

	timetable, err := m.Store.Commit(batch)
	if err != nil {
		return nil, nil, fmt.Errorf("publishing: %w", err)
	}

	return timetable, stats, nil
}

// Downloads and applies realtime feeds. Downloads are cached for
// RealtimeTTL.
func (m *Manager) ApplyRealtimeURL(ctx context.Context, urls []string, headers map[string]string) (*Timetable, *RealtimeStats, error) {
	feeds := make([][]byte, 0, len(urls))
	for _, url := range urls {
		buf, err := m.Downloader.Get(ctx, url, headers, downloader.GetOptions{
			Cache:    true,
			CacheTTL: m.RealtimeTTL,
			Timeout:  m.RealtimeTimeout,
			MaxSize:  m.RealtimeMaxSize,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("downloading realtime: %w", err)
		}
		feeds = append(feeds, buf)
	}

	return m.ApplyRealtime(ctx, feeds)
}
