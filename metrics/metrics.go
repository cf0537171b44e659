package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the counters exported by the trip times
// machinery. All Observe methods are safe to call on a nil
// Collector, which turns them into no-ops.
type Collector struct {
	reg *prometheus.Registry

	InternHits   *prometheus.CounterVec // kind label: int|float|string|bitset
	InternMisses *prometheus.CounterVec

	TripsBuilt    prometheus.Counter
	TripsRejected prometheus.Counter

	RealtimeTripsUpdated  prometheus.Counter
	RealtimeTripsCanceled prometheus.Counter
	RealtimeStopsSkipped  prometheus.Counter
	RealtimeUnknownTrips  prometheus.Counter
	RealtimeTripsRejected prometheus.Counter

	SnapshotsPublished prometheus.Counter
	SnapshotTrips      prometheus.Gauge
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		InternHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triptimes_intern_hits_total",
			Help: "Interning lookups answered with an existing canonical instance.",
		}, []string{"kind"}),
		InternMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triptimes_intern_misses_total",
			Help: "Interning lookups that stored a new canonical instance.",
		}, []string{"kind"}),
		TripsBuilt: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "triptimes_trips_built_total",
			Help: "Trip time records constructed from stop times.",
		}),
		TripsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "triptimes_trips_rejected_total",
			Help: "Trips whose construction failed validation.",
		}),
		RealtimeTripsUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "triptimes_realtime_trips_updated_total",
			Help: "Trips that received real-time time updates.",
		}),
		RealtimeTripsCanceled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "triptimes_realtime_trips_canceled_total",
			Help: "Trips canceled by real-time data.",
		}),
		RealtimeStopsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "triptimes_realtime_stops_skipped_total",
			Help: "Stops marked as skipped by real-time data.",
		}),
		RealtimeUnknownTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "triptimes_realtime_unknown_trips_total",
			Help: "Real-time updates referencing trips absent from the timetable.",
		}),
		RealtimeTripsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "triptimes_realtime_trips_rejected_total",
			Help: "Real-time trip updates dropped for producing decreasing times.",
		}),
		SnapshotsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "triptimes_snapshots_published_total",
			Help: "Timetable generations published to readers.",
		}),
		SnapshotTrips: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "triptimes_snapshot_trips",
			Help: "Number of trips in the most recently published timetable.",
		}),
	}

	reg.MustRegister(
		c.InternHits,
		c.InternMisses,
		c.TripsBuilt,
		c.TripsRejected,
		c.RealtimeTripsUpdated,
		c.RealtimeTripsCanceled,
		c.RealtimeStopsSkipped,
		c.RealtimeUnknownTrips,
		c.RealtimeTripsRejected,
		c.SnapshotsPublished,
		c.SnapshotTrips,
	)

	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.reg
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

func (c *Collector) ObserveIntern(kind string, hit bool) {
	if c == nil {
		return
	}
	if hit {
		c.InternHits.WithLabelValues(kind).Inc()
	} else {
		c.InternMisses.WithLabelValues(kind).Inc()
	}
}

func (c *Collector) ObserveTripBuilt(err error) {
	if c == nil {
		return
	}
	if err != nil {
		c.TripsRejected.Inc()
		return
	}
	c.TripsBuilt.Inc()
}

func (c *Collector) ObserveRealtime(updated, canceled, skippedStops, unknown, rejected int) {
	if c == nil {
		return
	}
	c.RealtimeTripsUpdated.Add(float64(updated))
	c.RealtimeTripsCanceled.Add(float64(canceled))
	c.RealtimeStopsSkipped.Add(float64(skippedStops))
	c.RealtimeUnknownTrips.Add(float64(unknown))
	c.RealtimeTripsRejected.Add(float64(rejected))
}

func (c *Collector) ObservePublish(numTrips int) {
	if c == nil {
		return
	}
	c.SnapshotsPublished.Inc()
	c.SnapshotTrips.Set(float64(numTrips))
}
