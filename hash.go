package triptimes

import (
	"encoding/binary"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// Hashes the scheduled hops of the trip: departure from each stop and
// arrival at the next. Arrival at the first stop and departure from
// the last are left out. Times are taken relative to the first
// departure, so trips following the same pattern at different times of
// day hash the same.
func (tt *TripTimes) PatternHash() uint64 {
	h := xxhash.New()
	buf := make([]byte, 8)
	origin := tt.sched.departures[0]
	for hop := 0; hop < tt.NumStops()-1; hop++ {
		binary.LittleEndian.PutUint32(buf[0:4], uint32(tt.sched.departures[hop]-origin))
		binary.LittleEndian.PutUint32(buf[4:8], uint32(tt.sched.arrivals[hop+1]-origin))
		h.Write(buf)
	}
	return h.Sum64()
}

// Orders trips by departure from the first stop. Negative if a
// departs before b, positive if after.
func Compare(a, b *TripTimes) int {
	return a.Departure(0) - b.Departure(0)
}

// Sorts trips by departure from the first stop. Ties keep their
// relative order.
func SortByDeparture(trips []*TripTimes) {
	sort.SliceStable(trips, func(i, j int) bool {
		return Compare(trips[i], trips[j]) < 0
	})
}
