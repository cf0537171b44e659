package dedup

import (
	"encoding/binary"
	"math"
	"slices"
	"sync"

	"github.com/bits-and-blooms/bitset"
	"github.com/cespare/xxhash/v2"

	"tidbyt.dev/triptimes/metrics"
)

// Deduplicator canonicalizes immutable arrays, so that trips sharing
// a structure also share the memory holding it. Content equal inputs
// yield the very same slice (or BitSet) for the lifetime of the
// Deduplicator.
//
// Values passed in are copied on first sight. Returned values are
// shared and must never be modified.
//
// Safe for concurrent use. Lookup and insertion happen under a single
// lock, so concurrent callers never receive distinct instances for
// equal content.
type Deduplicator struct {
	Metrics *metrics.Collector

	mutex   sync.Mutex
	ints    map[uint64][][]int32
	floats  map[uint64][][]float64
	strings map[uint64][][]string
	bitsets map[uint64][]*bitset.BitSet
}

func New() *Deduplicator {
	return &Deduplicator{
		ints:    map[uint64][][]int32{},
		floats:  map[uint64][][]float64{},
		strings: map[uint64][][]string{},
		bitsets: map[uint64][]*bitset.BitSet{},
	}
}

// Number of canonical instances held, per kind.
type Stats struct {
	Ints    int
	Floats  int
	Strings int
	BitSets int
}

func (d *Deduplicator) Stats() Stats {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	s := Stats{}
	for _, b := range d.ints {
		s.Ints += len(b)
	}
	for _, b := range d.floats {
		s.Floats += len(b)
	}
	for _, b := range d.strings {
		s.Strings += len(b)
	}
	for _, b := range d.bitsets {
		s.BitSets += len(b)
	}
	return s
}

func (d *Deduplicator) Int32s(values []int32) []int32 {
	if values == nil {
		return nil
	}

	h := xxhash.New()
	var buf [4]byte
	for _, v := range values {
		binary.LittleEndian.PutUint32(buf[:], uint32(v))
		h.Write(buf[:])
	}

	return intern(d, d.ints, h.Sum64(), values, "int", slices.Equal[[]int32], slices.Clone[[]int32])
}

func (d *Deduplicator) Float64s(values []float64) []float64 {
	if values == nil {
		return nil
	}

	h := xxhash.New()
	var buf [8]byte
	for _, v := range values {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}

	// Compared bitwise, matching the hash: NaN equals NaN, and
	// 0.0 differs from -0.0.
	equal := func(a, b []float64) bool {
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if math.Float64bits(a[i]) != math.Float64bits(b[i]) {
				return false
			}
		}
		return true
	}

	return intern(d, d.floats, h.Sum64(), values, "float", equal, slices.Clone[[]float64])
}

func (d *Deduplicator) Strings(values []string) []string {
	if values == nil {
		return nil
	}

	h := xxhash.New()
	var buf [8]byte
	for _, v := range values {
		// Length prefix keeps ["ab", "c"] apart from ["a", "bc"]
		binary.LittleEndian.PutUint64(buf[:], uint64(len(v)))
		h.Write(buf[:])
		h.WriteString(v)
	}

	return intern(d, d.strings, h.Sum64(), values, "string", slices.Equal[[]string], slices.Clone[[]string])
}

func (d *Deduplicator) BitSet(values *bitset.BitSet) *bitset.BitSet {
	if values == nil {
		return nil
	}

	h := xxhash.New()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(values.Len()))
	h.Write(buf[:])
	for _, w := range values.Bytes() {
		binary.LittleEndian.PutUint64(buf[:], w)
		h.Write(buf[:])
	}

	equal := func(a, b *bitset.BitSet) bool {
		return a.Len() == b.Len() && a.Equal(b)
	}

	return intern(d, d.bitsets, h.Sum64(), values, "bitset", equal, (*bitset.BitSet).Clone)
}

func intern[T any](
	d *Deduplicator,
	buckets map[uint64][]T,
	key uint64,
	value T,
	kind string,
	equal func(a, b T) bool,
	clone func(T) T,
) T {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	for _, canonical := range buckets[key] {
		if equal(canonical, value) {
			d.Metrics.ObserveIntern(kind, true)
			return canonical
		}
	}

	canonical := clone(value)
	buckets[key] = append(buckets[key], canonical)
	d.Metrics.ObserveIntern(kind, false)

	return canonical
}
