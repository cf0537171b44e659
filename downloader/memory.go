package downloader

import (
	"context"
	"sync"
	"time"
)

// Caches downloaded feeds in memory, keyed by URL and headers.
type MemoryDownloader struct {
	mutex sync.Mutex
	cache map[string]downloaderCacheEntry

	TimeNow func() time.Time
	HTTPGet func(ctx context.Context, url string, headers map[string]string, options GetOptions) ([]byte, error)
}

func NewMemoryDownloader() *MemoryDownloader {
	return &MemoryDownloader{
		cache:   make(map[string]downloaderCacheEntry),
		TimeNow: time.Now,
		HTTPGet: HTTPGet,
	}
}

type downloaderCacheEntry struct {
	data       []byte
	expiration time.Time
}

func (d *MemoryDownloader) Get(
	ctx context.Context,
	url string,
	headers map[string]string,
	options GetOptions,
) ([]byte, error) {
	key := cacheKey(url, headers)

	if options.Cache {
		d.mutex.Lock()
		entry, ok := d.cache[key]
		d.mutex.Unlock()

		if ok && entry.expiration.After(d.TimeNow()) {
			return entry.data, nil
		}
	}

	// Not holding the lock while downloading. Concurrent misses
	// on the same key may both download, last one is cached.
	body, err := d.HTTPGet(ctx, url, headers, options)
	if err != nil {
		return nil, err
	}

	if options.Cache {
		d.mutex.Lock()
		d.cache[key] = downloaderCacheEntry{
			data:       body,
			expiration: d.TimeNow().Add(options.CacheTTL),
		}
		d.mutex.Unlock()
	}

	return body, nil
}

// Drops expired entries.
func (d *MemoryDownloader) Evict() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	now := d.TimeNow()
	n := 0
	for key, entry := range d.cache {
		if !entry.expiration.After(now) {
			delete(d.cache, key)
			n++
		}
	}
	return n
}
