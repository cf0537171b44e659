package downloader

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

var ErrTooLarge = errors.New("response exceeds max size")

type GetOptions struct {
	MaxSize  int
	Timeout  time.Duration
	Cache    bool
	CacheTTL time.Duration
}

// A thing capable of downloading a feed, optionally with caching
type Downloader interface {
	Get(ctx context.Context, url string, headers map[string]string, options GetOptions) ([]byte, error)
}

// Returned for non-200 responses.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.StatusCode)
}

// Gets a file. Doesn't cache. Provided as convenience for
// implementing custom Downloaders.
//
// Bodies larger than options.MaxSize (if set) fail with ErrTooLarge,
// as a truncated feed is of no use.
func HTTPGet(ctx context.Context, url string, headers map[string]string, options GetOptions) ([]byte, error) {
	client := &http.Client{
		Timeout: options.Timeout,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	for k, v := range headers {
		req.Header.Add(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	var reader io.Reader = resp.Body
	if options.MaxSize > 0 {
		reader = io.LimitReader(resp.Body, int64(options.MaxSize)+1)
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}

	if options.MaxSize > 0 && len(body) > options.MaxSize {
		return nil, fmt.Errorf("GET %s: %w (%d bytes)", url, ErrTooLarge, options.MaxSize)
	}

	return body, nil
}

// Cache key for a request. Headers are part of it, since they may
// carry credentials selecting different content.
func cacheKey(url string, headers map[string]string) string {
	return url + "|" + SerializeHeaders(headers)
}

// Same key, hashed for use as a file name.
func hashedCacheKey(url string, headers map[string]string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(cacheKey(url, headers))))
}

// Serializes headers into a stable, query string like form.
func SerializeHeaders(headers map[string]string) string {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%s", url.QueryEscape(k), url.QueryEscape(headers[k])))
	}
	return strings.Join(pairs, "&")
}
