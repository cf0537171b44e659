package downloader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Caches downloaded feeds as files in a directory, one per URL and
// header combination. The file's modification time is the time of
// retrieval. Survives restarts, which makes it handy for the CLI.
type Filesystem struct {
	Path string

	TimeNow func() time.Time
	HTTPGet func(ctx context.Context, url string, headers map[string]string, options GetOptions) ([]byte, error)

	mutex sync.Mutex
}

func NewFilesystem(path string) (*Filesystem, error) {
	err := os.MkdirAll(path, 0o755)
	if err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	return &Filesystem{
		Path:    path,
		TimeNow: time.Now,
		HTTPGet: HTTPGet,
	}, nil
}

func (f *Filesystem) filename(url string, headers map[string]string) string {
	return filepath.Join(f.Path, hashedCacheKey(url, headers)+".bin")
}

func (f *Filesystem) Get(
	ctx context.Context,
	url string,
	headers map[string]string,
	options GetOptions,
) ([]byte, error) {

	f.mutex.Lock()
	defer f.mutex.Unlock()

	filename := f.filename(url, headers)

	if options.Cache {
		info, err := os.Stat(filename)
		if err == nil && info.ModTime().Add(options.CacheTTL).After(f.TimeNow()) {
			body, err := os.ReadFile(filename)
			if err != nil {
				return nil, fmt.Errorf("reading cached %s: %w", url, err)
			}
			return body, nil
		}
	}

	body, err := f.HTTPGet(ctx, url, headers, options)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}

	if options.Cache {
		err = f.save(filename, body)
		if err != nil {
			return nil, fmt.Errorf("saving: %w", err)
		}
	}

	return body, nil
}

// Writes via a temporary file, so readers never see partial feeds.
func (f *Filesystem) save(filename string, body []byte) error {
	tmp, err := os.CreateTemp(f.Path, ".download-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	_, err = tmp.Write(body)
	if err != nil {
		tmp.Close()
		return err
	}
	err = tmp.Close()
	if err != nil {
		return err
	}

	err = os.Rename(tmp.Name(), filename)
	if err != nil {
		return err
	}

	now := f.TimeNow()
	return os.Chtimes(filename, now, now)
}
