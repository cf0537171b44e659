package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"tidbyt.dev/triptimes"
	"tidbyt.dev/triptimes/config"
	"tidbyt.dev/triptimes/downloader"
	"tidbyt.dev/triptimes/metrics"
	"tidbyt.dev/triptimes/storage"
)

var rootCmd = &cobra.Command{
	Use:               "triptimes",
	Short:             "Trip times tool",
	Long:              "Builds, checks and updates trip times from GTFS feeds",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

var (
	configPath      string
	staticHeaders   []string
	realtimeHeaders []string
	sharedHeaders   []string

	cfg       *config.Config
	collector *metrics.Collector
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringSliceVarP(
		&staticHeaders,
		"static-header",
		"",
		[]string{},
		"GTFS Static HTTP header",
	)
	rootCmd.PersistentFlags().StringSliceVarP(
		&realtimeHeaders,
		"realtime-header",
		"",
		[]string{},
		"GTFS Realtime HTTP header",
	)
	rootCmd.PersistentFlags().StringSliceVarP(
		&sharedHeaders,
		"header",
		"",
		[]string{},
		"GTFS HTTP header (shared between static and realtime)",
	)
	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(hashCmd)
	rootCmd.AddCommand(realtimeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func InitLogging() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
}

func setup(cmd *cobra.Command, args []string) error {
	InitLogging()

	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}

	collector = metrics.NewCollector()
	if cfg.MetricsAddr != "" {
		go func() {
			log.Printf("serving metrics on %s", cfg.MetricsAddr)
			err := http.ListenAndServe(cfg.MetricsAddr, collector.Handler())
			if err != nil {
				log.Printf("metrics server: %v", err)
			}
		}()
	}

	return nil
}

func parseHeaders(headers []string) (map[string]string, error) {
	parsed := map[string]string{}
	for _, header := range headers {
		parts := strings.SplitN(header, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("'%s' is not on form <key>:<value>", header)
		}
		parsed[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return parsed, nil
}

// Headers for a request, with the shared ones mixed in.
func headersFor(specific []string) (map[string]string, error) {
	headers, err := parseHeaders(specific)
	if err != nil {
		return nil, fmt.Errorf("invalid header: %w", err)
	}

	shared, err := parseHeaders(sharedHeaders)
	if err != nil {
		return nil, fmt.Errorf("invalid header: %w", err)
	}

	for k, v := range shared {
		headers[k] = v
	}
	return headers, nil
}

func buildStorage() (storage.Storage, error) {
	switch cfg.Storage.Backend {
	case "sqlite":
		if cfg.Storage.SQLiteDir == "" {
			return storage.NewSQLiteStorage()
		}
		return storage.NewSQLiteStorage(storage.SQLiteConfig{
			OnDisk:    true,
			Directory: cfg.Storage.SQLiteDir,
		})
	case "postgres":
		return storage.NewPSQLStorage(cfg.Storage.PostgresDSN, false)
	}
	return storage.NewMemoryStorage(), nil
}

func buildManager() (*triptimes.Manager, error) {
	s, err := buildStorage()
	if err != nil {
		return nil, fmt.Errorf("creating storage: %w", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("loading timezone: %w", err)
	}

	m := triptimes.NewManager(s)
	m.Location = loc
	m.StaticTimeout = cfg.Static.Timeout
	m.StaticMaxSize = cfg.Static.MaxSize
	m.RealtimeTimeout = cfg.Realtime.Timeout
	m.RealtimeMaxSize = cfg.Realtime.MaxSize
	m.RealtimeTTL = cfg.Realtime.CacheTTL
	m.Metrics = collector
	m.Deduplicator.Metrics = collector
	m.Store.Metrics = collector

	if cfg.CacheDir != "" {
		fs, err := downloader.NewFilesystem(cfg.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("creating download cache: %w", err)
		}
		m.Downloader = fs
	}

	return m, nil
}

func isURL(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// Loads the static feed at source, a file or URL, into a new manager.
func loadStatic(ctx context.Context, source string) (*triptimes.Manager, *triptimes.Timetable, error) {
	m, err := buildManager()
	if err != nil {
		return nil, nil, err
	}

	var timetable *triptimes.Timetable
	if isURL(source) {
		headers, err := headersFor(staticHeaders)
		if err != nil {
			return nil, nil, err
		}
		timetable, err = m.LoadStaticURL(ctx, source, headers)
		if err != nil {
			return nil, nil, err
		}
	} else {
		buf, err := os.ReadFile(source)
		if err != nil {
			return nil, nil, fmt.Errorf("reading %s: %w", source, err)
		}
		timetable, err = m.LoadStatic(buf)
		if err != nil {
			return nil, nil, err
		}
	}

	for tripID, err := range m.Static().Rejected {
		log.Printf("rejected trip %s: %v", tripID, err)
	}

	return m, timetable, nil
}
