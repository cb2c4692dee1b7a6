package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"weatherbar/internal/config"
	"weatherbar/internal/handlers"
	"weatherbar/internal/repository"
	"weatherbar/internal/services"
	"weatherbar/pkg/filestore"
	"weatherbar/pkg/logging"
	"weatherbar/pkg/metrics"
)

const version = "1.0.0"

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	os.Exit(run(os.Args[1:], cfg, afero.NewOsFs(), os.Stdout, os.Stderr))
}

// advanceRequested reports whether the first argument asks for the next city.
// Anything after it is ignored.
func advanceRequested(args []string) bool {
	return len(args) > 0 && args[0] == "next"
}

// run performs one invocation against fsys and returns the exit code. The
// status JSON goes to stdout, logs to stderr.
func run(args []string, cfg *config.Config, fsys afero.Fs, stdout, stderr io.Writer) int {
	// Initialize logger
	logger := logging.NewStructuredLogger("weatherbar", version, logging.ParseLevel(cfg.Logging.Level))
	logger.SetOutput(stderr)
	defer logger.Sync()

	advance := advanceRequested(args)

	ctx := logging.WithInvocationID(context.Background(), uuid.NewString())
	logger.Debug(ctx, "[WEATHERBAR_START] Starting", logging.Fields{
		"advance": advance,
		"cities":  len(cfg.Cities),
	})

	// Initialize metrics collector
	metricsCollector := metrics.NewCollector("weatherbar")
	runTimer := metricsCollector.NewTimer(metricsCollector.RunDuration)

	// Initialize state stores
	store := filestore.New(fsys, logger, metricsCollector)
	indexStore := repository.NewIndexStore(store, cfg.Paths.IndexFile, logger, metricsCollector)
	cache := repository.NewWeatherCache(store, cfg.Paths.CacheFile, cfg.Cache.Freshness, nil, logger, metricsCollector)
	errorLog := repository.NewErrorLog(store, cfg.Paths.ErrorLog, nil)

	// Initialize services
	fetcher := services.NewWeatherFetcher(services.FetcherConfig{
		BaseURL:  cfg.API.BaseURL,
		APIKey:   cfg.API.Key,
		Units:    cfg.API.Units,
		Language: cfg.API.Language,
		Timeout:  cfg.API.Timeout,
		Retry: services.RetryPolicy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			Delay:       cfg.Retry.Delay,
		},
	}, nil, logger, metricsCollector)

	statusService := services.NewStatusService(cfg.Cities, indexStore, cache, errorLog, fetcher, nil, logger, metricsCollector)
	handler := handlers.NewStatusHandler(statusService, handlers.NewPresenter(cfg.Display.Uppercase), logger, metricsCollector)

	exitCode := 0
	if err := handler.Handle(ctx, advance, stdout); err != nil {
		logger.Error(ctx, "[WEATHERBAR_ERROR] Could not complete run", logging.Fields{}, err)
		exitCode = 1
	}

	runTimer.ObserveDuration()
	if err := metricsCollector.WriteTextfile(cfg.Metrics.Textfile); err != nil {
		logger.Warn(ctx, "[METRICS_ERROR] Failed to write metrics textfile", logging.Fields{
			"path":  cfg.Metrics.Textfile,
			"error": err.Error(),
		})
	}

	return exitCode
}
