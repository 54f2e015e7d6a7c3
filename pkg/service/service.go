// Package service carries the boot and shutdown plumbing shared by every
// platform binary: flag parsing, config loading, logger setup, and a
// graceful HTTP server lifecycle tied to the signal context.
package service

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/corpuslab/corpus-analytics-platform/pkg/config"
	"github.com/corpuslab/corpus-analytics-platform/pkg/logger"
)

// Boot parses the -config flag, loads configuration, and configures the
// process-wide logger. A bad or missing config file is fatal.
func Boot() *config.Config {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	return cfg
}

// Serve runs srv until ctx is cancelled, then drains in-flight requests
// within timeout and runs the stop hooks with the same deadline. It does
// not return until draining and the hooks have finished, so callers can
// exit as soon as it comes back.
func Serve(ctx context.Context, srv *http.Server, timeout time.Duration, stops ...func(context.Context) error) error {
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		<-ctx.Done()
		slog.Info("shutdown signal received")
		sctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		for _, stop := range stops {
			if err := stop(sctx); err != nil {
				slog.Error("shutdown hook error", "error", err)
			}
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-drained
	return nil
}
