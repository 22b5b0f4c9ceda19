/*
Copyright 2022 The Matrix.org Foundation C.I.C.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tandem-rtc/tandem/pkg/config"
	"github.com/tandem-rtc/tandem/pkg/logging"
	"github.com/tandem-rtc/tandem/pkg/profiling"
	"github.com/tandem-rtc/tandem/pkg/relay"
	"github.com/tandem-rtc/tandem/pkg/telemetry"
)

const shutdownTimeout = 5 * time.Second

func main() {
	// Parse command line flags.
	var (
		configFilePath = flag.String("config", "config.yaml", "configuration file path")
		listen         = flag.String("listen", "", "address to listen on, overrides the config")
		cpuProfile     = flag.String("cpuProfile", "", "write CPU profile to `file`")
		memProfile     = flag.String("memProfile", "", "write memory profile to `file`")
	)
	flag.Parse()

	// Initialize logging subsystem (formatting, global logging framework etc).
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, ForceColors: true})
	logger := logrus.WithField("service", "relay")

	// Load the config file from the environment variable or path.
	// A missing config file is fine, the relay runs with the defaults then.
	cfg, err := config.LoadConfig(*configFilePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.WithField("path", *configFilePath).Info("no config file, using defaults")
		defaults := config.DefaultConfig()
		cfg = &defaults
	case err != nil:
		logger.WithError(err).Fatal("could not load config")
	}

	if *listen != "" {
		cfg.Relay.ListenAddress = *listen
	}

	if err := logging.Setup(cfg.Log); err != nil {
		logger.WithError(err).Fatal("could not set up logging")
	}

	// Functions that are called before exiting, e.g. to stop the profiler if it's enabled.
	stopProfiling, err := profiling.Start(profiling.Options{CPUProfile: *cpuProfile, MemoryProfile: *memProfile}, logger)
	if err != nil {
		logger.WithError(err).Fatal("could not start profiling")
	}
	defer stopProfiling()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracerProvider, err := telemetry.SetupTelemetry(ctx, cfg.Telemetry)
	switch {
	case errors.Is(err, telemetry.ErrNoExporter):
		logger.Debug("telemetry is disabled")
	case err != nil:
		logger.WithError(err).Fatal("could not set up telemetry")
	default:
		defer func() {
			if err := tracerProvider.Shutdown(context.Background()); err != nil {
				logger.WithError(err).Error("could not flush the traces")
			}
		}()
	}

	if err := cfg.Relay.Validate(); err != nil {
		logger.WithError(err).Fatal("invalid relay config")
	}

	server := &http.Server{
		Addr:              cfg.Relay.ListenAddress,
		Handler:           relay.NewServer(cfg.Relay, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("failed to shut down gracefully")
		}
	}()

	logger.WithField("address", server.Addr).Info("relay is listening")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Error("relay failed")
	}
}
