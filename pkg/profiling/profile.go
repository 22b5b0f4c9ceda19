package profiling

import (
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/sirupsen/logrus"
)

// Profiles requested on the command line. Empty paths disable the profile.
type Options struct {
	CPUProfile    string
	MemoryProfile string
}

// Starts the requested profiles and returns a function that stops them and writes
// them out. Must be called before exiting.
func Start(options Options, logger *logrus.Entry) (func(), error) {
	stops := []func(){}

	if options.CPUProfile != "" {
		stop, err := startCPUProfiling(options.CPUProfile, logger)
		if err != nil {
			return nil, err
		}
		stops = append(stops, stop)
	}

	if options.MemoryProfile != "" {
		stops = append(stops, memoryProfiling(options.MemoryProfile, logger))
	}

	return func() {
		for _, stop := range stops {
			stop()
		}
	}, nil
}

func startCPUProfiling(path string, logger *logrus.Entry) (func(), error) {
	logger.WithField("path", path).Info("initializing CPU profiling")

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("could not create CPU profile: %w", err)
	}

	if err := pprof.StartCPUProfile(file); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("could not start CPU profile: %w", err)
	}

	return func() {
		pprof.StopCPUProfile()

		if err := file.Close(); err != nil {
			logger.WithError(err).Error("could not close CPU profile")
		}
	}, nil
}

// The heap profile is written when profiling stops.
func memoryProfiling(path string, logger *logrus.Entry) func() {
	logger.WithField("path", path).Info("initializing memory profiling")

	return func() {
		file, err := os.Create(path)
		if err != nil {
			logger.WithError(err).Error("could not create memory profile")
			return
		}
		defer file.Close()

		runtime.GC()

		if err := pprof.WriteHeapProfile(file); err != nil {
			logger.WithError(err).Error("could not write memory profile")
		}
	}
}
