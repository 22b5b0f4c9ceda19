package profiling_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tandem-rtc/tandem/pkg/logging"
	"github.com/tandem-rtc/tandem/pkg/profiling"
)

func TestProfilesAreWritten(t *testing.T) {
	dir := t.TempDir()
	options := profiling.Options{
		CPUProfile:    filepath.Join(dir, "cpu.prof"),
		MemoryProfile: filepath.Join(dir, "mem.prof"),
	}

	stop, err := profiling.Start(options, logging.Discard())
	require.NoError(t, err)
	stop()

	for _, path := range []string{options.CPUProfile, options.MemoryProfile} {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.NotZero(t, info.Size())
	}
}

func TestUnwritableProfile(t *testing.T) {
	_, err := profiling.Start(profiling.Options{
		CPUProfile: filepath.Join(t.TempDir(), "missing", "cpu.prof"),
	}, logging.Discard())
	assert.Error(t, err)
}
