package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileKeepsDefaults(t *testing.T) {
	viper.Reset()
	LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))

	assert.Equal(t, "info", viper.GetString("loglevel"))
	assert.Equal(t, "portaudio", viper.GetString("backend"))
	assert.Equal(t, "audiotap", viper.GetString("clientname"))
	assert.Equal(t, 300*time.Millisecond, viper.GetDuration("caching"))
	assert.Equal(t, 32, viper.GetInt("blockpooldepth"))
	assert.Equal(t, 64, viper.GetInt("channeldepth"))
}

func TestLoadConfigFileOverridesDefaults(t *testing.T) {
	viper.Reset()
	path := filepath.Join(t.TempDir(), "config.yaml")
	contents := "backend: synth\ncaching: 150ms\nlistenaddr: \":8090\"\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	LoadConfig(path)

	assert.Equal(t, "synth", viper.GetString("backend"))
	assert.Equal(t, 150*time.Millisecond, viper.GetDuration("caching"))
	assert.Equal(t, ":8090", viper.GetString("listenaddr"))
	// Untouched keys keep their defaults.
	assert.Equal(t, "info", viper.GetString("loglevel"))
}
