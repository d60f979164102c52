// Package config loads the audiotap configuration through viper.
package config

import (
	"log/slog"
	"time"

	"github.com/spf13/viper"
)

func setViperDefaults() {
	viper.SetDefault("loglevel", "info")
	viper.SetDefault("logfile", "")
	viper.SetDefault("clientname", "audiotap")
	viper.SetDefault("backend", "portaudio")
	viper.SetDefault("caching", 300*time.Millisecond)
	viper.SetDefault("wavfile", "")
	viper.SetDefault("listenaddr", "")
	viper.SetDefault("blockpooldepth", 32)
	viper.SetDefault("channeldepth", 64)
}

// LoadConfig reads the config file at configFilePath into viper, applying
// defaults first. A missing config file is not an error; every setting
// has a usable default.
func LoadConfig(configFilePath string) {
	setViperDefaults()

	viper.SetConfigFile(configFilePath)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			slog.Info("no config file found", "configFilePath", configFilePath)
		} else {
			slog.Warn("could not read config file, using defaults", "configFilePath", configFilePath, "err", err)
		}
	}
}
