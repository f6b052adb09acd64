package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const (
	envPrefix             = "SPROXYD"
	defaultFileWriteDelay = 150 * time.Millisecond
)

var (
	lastReload  time.Time
	reloadMutex sync.Mutex
)

// Load reads Options from ./config.yaml (or $SPROXYD_CONFIG_FILE),
// overlaid by SPROXYD_* environment variables, and validates the result.
// onConfigChange, if non-nil, is invoked (debounced) whenever the backing
// file changes on disk.
func Load(onConfigChange func()) (Options, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("path", "")
	v.SetDefault("immutable", false)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Options{}, fmt.Errorf("config: error reading config file: %w", err)
		}
		if configFile := os.Getenv(envPrefix + "_CONFIG_FILE"); configFile != "" {
			v.SetConfigFile(configFile)
			if err := v.ReadInConfig(); err != nil {
				return Options{}, fmt.Errorf("config: error reading config file %s: %w", configFile, err)
			}
		}
	}

	opts := Options{
		Bootstrap: v.GetStringSlice("bootstrap"),
		Path:      v.GetString("path"),
		Immutable: v.GetBool("immutable"),
	}
	if v.IsSet("chord_cos") {
		chordCos := v.GetInt("chord_cos")
		if chordCos < 0 || chordCos > 255 {
			return Options{}, fmt.Errorf("config: chord_cos must be between 0 and 255, got %d", chordCos)
		}
		cos := byte(chordCos)
		opts.ChordCos = &cos
	}

	if err := opts.Validate(); err != nil {
		return Options{}, err
	}

	if onConfigChange != nil {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			reloadMutex.Lock()
			defer reloadMutex.Unlock()

			now := time.Now()
			if now.Sub(lastReload) < 500*time.Millisecond {
				return
			}
			lastReload = now

			time.Sleep(defaultFileWriteDelay)
			onConfigChange()
		})
	}

	return opts, nil
}
