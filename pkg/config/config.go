// Package config loads client settings from flags, environment and an
// optional memprof.yaml, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/evanschultz/memprof-client/pkg/callstack"
	"github.com/evanschultz/memprof-client/pkg/protocol"
)

// EnvPrefix prefixes every environment override, e.g. MEMPROF_SORT_KEY.
const EnvPrefix = "MEMPROF"

// Keys. The matching flag name replaces "." with "-", see FlagName.
const (
	KeyAddr        = "addr"
	KeyInterval    = "interval"
	KeySortKey     = "sort.key"
	KeySortOrder   = "sort.order"
	KeyLogLevel    = "log.level"
	KeyLogFormat   = "log.format"
	KeyLogFile     = "log.file"
	KeyMetricsAddr = "metrics.addr"
)

// Config is the resolved client configuration.
type Config struct {
	Addr     string
	Interval time.Duration
	Sort     callstack.Comparator
	Log      LogConfig
	Metrics  MetricsConfig
}

// LogConfig selects the zap setup.
type LogConfig struct {
	Level  string
	Format string
	File   string
}

// MetricsConfig controls the Prometheus endpoint. Empty Addr disables it.
type MetricsConfig struct {
	Addr string
}

// New returns a viper instance with defaults, env binding and the config
// file search path set up.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyAddr, protocol.DefaultAddr)
	v.SetDefault(KeyInterval, 500*time.Millisecond)
	v.SetDefault(KeySortKey, "total-bytes")
	v.SetDefault(KeySortOrder, "descending")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "console")
	v.SetDefault(KeyLogFile, "")
	v.SetDefault(KeyMetricsAddr, "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("memprof")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "memprof"))
	}
	return v
}

var keys = []string{KeyAddr, KeyInterval, KeySortKey, KeySortOrder, KeyLogLevel, KeyLogFormat, KeyLogFile, KeyMetricsAddr}

// FlagName returns the command line flag for key, e.g. "sort-key".
func FlagName(key string) string {
	return strings.ReplaceAll(key, ".", "-")
}

// BindFlags binds every flag in fs that corresponds to a config key.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for _, key := range keys {
		f := fs.Lookup(FlagName(key))
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", key, err)
		}
	}
	return nil
}

// ReadFile reads the config file if one is found. A missing file is not an
// error. An explicit path overrides the search path.
func ReadFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Load resolves and validates the configuration.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Addr:     strings.TrimSpace(v.GetString(KeyAddr)),
		Interval: v.GetDuration(KeyInterval),
		Log: LogConfig{
			Level:  v.GetString(KeyLogLevel),
			Format: v.GetString(KeyLogFormat),
			File:   v.GetString(KeyLogFile),
		},
		Metrics: MetricsConfig{Addr: v.GetString(KeyMetricsAddr)},
	}

	if _, _, err := protocol.ParseAddr(cfg.Addr); err != nil {
		return Config{}, err
	}
	if cfg.Interval <= 0 {
		return Config{}, fmt.Errorf("interval must be positive, got %s", v.GetString(KeyInterval))
	}

	key, err := callstack.ParseSortKey(v.GetString(KeySortKey))
	if err != nil {
		return Config{}, err
	}
	order, err := callstack.ParseSortOrder(v.GetString(KeySortOrder))
	if err != nil {
		return Config{}, err
	}
	cfg.Sort = callstack.Comparator{Key: key, Order: order}

	switch cfg.Log.Format {
	case "console", "json":
	default:
		return Config{}, fmt.Errorf("unknown log format %q", cfg.Log.Format)
	}
	return cfg, nil
}
