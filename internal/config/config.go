// Package config loads sky-server and skysim settings with viper: defaults,
// then an optional YAML/JSON file, then SKY_* environment variables.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/signalsfoundry/thyrannic-sky/calendar"
	"github.com/signalsfoundry/thyrannic-sky/core"
	"github.com/signalsfoundry/thyrannic-sky/internal/logging"
	"github.com/signalsfoundry/thyrannic-sky/internal/observability"
	"github.com/signalsfoundry/thyrannic-sky/timectrl"
)

// EnvPrefix prefixes every environment override, e.g. SKY_CLOCK_STEP.
const EnvPrefix = "SKY"

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Log       LogConfig                   `mapstructure:"log"`
	Clock     ClockConfig                 `mapstructure:"clock"`
	Server    ServerConfig                `mapstructure:"server"`
	Ephemeris EphemerisConfig             `mapstructure:"ephemeris"`
	Tracing   observability.TracingConfig `mapstructure:"tracing"`
	Sky       core.Scenario               `mapstructure:"sky"`
}

type LogConfig struct {
	Level     string `mapstructure:"level"`
	Format    string `mapstructure:"format"`
	AddSource bool   `mapstructure:"add_source"`
}

// ClockConfig positions and paces the time controller. Start is a time
// value in hours since the epoch; each tick adds Step units.
type ClockConfig struct {
	Start    float64       `mapstructure:"start"`
	Step     float64       `mapstructure:"step"`
	Unit     string        `mapstructure:"unit"`
	Interval time.Duration `mapstructure:"interval"`
	Mode     string        `mapstructure:"mode"`
	Steps    int           `mapstructure:"steps"`
}

type ServerConfig struct {
	GRPCAddr  string  `mapstructure:"grpc_addr"`
	HTTPAddr  string  `mapstructure:"http_addr"`
	FeedRate  float64 `mapstructure:"feed_rate"`  // client messages per second
	FeedBurst int     `mapstructure:"feed_burst"` // messages allowed in a burst
}

type EphemerisConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.add_source", false)

	v.SetDefault("clock.start", 0.0)
	v.SetDefault("clock.step", 1.0)
	v.SetDefault("clock.unit", "hour")
	v.SetDefault("clock.interval", time.Second)
	v.SetDefault("clock.mode", "realtime")
	v.SetDefault("clock.steps", 0)

	v.SetDefault("server.grpc_addr", ":50061")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.feed_rate", 5.0)
	v.SetDefault("server.feed_burst", 10)

	v.SetDefault("ephemeris.enabled", false)
	v.SetDefault("ephemeris.path", "sky-ephemeris.db")

	tr := observability.DefaultTracingConfig()
	v.SetDefault("tracing.enabled", tr.Enabled)
	v.SetDefault("tracing.service_name", tr.ServiceName)
	v.SetDefault("tracing.exporter", tr.Exporter)
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.sample_ratio", tr.SampleRatio)
}

// Load reads the configuration. path may be empty, in which case SKY_CONFIG
// is consulted; with neither, defaults and environment apply alone. A config
// without bodies gets core.DefaultScenario().
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if len(cfg.Sky.Bodies) == 0 {
		cfg.Sky = core.DefaultScenario()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the fields that cannot be checked by decoding alone. The
// sky itself is validated when it is built into a registry.
func (c *Config) Validate() error {
	if _, err := c.Clock.Timestep(); err != nil {
		return err
	}
	if _, ok := timectrl.ParseMode(c.Clock.Mode); !ok {
		return fmt.Errorf("%w: clock.mode %q", ErrInvalidConfig, c.Clock.Mode)
	}
	if math.IsNaN(c.Clock.Start) || math.IsInf(c.Clock.Start, 0) {
		return fmt.Errorf("%w: clock.start must be finite", ErrInvalidConfig)
	}
	if c.Clock.Interval < 0 {
		return fmt.Errorf("%w: clock.interval must not be negative", ErrInvalidConfig)
	}
	if c.Server.FeedRate <= 0 || c.Server.FeedBurst <= 0 {
		return fmt.Errorf("%w: server feed rate and burst must be positive", ErrInvalidConfig)
	}
	if c.Ephemeris.Enabled && c.Ephemeris.Path == "" {
		return fmt.Errorf("%w: ephemeris.path is required when enabled", ErrInvalidConfig)
	}
	return nil
}

// Timestep resolves the configured step.
func (c ClockConfig) Timestep() (timectrl.Step, error) {
	unit, err := calendar.ParseUnit(c.Unit)
	if err != nil {
		return timectrl.Step{}, fmt.Errorf("%w: clock.unit: %w", ErrInvalidConfig, err)
	}
	if c.Step == 0 || math.IsNaN(c.Step) || math.IsInf(c.Step, 0) {
		return timectrl.Step{}, fmt.Errorf("%w: clock.step must be finite and non-zero", ErrInvalidConfig)
	}
	return timectrl.Step{Quantity: c.Step, Unit: unit}, nil
}

// Controller builds the time controller described by c.
func (c ClockConfig) Controller() (*timectrl.TimeController, error) {
	step, err := c.Timestep()
	if err != nil {
		return nil, err
	}
	mode, ok := timectrl.ParseMode(c.Mode)
	if !ok {
		return nil, fmt.Errorf("%w: clock.mode %q", ErrInvalidConfig, c.Mode)
	}
	return timectrl.NewTimeController(calendar.FromHours(c.Start), step, c.Interval, mode), nil
}

// Logger builds the configured logger.
func (c LogConfig) Logger() logging.Logger {
	return logging.New(logging.Config{
		Level:     c.Level,
		Format:    c.Format,
		AddSource: c.AddSource,
	})
}
