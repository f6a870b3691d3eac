// Package config loads flowedit settings: built-in defaults, then an
// optional YAML file, then FLOWEDIT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"flowedit/internal/layer"
	"flowedit/internal/service"
)

const EnvPrefix = "FLOWEDIT_"

type Config struct {
	DataDir     string            `yaml:"data_dir" validate:"required"`
	LogLevel    string            `yaml:"log_level" validate:"oneof=debug info warn error"`
	MetricsAddr string            `yaml:"metrics_addr"`
	Storage     StorageConfig     `yaml:"storage"`
	Style       layer.Style       `yaml:"style"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
	Import      ImportConfig      `yaml:"import"`
	Bridge      BridgeConfig      `yaml:"bridge"`
}

type StorageConfig struct {
	// Driver is sqlite, postgres, mysql or mongo.
	Driver string `yaml:"driver" validate:"oneof=sqlite postgres mysql mongo"`
	DSN    string `yaml:"dsn"`
	// Database names the MongoDB database.
	Database string `yaml:"database"`
}

type MaintenanceConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule" validate:"required_if=Enabled true"`
}

type ImportConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

type BridgeConfig struct {
	QueueSize int                   `yaml:"queue_size" validate:"gte=1"`
	OpTimeout time.Duration         `yaml:"op_timeout"`
	Breaker   service.BreakerConfig `yaml:"breaker"`
}

// Service converts to the bridge's own settings.
func (b BridgeConfig) Service() service.BridgeConfig {
	return service.BridgeConfig{QueueSize: b.QueueSize, OpTimeout: b.OpTimeout, Breaker: b.Breaker}
}

// DefaultDataDir is ~/.local/share/flowedit.
func DefaultDataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "flowedit")
}

// DefaultPath is the config file inside the default data dir.
func DefaultPath() string {
	return filepath.Join(DefaultDataDir(), "config.yaml")
}

func Default() *Config {
	def := service.DefaultBridgeConfig()
	return &Config{
		DataDir:     DefaultDataDir(),
		LogLevel:    "info",
		Storage:     StorageConfig{Driver: "sqlite", Database: "flowedit"},
		Style:       layer.DefaultStyle(),
		Maintenance: MaintenanceConfig{Enabled: true, Schedule: service.DefaultMaintenanceSchedule},
		Import:      ImportConfig{Enabled: true},
		Bridge:      BridgeConfig{QueueSize: def.QueueSize, OpTimeout: def.OpTimeout, Breaker: def.Breaker},
	}
}

// Load reads DefaultPath and the process environment.
func Load() (*Config, error) {
	return LoadFrom(DefaultPath(), os.LookupEnv)
}

// LoadFrom layers path (skipped when missing) and env over the defaults.
func LoadFrom(path string, env func(string) (string, bool)) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	if err := cfg.applyEnv(env); err != nil {
		return nil, err
	}
	cfg.fillDerived()
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Storage.Driver == "mongo" && cfg.Storage.DSN == "" {
		return nil, fmt.Errorf("invalid config: storage.dsn is required for mongo")
	}
	return cfg, nil
}

func (c *Config) fillDerived() {
	if c.Storage.DSN == "" && c.Storage.Driver == "sqlite" {
		c.Storage.DSN = filepath.Join(c.DataDir, "flowedit.db")
	}
	if c.Import.Dir == "" {
		c.Import.Dir = filepath.Join(c.DataDir, "import")
	}
	if c.Storage.Database == "" {
		c.Storage.Database = "flowedit"
	}
}

func (c *Config) applyEnv(env func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := env(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	var firstErr error
	num := func(name string, dst *float64) {
		if v, ok := env(EnvPrefix + name); ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
				return
			}
			*dst = f
		}
	}
	flag := func(name string, dst *bool) {
		if v, ok := env(EnvPrefix + name); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
				return
			}
			*dst = b
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v, ok := env(EnvPrefix + name); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
				return
			}
			*dst = d
		}
	}

	str("DATA_DIR", &c.DataDir)
	str("LOG_LEVEL", &c.LogLevel)
	str("METRICS_ADDR", &c.MetricsAddr)
	str("STORAGE_DRIVER", &c.Storage.Driver)
	str("STORAGE_DSN", &c.Storage.DSN)
	str("MONGO_DATABASE", &c.Storage.Database)
	num("SLOT_RADIUS", &c.Style.SlotRadius)
	num("FRAME_PADDING", &c.Style.FramePadding)
	str("INPUT_COLOR", &c.Style.InputColor)
	str("OUTPUT_COLOR", &c.Style.OutputColor)
	str("STRUCTURAL_COLOR", &c.Style.StructuralColor)
	flag("MAINTENANCE_ENABLED", &c.Maintenance.Enabled)
	str("MAINTENANCE_SCHEDULE", &c.Maintenance.Schedule)
	flag("IMPORT_ENABLED", &c.Import.Enabled)
	str("IMPORT_DIR", &c.Import.Dir)
	if v, ok := env(EnvPrefix + "BRIDGE_QUEUE_SIZE"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sBRIDGE_QUEUE_SIZE: %w", EnvPrefix, err)
		}
		c.Bridge.QueueSize = n
	}
	dur("BRIDGE_OP_TIMEOUT", &c.Bridge.OpTimeout)
	dur("BREAKER_TIMEOUT", &c.Bridge.Breaker.Timeout)
	num("BREAKER_FAILURE_THRESHOLD", &c.Bridge.Breaker.FailureThreshold)
	return firstErr
}

// Logger builds a production zap logger at the configured level.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.Encoding = "console"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zc.Build()
}
