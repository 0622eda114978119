package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Config holds backtestcore's process-level configuration: how to reach the
// candle store, and the ambient defaults a CLI run falls back to when a flag
// is not given. Trimmed from the teacher's multi-service Config down to the
// concerns the backtest CLI actually has (spec.md §6).
type Config struct {
	App          AppConfig          `mapstructure:"app"`
	CandleStore  CandleStoreConfig  `mapstructure:"candle_store"`
	Backtest     BacktestDefaults   `mapstructure:"backtest"`
	Optimization OptimizationConfig `mapstructure:"optimization"`
	Monitoring   MonitoringConfig   `mapstructure:"monitoring"`
}

// AppConfig contains application-level settings.
type AppConfig struct {
	Name     string `mapstructure:"name"`
	Version  string `mapstructure:"version"`
	LogLevel string `mapstructure:"log_level"`
}

// CandleStoreConfig selects and parameterizes the candle data provider
// (spec.md §4.1). Kind is "json" (flat files under Path) or "columnar"
// (Postgres/TimescaleDB DSN in Path).
type CandleStoreConfig struct {
	Kind string `mapstructure:"kind"`
	Path string `mapstructure:"path"`
}

// BacktestDefaults are the fallback values for run-subcommand flags that the
// caller did not supply on the command line (spec.md §6).
type BacktestDefaults struct {
	InitialBalance   float64 `mapstructure:"initial_balance"`
	MaxOpenPositions int     `mapstructure:"max_open_positions"`
	ChunkSize        int     `mapstructure:"chunk_size"`
	LookbackBars     int     `mapstructure:"lookback_bars"`
	Workers          int     `mapstructure:"workers"`
}

// OptimizationConfig are the fallback values for the optimize/walk-forward
// subcommands (spec.md §4.10, §4.11).
type OptimizationConfig struct {
	Method             string  `mapstructure:"method"` // "grid" or "random"
	Metric             string  `mapstructure:"metric"` // "sharpe", "profitFactor", "winRate"
	MaxCombinations    int     `mapstructure:"max_combinations"`
	DetectionThreshold float64 `mapstructure:"detection_threshold"`
	Seed               int64   `mapstructure:"seed"`
}

// MonitoringConfig contains Prometheus exposition settings.
type MonitoringConfig struct {
	PrometheusPort int  `mapstructure:"prometheus_port"`
	EnableMetrics  bool `mapstructure:"enable_metrics"`
}

// candleStorePathEnvVar is the one environment override spec.md §6 names.
const candleStorePathEnvVar = "CANDLE_STORE_PATH"

// Load loads configuration from defaults, an optional file, and environment
// variables, in that increasing order of precedence; CANDLE_STORE_PATH, when
// set, overrides candle_store.path last (spec.md's ambient config layer,
// grounded on the teacher's viper+mapstructure Load/setDefaults idiom).
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("backtestcore")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("BACKTESTCORE")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if override := os.Getenv(candleStorePathEnvVar); override != "" {
		cfg.CandleStore.Path = override
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errs
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "backtestcore")
	v.SetDefault("app.version", "0.1.0")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("candle_store.kind", "json")
	v.SetDefault("candle_store.path", "./data/candles")

	v.SetDefault("backtest.initial_balance", 10000.0)
	v.SetDefault("backtest.max_open_positions", 3)
	v.SetDefault("backtest.chunk_size", 1000)
	v.SetDefault("backtest.lookback_bars", 60)
	v.SetDefault("backtest.workers", 0) // validated only; cmd/backtest takes its -workers flag (0 = chunk.WorkerCount)

	v.SetDefault("optimization.method", "grid")
	v.SetDefault("optimization.metric", "sharpe")
	v.SetDefault("optimization.max_combinations", 500)
	v.SetDefault("optimization.detection_threshold", 0.3)
	v.SetDefault("optimization.seed", 1)

	v.SetDefault("monitoring.prometheus_port", 9100)
	v.SetDefault("monitoring.enable_metrics", true)
}
