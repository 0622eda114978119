package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	return &Config{
		App: AppConfig{Name: "backtestcore", Version: "0.1.0", LogLevel: "info"},
		CandleStore: CandleStoreConfig{
			Kind: "json",
			Path: "./data/candles",
		},
		Backtest: BacktestDefaults{
			InitialBalance:   10000,
			MaxOpenPositions: 3,
			ChunkSize:        1000,
			LookbackBars:     60,
			Workers:          4,
		},
		Optimization: OptimizationConfig{
			Method:             "grid",
			Metric:             "sharpe",
			MaxCombinations:    500,
			DetectionThreshold: 0.3,
			Seed:               1,
		},
	}
}

func TestValidate_AcceptsValidConfig(t *testing.T) {
	errs := validConfig().Validate()
	assert.Empty(t, errs)
}

func TestValidate_RejectsUnknownCandleStoreKind(t *testing.T) {
	cfg := validConfig()
	cfg.CandleStore.Kind = "parquet"
	errs := cfg.Validate()
	assert.NotEmpty(t, errs)
}

func TestValidate_RejectsEmptyCandleStorePath(t *testing.T) {
	cfg := validConfig()
	cfg.CandleStore.Path = ""
	errs := cfg.Validate()
	assert.NotEmpty(t, errs)
}

func TestValidate_RejectsNonPositiveInitialBalance(t *testing.T) {
	cfg := validConfig()
	cfg.Backtest.InitialBalance = 0
	errs := cfg.Validate()
	assert.NotEmpty(t, errs)
}

func TestValidate_RejectsNonPositiveChunkSize(t *testing.T) {
	cfg := validConfig()
	cfg.Backtest.ChunkSize = 0
	errs := cfg.Validate()
	assert.NotEmpty(t, errs)
}

func TestValidate_RejectsUnknownOptimizationMethod(t *testing.T) {
	cfg := validConfig()
	cfg.Optimization.Method = "bayesian"
	errs := cfg.Validate()
	assert.NotEmpty(t, errs)
}

func TestValidate_RejectsUnknownMetric(t *testing.T) {
	cfg := validConfig()
	cfg.Optimization.Metric = "alpha"
	errs := cfg.Validate()
	assert.NotEmpty(t, errs)
}

func TestValidate_RejectsOutOfRangeDetectionThreshold(t *testing.T) {
	cfg := validConfig()
	cfg.Optimization.DetectionThreshold = 1.5
	errs := cfg.Validate()
	assert.NotEmpty(t, errs)
}

func TestValidationErrors_ErrorMessageListsEachField(t *testing.T) {
	errs := ValidationErrors{
		{Field: "a.b", Message: "bad"},
		{Field: "c.d", Message: "also bad"},
	}
	msg := errs.Error()
	assert.Contains(t, msg, "a.b")
	assert.Contains(t, msg, "c.d")
	assert.Contains(t, msg, "2 error(s)")
}
