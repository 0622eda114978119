// Package strategy holds the declarative StrategyConfig document (spec.md
// §3) that drives one backtest run: indicator/analyzer wiring, entry
// threshold, risk management and filter overrides. Grounded on
// strategy.go's dual yaml/json-tagged nested-struct shape and
// internal/config/validation.go's ValidationErrors aggregation pattern.
package strategy

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cryptofunk/backtestcore/pkg/backtest"
	"github.com/cryptofunk/backtestcore/pkg/backtest/aggregator"
	"github.com/cryptofunk/backtestcore/pkg/backtest/analyzer"
	"github.com/cryptofunk/backtestcore/pkg/backtest/filter"
	"github.com/cryptofunk/backtestcore/pkg/backtest/risk"
)

// Config is the full StrategyConfig document (spec.md §3).
type Config struct {
	Metadata Metadata `yaml:"metadata" json:"metadata"`

	Analyzers []AnalyzerEntry `yaml:"analyzers" json:"analyzers"`

	EntryThreshold           float64 `yaml:"entryThreshold" json:"entryThreshold"`
	FlatMarketEntryThreshold float64 `yaml:"flatMarketEntryThreshold,omitempty" json:"flatMarketEntryThreshold,omitempty"`

	RiskManagement RiskManagement `yaml:"riskManagement" json:"riskManagement"`

	Filters FilterOverrides `yaml:"filters,omitempty" json:"filters,omitempty"`

	Aggregator AggregatorSettings `yaml:"aggregator,omitempty" json:"aggregator,omitempty"`
}

// Metadata identifies the strategy document (spec.md §3 (a)).
type Metadata struct {
	Name    string `yaml:"name" json:"name"`
	Version string `yaml:"version,omitempty" json:"version,omitempty"`
}

// AnalyzerEntry is one analyzer/config pair in the ordered list (spec.md §3
// (c)). The sum of enabled weights need not be 1 — normalization happens
// inside the aggregator.
type AnalyzerEntry struct {
	Name     analyzer.Kind `yaml:"name" json:"name"`
	Enabled  bool          `yaml:"enabled" json:"enabled"`
	Weight   float64       `yaml:"weight" json:"weight"`
	Priority int           `yaml:"priority" json:"priority"`

	Period       int     `yaml:"period,omitempty" json:"period,omitempty"`
	FastPeriod   int     `yaml:"fastPeriod,omitempty" json:"fastPeriod,omitempty"`
	SlowPeriod   int     `yaml:"slowPeriod,omitempty" json:"slowPeriod,omitempty"`
	SignalPeriod int     `yaml:"signalPeriod,omitempty" json:"signalPeriod,omitempty"`
	StdDevMult   float64 `yaml:"stdDevMult,omitempty" json:"stdDevMult,omitempty"`
}

func (e AnalyzerEntry) toAnalyzerConfig() analyzer.Config {
	return analyzer.Config{
		Kind:         e.Name,
		Enabled:      e.Enabled,
		Weight:       e.Weight,
		Priority:     e.Priority,
		Period:       e.Period,
		FastPeriod:   e.FastPeriod,
		SlowPeriod:   e.SlowPeriod,
		SignalPeriod: e.SignalPeriod,
		StdDevMult:   e.StdDevMult,
	}
}

// AnalyzerConfigs converts the document's analyzer entries into the
// analyzer package's config type.
func (c Config) AnalyzerConfigs() []analyzer.Config {
	out := make([]analyzer.Config, len(c.Analyzers))
	for i, e := range c.Analyzers {
		out[i] = e.toAnalyzerConfig()
	}
	return out
}

// RiskManagement is the stop-loss/take-profit block (spec.md §3 (d)).
type RiskManagement struct {
	StopLoss    StopLossConfig    `yaml:"stopLoss" json:"stopLoss"`
	TakeProfits []TakeProfitEntry `yaml:"takeProfits" json:"takeProfits"`

	RiskPerTradePercent float64 `yaml:"riskPerTradePercent,omitempty" json:"riskPerTradePercent,omitempty"`
	MaxExposurePercent  float64 `yaml:"maxExposurePercent,omitempty" json:"maxExposurePercent,omitempty"`
	MaxOpenPositions    int     `yaml:"maxOpenPositions,omitempty" json:"maxOpenPositions,omitempty"`

	SizingMode   string  `yaml:"sizingMode,omitempty" json:"sizingMode,omitempty"` // passed to backtest.Config; the engine does not read it
	KellyFraction float64 `yaml:"kellyFraction,omitempty" json:"kellyFraction,omitempty"`
}

type StopLossConfig struct {
	ATRMultiplier       float64 `yaml:"atrMultiplier" json:"atrMultiplier"`
	MinDistancePercent  float64 `yaml:"minDistancePercent" json:"minDistancePercent"`
}

type TakeProfitEntry struct {
	PricePercentFromEntry float64 `yaml:"pricePercentFromEntry" json:"pricePercentFromEntry"`
	SizePercentOfPosition float64 `yaml:"sizePercentOfPosition" json:"sizePercentOfPosition"`
}

func (r RiskManagement) TakeProfitConfigs() []risk.TakeProfitConfig {
	out := make([]risk.TakeProfitConfig, len(r.TakeProfits))
	for i, tp := range r.TakeProfits {
		out[i] = risk.TakeProfitConfig{
			PercentFromEntry: tp.PricePercentFromEntry,
			SizePercent:      tp.SizePercentOfPosition,
		}
	}
	return out
}

// AggregatorSettings overrides the aggregator's thresholds (spec.md §4.4).
type AggregatorSettings struct {
	ConflictThreshold  float64 `yaml:"conflictThreshold,omitempty" json:"conflictThreshold,omitempty"`
	MinSignalsForLong  int     `yaml:"minSignalsForLong,omitempty" json:"minSignalsForLong,omitempty"`
	MinSignalsForShort int     `yaml:"minSignalsForShort,omitempty" json:"minSignalsForShort,omitempty"`
	LongPenalty        float64 `yaml:"longPenalty,omitempty" json:"longPenalty,omitempty"`
	ShortPenalty       float64 `yaml:"shortPenalty,omitempty" json:"shortPenalty,omitempty"`
	MinTotalScore      float64 `yaml:"minTotalScore,omitempty" json:"minTotalScore,omitempty"`
}

// FilterOverrides is the filter-overrides block (spec.md §3 (e)): each of
// the nine filters, enabled/parameterized independently.
type FilterOverrides struct {
	FlatMarket   *filter.FlatMarketConfig   `yaml:"flatMarket,omitempty" json:"flatMarket,omitempty"`
	Funding      *filter.FundingConfig      `yaml:"funding,omitempty" json:"funding,omitempty"`
	Correlation  *filter.CorrelationConfig  `yaml:"correlation,omitempty" json:"correlation,omitempty"`
	Cooldown     *filter.CooldownConfig     `yaml:"cooldown,omitempty" json:"cooldown,omitempty"`
	TimeOfDay    *filter.TimeOfDayConfig    `yaml:"timeOfDay,omitempty" json:"timeOfDay,omitempty"`
	Volatility   *filter.VolatilityConfig   `yaml:"volatility,omitempty" json:"volatility,omitempty"`
	NeutralTrend *filter.NeutralTrendConfig `yaml:"neutralTrend,omitempty" json:"neutralTrend,omitempty"`
}

func (f FilterOverrides) ToFilterConfig() filter.Config {
	return filter.Config{
		FlatMarket:   f.FlatMarket,
		Funding:      f.Funding,
		Correlation:  f.Correlation,
		Cooldown:     f.Cooldown,
		TimeOfDay:    f.TimeOfDay,
		Volatility:   f.Volatility,
		NeutralTrend: f.NeutralTrend,
	}
}

// ToEngineConfig materializes a backtest.Config from the document, applying
// aggregator defaults (spec.md §4.4) wherever the document leaves a field at
// its zero value. Kept here rather than on backtest.Config itself so the
// engine package stays independent of the strategy-document schema.
func (c Config) ToEngineConfig() backtest.Config {
	agg := aggregator.DefaultConfig()
	if c.Aggregator.ConflictThreshold != 0 {
		agg.ConflictThreshold = c.Aggregator.ConflictThreshold
	}
	if c.Aggregator.MinSignalsForLong != 0 {
		agg.MinSignalsForLong = c.Aggregator.MinSignalsForLong
	}
	if c.Aggregator.MinSignalsForShort != 0 {
		agg.MinSignalsForShort = c.Aggregator.MinSignalsForShort
	}
	if c.Aggregator.LongPenalty != 0 {
		agg.LongPenalty = c.Aggregator.LongPenalty
	}
	if c.Aggregator.ShortPenalty != 0 {
		agg.ShortPenalty = c.Aggregator.ShortPenalty
	}
	if c.Aggregator.MinTotalScore != 0 {
		agg.MinTotalScore = c.Aggregator.MinTotalScore
	}

	maxOpen := c.RiskManagement.MaxOpenPositions
	if maxOpen <= 0 {
		maxOpen = 1
	}

	return backtest.Config{
		Analyzers:         c.AnalyzerConfigs(),
		AnalyzerFailure:   analyzer.Lenient,
		MinReadyAnalyzers: 1,

		Aggregator: agg,

		Filters: c.Filters.ToFilterConfig(),

		EntryThreshold:           c.EntryThreshold,
		FlatMarketEntryThreshold: c.FlatMarketEntryThreshold,
		MaxOpenPositions:         maxOpen,

		SLMultiplier:         c.RiskManagement.StopLoss.ATRMultiplier,
		MinSLDistancePercent: c.RiskManagement.StopLoss.MinDistancePercent,
		TakeProfits:          c.RiskManagement.TakeProfitConfigs(),
		RiskPerTradePercent:  c.RiskManagement.RiskPerTradePercent,
		MaxExposurePercent:   c.RiskManagement.MaxExposurePercent,

		SizingMode:    c.RiskManagement.SizingMode,
		KellyFraction: c.RiskManagement.KellyFraction,
	}
}

// WithOverrides returns a deep-enough copy of c with each named analyzer
// parameter or top-level float overwritten by combination, for the
// parameter optimizer (spec.md §4.10) to materialize one grid point without
// mutating the base document. Unknown combination keys are ignored.
func (c Config) WithOverrides(combination map[string]float64) Config {
	out := c
	out.Analyzers = append([]AnalyzerEntry(nil), c.Analyzers...)

	for key, value := range combination {
		switch key {
		case "entryThreshold":
			out.EntryThreshold = value
		case "flatMarketEntryThreshold":
			out.FlatMarketEntryThreshold = value
		case "riskPerTradePercent":
			out.RiskManagement.RiskPerTradePercent = value
		case "maxExposurePercent":
			out.RiskManagement.MaxExposurePercent = value
		case "stopLoss.atrMultiplier":
			out.RiskManagement.StopLoss.ATRMultiplier = value
		default:
			applyAnalyzerOverride(out.Analyzers, key, value)
		}
	}
	return out
}

// applyAnalyzerOverride accepts "<analyzerName>.<field>" keys (e.g.
// "rsi.period") and overwrites the matching entry's field in place.
func applyAnalyzerOverride(entries []AnalyzerEntry, key string, value float64) {
	parts := strings.SplitN(key, ".", 2)
	if len(parts) != 2 {
		return
	}
	name, field := parts[0], parts[1]
	for i := range entries {
		if string(entries[i].Name) != name {
			continue
		}
		switch field {
		case "weight":
			entries[i].Weight = value
		case "period":
			entries[i].Period = int(value)
		case "fastPeriod":
			entries[i].FastPeriod = int(value)
		case "slowPeriod":
			entries[i].SlowPeriod = int(value)
		case "signalPeriod":
			entries[i].SignalPeriod = int(value)
		case "stdDevMult":
			entries[i].StdDevMult = value
		}
		return
	}
}

// ValidationError and ValidationErrors mirror
// internal/config/validation.go's aggregation shape.
type ValidationError struct {
	Field   string
	Message string
}

type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("strategy config validation failed with %d error(s):\n", len(ve)))
	for i, e := range ve {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, e.Field, e.Message))
	}
	return sb.String()
}

// Parse reads a YAML strategy document, tolerant of unknown fields (no
// yaml.KnownFields(true) — strategy authors may carry forward fields a
// newer engine doesn't use yet), then validates it per spec.md §3's
// required blocks.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing strategy config: %w", err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errs
	}
	return &cfg, nil
}

// Validate rejects documents missing analyzers, riskManagement.stopLoss, or
// riskManagement.takeProfits (spec.md open requirement).
func (c Config) Validate() ValidationErrors {
	var errs ValidationErrors

	if len(c.Analyzers) == 0 {
		errs = append(errs, ValidationError{Field: "analyzers", Message: "at least one analyzer is required"})
	}
	if c.RiskManagement.StopLoss.ATRMultiplier <= 0 {
		errs = append(errs, ValidationError{Field: "riskManagement.stopLoss.atrMultiplier", Message: "must be > 0"})
	}
	if len(c.RiskManagement.TakeProfits) == 0 {
		errs = append(errs, ValidationError{Field: "riskManagement.takeProfits", Message: "at least one take-profit level is required"})
	}

	var sizePercentSum float64
	for i, tp := range c.RiskManagement.TakeProfits {
		if tp.SizePercentOfPosition <= 0 {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("riskManagement.takeProfits[%d].sizePercentOfPosition", i),
				Message: "must be > 0",
			})
		}
		sizePercentSum += tp.SizePercentOfPosition
	}
	if len(c.RiskManagement.TakeProfits) > 0 {
		const tolerance = 0.01
		if diff := sizePercentSum - 100; diff > tolerance || diff < -tolerance {
			errs = append(errs, ValidationError{
				Field:   "riskManagement.takeProfits",
				Message: fmt.Sprintf("sizePercentOfPosition must sum to 100, got %.4f", sizePercentSum),
			})
		}
	}

	return errs
}
