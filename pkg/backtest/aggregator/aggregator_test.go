package aggregator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cryptofunk/backtestcore/pkg/backtest/analyzer"
)

func sig(dir analyzer.Direction, confidence, weight float64) analyzer.Signal {
	return analyzer.Signal{Direction: dir, Confidence: confidence, Weight: weight}
}

func TestAggregate_DropsHold(t *testing.T) {
	signals := []analyzer.Signal{
		sig(analyzer.Hold, 90, 1),
		sig(analyzer.Long, 80, 1),
		sig(analyzer.Long, 80, 1),
		sig(analyzer.Long, 80, 1),
	}
	result := Aggregate(signals, DefaultConfig())
	assert.Equal(t, analyzer.Long, result.Direction)
}

func TestAggregate_TieIsNoDirection(t *testing.T) {
	signals := []analyzer.Signal{
		sig(analyzer.Long, 50, 1),
		sig(analyzer.Short, 50, 1),
	}
	result := Aggregate(signals, DefaultConfig())
	assert.Equal(t, analyzer.Hold, result.Direction)
	assert.False(t, result.RecommendedEntry)
}

func TestAggregate_ConflictDetection(t *testing.T) {
	signals := []analyzer.Signal{
		sig(analyzer.Long, 100, 1),
		sig(analyzer.Long, 100, 1),
		sig(analyzer.Long, 100, 1),
		sig(analyzer.Short, 100, 1), // minority_ratio = 1/4 = 0.25, below 0.4 default
	}
	result := Aggregate(signals, DefaultConfig())
	assert.False(t, result.Conflicted)

	conflictedSignals := []analyzer.Signal{
		sig(analyzer.Long, 100, 1),
		sig(analyzer.Short, 80, 1), // minority_ratio = 80/180 ≈ 0.44, above 0.4 default
	}
	result2 := Aggregate(conflictedSignals, DefaultConfig())
	assert.True(t, result2.Conflicted)
	assert.Equal(t, analyzer.Long, result2.Direction)
}

func TestAggregate_BlindZonePenalty(t *testing.T) {
	// Only 2 contributing LONG signals, below the default minSignalsForLong=3.
	signals := []analyzer.Signal{
		sig(analyzer.Long, 100, 1),
		sig(analyzer.Long, 100, 1),
	}
	cfg := DefaultConfig()
	result := Aggregate(signals, cfg)
	assert.Equal(t, analyzer.Long, result.Direction)
	assert.InDelta(t, 100*cfg.LongPenalty, result.Confidence, 0.01)
}

func TestAggregate_RecommendedEntryGate(t *testing.T) {
	signals := []analyzer.Signal{
		sig(analyzer.Long, 100, 1),
		sig(analyzer.Long, 100, 1),
		sig(analyzer.Long, 100, 1),
	}
	cfg := DefaultConfig()
	cfg.MinTotalScore = 1.0 // unanimous required
	cfg.MinConfidence = 50

	result := Aggregate(signals, cfg)
	assert.True(t, result.RecommendedEntry)

	cfg.MinTotalScore = 2.0 // impossible to reach
	result2 := Aggregate(signals, cfg)
	assert.False(t, result2.RecommendedEntry)
}
