// Package aggregator implements the weighted-vote signal aggregation with
// conflict detection and blind-zone penalty (spec.md §4.4). Grounded on the
// bucket-scoring shape of internal/orchestrator/consensus.go's weighted vote
// across agent opinions, adapted from agent consensus to analyzer consensus.
package aggregator

import (
	"github.com/cryptofunk/backtestcore/pkg/backtest/analyzer"
)

// Config holds the aggregator's thresholds, all with spec.md §4.4 defaults.
type Config struct {
	ConflictThreshold  float64 // default 0.4
	MinSignalsForLong  int     // default 3
	MinSignalsForShort int     // default 3
	LongPenalty        float64 // default 0.85
	ShortPenalty       float64 // default 0.90
	MinTotalScore      float64
	MinConfidence      float64
}

// DefaultConfig returns spec.md §4.4's stated defaults.
func DefaultConfig() Config {
	return Config{
		ConflictThreshold:  0.4,
		MinSignalsForLong:  3,
		MinSignalsForShort: 3,
		LongPenalty:        0.85,
		ShortPenalty:       0.90,
	}
}

// Result is the aggregator's output for one bar.
type Result struct {
	Direction        analyzer.Direction // Long, Short, or Hold for "no direction"
	TotalScore       float64
	Confidence       float64
	Conflicted       bool
	ContributingLong  int
	ContributingShort int
	RecommendedEntry bool
}

// Aggregate runs the weighted-vote algorithm over signals exactly per
// spec.md §4.4, steps 1-7.
func Aggregate(signals []analyzer.Signal, cfg Config) Result {
	var bucketLong, bucketShort, weightSum float64
	var countLong, countShort int

	for _, s := range signals {
		if s.Direction == analyzer.Hold {
			continue
		}
		contribution := s.Weight * (s.Confidence / 100)
		switch s.Direction {
		case analyzer.Long:
			bucketLong += contribution
			weightSum += s.Weight
			countLong++
		case analyzer.Short:
			bucketShort += contribution
			weightSum += s.Weight
			countShort++
		}
	}

	if bucketLong == bucketShort {
		return Result{Direction: analyzer.Hold}
	}

	var winner, loser float64
	var dir analyzer.Direction
	var winningCount int
	if bucketLong > bucketShort {
		winner, loser, dir, winningCount = bucketLong, bucketShort, analyzer.Long, countLong
	} else {
		winner, loser, dir, winningCount = bucketShort, bucketLong, analyzer.Short, countShort
	}

	totalScore := (winner - loser) / (winner + loser)

	minorityRatio := loser / (winner + loser)
	conflicted := minorityRatio >= cfg.ConflictThreshold

	confidence := 100 * winner / weightSum
	if conflicted {
		confidence *= (1 - minorityRatio)
	}
	switch dir {
	case analyzer.Long:
		if winningCount < cfg.MinSignalsForLong {
			confidence *= cfg.LongPenalty
		}
	case analyzer.Short:
		if winningCount < cfg.MinSignalsForShort {
			confidence *= cfg.ShortPenalty
		}
	}
	if confidence > 100 {
		confidence = 100
	}

	return Result{
		Direction:         dir,
		TotalScore:        totalScore,
		Confidence:        confidence,
		Conflicted:        conflicted,
		ContributingLong:  countLong,
		ContributingShort: countShort,
		RecommendedEntry:  totalScore >= cfg.MinTotalScore && confidence >= cfg.MinConfidence,
	}
}
