package candles

import "fmt"

// ErrInsufficientData is returned when any of the three timeframes is empty
// for the requested range (spec.md §4.1, §7).
type ErrInsufficientData struct {
	Symbol    string
	Timeframe Timeframe
	StartMs   int64
	EndMs     int64
}

func (e *ErrInsufficientData) Error() string {
	return fmt.Sprintf("insufficient data: %s/%s has no candles in [%d,%d]",
		e.Symbol, e.Timeframe, e.StartMs, e.EndMs)
}

// ErrMissingIndex describes a backend that lacks the composite indexes on
// (symbol, timeframe, timestamp) and (timestamp). No provider in this package
// checks for those indexes or returns this error: ColumnarProvider queries
// without inspecting the catalog. The providers never create indexes either;
// EnsureIndexes does, from the separate administrative step (cmd/migrate).
type ErrMissingIndex struct {
	Backend string
	Detail  string
}

func (e *ErrMissingIndex) Error() string {
	return fmt.Sprintf("missing required index on %s backend: %s", e.Backend, e.Detail)
}
