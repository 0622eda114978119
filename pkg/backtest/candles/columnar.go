package candles

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
)

// ColumnarProvider reads OHLCV rows from a Postgres/TimescaleDB-style table
// keyed by (symbol, timeframe, timestamp), issuing one query per symbol that
// returns all timeframes (spec.md §4.1). Grounded on the teacher's internal/db.DB
// pool-construction idiom and internal/risk's circuit-breaker wrapping of
// database calls, trimmed to the one operation this package needs.
type ColumnarProvider struct {
	pool    *pgxpool.Pool
	breaker *gobreaker.CircuitBreaker
}

// NewColumnarProvider wraps an already-open pool. The caller owns the
// pool's lifecycle (construction/Close).
func NewColumnarProvider(pool *pgxpool.Pool) *ColumnarProvider {
	return &ColumnarProvider{pool: pool, breaker: newQueryBreaker()}
}

var _ Provider = (*ColumnarProvider)(nil)

func newQueryBreaker() *gobreaker.CircuitBreaker {
	initQueryBreakerMetrics()
	st := gobreaker.Settings{
		Name:        "candle_query",
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.Requests >= 5 && float64(c.TotalFailures)/float64(c.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			queryBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	}
	return gobreaker.NewCircuitBreaker(st)
}

var (
	queryBreakerState   *prometheus.GaugeVec
	queryBreakerMetrics sync.Once
)

func initQueryBreakerMetrics() {
	queryBreakerMetrics.Do(func() {
		queryBreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "backtest_candle_query_breaker_state",
			Help: "Columnar candle query circuit breaker state (0=closed, 1=half-open, 2=open).",
		}, []string{"breaker"})
		prometheus.MustRegister(queryBreakerState)
	})
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 2
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 0
	}
}

// Load implements Provider: a single SELECT over every timeframe stored for
// the symbol, post-partitioned here rather than in SQL (spec.md §4.1).
func (p *ColumnarProvider) Load(ctx context.Context, symbol string, startMs, endMs int64) (TimeframeData, error) {
	rows, err := p.queryRows(ctx, symbol, startMs, endMs)
	if err != nil {
		return TimeframeData{}, err
	}

	m1, m5, m15 := Partition(rows)
	if err := RequireNonEmpty(symbol, startMs, endMs, m1, m5, m15); err != nil {
		return TimeframeData{}, err
	}
	return TimeframeData{Symbol: symbol, M1: m1, M5: m5, M15: m15}, nil
}

// LoadWithBenchmark implements Provider.
func (p *ColumnarProvider) LoadWithBenchmark(ctx context.Context, symbol, benchmarkSymbol string, startMs, endMs int64) (TimeframeData, error) {
	td, err := p.Load(ctx, symbol, startMs, endMs)
	if err != nil {
		return TimeframeData{}, err
	}

	bRows, err := p.queryRows(ctx, benchmarkSymbol, startMs, endMs)
	if err != nil {
		return TimeframeData{}, err
	}
	_, bm5, bm15 := Partition(bRows)
	if len(bm5) == 0 || len(bm15) == 0 {
		return TimeframeData{}, &ErrInsufficientData{Symbol: benchmarkSymbol, Timeframe: Timeframe5m, StartMs: startMs, EndMs: endMs}
	}
	td.BenchmarkSymbol = benchmarkSymbol
	td.BenchmarkM5 = bm5
	td.BenchmarkM15 = bm15
	return td, nil
}

const candleUnionQuery = `
SELECT symbol, timeframe, timestamp_ms, open, high, low, close, volume
FROM candles
WHERE symbol = $1
  AND ($2 = 0 OR timestamp_ms >= $2)
  AND ($3 = 0 OR timestamp_ms <= $3)
ORDER BY timeframe, timestamp_ms
`

func (p *ColumnarProvider) queryRows(ctx context.Context, symbol string, startMs, endMs int64) ([]Row, error) {
	result, err := p.breaker.Execute(func() (interface{}, error) {
		return p.queryRowsUnguarded(ctx, symbol, startMs, endMs)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			return nil, fmt.Errorf("candle store circuit breaker open: %w", err)
		}
		return nil, err
	}
	return result.([]Row), nil
}

func (p *ColumnarProvider) queryRowsUnguarded(ctx context.Context, symbol string, startMs, endMs int64) ([]Row, error) {
	pgRows, err := p.pool.Query(ctx, candleUnionQuery, symbol, startMs, endMs)
	if err != nil {
		return nil, fmt.Errorf("querying candles for %s: %w", symbol, err)
	}
	defer pgRows.Close()

	var out []Row
	for pgRows.Next() {
		var r Row
		if err := pgRows.Scan(&r.Symbol, &r.Timeframe, &r.TimestampMs, &r.Open, &r.High, &r.Low, &r.Close, &r.Volume); err != nil {
			return nil, fmt.Errorf("scanning candle row: %w", err)
		}
		out = append(out, r)
	}
	return out, pgRows.Err()
}

// EnsureIndexes creates the (symbol, timeframe, timestamp_ms) and
// (timestamp_ms) indexes spec.md §4.1 requires the backend to maintain, if
// they are not already present. Intended for one-time administrative use
// (cmd/migrate), not the hot query path.
func EnsureIndexes(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE INDEX IF NOT EXISTS idx_candles_symbol_tf_ts ON candles (symbol, timeframe, timestamp_ms)`,
		`CREATE INDEX IF NOT EXISTS idx_candles_ts ON candles (timestamp_ms)`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("creating index: %w", err)
		}
	}
	return nil
}
