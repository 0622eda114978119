// Command migrate provisions the columnar candle store and run-history
// tables: `candles` (spec.md §6's logical schema) and `backtest_runs`
// (internal/backtest.Store), then ensures the indexes spec.md §6 requires
// the backend to expose. It never runs on the hot query path — the
// provider itself assumes these already exist (candles/errors.go's
// ErrMissingIndex).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cryptofunk/backtestcore/pkg/backtest/candles"
)

const createCandlesTable = `
CREATE TABLE IF NOT EXISTS candles (
	symbol       TEXT    NOT NULL,
	timeframe    TEXT    NOT NULL,
	timestamp_ms BIGINT  NOT NULL,
	open         DOUBLE PRECISION NOT NULL,
	high         DOUBLE PRECISION NOT NULL,
	low          DOUBLE PRECISION NOT NULL,
	close        DOUBLE PRECISION NOT NULL,
	volume       DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (symbol, timeframe, timestamp_ms)
)
`

const createRunsTable = `
CREATE TABLE IF NOT EXISTS backtest_runs (
	id                 UUID PRIMARY KEY,
	kind               TEXT NOT NULL,
	status             TEXT NOT NULL,
	symbol             TEXT NOT NULL,
	strategy           TEXT NOT NULL,
	run_result         JSONB,
	optimize_result    JSONB,
	walkforward_result JSONB,
	error_message      TEXT,
	created_at         TIMESTAMPTZ NOT NULL,
	started_at         TIMESTAMPTZ,
	completed_at       TIMESTAMPTZ,
	updated_at         TIMESTAMPTZ NOT NULL
)
`

const createRunsKindIndex = `CREATE INDEX IF NOT EXISTS idx_backtest_runs_kind_created ON backtest_runs (kind, created_at DESC)`

func main() {
	dsn := flag.String("dsn", os.Getenv("CANDLE_STORE_PATH"), "columnar candle store DSN")
	flag.Parse()

	if *dsn == "" {
		fmt.Fprintln(os.Stderr, "migrate: -dsn or CANDLE_STORE_PATH must be set")
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, *dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "migrate: connecting: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: pinging: %v\n", err)
		os.Exit(1)
	}

	statements := []string{createCandlesTable, createRunsTable, createRunsKindIndex}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			fmt.Fprintf(os.Stderr, "migrate: executing statement: %v\n", err)
			os.Exit(1)
		}
	}

	if err := candles.EnsureIndexes(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: ensuring candle indexes: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("migrate: candles, backtest_runs tables and indexes ready")
}
