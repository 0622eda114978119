// Package backtest persists the outcome of a run/optimize/walk-forward
// invocation (spec.md §6) so a later `cmd/backtest` subcommand or report
// view can look it up by ID. Grounded on the teacher's JobManager shape
// (pgxpool + sync.RWMutex + zerolog), rebuilt against the new engine's
// Metrics/ClosedFill/EquityPoint types instead of the deleted teacher
// engine's ClosedPosition/EquityPoint.
package backtest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	btengine "github.com/cryptofunk/backtestcore/pkg/backtest"
	"github.com/cryptofunk/backtestcore/pkg/backtest/optimize"
	"github.com/cryptofunk/backtestcore/pkg/backtest/walkforward"
)

// Kind identifies which of the three top-level operations produced a run
// record (spec.md §2's engine/optimizer/walk-forward wrapping chain).
type Kind string

const (
	KindRun         Kind = "run"
	KindOptimize    Kind = "optimize"
	KindWalkForward Kind = "walkforward"
)

// Status is a run record's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Run is one invocation's bookkeeping plus, once completed, its result
// payload. Exactly one of RunResult/OptimizeResult/WalkForwardResult is
// populated, matching Kind.
type Run struct {
	ID       uuid.UUID `json:"id"`
	Kind     Kind      `json:"kind"`
	Status   Status    `json:"status"`
	Symbol   string    `json:"symbol"`
	Strategy string    `json:"strategy"`

	RunResult         *RunResult          `json:"run_result,omitempty"`
	OptimizeResult    *optimize.Summary   `json:"optimize_result,omitempty"`
	WalkForwardResult *walkforward.Report `json:"walkforward_result,omitempty"`

	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// RunResult is a plain `run` invocation's output (spec.md §6 `run`
// subcommand): final metrics, the equity curve, and the closed-trade log.
type RunResult struct {
	Metrics      btengine.Metrics       `json:"metrics"`
	EquityCurve  []btengine.EquityPoint `json:"equity_curve"`
	Trades       []btengine.ClosedFill  `json:"trades"`
	FinalBalance float64                `json:"final_balance"`
}

// Store persists run records in the candle store's Postgres database,
// mirroring the teacher's JobManager.
type Store struct {
	db *pgxpool.Pool
	mu sync.RWMutex
}

// NewStore creates a new run store.
func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// CreateRun inserts a new pending run record.
func (s *Store) CreateRun(ctx context.Context, kind Kind, symbol, strategy string) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	run := &Run{
		ID:        uuid.New(),
		Kind:      kind,
		Status:    StatusPending,
		Symbol:    symbol,
		Strategy:  strategy,
		CreatedAt: now,
		UpdatedAt: now,
	}

	query := `
		INSERT INTO backtest_runs (id, kind, status, symbol, strategy, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := s.db.Exec(ctx, query, run.ID, run.Kind, run.Status, run.Symbol, run.Strategy, run.CreatedAt, run.UpdatedAt); err != nil {
		return nil, fmt.Errorf("inserting run record: %w", err)
	}

	log.Info().Str("run_id", run.ID.String()).Str("kind", string(kind)).Str("symbol", symbol).Msg("created backtest run")
	return run, nil
}

// MarkRunning transitions a run record to running, stamping started_at.
func (s *Store) MarkRunning(ctx context.Context, id uuid.UUID) error {
	return s.updateStatus(ctx, id, StatusRunning, "")
}

// MarkFailed transitions a run record to failed with the given error.
func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return s.updateStatus(ctx, id, StatusFailed, msg)
}

func (s *Store) updateStatus(ctx context.Context, id uuid.UUID, status Status, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var startedAt, completedAt *time.Time
	switch status {
	case StatusRunning:
		startedAt = &now
	case StatusCompleted, StatusFailed:
		completedAt = &now
	}

	query := `
		UPDATE backtest_runs
		SET status = $1,
		    started_at = COALESCE($2, started_at),
		    completed_at = COALESCE($3, completed_at),
		    error_message = $4,
		    updated_at = $5
		WHERE id = $6
	`
	if _, err := s.db.Exec(ctx, query, status, startedAt, completedAt, errMsg, now, id); err != nil {
		return fmt.Errorf("updating run status: %w", err)
	}
	return nil
}

// SaveRunResult persists a completed `run` invocation's result.
func (s *Store) SaveRunResult(ctx context.Context, id uuid.UUID, result *RunResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshaling run result: %w", err)
	}
	return s.saveResult(ctx, id, "run_result", payload)
}

// SaveOptimizeResult persists a completed `optimize` invocation's summary.
func (s *Store) SaveOptimizeResult(ctx context.Context, id uuid.UUID, summary *optimize.Summary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshaling optimize summary: %w", err)
	}
	return s.saveResult(ctx, id, "optimize_result", payload)
}

// SaveWalkForwardResult persists a completed `walkforward` invocation's
// report.
func (s *Store) SaveWalkForwardResult(ctx context.Context, id uuid.UUID, report *walkforward.Report) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshaling walk-forward report: %w", err)
	}
	return s.saveResult(ctx, id, "walkforward_result", payload)
}

func (s *Store) saveResult(ctx context.Context, id uuid.UUID, column string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	query := fmt.Sprintf(`
		UPDATE backtest_runs
		SET %s = $1,
		    status = $2,
		    completed_at = $3,
		    updated_at = $4
		WHERE id = $5
	`, column)
	if _, err := s.db.Exec(ctx, query, payload, StatusCompleted, now, now, id); err != nil {
		return fmt.Errorf("saving %s: %w", column, err)
	}

	log.Info().Str("run_id", id.String()).Str("column", column).Msg("saved backtest run result")
	return nil
}

// GetRun retrieves one run record by ID, including whichever result payload
// its Kind populated.
func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, kind, status, symbol, strategy,
		       run_result, optimize_result, walkforward_result,
		       error_message, created_at, started_at, completed_at, updated_at
		FROM backtest_runs
		WHERE id = $1
	`

	var run Run
	var runResultJSON, optimizeResultJSON, walkforwardResultJSON []byte

	err := s.db.QueryRow(ctx, query, id).Scan(
		&run.ID, &run.Kind, &run.Status, &run.Symbol, &run.Strategy,
		&runResultJSON, &optimizeResultJSON, &walkforwardResultJSON,
		&run.ErrorMessage, &run.CreatedAt, &run.StartedAt, &run.CompletedAt, &run.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("retrieving run record: %w", err)
	}

	if len(runResultJSON) > 0 {
		var r RunResult
		if err := json.Unmarshal(runResultJSON, &r); err != nil {
			return nil, fmt.Errorf("unmarshaling run result: %w", err)
		}
		run.RunResult = &r
	}
	if len(optimizeResultJSON) > 0 {
		var r optimize.Summary
		if err := json.Unmarshal(optimizeResultJSON, &r); err != nil {
			return nil, fmt.Errorf("unmarshaling optimize result: %w", err)
		}
		run.OptimizeResult = &r
	}
	if len(walkforwardResultJSON) > 0 {
		var r walkforward.Report
		if err := json.Unmarshal(walkforwardResultJSON, &r); err != nil {
			return nil, fmt.Errorf("unmarshaling walk-forward result: %w", err)
		}
		run.WalkForwardResult = &r
	}

	return &run, nil
}

// ListRuns retrieves a paginated list of run records, newest first.
func (s *Store) ListRuns(ctx context.Context, kind Kind, limit, offset int) ([]*Run, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	whereClause := ""
	args := []interface{}{}
	if kind != "" {
		whereClause = "WHERE kind = $1"
		args = append(args, kind)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM backtest_runs %s", whereClause)
	var total int
	if err := s.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting run records: %w", err)
	}

	args = append(args, limit, offset)
	limitPos := len(args) - 1
	offsetPos := len(args)
	query := fmt.Sprintf(`
		SELECT id, kind, status, symbol, strategy, error_message,
		       created_at, started_at, completed_at, updated_at
		FROM backtest_runs
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, whereClause, limitPos, offsetPos)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying run records: %w", err)
	}
	defer rows.Close()

	runs := make([]*Run, 0)
	for rows.Next() {
		var run Run
		if err := rows.Scan(
			&run.ID, &run.Kind, &run.Status, &run.Symbol, &run.Strategy, &run.ErrorMessage,
			&run.CreatedAt, &run.StartedAt, &run.CompletedAt, &run.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scanning run record: %w", err)
		}
		runs = append(runs, &run)
	}
	return runs, total, rows.Err()
}

// DeleteRun deletes a run record.
func (s *Store) DeleteRun(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(ctx, `DELETE FROM backtest_runs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting run record: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("run record not found")
	}

	log.Info().Str("run_id", id.String()).Msg("deleted backtest run")
	return nil
}

// ToRunResult converts an engine's terminal state plus its calculated
// metrics into the persisted RunResult shape.
func ToRunResult(e *btengine.Engine, metrics btengine.Metrics) *RunResult {
	return &RunResult{
		Metrics:      metrics,
		EquityCurve:  e.EquityCurve,
		Trades:       e.ClosedTrades,
		FinalBalance: e.Balance,
	}
}
