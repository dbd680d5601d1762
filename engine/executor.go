package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hupe1980/litefetch/query"
)

// Executor is the only code path that runs SQL against the session handle.
// It suspends until the engine is ready, binds parameters positionally
// (never interpolating values into the SQL text), and normalizes the
// engine's parallel column/value arrays into row maps.
type Executor struct {
	boot   *Bootstrapper
	logger *slog.Logger
}

// NewExecutor creates an Executor over the given Bootstrapper. logger may
// be nil.
func NewExecutor(boot *Bootstrapper, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Executor{boot: boot, logger: logger}
}

// Execute runs one request and returns the normalized result.
//
// Failures are typed: *QueryError for engine-level SQL failures (local to
// the request, the engine stays usable), *ContractError when the execution
// entry point itself is gone, bootstrap errors when the engine never came
// up.
func (e *Executor) Execute(ctx context.Context, req query.Request) (query.Result, error) {
	handle, err := e.boot.Engine(ctx)
	if err != nil {
		return query.Result{}, err
	}
	if handle == nil {
		return query.Result{}, &ContractError{Missing: "engine handle is nil"}
	}

	start := time.Now()
	raw, err := handle.Exec(ctx, req.SQL, req.Params)
	if err != nil {
		var contractErr *ContractError
		if errors.As(err, &contractErr) {
			e.logger.Error("engine contract violation",
				slog.String("sql", req.SQL),
				slog.Any("error", err))
		}
		return query.Result{}, err
	}

	rows := make([]query.Row, 0, len(raw.Values))
	for _, values := range raw.Values {
		row := make(query.Row, len(raw.Columns))
		for i, col := range raw.Columns {
			row[col] = values[i]
		}
		rows = append(rows, row)
	}

	e.logger.Debug("query executed",
		slog.String("sql", req.SQL),
		slog.Int("rows", len(rows)),
		slog.Duration("elapsed", time.Since(start)))

	return query.Result{Columns: raw.Columns, Rows: rows}, nil
}
