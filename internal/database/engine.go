package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/credsync/internal/core"
)

// RuleEngine invokes cred.run_all_validations, which evaluates every active
// rule and writes its results. It runs inside the session's open
// transaction.
type RuleEngine struct {
	session *Session
}

// NewRuleEngine creates a RuleEngine bound to session.
func NewRuleEngine(session *Session) *RuleEngine {
	return &RuleEngine{session: session}
}

const runAllValidationsSQL = `
SELECT run_id, run_type, start_time, end_time, total_rules, failures, warnings, passes,
       execution_time_seconds, status
FROM cred.run_all_validations($1)`

// Execute implements core.RuleEngine.
func (e *RuleEngine) Execute(ctx context.Context, runType core.RunType) (*core.RunResult, error) {
	if e.session.tx == nil {
		return nil, errors.New("rule engine requires an open transaction")
	}

	var (
		run     core.RunResult
		rt      string
		start   pgtype.Timestamptz
		end     pgtype.Timestamptz
		elapsed pgtype.Float8
		status  pgtype.Text
	)
	err := e.session.tx.QueryRow(ctx, runAllValidationsSQL, string(runType)).Scan(
		&run.RunID, &rt, &start, &end,
		&run.TotalRules, &run.Failures, &run.Warnings, &run.Passes,
		&elapsed, &status,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("run_all_validations: %w", err)
	}

	run.RunType = core.RunType(rt)
	run.StartTime = start.Time
	run.EndTime = end.Time
	run.ExecutionTimeSeconds = elapsed.Float64
	run.Status = status.String
	return &run, nil
}
