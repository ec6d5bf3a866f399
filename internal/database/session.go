package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/credsync/internal/core"
)

// Session holds one pooled connection for a Validator. The Rule Engine
// runs on the same connection so it joins the run's transaction.
type Session struct {
	conn *pgxpool.Conn
	tx   pgx.Tx
}

// OpenSession acquires a dedicated connection from pool.
func OpenSession(ctx context.Context, pool *pgxpool.Pool) (*Session, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire validation connection: %w", err)
	}
	return &Session{conn: conn}, nil
}

func (s *Session) querier() DBTX {
	if s.tx != nil {
		return s.tx
	}
	return s.conn
}

// Begin implements core.ValidationSession.
func (s *Session) Begin(ctx context.Context) (core.RunTx, error) {
	if s.conn == nil {
		return nil, errors.New("session is closed")
	}
	if s.tx != nil {
		return nil, errors.New("transaction already in progress")
	}
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin validation run: %w", err)
	}
	s.tx = tx
	return &runTx{session: s, tx: tx}, nil
}

// Close implements core.ValidationSession.
func (s *Session) Close() error {
	if s.conn == nil {
		return nil
	}
	if s.tx != nil {
		_ = s.tx.Rollback(context.Background())
		s.tx = nil
	}
	s.conn.Release()
	s.conn = nil
	return nil
}

type runTx struct {
	session *Session
	tx      pgx.Tx
}

const saveRunSQL = `
INSERT INTO cred.validation_runs
    (run_id, run_type, start_time, end_time, total_rules, failures, warnings, passes,
     execution_time_seconds, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (run_id) DO UPDATE SET
    run_type = EXCLUDED.run_type,
    start_time = EXCLUDED.start_time,
    end_time = EXCLUDED.end_time,
    total_rules = EXCLUDED.total_rules,
    failures = EXCLUDED.failures,
    warnings = EXCLUDED.warnings,
    passes = EXCLUDED.passes,
    execution_time_seconds = EXCLUDED.execution_time_seconds,
    status = EXCLUDED.status`

func (r *runTx) SaveRun(ctx context.Context, run core.RunResult) error {
	_, err := r.tx.Exec(ctx, saveRunSQL,
		run.RunID,
		string(run.RunType),
		pgtype.Timestamptz{Time: run.StartTime, Valid: true},
		pgtype.Timestamptz{Time: run.EndTime, Valid: true},
		run.TotalRules,
		run.Failures,
		run.Warnings,
		run.Passes,
		run.ExecutionTimeSeconds,
		run.Status,
	)
	if err != nil {
		return fmt.Errorf("save validation run %d: %w", run.RunID, err)
	}
	return nil
}

func (r *runTx) Commit(ctx context.Context) error {
	defer r.release()
	return r.tx.Commit(ctx)
}

func (r *runTx) Rollback(ctx context.Context) error {
	defer r.release()
	err := r.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

func (r *runTx) release() {
	if r.session.tx == r.tx {
		r.session.tx = nil
	}
}

// Summarize implements core.ValidationSession.
func (s *Session) Summarize(ctx context.Context, q core.SummaryQuery) ([]core.SummaryRow, error) {
	w := newWhereBuilder()
	if q.RunID != nil {
		w.Add("r.run_id", *q.RunID)
	} else {
		w.AddSince("r.validated_at", q.Since)
	}
	where, args := w.Build()

	order := " ORDER BY v.rule_category, r.status, r.severity DESC"
	if q.RunID == nil {
		order = " ORDER BY max(r.validated_at) DESC, v.rule_category, r.status, r.severity DESC"
	}
	limit, args := limitClause(w, args, q.Limit)

	query := `
SELECT v.rule_category, r.status, r.severity::text,
       array_agg(DISTINCT v.rule_code ORDER BY v.rule_code),
       count(*), max(r.validated_at)
FROM cred.validation_results r
JOIN cred.validation_rules v ON v.rule_id = r.rule_id` +
		where +
		" GROUP BY v.rule_category, r.status, r.severity" +
		order + limit

	rows, err := s.querier().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query validation summary: %w", err)
	}
	defer rows.Close()

	var out []core.SummaryRow
	for rows.Next() {
		var (
			row      core.SummaryRow
			status   string
			severity string
			last     pgtype.Timestamptz
		)
		if err := rows.Scan(&row.Category, &status, &severity, &row.RuleCodes, &row.Count, &last); err != nil {
			return nil, fmt.Errorf("scan validation summary: %w", err)
		}
		row.Status = core.ResultStatus(status)
		if row.Severity, err = core.ParseSeverity(severity); err != nil {
			return nil, err
		}
		row.LastValidated = last.Time
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate validation summary: %w", err)
	}
	return out, nil
}

// FailureDetails implements core.ValidationSession.
func (s *Session) FailureDetails(ctx context.Context, q core.FailureQuery) ([]core.ValidationResultRecord, error) {
	w := newWhereBuilder()
	w.AddExpr("r.status IN ('Fail', 'Warning')")
	w.AddExpr("NOT r.resolved")
	if q.RunID != nil {
		w.Add("r.run_id", *q.RunID)
	} else {
		w.AddSince("r.validated_at", q.Since)
	}
	where, args := w.Build()
	limit, args := limitClause(w, args, q.Limit)

	query := `
SELECT r.result_id, r.run_id, r.rule_id, v.rule_code, v.rule_name, v.rule_category,
       r.entity_type, coalesce(r.record_id, ''), r.status, r.severity::text,
       coalesce(r.error_message, ''), r.validated_at, r.resolved
FROM cred.validation_results r
JOIN cred.validation_rules v ON v.rule_id = r.rule_id` +
		where +
		" ORDER BY r.severity DESC, r.validated_at DESC, r.result_id" +
		limit

	rows, err := s.querier().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failure details: %w", err)
	}
	defer rows.Close()

	var out []core.ValidationResultRecord
	for rows.Next() {
		var (
			rec      core.ValidationResultRecord
			status   string
			severity string
			at       pgtype.Timestamptz
		)
		if err := rows.Scan(&rec.ResultID, &rec.RunID, &rec.RuleID, &rec.RuleCode, &rec.RuleName,
			&rec.RuleCategory, &rec.EntityType, &rec.RecordID, &status, &severity,
			&rec.ErrorMessage, &at, &rec.Resolved); err != nil {
			return nil, fmt.Errorf("scan failure details: %w", err)
		}
		rec.Status = core.ResultStatus(status)
		if rec.Severity, err = core.ParseSeverity(severity); err != nil {
			return nil, err
		}
		rec.ValidatedAt = at.Time
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate failure details: %w", err)
	}
	return out, nil
}
