package core

// validation.go runs the Rule Engine and reads back its results.
//
// A Validator owns one store session for its lifetime. Calls are serialized
// on that session; RunAll executes inside a transaction, the read queries
// do not.

import (
	"context"
	"sync"
	"time"

	"github.com/JonMunkholm/credsync/internal/config"
	"github.com/JonMunkholm/credsync/internal/logging"
)

// Validator invokes the Rule Engine and reports on its results.
type Validator struct {
	mu      sync.Mutex
	session ValidationSession
	engine  RuleEngine
	cfg     config.ValidationConfig
	metrics *Metrics
	now     func() time.Time
	closed  bool
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithValidatorMetrics records run outcomes in m.
func WithValidatorMetrics(m *Metrics) ValidatorOption {
	return func(v *Validator) { v.metrics = m }
}

// WithValidatorClock overrides the clock used for summary windows.
func WithValidatorClock(now func() time.Time) ValidatorOption {
	return func(v *Validator) { v.now = now }
}

// NewValidator creates a Validator over an open session. The Validator
// closes the session in Close.
func NewValidator(session ValidationSession, engine RuleEngine, cfg config.ValidationConfig, opts ...ValidatorOption) *Validator {
	v := &Validator{
		session: session,
		engine:  engine,
		cfg:     cfg,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// RunAll invokes the Rule Engine once and records the run. It returns nil,
// nil when the engine produced no run.
func (v *Validator) RunAll(ctx context.Context, runType RunType) (*RunResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil, ErrValidatorClosed
	}

	run, err := v.runAll(ctx, runType)
	v.metrics.ObserveValidation(runType, run, err)
	return run, err
}

func (v *Validator) runAll(ctx context.Context, runType RunType) (*RunResult, error) {
	log := logging.WithFields(ctx, "run_type", runType)
	log.Info("starting validation run")

	tx, err := v.session.Begin(ctx)
	if err != nil {
		err = newError(KindConnection, "begin validation run", err)
		log.Error("validation run aborted", "error", err)
		return nil, err
	}
	// Nothing is kept unless the run record is committed.
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	run, err := v.engine.Execute(ctx, runType)
	if err != nil {
		err = newError(KindEngineInvocation, "execute rules", err)
		log.Error("rule engine failed", "error", err)
		return nil, err
	}
	if run == nil {
		log.Warn("rule engine returned no run")
		return nil, nil
	}

	if run.RunType == "" {
		run.RunType = runType
	}
	if err := checkRunResult(run); err != nil {
		err = newError(KindEngineInvocation, "check engine result", err)
		log.Error("rule engine returned an unusable result", "error", err)
		return nil, err
	}

	if err := tx.SaveRun(ctx, *run); err != nil {
		err = newError(KindEngineInvocation, "save run", err)
		log.Error("failed to record validation run", "run_id", run.RunID, "error", err)
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		err = newError(KindEngineInvocation, "commit validation run", err)
		log.Error("failed to commit validation run", "run_id", run.RunID, "error", err)
		return nil, err
	}

	log.Info("validation run completed",
		"run_id", run.RunID,
		"total_rules", run.TotalRules,
		"failures", run.Failures,
		"warnings", run.Warnings,
		"passes", run.Passes,
		"seconds", run.ExecutionTimeSeconds,
	)
	return run, nil
}

// Summary groups results by category, status and severity. With a run id
// it covers that run; without one it covers the configured lookback window,
// newest groups first, capped at the configured limit. Each entry carries
// the rule codes of its group rather than one entry per rule code. A run
// with no results yields an empty, non-nil Summary.
func (v *Validator) Summary(ctx context.Context, runID *int64) (Summary, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil, ErrValidatorClosed
	}

	q := SummaryQuery{RunID: runID}
	if runID == nil {
		q.Since = v.now().Add(-v.cfg.SummaryWindow)
		q.Limit = v.cfg.SummaryLimit
	}

	rows, err := v.session.Summarize(ctx, q)
	if err != nil {
		err = newError(KindQuery, "summarize results", err)
		logging.FromContext(ctx).Error("validation summary failed", "error", err)
		return nil, err
	}

	summary := make(Summary)
	for _, r := range rows {
		key := r.Category + "_" + string(r.Status)
		summary[key] = append(summary[key], SummaryEntry{
			RuleCodes: r.RuleCodes,
			Count:     r.Count,
			Severity:  r.Severity,
		})
	}
	return summary, nil
}

// FailureDetails returns up to limit unresolved Fail and Warning results,
// most severe first, then newest, then by result id.
func (v *Validator) FailureDetails(ctx context.Context, runID *int64, limit int) ([]ValidationResultRecord, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil, ErrValidatorClosed
	}
	if limit <= 0 {
		return []ValidationResultRecord{}, nil
	}

	q := FailureQuery{RunID: runID, Limit: limit}
	if runID == nil {
		q.Since = v.now().Add(-v.cfg.SummaryWindow)
	}

	recs, err := v.session.FailureDetails(ctx, q)
	if err != nil {
		err = newError(KindQuery, "failure details", err)
		logging.FromContext(ctx).Error("failure detail query failed", "error", err)
		return nil, err
	}
	return recs, nil
}

// Close releases the session. Later calls are no-ops.
func (v *Validator) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil
	}
	v.closed = true
	return v.session.Close()
}
