package memstore

import (
	"context"
	"errors"
	"time"

	"github.com/JonMunkholm/credsync/internal/core"
)

// Outcome is one rule result the Engine reports on every run.
type Outcome struct {
	RuleID       int64
	RuleCode     string
	RuleName     string
	RuleCategory string
	EntityType   string
	RecordID     string
	Status       core.ResultStatus
	Severity     core.Severity
	ErrorMessage string
}

// Engine is a core.RuleEngine that replays fixed outcomes. It writes its
// results into the session's open transaction, so they are kept only if
// the run commits.
type Engine struct {
	session  *Session
	outcomes []Outcome

	// Err is returned by Execute when set.
	Err error
	// NoRun makes Execute report that no run was produced.
	NoRun bool
	// Tamper edits the result before it is returned.
	Tamper func(*core.RunResult)
	// Now stamps run and result times. Defaults to time.Now.
	Now func() time.Time

	Calls int
}

// NewEngine creates an Engine bound to sess.
func NewEngine(sess *Session, outcomes ...Outcome) *Engine {
	return &Engine{session: sess, outcomes: outcomes, Now: time.Now}
}

// Execute implements core.RuleEngine.
func (e *Engine) Execute(_ context.Context, runType core.RunType) (*core.RunResult, error) {
	e.Calls++
	if e.Err != nil {
		return nil, e.Err
	}
	if e.NoRun {
		return nil, nil
	}

	tx := e.session.tx
	if tx == nil || tx.done {
		return nil, errors.New("rule engine requires an open transaction")
	}

	start := e.Now()
	run := &core.RunResult{
		RunID:     e.session.store.allocRunID(),
		RunType:   runType,
		StartTime: start,
	}

	for _, o := range e.outcomes {
		tx.results = append(tx.results, core.ValidationResultRecord{
			RunID:        run.RunID,
			RuleID:       o.RuleID,
			RuleCode:     o.RuleCode,
			RuleName:     o.RuleName,
			RuleCategory: o.RuleCategory,
			EntityType:   o.EntityType,
			RecordID:     o.RecordID,
			Status:       o.Status,
			Severity:     o.Severity,
			ErrorMessage: o.ErrorMessage,
			ValidatedAt:  start,
		})
		switch o.Status {
		case core.StatusFail:
			run.Failures++
		case core.StatusWarning:
			run.Warnings++
		default:
			run.Passes++
		}
	}

	run.TotalRules = len(e.outcomes)
	run.EndTime = e.Now()
	run.ExecutionTimeSeconds = run.EndTime.Sub(run.StartTime).Seconds()
	run.Status = "Completed"

	if e.Tamper != nil {
		e.Tamper(run)
	}
	return run, nil
}
