package memstore

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/JonMunkholm/credsync/internal/core"
)

// Session is a core.ValidationSession over a Store.
type Session struct {
	store  *Store
	tx     *runTx
	closed bool
	closes int
}

// Session opens a validation session.
func (s *Store) Session() *Session {
	return &Session{store: s}
}

// Closes reports how many times Close was called.
func (sess *Session) Closes() int { return sess.closes }

// Begin implements core.ValidationSession.
func (sess *Session) Begin(context.Context) (core.RunTx, error) {
	if sess.closed {
		return nil, errors.New("session is closed")
	}
	if sess.tx != nil && !sess.tx.done {
		return nil, errors.New("transaction already in progress")
	}
	sess.tx = &runTx{store: sess.store}
	return sess.tx, nil
}

// Close implements core.ValidationSession.
func (sess *Session) Close() error {
	sess.closes++
	sess.closed = true
	return nil
}

type runTx struct {
	store   *Store
	run     *core.RunResult
	results []core.ValidationResultRecord
	done    bool
}

func (tx *runTx) SaveRun(_ context.Context, run core.RunResult) error {
	if tx.done {
		return errors.New("transaction is closed")
	}
	tx.run = &run
	return nil
}

func (tx *runTx) Commit(context.Context) error {
	if tx.done {
		return errors.New("transaction is closed")
	}
	tx.done = true

	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if tx.run != nil {
		s.runs[tx.run.RunID] = *tx.run
	}
	s.addResultsLocked(tx.results)
	return nil
}

func (tx *runTx) Rollback(context.Context) error {
	tx.done = true
	return nil
}

// Summarize implements core.ValidationSession.
func (sess *Session) Summarize(_ context.Context, q core.SummaryQuery) ([]core.SummaryRow, error) {
	s := sess.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := take(&s.failQuery); err != nil {
		return nil, err
	}

	type groupKey struct {
		category string
		status   core.ResultStatus
		severity core.Severity
	}
	groups := make(map[groupKey]*core.SummaryRow)
	codes := make(map[groupKey]map[string]bool)
	var order []groupKey

	for _, r := range s.results {
		if !matches(r, q.RunID, q.Since) {
			continue
		}
		k := groupKey{r.RuleCategory, r.Status, r.Severity}
		g, ok := groups[k]
		if !ok {
			g = &core.SummaryRow{Category: k.category, Status: k.status, Severity: k.severity}
			groups[k] = g
			codes[k] = make(map[string]bool)
			order = append(order, k)
		}
		g.Count++
		codes[k][r.RuleCode] = true
		if r.ValidatedAt.After(g.LastValidated) {
			g.LastValidated = r.ValidatedAt
		}
	}

	rows := make([]core.SummaryRow, 0, len(order))
	for _, k := range order {
		g := groups[k]
		for code := range codes[k] {
			g.RuleCodes = append(g.RuleCodes, code)
		}
		sort.Strings(g.RuleCodes)
		rows = append(rows, *g)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if q.RunID == nil && !a.LastValidated.Equal(b.LastValidated) {
			return a.LastValidated.After(b.LastValidated)
		}
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.Status != b.Status {
			return a.Status < b.Status
		}
		return a.Severity > b.Severity
	})

	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	return rows, nil
}

// FailureDetails implements core.ValidationSession.
func (sess *Session) FailureDetails(_ context.Context, q core.FailureQuery) ([]core.ValidationResultRecord, error) {
	s := sess.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := take(&s.failQuery); err != nil {
		return nil, err
	}

	var out []core.ValidationResultRecord
	for _, r := range s.results {
		if r.Resolved || r.Status == core.StatusPass || !matches(r, q.RunID, q.Since) {
			continue
		}
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Severity != b.Severity {
			return a.Severity > b.Severity
		}
		if !a.ValidatedAt.Equal(b.ValidatedAt) {
			return a.ValidatedAt.After(b.ValidatedAt)
		}
		return a.ResultID < b.ResultID
	})

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func matches(r core.ValidationResultRecord, runID *int64, since time.Time) bool {
	if runID != nil {
		return r.RunID == *runID
	}
	return !r.ValidatedAt.Before(since)
}
