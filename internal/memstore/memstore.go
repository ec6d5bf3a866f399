// Package memstore is an in-memory implementation of the core store
// interfaces. It backs dry runs of the CLI and the package tests.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/credsync/internal/core"
)

// Row is one canonical row keyed by column name.
type Row map[string]any

// Text returns the column formatted as text, or "" when null or absent.
func (r Row) Text(column string) string {
	return core.FormatValue(r[column])
}

type table struct {
	rows  []Row
	index map[string]int // natural key -> position in rows
}

func (t *table) clone() *table {
	c := &table{
		rows:  make([]Row, len(t.rows)),
		index: make(map[string]int, len(t.index)),
	}
	for i, r := range t.rows {
		cp := make(Row, len(r))
		for k, v := range r {
			cp[k] = v
		}
		c.rows[i] = cp
	}
	for k, v := range t.index {
		c.index[k] = v
	}
	return c
}

// Store holds refresh logs, canonical tables and validation data.
type Store struct {
	mu sync.Mutex

	refreshes []core.RefreshLogRecord
	tables    map[string]*table
	runs      map[int64]core.RunResult
	results   []core.ValidationResultRecord
	nextRun   int64
	nextRes   int64

	// injected failures, consumed by the next matching call
	failStart  error
	failFinish error
	failApply  error
	failQuery  error
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		tables:  make(map[string]*table),
		runs:    make(map[int64]core.RunResult),
		nextRun: 1,
		nextRes: 1,
	}
}

// FailNextStart makes the next StartRefresh return err.
func (s *Store) FailNextStart(err error) { s.mu.Lock(); s.failStart = err; s.mu.Unlock() }

// FailNextFinish makes the next FinishRefresh return err.
func (s *Store) FailNextFinish(err error) { s.mu.Lock(); s.failFinish = err; s.mu.Unlock() }

// FailNextApply makes the next merge Apply fail with err after it has
// written half of the staged rows.
func (s *Store) FailNextApply(err error) { s.mu.Lock(); s.failApply = err; s.mu.Unlock() }

// FailNextQuery makes the next summary or failure query return err.
func (s *Store) FailNextQuery(err error) { s.mu.Lock(); s.failQuery = err; s.mu.Unlock() }

func take(p *error) error {
	err := *p
	*p = nil
	return err
}

// StartRefresh implements core.AuditLog.
func (s *Store) StartRefresh(_ context.Context, sourceSystem string, startedAt time.Time) (core.RefreshLogRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := take(&s.failStart); err != nil {
		return core.RefreshLogRecord{}, err
	}

	rec := core.RefreshLogRecord{
		RefreshID:    core.NewRefreshID(),
		StartTime:    startedAt,
		Status:       core.RefreshRunning,
		SourceSystem: sourceSystem,
	}
	s.refreshes = append(s.refreshes, rec)
	return rec, nil
}

// FinishRefresh implements core.AuditLog.
func (s *Store) FinishRefresh(_ context.Context, rec core.RefreshLogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := take(&s.failFinish); err != nil {
		return err
	}

	for i, r := range s.refreshes {
		if r.RefreshID != rec.RefreshID {
			continue
		}
		if r.Status != core.RefreshRunning {
			return core.ErrRefreshNotRunning
		}
		rec.StartTime = r.StartTime
		rec.SourceSystem = r.SourceSystem
		s.refreshes[i] = rec
		return nil
	}
	return fmt.Errorf("refresh %s not found", rec.RefreshID)
}

// RecentRefreshes implements core.AuditLog. A limit <= 0 returns every record.
func (s *Store) RecentRefreshes(_ context.Context, limit int) ([]core.RefreshLogRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]core.RefreshLogRecord, len(s.refreshes))
	for i, r := range s.refreshes {
		out[len(out)-1-i] = r
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Refresh returns the record with id.
func (s *Store) Refresh(id uuid.UUID) (core.RefreshLogRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.refreshes {
		if r.RefreshID == id {
			return r, true
		}
	}
	return core.RefreshLogRecord{}, false
}

// Rows returns a copy of the canonical table's rows in insertion order.
func (s *Store) Rows(tableName string) []Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[tableName]
	if !ok {
		return nil
	}
	return t.clone().rows
}

// BeginMerge implements core.CanonicalStore.
func (s *Store) BeginMerge(_ context.Context, def core.TableDefinition) (core.MergeTx, error) {
	return &mergeTx{store: s, def: def}, nil
}

type mergeTx struct {
	store   *Store
	def     core.TableDefinition
	staged  *core.Batch
	pending *table
	done    bool
}

func (tx *mergeTx) Stage(_ context.Context, batch *core.Batch) error {
	if tx.done {
		return errors.New("merge transaction is closed")
	}
	tx.staged = batch
	return nil
}

func (tx *mergeTx) Apply(_ context.Context, now time.Time) (core.MergeCounts, error) {
	if tx.done {
		return core.MergeCounts{}, errors.New("merge transaction is closed")
	}
	if tx.staged == nil {
		return core.MergeCounts{}, errors.New("nothing staged")
	}

	s := tx.store
	s.mu.Lock()
	current, ok := s.tables[tx.def.Info.Table]
	if !ok {
		current = &table{index: make(map[string]int)}
	}
	work := current.clone()
	failErr := take(&s.failApply)
	s.mu.Unlock()

	keyPos := make([]int, len(tx.def.Info.UniqueKey))
	for i, k := range tx.def.Info.UniqueKey {
		keyPos[i] = -1
		for j, c := range tx.staged.Columns {
			if c == k {
				keyPos[i] = j
			}
		}
		if keyPos[i] < 0 {
			return core.MergeCounts{}, fmt.Errorf("staged batch lacks key column %q", k)
		}
	}
	hasActive := false
	for _, c := range tx.staged.Columns {
		if c == core.ColumnActive {
			hasActive = true
		}
	}

	var counts core.MergeCounts
	for n, values := range tx.staged.Rows {
		if failErr != nil && n >= len(tx.staged.Rows)/2 {
			return core.MergeCounts{}, failErr
		}

		keyVals := make([]any, len(keyPos))
		for i, p := range keyPos {
			keyVals[i] = values[p]
		}
		key := core.KeyString(keyVals)

		if at, ok := work.index[key]; ok {
			row := work.rows[at]
			for i, c := range tx.staged.Columns {
				if c == core.ColumnActive && blankFlag(values[i]) {
					continue
				}
				row[c] = values[i]
			}
			row[core.ColumnModified] = now
			counts.Updated++
			continue
		}

		row := make(Row, len(values)+3)
		for i, c := range tx.staged.Columns {
			row[c] = values[i]
		}
		if !hasActive || blankFlag(row[core.ColumnActive]) {
			row[core.ColumnActive] = core.ToPgBool("true")
		}
		row[core.ColumnCreated] = now
		row[core.ColumnModified] = now
		work.index[key] = len(work.rows)
		work.rows = append(work.rows, row)
		counts.Inserted++
	}

	tx.pending = work
	return counts, nil
}

func (tx *mergeTx) Commit(context.Context) error {
	if tx.done {
		return errors.New("merge transaction is closed")
	}
	tx.done = true
	if tx.pending == nil {
		return nil
	}
	tx.store.mu.Lock()
	tx.store.tables[tx.def.Info.Table] = tx.pending
	tx.store.mu.Unlock()
	return nil
}

func (tx *mergeTx) Rollback(context.Context) error {
	tx.done = true
	tx.pending = nil
	return nil
}

// AddResults records validation results directly, outside any run
// transaction. Result ids are assigned when zero.
func (s *Store) AddResults(results ...core.ValidationResultRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addResultsLocked(results)
}

func (s *Store) addResultsLocked(results []core.ValidationResultRecord) {
	for _, r := range results {
		if r.ResultID == 0 {
			r.ResultID = s.nextRes
		}
		if r.ResultID >= s.nextRes {
			s.nextRes = r.ResultID + 1
		}
		s.results = append(s.results, r)
	}
}

// Run returns the recorded validation run with id.
func (s *Store) Run(id int64) (core.RunResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	return r, ok
}

// Results returns a copy of all recorded validation results.
func (s *Store) Results() []core.ValidationResultRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.ValidationResultRecord(nil), s.results...)
}

func (s *Store) allocRunID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextRun
	s.nextRun++
	return id
}

// blankFlag reports whether v is a staged NULL boolean.
func blankFlag(v any) bool {
	b, ok := v.(pgtype.Bool)
	return ok && !b.Valid
}
