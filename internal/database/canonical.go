package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/credsync/internal/core"
)

// CanonicalStore merges batches into canonical tables. Each merge stages
// the batch into a temporary table through COPY and applies it with one
// UPDATE and one INSERT in the same transaction.
type CanonicalStore struct {
	pool *pgxpool.Pool
}

// NewCanonicalStore creates a CanonicalStore.
func NewCanonicalStore(pool *pgxpool.Pool) *CanonicalStore {
	return &CanonicalStore{pool: pool}
}

// BeginMerge implements core.CanonicalStore.
func (s *CanonicalStore) BeginMerge(ctx context.Context, def core.TableDefinition) (core.MergeTx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin merge: %w", err)
	}
	return &mergeTx{
		tx:     tx,
		def:    def,
		target: tableIdent(def.Info.Table),
		stage:  pgx.Identifier{"stage_" + def.Info.Key}.Sanitize(),
	}, nil
}

type mergeTx struct {
	tx      pgx.Tx
	def     core.TableDefinition
	target  string
	stage   string
	columns []string
}

func (m *mergeTx) Stage(ctx context.Context, batch *core.Batch) error {
	cols := quoteAll(batch.Columns)

	createSQL := fmt.Sprintf(
		"CREATE TEMP TABLE %s ON COMMIT DROP AS SELECT %s FROM %s WITH NO DATA",
		m.stage, strings.Join(cols, ", "), m.target,
	)
	if _, err := m.tx.Exec(ctx, createSQL); err != nil {
		return fmt.Errorf("create staging table: %w", err)
	}

	n, err := m.tx.CopyFrom(ctx,
		pgx.Identifier{"stage_" + m.def.Info.Key},
		batch.Columns,
		pgx.CopyFromRows(batch.Rows),
	)
	if err != nil {
		return fmt.Errorf("copy into staging table: %w", err)
	}
	if n != int64(len(batch.Rows)) {
		return fmt.Errorf("copy into staging table: copied %d of %d rows", n, len(batch.Rows))
	}

	m.columns = batch.Columns
	return nil
}

func (m *mergeTx) Apply(ctx context.Context, now time.Time) (core.MergeCounts, error) {
	if m.columns == nil {
		return core.MergeCounts{}, errors.New("nothing staged")
	}

	var counts core.MergeCounts

	tag, err := m.tx.Exec(ctx, m.updateSQL(), now)
	if err != nil {
		return core.MergeCounts{}, fmt.Errorf("update %s: %w", m.def.Info.Table, err)
	}
	counts.Updated = tag.RowsAffected()

	tag, err = m.tx.Exec(ctx, m.insertSQL(), now)
	if err != nil {
		return core.MergeCounts{}, fmt.Errorf("insert into %s: %w", m.def.Info.Table, err)
	}
	counts.Inserted = tag.RowsAffected()

	return counts, nil
}

// updateSQL overwrites the staged columns of rows whose natural key is
// staged. Key columns are matched, not written.
func (m *mergeTx) updateSQL() string {
	isKey := make(map[string]bool, len(m.def.Info.UniqueKey))
	for _, k := range m.def.Info.UniqueKey {
		isKey[k] = true
	}

	var sets []string
	for _, c := range m.columns {
		if isKey[c] {
			continue
		}
		q := pgx.Identifier{c}.Sanitize()
		if c == core.ColumnActive {
			// A blank flag keeps the current value.
			sets = append(sets, fmt.Sprintf("%s = coalesce(s.%s, t.%s)", q, q, q))
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = s.%s", q, q))
	}
	sets = append(sets, fmt.Sprintf("%s = $1", pgx.Identifier{core.ColumnModified}.Sanitize()))

	return fmt.Sprintf("UPDATE %s AS t SET %s FROM %s AS s WHERE %s",
		m.target, strings.Join(sets, ", "), m.stage, m.keyMatch())
}

// insertSQL inserts staged rows whose natural key is not in the target.
// A missing or blank is_active is inserted as TRUE.
func (m *mergeTx) insertSQL() string {
	cols := quoteAll(m.columns)
	vals := make([]string, len(cols))
	hasActive := false
	for i, c := range m.columns {
		vals[i] = "s." + cols[i]
		if c == core.ColumnActive {
			hasActive = true
			vals[i] = fmt.Sprintf("coalesce(%s, TRUE)", vals[i])
		}
	}
	if !hasActive {
		cols = append(cols, pgx.Identifier{core.ColumnActive}.Sanitize())
		vals = append(vals, "TRUE")
	}
	cols = append(cols,
		pgx.Identifier{core.ColumnCreated}.Sanitize(),
		pgx.Identifier{core.ColumnModified}.Sanitize(),
	)
	vals = append(vals, "$1", "$1")

	return fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s AS s WHERE NOT EXISTS (SELECT 1 FROM %s AS t WHERE %s)",
		m.target, strings.Join(cols, ", "), strings.Join(vals, ", "), m.stage, m.target, m.keyMatch(),
	)
}

func (m *mergeTx) keyMatch() string {
	parts := make([]string, len(m.def.Info.UniqueKey))
	for i, k := range m.def.Info.UniqueKey {
		q := pgx.Identifier{k}.Sanitize()
		parts[i] = fmt.Sprintf("t.%s = s.%s", q, q)
	}
	return strings.Join(parts, " AND ")
}

func (m *mergeTx) Commit(ctx context.Context) error {
	return m.tx.Commit(ctx)
}

func (m *mergeTx) Rollback(ctx context.Context) error {
	err := m.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

func quoteAll(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = pgx.Identifier{c}.Sanitize()
	}
	return out
}
