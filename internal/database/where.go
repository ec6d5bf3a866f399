package database

import (
	"fmt"
	"strings"
	"time"
)

// whereBuilder assembles a WHERE clause with numbered placeholders.
type whereBuilder struct {
	conditions []string
	args       []any
	argIndex   int
}

func newWhereBuilder() *whereBuilder {
	return &whereBuilder{argIndex: 1}
}

// Add appends "column = $n". Nil values are skipped.
func (w *whereBuilder) Add(column string, value any) {
	if value == nil {
		return
	}
	w.conditions = append(w.conditions, fmt.Sprintf("%s = $%d", column, w.argIndex))
	w.args = append(w.args, value)
	w.argIndex++
}

// AddSince appends "column >= $n". A zero time is skipped.
func (w *whereBuilder) AddSince(column string, since time.Time) {
	if since.IsZero() {
		return
	}
	w.conditions = append(w.conditions, fmt.Sprintf("%s >= $%d", column, w.argIndex))
	w.args = append(w.args, since)
	w.argIndex++
}

// AddExpr appends a condition that takes no arguments.
func (w *whereBuilder) AddExpr(expr string) {
	w.conditions = append(w.conditions, expr)
}

// NextArgIndex returns the placeholder number the next argument will use.
func (w *whereBuilder) NextArgIndex() int {
	return w.argIndex
}

// Build returns the clause, with a leading space, and its arguments.
func (w *whereBuilder) Build() (string, []any) {
	if len(w.conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(w.conditions, " AND "), w.args
}

// limitClause appends a LIMIT placeholder to args when limit is positive.
func limitClause(w *whereBuilder, args []any, limit int) (string, []any) {
	if limit <= 0 {
		return "", args
	}
	return fmt.Sprintf(" LIMIT $%d", w.NextArgIndex()), append(args, limit)
}
