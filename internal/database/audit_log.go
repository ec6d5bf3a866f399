package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/credsync/internal/core"
)

// AuditLog stores refresh log records in cred.data_refresh_log.
type AuditLog struct {
	db DBTX
}

// NewAuditLog creates an AuditLog. Records are written outside any merge
// transaction so they survive a rolled-back load.
func NewAuditLog(db DBTX) *AuditLog {
	return &AuditLog{db: db}
}

const startRefreshSQL = `
INSERT INTO cred.data_refresh_log (refresh_id, start_time, status, source_system)
VALUES ($1, $2, $3, $4)`

// StartRefresh implements core.AuditLog.
func (a *AuditLog) StartRefresh(ctx context.Context, sourceSystem string, startedAt time.Time) (core.RefreshLogRecord, error) {
	rec := core.RefreshLogRecord{
		RefreshID:    core.NewRefreshID(),
		StartTime:    startedAt,
		Status:       core.RefreshRunning,
		SourceSystem: sourceSystem,
	}

	_, err := a.db.Exec(ctx, startRefreshSQL,
		toPgUUID(rec.RefreshID),
		pgtype.Timestamptz{Time: startedAt, Valid: true},
		string(rec.Status),
		sourceSystem,
	)
	if err != nil {
		return core.RefreshLogRecord{}, fmt.Errorf("insert refresh log: %w", err)
	}
	return rec, nil
}

const finishRefreshSQL = `
UPDATE cred.data_refresh_log
SET end_time = $2,
    status = $3,
    records_processed = $4,
    records_inserted = $5,
    records_updated = $6,
    records_deleted = $7,
    execution_time_seconds = $8,
    error_message = $9
WHERE refresh_id = $1 AND status = 'Running'`

// FinishRefresh implements core.AuditLog.
func (a *AuditLog) FinishRefresh(ctx context.Context, rec core.RefreshLogRecord) error {
	end := pgtype.Timestamptz{}
	if rec.EndTime != nil {
		end = pgtype.Timestamptz{Time: *rec.EndTime, Valid: true}
	}

	tag, err := a.db.Exec(ctx, finishRefreshSQL,
		toPgUUID(rec.RefreshID),
		end,
		string(rec.Status),
		rec.RecordsProcessed,
		rec.RecordsInserted,
		rec.RecordsUpdated,
		rec.RecordsDeleted,
		rec.ExecutionTimeSeconds,
		core.ToPgText(rec.ErrorMessage),
	)
	if err != nil {
		return fmt.Errorf("update refresh log: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("refresh %s: %w", rec.RefreshID, core.ErrRefreshNotRunning)
	}
	return nil
}

const recentRefreshesSQL = `
SELECT refresh_id, start_time, end_time, status, source_system,
       records_processed, records_inserted, records_updated, records_deleted,
       execution_time_seconds, error_message
FROM cred.data_refresh_log
ORDER BY start_time DESC`

// RecentRefreshes implements core.AuditLog. A limit <= 0 returns every record.
func (a *AuditLog) RecentRefreshes(ctx context.Context, limit int) ([]core.RefreshLogRecord, error) {
	query := recentRefreshesSQL
	var args []any
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := a.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query refresh log: %w", err)
	}
	defer rows.Close()

	var out []core.RefreshLogRecord
	for rows.Next() {
		var (
			rec     core.RefreshLogRecord
			id      pgtype.UUID
			start   pgtype.Timestamptz
			end     pgtype.Timestamptz
			status  string
			message pgtype.Text
		)
		if err := rows.Scan(&id, &start, &end, &status, &rec.SourceSystem,
			&rec.RecordsProcessed, &rec.RecordsInserted, &rec.RecordsUpdated, &rec.RecordsDeleted,
			&rec.ExecutionTimeSeconds, &message); err != nil {
			return nil, fmt.Errorf("scan refresh log: %w", err)
		}

		rec.RefreshID = uuid.UUID(id.Bytes)
		rec.StartTime = start.Time
		if end.Valid {
			t := end.Time
			rec.EndTime = &t
		}
		rec.Status = core.RefreshStatus(status)
		rec.ErrorMessage = message.String
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate refresh log: %w", err)
	}
	return out, nil
}

func toPgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}
