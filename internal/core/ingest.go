package core

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/credsync/internal/config"
	"github.com/JonMunkholm/credsync/internal/logging"
)

// Ingestor loads extracts into canonical tables. Every load is bracketed by
// a refresh log record that is opened before any data is touched and closed
// exactly once.
type Ingestor struct {
	audit   AuditLog
	store   CanonicalStore
	sources map[string]string // dataset key -> extract path
	metrics *Metrics
	now     func() time.Time
}

// IngestorOption configures an Ingestor.
type IngestorOption func(*Ingestor)

// WithIngestMetrics records refresh outcomes in m.
func WithIngestMetrics(m *Metrics) IngestorOption {
	return func(i *Ingestor) { i.metrics = m }
}

// WithIngestClock overrides the clock used for timestamps.
func WithIngestClock(now func() time.Time) IngestorOption {
	return func(i *Ingestor) { i.now = now }
}

// NewIngestor creates an Ingestor. sources maps dataset keys to the extract
// files read by RunDailyRefresh; see SourcesFromConfig.
func NewIngestor(audit AuditLog, store CanonicalStore, sources map[string]string, opts ...IngestorOption) *Ingestor {
	i := &Ingestor{
		audit:   audit,
		store:   store,
		sources: sources,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// SourcesFromConfig maps each dataset to its extract under the data directory.
func SourcesFromConfig(cfg config.SourceConfig) map[string]string {
	return map[string]string{
		"providers":   filepath.Join(cfg.DataDir, cfg.ProvidersFile),
		"entities":    filepath.Join(cfg.DataDir, cfg.EntitiesFile),
		"credentials": filepath.Join(cfg.DataDir, cfg.CredentialsFile),
	}
}

// Load merges an in-memory extract into the dataset's canonical table.
func (i *Ingestor) Load(ctx context.Context, key string, ex Extract) (RefreshLogRecord, error) {
	return i.run(ctx, key, ex.Name, func(TableDefinition) (Extract, error) {
		return ex, nil
	})
}

// LoadFile reads a .csv or .xlsx extract and merges it. A file that cannot
// be read is recorded as a failed refresh.
func (i *Ingestor) LoadFile(ctx context.Context, key, path string) (RefreshLogRecord, error) {
	return i.run(ctx, key, filepath.Base(path), func(def TableDefinition) (Extract, error) {
		return ReadExtract(path, def)
	})
}

// RunDailyRefresh loads every dataset with a configured extract, in registry
// order. Missing files are skipped with a warning. The first failure stops
// the refresh and is returned along with the records written so far.
func (i *Ingestor) RunDailyRefresh(ctx context.Context) ([]RefreshLogRecord, error) {
	log := logging.FromContext(ctx)
	log.Info("starting daily data refresh")

	var records []RefreshLogRecord
	for _, def := range All() {
		key := def.Info.Key
		path, ok := i.sources[key]
		if !ok {
			continue
		}

		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			log.Warn("extract not found, skipping dataset", "dataset", key, "path", path)
			continue
		}

		rec, err := i.LoadFile(ctx, key, path)
		if rec.RefreshID != uuid.Nil {
			records = append(records, rec)
		}
		if err != nil {
			log.Error("daily data refresh failed", "dataset", key, "error", err)
			return records, fmt.Errorf("load %s: %w", key, err)
		}
	}

	log.Info("daily data refresh completed", "datasets", len(records))
	return records, nil
}

// RecentRefreshes returns up to limit refresh log records, newest first.
func (i *Ingestor) RecentRefreshes(ctx context.Context, limit int) ([]RefreshLogRecord, error) {
	recs, err := i.audit.RecentRefreshes(ctx, limit)
	if err != nil {
		return nil, newError(KindQuery, "recent refreshes", err)
	}
	return recs, nil
}

func (i *Ingestor) run(ctx context.Context, key, name string, read func(TableDefinition) (Extract, error)) (RefreshLogRecord, error) {
	def, ok := Get(key)
	if !ok {
		return RefreshLogRecord{}, fmt.Errorf("%w: %s", ErrUnknownDataset, key)
	}

	log := logging.WithFields(ctx, "dataset", key, "extract", name)

	rec, err := i.audit.StartRefresh(ctx, def.Info.SourceSystem, i.now())
	if err != nil {
		err = newError(KindConnection, "start refresh", err)
		log.Error("refresh aborted, refresh log unavailable", "error", err)
		return RefreshLogRecord{}, err
	}
	log = log.With("refresh_id", rec.RefreshID)
	log.Info("refresh started", "source_system", def.Info.SourceSystem)

	ex, err := read(def)
	if err != nil {
		return i.finish(ctx, log, def, rec, 0, MergeCounts{}, newError(KindStaging, "read extract", err))
	}

	processed, counts, err := i.merge(ctx, def, ex)
	return i.finish(ctx, log, def, rec, processed, counts, err)
}

// merge stages the batch and applies it in one transaction.
func (i *Ingestor) merge(ctx context.Context, def TableDefinition, ex Extract) (int, MergeCounts, error) {
	batch, err := BuildBatch(def, ex)
	if err != nil {
		return 0, MergeCounts{}, newError(KindStaging, "build batch", err)
	}
	if len(batch.Rows) == 0 {
		return batch.Processed, MergeCounts{}, nil
	}

	tx, err := i.store.BeginMerge(ctx, def)
	if err != nil {
		return 0, MergeCounts{}, newError(KindConnection, "begin merge", err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	if err := tx.Stage(ctx, batch); err != nil {
		return 0, MergeCounts{}, newError(KindUpsert, "stage", err)
	}

	counts, err := tx.Apply(ctx, i.now())
	if err != nil {
		return 0, MergeCounts{}, newError(KindUpsert, "apply", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, MergeCounts{}, newError(KindUpsert, "commit", err)
	}

	return batch.Processed, counts, nil
}

// finish closes the refresh record. On failure the original error is
// returned even if closing the record also fails.
func (i *Ingestor) finish(ctx context.Context, log *slog.Logger, def TableDefinition, rec RefreshLogRecord, processed int, counts MergeCounts, loadErr error) (RefreshLogRecord, error) {
	end := i.now()
	rec.EndTime = &end
	rec.ExecutionTimeSeconds = end.Sub(rec.StartTime).Seconds()

	// The record must be closed even if the caller's context is done.
	closeCtx := context.WithoutCancel(ctx)

	if loadErr != nil {
		rec.Status = RefreshFailed
		rec.ErrorMessage = loadErr.Error()
		log.Error("refresh failed", "error", loadErr)

		if err := i.audit.FinishRefresh(closeCtx, rec); err != nil {
			log.Error("failed to close refresh record", "error", err)
		}
		i.metrics.ObserveRefresh(def.Info.Key, rec)
		return rec, loadErr
	}

	rec.Status = RefreshCompleted
	rec.RecordsProcessed = int64(processed)
	rec.RecordsInserted = counts.Inserted
	rec.RecordsUpdated = counts.Updated

	if err := i.audit.FinishRefresh(closeCtx, rec); err != nil {
		err = newError(KindConnection, "finish refresh", err)
		log.Error("failed to close refresh record", "error", err)
		return rec, err
	}

	log.Info("refresh completed",
		"processed", rec.RecordsProcessed,
		"inserted", rec.RecordsInserted,
		"updated", rec.RecordsUpdated,
		"seconds", rec.ExecutionTimeSeconds,
	)
	i.metrics.ObserveRefresh(def.Info.Key, rec)
	return rec, nil
}
