// Package history is the durable training-record store: one row per
// batch, backed by sqlite through database/sql, with bounded-retry writes
// and the trend/improvement queries the background trainer and its
// callers need for monitoring.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	_ "github.com/mattn/go-sqlite3"

	"github.com/cogpy/causalreason/core/contracts"
)

const schema = `
CREATE TABLE IF NOT EXISTS training_records (
	id TEXT PRIMARY KEY,
	epoch INTEGER NOT NULL,
	batch_index INTEGER NOT NULL,
	loss REAL NOT NULL,
	validation_loss REAL,
	learning_rate REAL NOT NULL,
	samples_count INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	checkpoint_path TEXT
);
CREATE INDEX IF NOT EXISTS idx_training_records_epoch ON training_records(epoch);
CREATE INDEX IF NOT EXISTS idx_training_records_created_at ON training_records(created_at);
CREATE INDEX IF NOT EXISTS idx_training_records_loss ON training_records(loss);
`

// retryDelays is the bounded backoff schedule record_batch uses: 100ms,
// 200ms, 400ms, then give up.
var retryDelays = []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}

// Store wraps a sqlite-backed training_records table.
type Store struct {
	db *sql.DB
}

// Open creates (or reuses) the sqlite database at path and ensures the
// schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: init schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// RecordBatch inserts one record, retrying on the bounded 100/200/400ms
// schedule before failing with a persistence error. No partial state is
// committed on final failure: the insert either lands or doesn't.
func (s *Store) RecordBatch(ctx context.Context, r contracts.TrainingRecord) error {
	const op = "history.RecordBatch"
	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := s.insertOne(ctx, r); err != nil {
			lastErr = err
			if attempt >= len(retryDelays) {
				break
			}
			select {
			case <-time.After(retryDelays[attempt]):
			case <-ctx.Done():
				return contracts.NewError(contracts.KindPersistence, op, ctx.Err())
			}
			continue
		}
		return nil
	}
	return contracts.NewError(contracts.KindPersistence, op, lastErr)
}

func (s *Store) insertOne(ctx context.Context, r contracts.TrainingRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO training_records (id, epoch, batch_index, loss, validation_loss, learning_rate, samples_count, checkpoint_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Epoch, r.BatchIndex, r.Loss, r.ValidationLoss, r.LearningRate, r.SamplesCount, r.CheckpointPath)
	return err
}

// RecordBatchBulk inserts every record in one transaction: all or
// nothing. Every row's insert is attempted even after an earlier one
// fails, so a caller sees every bad row in one error instead of only
// the first; the transaction is rolled back if any row failed.
func (s *Store) RecordBatchBulk(ctx context.Context, rs []contracts.TrainingRecord) error {
	const op = "history.RecordBatchBulk"
	if len(rs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return contracts.NewError(contracts.KindPersistence, op, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO training_records (id, epoch, batch_index, loss, validation_loss, learning_rate, samples_count, checkpoint_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return contracts.NewError(contracts.KindPersistence, op, err)
	}
	defer stmt.Close()

	var insertErrs *multierror.Error
	for _, r := range rs {
		if _, err := stmt.ExecContext(ctx, r.ID, r.Epoch, r.BatchIndex, r.Loss, r.ValidationLoss, r.LearningRate, r.SamplesCount, r.CheckpointPath); err != nil {
			insertErrs = multierror.Append(insertErrs, fmt.Errorf("record %s: %w", r.ID, err))
		}
	}
	if insertErrs != nil {
		return contracts.NewError(contracts.KindPersistence, op, insertErrs)
	}
	if err := tx.Commit(); err != nil {
		return contracts.NewError(contracts.KindPersistence, op, err)
	}
	return nil
}

func scanRecord(row interface{ Scan(...any) error }) (contracts.TrainingRecord, error) {
	var r contracts.TrainingRecord
	err := row.Scan(&r.ID, &r.Epoch, &r.BatchIndex, &r.Loss, &r.ValidationLoss, &r.LearningRate, &r.SamplesCount, &r.CreatedAt, &r.CheckpointPath)
	return r, err
}

// EpochRange narrows GetHistory to [Min, Max] when both are non-nil.
type EpochRange struct {
	Min, Max *int
}

// GetHistory returns every record, optionally narrowed to an epoch range,
// ordered by created_at ascending.
func (s *Store) GetHistory(ctx context.Context, epochRange *EpochRange) ([]contracts.TrainingRecord, error) {
	query := `SELECT id, epoch, batch_index, loss, validation_loss, learning_rate, samples_count, created_at, checkpoint_path FROM training_records`
	var args []any
	if epochRange != nil {
		if epochRange.Min != nil {
			query += " WHERE epoch >= ?"
			args = append(args, *epochRange.Min)
			if epochRange.Max != nil {
				query += " AND epoch <= ?"
				args = append(args, *epochRange.Max)
			}
		} else if epochRange.Max != nil {
			query += " WHERE epoch <= ?"
			args = append(args, *epochRange.Max)
		}
	}
	query += " ORDER BY created_at ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, contracts.NewError(contracts.KindPersistence, "history.GetHistory", err)
	}
	defer rows.Close()

	var out []contracts.TrainingRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, contracts.NewError(contracts.KindPersistence, "history.GetHistory", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetEpochHistory returns every record for a single epoch, oldest first.
func (s *Store) GetEpochHistory(ctx context.Context, epoch int) ([]contracts.TrainingRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, epoch, batch_index, loss, validation_loss, learning_rate, samples_count, created_at, checkpoint_path
		FROM training_records WHERE epoch = ? ORDER BY batch_index ASC`, epoch)
	if err != nil {
		return nil, contracts.NewError(contracts.KindPersistence, "history.GetEpochHistory", err)
	}
	defer rows.Close()

	var out []contracts.TrainingRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, contracts.NewError(contracts.KindPersistence, "history.GetEpochHistory", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetLatestLoss returns the most recently recorded loss.
func (s *Store) GetLatestLoss(ctx context.Context) (float64, bool, error) {
	var loss float64
	err := s.db.QueryRowContext(ctx, `SELECT loss FROM training_records ORDER BY created_at DESC, rowid DESC LIMIT 1`).Scan(&loss)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, contracts.NewError(contracts.KindPersistence, "history.GetLatestLoss", err)
	}
	return loss, true, nil
}

// GetLossTrend returns the last window losses ordered oldest to newest.
func (s *Store) GetLossTrend(ctx context.Context, window int) ([]float64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT loss FROM (
			SELECT loss, created_at, rowid AS seq FROM training_records ORDER BY created_at DESC, rowid DESC LIMIT ?
		) ORDER BY created_at ASC, seq ASC`, window)
	if err != nil {
		return nil, contracts.NewError(contracts.KindPersistence, "history.GetLossTrend", err)
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var loss float64
		if err := rows.Scan(&loss); err != nil {
			return nil, contracts.NewError(contracts.KindPersistence, "history.GetLossTrend", err)
		}
		out = append(out, loss)
	}
	return out, rows.Err()
}

// GetEpochAverageLoss averages loss over every batch in an epoch.
func (s *Store) GetEpochAverageLoss(ctx context.Context, epoch int) (float64, bool, error) {
	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `SELECT AVG(loss) FROM training_records WHERE epoch = ?`, epoch).Scan(&avg)
	if err != nil {
		return 0, false, contracts.NewError(contracts.KindPersistence, "history.GetEpochAverageLoss", err)
	}
	if !avg.Valid {
		return 0, false, nil
	}
	return avg.Float64, true, nil
}

// GetBestLoss returns the minimum loss recorded across every batch.
func (s *Store) GetBestLoss(ctx context.Context) (float64, bool, error) {
	var best sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `SELECT MIN(loss) FROM training_records`).Scan(&best)
	if err != nil {
		return 0, false, contracts.NewError(contracts.KindPersistence, "history.GetBestLoss", err)
	}
	if !best.Valid {
		return 0, false, nil
	}
	return best.Float64, true, nil
}

// IsLossImproving compares the mean loss of the first and second half of
// the last window records; true means the second half's mean is lower.
// Fewer than 2 records in the window reports false, never an error.
func (s *Store) IsLossImproving(ctx context.Context, window int) (bool, error) {
	trend, err := s.GetLossTrend(ctx, window)
	if err != nil {
		return false, err
	}
	if len(trend) < 2 {
		return false, nil
	}
	mid := len(trend) / 2
	firstAvg := mean(trend[:mid])
	secondAvg := mean(trend[mid:])
	return secondAvg < firstAvg, nil
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// Cleanup deletes every record older than olderThan, returning the number
// removed.
func (s *Store) Cleanup(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM training_records WHERE created_at < ?`, olderThan)
	if err != nil {
		return 0, contracts.NewError(contracts.KindPersistence, "history.Cleanup", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, contracts.NewError(contracts.KindPersistence, "history.Cleanup", err)
	}
	return n, nil
}

// Count returns the total number of records stored.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM training_records`).Scan(&n); err != nil {
		return 0, contracts.NewError(contracts.KindPersistence, "history.Count", err)
	}
	return n, nil
}

// Exists reports whether a record with the given id is stored.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM training_records WHERE id = ?`, id).Scan(&n); err != nil {
		return false, contracts.NewError(contracts.KindPersistence, "history.Exists", err)
	}
	return n > 0, nil
}

// Stats summarizes the whole store for a status/health endpoint.
type Stats struct {
	Count     int
	BestLoss  float64
	HasBest   bool
	LatestLoss float64
	HasLatest bool
}

// GetStats gathers Count, GetBestLoss, and GetLatestLoss into one call.
func (s *Store) GetStats(ctx context.Context) (Stats, error) {
	count, err := s.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	best, hasBest, err := s.GetBestLoss(ctx)
	if err != nil {
		return Stats{}, err
	}
	latest, hasLatest, err := s.GetLatestLoss(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Count: count, BestLoss: best, HasBest: hasBest, LatestLoss: latest, HasLatest: hasLatest}, nil
}
