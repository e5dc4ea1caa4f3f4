package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/depthlab/bookpulse/internal/domain"
)

// SignalStore implements domain.SignalStore using PostgreSQL. The Metrics
// block is stored as JSONB so downstream audit queries can reach into it.
type SignalStore struct {
	pool *pgxpool.Pool
}

// NewSignalStore creates a new SignalStore backed by the given connection pool.
func NewSignalStore(pool *pgxpool.Pool) *SignalStore {
	return &SignalStore{pool: pool}
}

const signalColumns = `id, producer, instrument, ts, current_price, signal, confidence,
	explanation, entry_price, stop_loss_price, take_profit_price, metrics, error_code`

// Insert persists a produced signal result.
func (s *SignalStore) Insert(ctx context.Context, res domain.SignalResult) error {
	var metricsJSON []byte
	if res.Metrics != nil {
		var err error
		metricsJSON, err = json.Marshal(res.Metrics)
		if err != nil {
			return fmt.Errorf("postgres: marshal metrics: %w", err)
		}
	}

	const query = `
		INSERT INTO signals (` + signalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, 0::float8), NULLIF($10, 0::float8), NULLIF($11, 0::float8), $12, $13)`

	_, err := s.pool.Exec(ctx, query,
		res.ID, res.Producer, res.Instrument.String(), res.Timestamp, res.CurrentPrice,
		string(res.Signal), res.Confidence, res.Explanation,
		res.EntryPrice, res.StopLossPrice, res.TakeProfitPrice, metricsJSON, string(res.ErrorCode),
	)
	if err != nil {
		return fmt.Errorf("postgres: insert signal %s: %w", res.ID, err)
	}
	return nil
}

// GetLatest returns the most recent signal for an instrument, or
// domain.ErrNotFound when none exists.
func (s *SignalStore) GetLatest(ctx context.Context, instrument domain.Instrument) (domain.SignalResult, error) {
	const query = `
		SELECT ` + signalColumns + `
		FROM signals WHERE instrument = $1
		ORDER BY ts DESC LIMIT 1`

	res, err := scanSignal(s.pool.QueryRow(ctx, query, instrument.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SignalResult{}, domain.ErrNotFound
		}
		return domain.SignalResult{}, fmt.Errorf("postgres: get latest signal %s: %w", instrument, err)
	}
	return res, nil
}

// ListRecent returns up to limit most recent signals for an instrument,
// newest first.
func (s *SignalStore) ListRecent(ctx context.Context, instrument domain.Instrument, limit int) ([]domain.SignalResult, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT ` + signalColumns + `
		FROM signals WHERE instrument = $1
		ORDER BY ts DESC LIMIT $2`

	rows, err := s.pool.Query(ctx, query, instrument.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent signals %s: %w", instrument, err)
	}
	defer rows.Close()

	return collectSignals(rows)
}

// ListBefore returns all signals older than the cutoff, oldest first. Used by
// the archiver to page aged rows out to blob storage.
func (s *SignalStore) ListBefore(ctx context.Context, before time.Time) ([]domain.SignalResult, error) {
	const query = `
		SELECT ` + signalColumns + `
		FROM signals WHERE ts < $1
		ORDER BY ts ASC`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list signals before %s: %w", before, err)
	}
	defer rows.Close()

	return collectSignals(rows)
}

// DeleteBefore removes signals older than the cutoff and returns the count.
func (s *SignalStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM signals WHERE ts < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete signals before %s: %w", before, err)
	}
	return tag.RowsAffected(), nil
}

// Count returns the total number of stored signals.
func (s *SignalStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM signals`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count signals: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSignal(row rowScanner) (domain.SignalResult, error) {
	var (
		res         domain.SignalResult
		instrument  string
		sig         string
		errCode     string
		entry       *float64
		stop        *float64
		target      *float64
		metricsJSON []byte
	)

	err := row.Scan(
		&res.ID, &res.Producer, &instrument, &res.Timestamp, &res.CurrentPrice,
		&sig, &res.Confidence, &res.Explanation, &entry, &stop, &target, &metricsJSON, &errCode,
	)
	if err != nil {
		return domain.SignalResult{}, err
	}

	res.Instrument = domain.Instrument(instrument)
	res.Signal = domain.Signal(sig)
	res.ErrorCode = domain.ErrorCode(errCode)
	if entry != nil {
		res.EntryPrice = *entry
	}
	if stop != nil {
		res.StopLossPrice = *stop
	}
	if target != nil {
		res.TakeProfitPrice = *target
	}
	if len(metricsJSON) > 0 {
		var m domain.Metrics
		if err := json.Unmarshal(metricsJSON, &m); err != nil {
			return domain.SignalResult{}, fmt.Errorf("unmarshal metrics: %w", err)
		}
		res.Metrics = &m
	}
	return res, nil
}

func collectSignals(rows pgx.Rows) ([]domain.SignalResult, error) {
	var out []domain.SignalResult
	for rows.Next() {
		res, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan signal: %w", err)
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: signal rows: %w", err)
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.SignalStore = (*SignalStore)(nil)
