// Package store persists canonical events and scrape-run rows in Postgres
// through a pgxpool connection pool.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aluiziolira/agenda-events/models"
)

const (
	eventsTable = "events"
	runsTable   = "scrape_runs"
)

// Store wraps pgxpool.Pool with the pipeline's persistence operations.
type Store struct {
	pool *pgxpool.Pool
}

// New creates and validates a connection pool from a database URL.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// CreateRun inserts a scrape_runs row in running state and returns its id.
func (s *Store) CreateRun(ctx context.Context, source models.Source, city string) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx, `
		INSERT INTO `+runsTable+` (source, city, status, started_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id`,
		string(source), city, string(models.RunRunning),
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	return id, nil
}

// FinalizeRun moves a run to its terminal state with final metrics. Called
// exactly once per run; errMsg is stored only for failed runs.
func (s *Store) FinalizeRun(ctx context.Context, runID string, status models.RunStatus, metrics models.RunMetrics, errMsg string) error {
	var msg *string
	if status == models.RunFailed {
		msg = &errMsg
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE `+runsTable+` SET
			status = $2,
			ended_at = NOW(),
			items_fetched = $3,
			items_valid = $4,
			items_invalid = $5,
			items_upserted = $6,
			error_message = $7
		WHERE id = $1`,
		runID, string(status),
		metrics.Fetched, metrics.Valid, metrics.Invalid, metrics.Upserted,
		msg,
	)
	if err != nil {
		return fmt.Errorf("finalize run %s: %w", runID, err)
	}
	return nil
}

// UpsertEvents writes the batch keyed on (source, external_id): existing
// rows have every mutable field overwritten, new rows are inserted. The
// batch is sent in one pgx pipeline; an empty batch is a no-op.
func (s *Store) UpsertEvents(ctx context.Context, events []*models.Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, ev := range events {
		payload, _ := json.Marshal(ev.RawPayload)
		batch.Queue(`
			INSERT INTO `+eventsTable+` (
				source, external_id, title, start_datetime, city,
				venue_name, image_url, category, is_free, min_price,
				price_text, url, raw_payload
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
			ON CONFLICT (source, external_id) DO UPDATE SET
				title = EXCLUDED.title,
				start_datetime = EXCLUDED.start_datetime,
				city = EXCLUDED.city,
				venue_name = EXCLUDED.venue_name,
				image_url = EXCLUDED.image_url,
				category = EXCLUDED.category,
				is_free = EXCLUDED.is_free,
				min_price = EXCLUDED.min_price,
				price_text = EXCLUDED.price_text,
				url = EXCLUDED.url,
				raw_payload = EXCLUDED.raw_payload,
				updated_at = NOW()`,
			string(ev.Source), ev.ExternalID, ev.Title, ev.StartDatetime, ev.City,
			nilEmpty(ev.VenueName), nilEmpty(ev.ImageURL), nilEmpty(ev.Category),
			ev.IsFree, nilZero(ev.MinPrice), nilEmpty(ev.PriceText), ev.URL, payload,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range events {
		if _, err := results.Exec(); err != nil {
			return 0, fmt.Errorf("upsert events: %w", err)
		}
	}
	return len(events), nil
}

func nilEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nilZero(f float64) *float64 {
	if f == 0 {
		return nil
	}
	return &f
}
