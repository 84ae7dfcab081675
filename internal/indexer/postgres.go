// Package indexer copies auction events into PostgreSQL for off-line querying.
package indexer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/screa/d3caf/pkg/auction"
)

const schema = `
CREATE TABLE IF NOT EXISTS auction_events (
	id          BIGSERIAL PRIMARY KEY,
	seq         BIGINT NOT NULL,
	kind        TEXT NOT NULL,
	request_id  TEXT NOT NULL,
	height      BIGINT NOT NULL,
	payload     JSONB NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS auction_events_request_idx ON auction_events (request_id);
CREATE INDEX IF NOT EXISTS auction_events_kind_idx ON auction_events (kind);
`

// Row is one auction_events record
type Row struct {
	Seq       uint64
	Kind      string
	RequestID string
	Height    uint64
	Payload   []byte
}

// RowFromEvent flattens ev into a table row. The payload carries the full event.
func RowFromEvent(ev auction.Event) (Row, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return Row{}, fmt.Errorf("failed to marshal event payload: %w", err)
	}
	return Row{
		Seq:       ev.Seq,
		Kind:      string(ev.Kind),
		RequestID: ev.RequestID.Hex(),
		Height:    ev.Height,
		Payload:   payload,
	}, nil
}

// PostgresSink is an auction.EventSink backed by a pgx pool
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink connects to databaseURL and verifies the connection
func NewPostgresSink(ctx context.Context, databaseURL string) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresSink{pool: pool}, nil
}

// Migrate creates the events table if it does not exist
func (s *PostgresSink) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// HandleEvent inserts ev
func (s *PostgresSink) HandleEvent(ctx context.Context, ev auction.Event) error {
	row, err := RowFromEvent(ev)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO auction_events (seq, kind, request_id, height, payload)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := s.pool.Exec(ctx, query, int64(row.Seq), row.Kind, row.RequestID, int64(row.Height), row.Payload); err != nil {
		return fmt.Errorf("failed to save %s event: %w", row.Kind, err)
	}
	return nil
}

// EventsForRequest returns the recorded events of one request in insertion order
func (s *PostgresSink) EventsForRequest(ctx context.Context, requestID string) ([]auction.Event, error) {
	query := `SELECT payload FROM auction_events WHERE request_id = $1 ORDER BY id ASC`

	rows, err := s.pool.Query(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (auction.Event, error) {
		var payload []byte
		if err := row.Scan(&payload); err != nil {
			return auction.Event{}, err
		}
		var ev auction.Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			return auction.Event{}, fmt.Errorf("failed to unmarshal payload: %w", err)
		}
		return ev, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan events: %w", err)
	}
	return events, nil
}

// Close releases the pool
func (s *PostgresSink) Close() {
	s.pool.Close()
}
