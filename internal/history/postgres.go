package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cryptoradar/radarshot/internal/radar"
)

// PgxPool is the pool subset the store needs; pgxmock satisfies it.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore keeps publication history in a single table, for
// deployments that already run a database instead of relying on a local
// file. Schema:
//
//	CREATE TABLE publication_history (
//	    source       TEXT PRIMARY KEY,
//	    name         TEXT NOT NULL,
//	    published_at TIMESTAMPTZ NOT NULL,
//	    channels     JSONB NOT NULL
//	);
type PostgresStore struct {
	pool PgxPool
}

// NewPostgresStore connects a pool from the DSN.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("history.dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewPostgresStoreWithPool(pool PgxPool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &PostgresStore{pool: pool}, nil
}

// LastPublished looks up the stored timestamp for sourceID.
func (s *PostgresStore) LastPublished(ctx context.Context, sourceID string) (time.Time, bool, error) {
	var ts time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT published_at FROM publication_history WHERE source = $1`,
		sourceID,
	).Scan(&ts)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query last published: %w", err)
	}
	return ts, true, nil
}

// Record upserts the publication row for the source.
func (s *PostgresStore) Record(ctx context.Context, pub radar.Publication) error {
	channels, err := json.Marshal(pub.Channels)
	if err != nil {
		return fmt.Errorf("marshal channels: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO publication_history (source, name, published_at, channels)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (source)
		 DO UPDATE SET name = EXCLUDED.name,
		               published_at = EXCLUDED.published_at,
		               channels = EXCLUDED.channels`,
		pub.Source, pub.Name, pub.PublishedAt.UTC(), channels,
	)
	if err != nil {
		return fmt.Errorf("record publication: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
