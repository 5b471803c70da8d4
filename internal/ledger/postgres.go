package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a pgxpool.Pool for database operations.
type DB struct {
	Pool *pgxpool.Pool
}

// NewDB creates a new database connection pool and verifies connectivity.
func NewDB(ctx context.Context, databaseURL string, minConns, maxConns int32, connectTimeout time.Duration) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	config.MinConns = minConns
	config.MaxConns = maxConns
	config.MaxConnLifetime = 1 * time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = 1 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes all connections in the pool.
func (db *DB) Close() {
	db.Pool.Close()
}

// Ping verifies database connectivity.
func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

const deliveryLogSchema = `
CREATE TABLE IF NOT EXISTS delivery_log (
	id               BIGSERIAL PRIMARY KEY,
	created_at       TIMESTAMPTZ NOT NULL,
	batch_id         UUID NOT NULL,
	recipient_id     TEXT NOT NULL,
	recipient_name   TEXT NOT NULL DEFAULT '',
	group_tag        TEXT NOT NULL DEFAULT '',
	body             TEXT NOT NULL,
	outcome          TEXT NOT NULL,
	status_code      INT NOT NULL DEFAULT 0,
	provider_message TEXT NOT NULL DEFAULT '',
	attempt_number   INT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS delivery_log_batch_id_idx ON delivery_log (batch_id);
`

// Postgres implements Ledger on a delivery_log table, keyed by append order.
type Postgres struct {
	db *DB
}

// NewPostgres creates a Postgres ledger over the given pool.
func NewPostgres(db *DB) *Postgres {
	return &Postgres{db: db}
}

// EnsureSchema creates the delivery_log table if it does not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.Pool.Exec(ctx, deliveryLogSchema); err != nil {
		return &PersistenceError{Op: "ensure schema", Err: err}
	}
	return nil
}

// Append inserts one attempt row.
func (p *Postgres) Append(ctx context.Context, a Attempt) error {
	const q = `
		INSERT INTO delivery_log
			(created_at, batch_id, recipient_id, recipient_name, group_tag,
			 body, outcome, status_code, provider_message, attempt_number)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := p.db.Pool.Exec(ctx, q,
		a.Timestamp, a.BatchID, a.RecipientID, a.RecipientName, a.GroupTag,
		a.Body, string(a.Outcome), a.StatusCode, a.ProviderMessage, a.AttemptNumber)
	if err != nil {
		return &PersistenceError{Op: "append", Err: err}
	}
	return nil
}

// ReadAll returns every attempt in append order.
func (p *Postgres) ReadAll(ctx context.Context) ([]Attempt, error) {
	const q = `
		SELECT created_at, batch_id, recipient_id, recipient_name, group_tag,
		       body, outcome, status_code, provider_message, attempt_number
		FROM delivery_log
		ORDER BY id`

	rows, err := p.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, &PersistenceError{Op: "read", Err: err}
	}
	defer rows.Close()

	var attempts []Attempt
	for rows.Next() {
		var a Attempt
		var outcome string
		if err := rows.Scan(&a.Timestamp, &a.BatchID, &a.RecipientID, &a.RecipientName,
			&a.GroupTag, &a.Body, &outcome, &a.StatusCode, &a.ProviderMessage, &a.AttemptNumber); err != nil {
			return nil, &PersistenceError{Op: "scan", Err: err}
		}
		a.Outcome = Outcome(outcome)
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, &PersistenceError{Op: "read", Err: err}
	}
	return attempts, nil
}
