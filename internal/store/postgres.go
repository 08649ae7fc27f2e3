package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	log "github.com/sirupsen/logrus"
)

const pgTimeout = 5 * time.Second

const pgSchema = `
CREATE TABLE IF NOT EXISTS principals (
    id         BIGINT PRIMARY KEY,
    record     JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresBackend stores principal records in a single table with a JSONB
// record column. Schema is applied at Initialize.
type PostgresBackend struct {
	dsn string
	db  *sql.DB
}

// NewPostgresBackend creates a PostgreSQL-backed store.
func NewPostgresBackend(dsn string) *PostgresBackend {
	return &PostgresBackend{dsn: dsn}
}

func withPGTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, pgTimeout)
}

func (p *PostgresBackend) Initialize(ctx context.Context) error {
	db, err := sql.Open("postgres", p.dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := withPGTimeout(ctx)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return fmt.Errorf("connect to database: %w", err)
	}

	if _, err := db.ExecContext(pingCtx, pgSchema); err != nil {
		db.Close()
		return fmt.Errorf("apply schema: %w", err)
	}

	p.db = db
	log.Info("Connected to PostgreSQL principal store")
	return nil
}

func (p *PostgresBackend) Close() error {
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}

func (p *PostgresBackend) Health(ctx context.Context) error {
	if p.db == nil {
		return fmt.Errorf("postgres store not initialized")
	}
	ctx, cancel := withPGTimeout(ctx)
	defer cancel()
	return p.db.PingContext(ctx)
}

func (p *PostgresBackend) LoadPrincipals(ctx context.Context) (map[int64]*PrincipalRecord, error) {
	ctx, cancel := withPGTimeout(ctx)
	defer cancel()

	rows, err := p.db.QueryContext(ctx, "SELECT id, record FROM principals ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list principals: %w", err)
	}
	defer rows.Close()

	records := make(map[int64]*PrincipalRecord)
	for rows.Next() {
		var id int64
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scan principal row: %w", err)
		}
		var rec PrincipalRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, fmt.Errorf("decode principal %d: %w", id, err)
		}
		rec.Principal = id
		records[id] = &rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate principals: %w", err)
	}
	return records, nil
}

func (p *PostgresBackend) SavePrincipals(ctx context.Context, records map[int64]*PrincipalRecord) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	for _, rec := range records {
		payload, err := json.Marshal(rec)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("encode principal %d: %w", rec.Principal, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO principals (id, record, updated_at) VALUES ($1, $2, now())
			 ON CONFLICT (id) DO UPDATE SET record = EXCLUDED.record, updated_at = now()`,
			rec.Principal, payload); err != nil {
			tx.Rollback()
			return fmt.Errorf("upsert principal %d: %w", rec.Principal, err)
		}
	}
	return tx.Commit()
}

func (p *PostgresBackend) SavePrincipal(ctx context.Context, rec *PrincipalRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode principal %d: %w", rec.Principal, err)
	}

	ctx, cancel := withPGTimeout(ctx)
	defer cancel()
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO principals (id, record, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (id) DO UPDATE SET record = EXCLUDED.record, updated_at = now()`,
		rec.Principal, payload)
	if err != nil {
		return fmt.Errorf("upsert principal %d: %w", rec.Principal, err)
	}
	return nil
}

func (p *PostgresBackend) DeletePrincipal(ctx context.Context, principal int64) error {
	ctx, cancel := withPGTimeout(ctx)
	defer cancel()
	_, err := p.db.ExecContext(ctx, "DELETE FROM principals WHERE id = $1", principal)
	return err
}
