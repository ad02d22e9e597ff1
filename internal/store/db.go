// Package store implements durable accounting and the tenant/API-key
// store on top of Postgres, using raw SQL with a pooled connection.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// DB wraps a pooled *sql.DB and applies the gateway's fixed schema once at
// startup. Migration frameworks are out of scope; the schema is idempotent
// via CREATE TABLE IF NOT EXISTS.
type DB struct {
	*sql.DB
}

func Open(dsn string) (*DB, error) {
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{DB: sqlDB}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS tenants (
  id UUID PRIMARY KEY,
  name VARCHAR(200) NOT NULL UNIQUE,
  tier VARCHAR(50) NOT NULL DEFAULT 'free',
  token_limit_per_day BIGINT,
  spend_limit_per_day_usd DOUBLE PRECISION,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS api_keys (
  id UUID PRIMARY KEY,
  tenant_id UUID NOT NULL REFERENCES tenants(id),
  name VARCHAR(200) NOT NULL,
  key_hash VARCHAR(200) NOT NULL UNIQUE,
  active BOOLEAN NOT NULL DEFAULT true,
  created_by UUID,
  last_used_at TIMESTAMPTZ,
  revoked_at TIMESTAMPTZ,
  revoked_reason VARCHAR(300),
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  UNIQUE(tenant_id, name)
);

CREATE TABLE IF NOT EXISTS requests (
  id UUID PRIMARY KEY,
  tenant_id UUID NOT NULL REFERENCES tenants(id),
  model VARCHAR(100) NOT NULL,
  status VARCHAR(50) NOT NULL,
  request_payload TEXT,
  response_payload TEXT,
  latency_ms BIGINT,
  prompt_tokens BIGINT,
  completion_tokens BIGINT,
  total_tokens BIGINT,
  cost_usd DOUBLE PRECISION,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  completed_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS ix_requests_tenant_id ON requests(tenant_id);
CREATE INDEX IF NOT EXISTS ix_requests_created_at ON requests(created_at);

CREATE TABLE IF NOT EXISTS usage_events (
  id UUID PRIMARY KEY,
  tenant_id UUID NOT NULL REFERENCES tenants(id),
  request_id UUID NOT NULL REFERENCES requests(id),
  model VARCHAR(100) NOT NULL,
  tokens BIGINT NOT NULL,
  cost_usd DOUBLE PRECISION NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS ix_usage_events_tenant_id ON usage_events(tenant_id);
CREATE INDEX IF NOT EXISTS ix_usage_events_created_at ON usage_events(created_at);

CREATE TABLE IF NOT EXISTS admin_actions (
  id UUID PRIMARY KEY,
  actor_tenant_id UUID,
  action VARCHAR(100) NOT NULL,
  target_type VARCHAR(100) NOT NULL,
  target_id VARCHAR(200),
  metadata_json TEXT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS pricing (
  model VARCHAR(100) PRIMARY KEY,
  input_per_1k DOUBLE PRECISION NOT NULL,
  output_per_1k DOUBLE PRECISION NOT NULL,
  cached_per_1k DOUBLE PRECISION NOT NULL DEFAULT 0,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Bootstrap applies the fixed schema. Safe to call on every startup.
func (db *DB) Bootstrap(ctx context.Context) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}
