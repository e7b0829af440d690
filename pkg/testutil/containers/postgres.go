//go:build integration

package containers

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// schema is the full service schema, applied once per container so every
// store's integration test runs against the real DDL.
const schema = `
CREATE TABLE IF NOT EXISTS verifications (
	id         UUID PRIMARY KEY,
	user_id    UUID NOT NULL,
	status     TEXT NOT NULL,
	sandbox    BOOLEAN NOT NULL DEFAULT FALSE,
	context    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_verifications_user ON verifications (user_id);
CREATE INDEX IF NOT EXISTS idx_verifications_status_updated ON verifications (status, updated_at);

CREATE TABLE IF NOT EXISTS audit_events (
	occurred_at     TIMESTAMPTZ NOT NULL,
	verification_id UUID NOT NULL,
	user_id         UUID NOT NULL,
	action          TEXT NOT NULL,
	reason          TEXT NOT NULL DEFAULT '',
	request_id      TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_audit_events_verification ON audit_events (verification_id, occurred_at);

CREATE TABLE IF NOT EXISTS organization_threshold_overrides (
	organization_id UUID NOT NULL,
	metric          TEXT NOT NULL,
	threshold       DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (organization_id, metric)
);

CREATE TABLE IF NOT EXISTS webhook_targets (
	id              UUID PRIMARY KEY,
	organization_id UUID,
	url             TEXT NOT NULL,
	secret          TEXT NOT NULL,
	events          TEXT[] NOT NULL DEFAULT '{}',
	active          BOOLEAN NOT NULL DEFAULT TRUE,
	created_at      TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS webhook_deliveries (
	id              UUID PRIMARY KEY,
	target_id       UUID NOT NULL,
	verification_id UUID NOT NULL,
	event           TEXT NOT NULL,
	payload         JSONB NOT NULL,
	status          TEXT NOT NULL,
	attempts        INT NOT NULL DEFAULT 0,
	next_attempt_at TIMESTAMPTZ NOT NULL,
	response_status INT NOT NULL DEFAULT 0,
	last_error      TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_webhook_deliveries_target ON webhook_deliveries (target_id, created_at);
CREATE INDEX IF NOT EXISTS idx_webhook_deliveries_due ON webhook_deliveries (status, next_attempt_at);

CREATE TABLE IF NOT EXISTS api_keys (
	id              UUID PRIMARY KEY,
	organization_id UUID,
	name            TEXT NOT NULL,
	prefix          TEXT NOT NULL UNIQUE,
	hash            BYTEA NOT NULL,
	sandbox         BOOLEAN NOT NULL,
	active          BOOLEAN NOT NULL DEFAULT TRUE,
	created_at      TIMESTAMPTZ NOT NULL,
	last_used_at    TIMESTAMPTZ
);
`

// NewPostgresDB starts a PostgreSQL container, applies the service schema,
// and returns a connected handle. Everything is torn down with the test.
func NewPostgresDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("idswyft_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("postgres connection string: %v", err)
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("ping postgres: %v", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return db
}
