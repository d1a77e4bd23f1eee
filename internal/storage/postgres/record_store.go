// Package postgres persists profile records and run summaries in Postgres.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/roster-crawler/internal/crawler"
)

const (
	defaultTable     = "agent_profiles"
	defaultRunsTable = "crawl_runs"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for profile rows.
type Config struct {
	DSN             string
	Table           string
	RunsTable       string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// RecordStore upserts ProfileRecords keyed by profile URL.
type RecordStore struct {
	pool      execCloser
	table     string
	runsTable string
}

// New connects to Postgres and creates the tables if needed.
func New(ctx context.Context, cfg Config) (*RecordStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("sink.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	store, err := NewWithPool(pool, cfg.Table, cfg.RunsTable)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool execCloser, table, runsTable string) (*RecordStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if runsTable == "" {
		runsTable = defaultRunsTable
	}
	for _, name := range []string{table, runsTable} {
		if !validTableName.MatchString(name) {
			return nil, fmt.Errorf("invalid table name %q", name)
		}
	}
	return &RecordStore{pool: pool, table: table, runsTable: runsTable}, nil
}

// EnsureSchema creates the profile and run tables.
func (s *RecordStore) EnsureSchema(ctx context.Context) error {
	profiles := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	profile_url     TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	job_title       TEXT NOT NULL,
	image_url       TEXT NOT NULL,
	address         TEXT NOT NULL,
	contact_details JSONB NOT NULL,
	social_accounts JSONB NOT NULL,
	offices         JSONB NOT NULL,
	languages       JSONB NOT NULL,
	description     TEXT NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.table)
	if _, err := s.pool.Exec(ctx, profiles); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	runs := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id              TEXT PRIMARY KEY,
	started_at          TIMESTAMPTZ NOT NULL,
	finished_at         TIMESTAMPTZ,
	total_count         INTEGER NOT NULL,
	pages_fetched       INTEGER NOT NULL,
	profiles_discovered INTEGER NOT NULL,
	records_emitted     INTEGER NOT NULL,
	profile_failures    INTEGER NOT NULL,
	sink_failures       INTEGER NOT NULL,
	halt_reason         TEXT NOT NULL
)`, s.runsTable)
	if _, err := s.pool.Exec(ctx, runs); err != nil {
		return fmt.Errorf("create %s: %w", s.runsTable, err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *RecordStore) Close(context.Context) error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// Write upserts rec. A later crawl overwrites every column.
func (s *RecordStore) Write(ctx context.Context, rec crawler.ProfileRecord) error {
	if rec.ProfileURL == "" {
		return fmt.Errorf("profile url is required")
	}
	contacts, err := json.Marshal(rec.ContactDetails)
	if err != nil {
		return fmt.Errorf("marshal contact details: %w", err)
	}
	socials, err := json.Marshal(rec.SocialAccounts)
	if err != nil {
		return fmt.Errorf("marshal social accounts: %w", err)
	}
	offices, err := json.Marshal(nonNil(rec.Offices))
	if err != nil {
		return fmt.Errorf("marshal offices: %w", err)
	}
	languages, err := json.Marshal(nonNil(rec.Languages))
	if err != nil {
		return fmt.Errorf("marshal languages: %w", err)
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	profile_url,
	name,
	job_title,
	image_url,
	address,
	contact_details,
	social_accounts,
	offices,
	languages,
	description
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)
ON CONFLICT (profile_url) DO UPDATE SET
	name = EXCLUDED.name,
	job_title = EXCLUDED.job_title,
	image_url = EXCLUDED.image_url,
	address = EXCLUDED.address,
	contact_details = EXCLUDED.contact_details,
	social_accounts = EXCLUDED.social_accounts,
	offices = EXCLUDED.offices,
	languages = EXCLUDED.languages,
	description = EXCLUDED.description,
	updated_at = now()`, s.table)

	if _, err := s.pool.Exec(ctx, query,
		rec.ProfileURL,
		rec.Name,
		rec.JobTitle,
		rec.ImageURL,
		rec.Address,
		contacts,
		socials,
		offices,
		languages,
		rec.Description,
	); err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// RecordRun upserts the summary of a crawl run.
func (s *RecordStore) RecordRun(ctx context.Context, stats crawler.RunStats) error {
	if stats.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	started_at,
	finished_at,
	total_count,
	pages_fetched,
	profiles_discovered,
	records_emitted,
	profile_failures,
	sink_failures,
	halt_reason
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)
ON CONFLICT (run_id) DO UPDATE SET
	finished_at = EXCLUDED.finished_at,
	total_count = EXCLUDED.total_count,
	pages_fetched = EXCLUDED.pages_fetched,
	profiles_discovered = EXCLUDED.profiles_discovered,
	records_emitted = EXCLUDED.records_emitted,
	profile_failures = EXCLUDED.profile_failures,
	sink_failures = EXCLUDED.sink_failures,
	halt_reason = EXCLUDED.halt_reason`, s.runsTable)

	if _, err := s.pool.Exec(ctx, query,
		stats.RunID,
		stats.StartedAt,
		stats.FinishedAt,
		stats.TotalCount,
		stats.PagesFetched,
		stats.ProfilesDiscovered,
		stats.RecordsEmitted,
		stats.ProfileFailures,
		stats.SinkFailures,
		stats.HaltReason,
	); err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}
	return nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
