// Package sqlite stores profile records in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/JakeFAU/roster-crawler/internal/crawler"
)

// Config controls where the database lives.
type Config struct {
	Path string
}

// RecordStore upserts ProfileRecords keyed by profile URL.
type RecordStore struct {
	db   *sql.DB
	path string
}

// Open opens or creates the database at cfg.Path.
func Open(ctx context.Context, cfg Config) (*RecordStore, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, fmt.Errorf("sink.sqlite.path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite has a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &RecordStore{db: db, path: path}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *RecordStore) createTables(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS agent_profiles (
	profile_url     TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	job_title       TEXT NOT NULL,
	image_url       TEXT NOT NULL,
	address         TEXT NOT NULL,
	contact_details TEXT NOT NULL,
	social_accounts TEXT NOT NULL,
	offices         TEXT NOT NULL,
	languages       TEXT NOT NULL,
	description     TEXT NOT NULL,
	updated_at      DATETIME NOT NULL
)`)
	return err
}

// Path returns the database file location.
func (s *RecordStore) Path() string {
	return s.path
}

// Write upserts rec.
func (s *RecordStore) Write(ctx context.Context, rec crawler.ProfileRecord) error {
	if rec.ProfileURL == "" {
		return fmt.Errorf("profile url is required")
	}
	cols, err := encodeColumns(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO agent_profiles (
	profile_url, name, job_title, image_url, address,
	contact_details, social_accounts, offices, languages, description, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(profile_url) DO UPDATE SET
	name = excluded.name,
	job_title = excluded.job_title,
	image_url = excluded.image_url,
	address = excluded.address,
	contact_details = excluded.contact_details,
	social_accounts = excluded.social_accounts,
	offices = excluded.offices,
	languages = excluded.languages,
	description = excluded.description,
	updated_at = excluded.updated_at`,
		rec.ProfileURL, rec.Name, rec.JobTitle, rec.ImageURL, rec.Address,
		cols.contacts, cols.socials, cols.offices, cols.languages, rec.Description,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// Get loads one record by profile URL. It returns sql.ErrNoRows when absent.
func (s *RecordStore) Get(ctx context.Context, profileURL string) (crawler.ProfileRecord, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT profile_url, name, job_title, image_url, address,
	contact_details, social_accounts, offices, languages, description
FROM agent_profiles WHERE profile_url = ?`, profileURL)

	var (
		rec  crawler.ProfileRecord
		cols columns
	)
	if err := row.Scan(
		&rec.ProfileURL, &rec.Name, &rec.JobTitle, &rec.ImageURL, &rec.Address,
		&cols.contacts, &cols.socials, &cols.offices, &cols.languages, &rec.Description,
	); err != nil {
		return crawler.ProfileRecord{}, fmt.Errorf("load profile %s: %w", profileURL, err)
	}
	if err := cols.decodeInto(&rec); err != nil {
		return crawler.ProfileRecord{}, err
	}
	return rec, nil
}

// Count returns the number of stored profiles.
func (s *RecordStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM agent_profiles`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count profiles: %w", err)
	}
	return n, nil
}

// Close closes the database connection.
func (s *RecordStore) Close(context.Context) error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

// columns holds the JSON-encoded collection fields.
type columns struct {
	contacts  string
	socials   string
	offices   string
	languages string
}

func encodeColumns(rec crawler.ProfileRecord) (columns, error) {
	var cols columns
	for _, f := range []struct {
		dst *string
		v   any
	}{
		{&cols.contacts, rec.ContactDetails},
		{&cols.socials, rec.SocialAccounts},
		{&cols.offices, nonNil(rec.Offices)},
		{&cols.languages, nonNil(rec.Languages)},
	} {
		b, err := json.Marshal(f.v)
		if err != nil {
			return columns{}, fmt.Errorf("marshal record columns: %w", err)
		}
		*f.dst = string(b)
	}
	return cols, nil
}

func (c columns) decodeInto(rec *crawler.ProfileRecord) error {
	if err := json.Unmarshal([]byte(c.contacts), &rec.ContactDetails); err != nil {
		return fmt.Errorf("decode contact details: %w", err)
	}
	if err := json.Unmarshal([]byte(c.socials), &rec.SocialAccounts); err != nil {
		return fmt.Errorf("decode social accounts: %w", err)
	}
	if err := json.Unmarshal([]byte(c.offices), &rec.Offices); err != nil {
		return fmt.Errorf("decode offices: %w", err)
	}
	if err := json.Unmarshal([]byte(c.languages), &rec.Languages); err != nil {
		return fmt.Errorf("decode languages: %w", err)
	}
	return nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
