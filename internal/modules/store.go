// Package modules provides optional, opt-in feature modules for the proxy
// server. This file adapts the teacher's Redis-backed usage-statistics
// store (pkg/redis/stats.go) onto a local SQLite file, since queryable
// per-request history has no place in internal/tokenstore's JSON account
// document.
package modules

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// UsageStore persists per-request usage rows (account, model family, model
// name, outcome) to a local SQLite file, queryable for operator history
// beyond what the account pool tracks in memory.
type UsageStore struct {
	db *sql.DB
}

// DefaultUsageDBPath resolves to aether-bridge/usage.db under the OS config
// directory, alongside internal/tokenstore's accounts.json.
func DefaultUsageDBPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolving config dir: %w", err)
	}
	dir = filepath.Join(dir, "aether-bridge")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	return filepath.Join(dir, "usage.db"), nil
}

// OpenUsageStore opens (creating if absent) the SQLite usage log at path.
func OpenUsageStore(path string) (*UsageStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening usage db: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: one writer, avoids SQLITE_BUSY

	const schema = `
CREATE TABLE IF NOT EXISTS requests (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ts INTEGER NOT NULL,
	account_email TEXT NOT NULL,
	family TEXT NOT NULL,
	model TEXT NOT NULL,
	outcome TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_requests_ts ON requests(ts);
`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &UsageStore{db: db}, nil
}

func (s *UsageStore) Close() error { return s.db.Close() }

// RecordRequest inserts one completed-request row.
func (s *UsageStore) RecordRequest(ctx context.Context, accountEmail, family, model, outcome string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO requests (ts, account_email, family, model, outcome) VALUES (?, ?, ?, ?, ?)`,
		time.Now().Unix(), accountEmail, family, model, outcome)
	return err
}

// HourlyCount is one hour-bucket's aggregate request count, broken down by
// model family and model name.
type HourlyCount struct {
	Hour     string
	Total    int64
	Families map[string]*FamilyCount
}

type FamilyCount struct {
	Subtotal int64
	Models   map[string]int64
}

// History aggregates the last `days` days of requests into hourly buckets,
// in the shape the WebUI-era stats dashboard expected from Redis.
func (s *UsageStore) History(ctx context.Context, days int) (map[string]*HourlyCount, error) {
	cutoff := time.Now().AddDate(0, 0, -days).Unix()
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, family, model FROM requests WHERE ts >= ? ORDER BY ts`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	result := make(map[string]*HourlyCount)
	for rows.Next() {
		var ts int64
		var family, model string
		if err := rows.Scan(&ts, &family, &model); err != nil {
			return nil, err
		}
		hourKey := time.Unix(ts, 0).UTC().Format("2006-01-02T15")

		bucket, ok := result[hourKey]
		if !ok {
			bucket = &HourlyCount{Hour: hourKey, Families: make(map[string]*FamilyCount)}
			result[hourKey] = bucket
		}
		bucket.Total++

		fam, ok := bucket.Families[family]
		if !ok {
			fam = &FamilyCount{Models: make(map[string]int64)}
			bucket.Families[family] = fam
		}
		fam.Subtotal++
		fam.Models[model]++
	}
	return result, rows.Err()
}

// PruneOlderThan deletes rows older than `days` days, returning the count
// removed.
func (s *UsageStore) PruneOlderThan(ctx context.Context, days int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -days).Unix()
	res, err := s.db.ExecContext(ctx, `DELETE FROM requests WHERE ts < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
