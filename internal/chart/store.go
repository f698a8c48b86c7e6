package chart

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteSnapshotStore persists chart snapshots in a local SQLite file,
// one row per owner. This is device-local state, deliberately kept out of
// the remote document store.
type SQLiteSnapshotStore struct {
	db *sql.DB
}

func NewSQLiteSnapshotStore(dbPath string) (*SQLiteSnapshotStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create snapshot db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open snapshot database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping snapshot database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run snapshot migrations: %w", err)
	}

	return &SQLiteSnapshotStore{db: db}, nil
}

func (s *SQLiteSnapshotStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteSnapshotStore) Load(ctx context.Context, owner string) (Snapshot, bool, error) {
	var (
		dailyJSON   string
		lastResetAt sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT daily_cents, last_reset_at FROM chart_snapshots WHERE owner = ?`, owner,
	).Scan(&dailyJSON, &lastResetAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("select snapshot: %w", err)
	}

	snap := Snapshot{Owner: owner}
	if err := json.Unmarshal([]byte(dailyJSON), &snap.Daily); err != nil {
		return Snapshot{}, false, fmt.Errorf("decode daily buckets: %w", err)
	}
	if lastResetAt.Valid && lastResetAt.String != "" {
		t, err := time.Parse(time.RFC3339Nano, lastResetAt.String)
		if err != nil {
			return Snapshot{}, false, fmt.Errorf("parse last_reset_at: %w", err)
		}
		snap.LastResetAt = t
	}
	return snap, true, nil
}

func (s *SQLiteSnapshotStore) Save(ctx context.Context, snap Snapshot) error {
	dailyJSON, err := json.Marshal(snap.Daily)
	if err != nil {
		return fmt.Errorf("encode daily buckets: %w", err)
	}
	var lastResetAt string
	if !snap.LastResetAt.IsZero() {
		lastResetAt = snap.LastResetAt.Format(time.RFC3339Nano)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO chart_snapshots (owner, daily_cents, last_reset_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(owner) DO UPDATE SET
		   daily_cents = excluded.daily_cents,
		   last_reset_at = excluded.last_reset_at`,
		snap.Owner, string(dailyJSON), lastResetAt,
	)
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}
