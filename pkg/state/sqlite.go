// Copyright 2026 PaaSTA Tools Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// sqliteLockLease bounds how long a crashed holder can block other runs.
const sqliteLockLease = 10 * time.Minute

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS nodes (
	path       TEXT PRIMARY KEY,
	data       BLOB NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS locks (
	path       TEXT PRIMARY KEY,
	owner      TEXT NOT NULL,
	expires_at INTEGER NOT NULL
);
`

// SQLiteStore keeps state in a local SQLite file, for single-host
// deployments without a ZooKeeper ensemble.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (and creates if needed) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create state dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection serializes writers and keeps pragmas in effect.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Get retrieves a value.
func (s *SQLiteStore) Get(ctx context.Context, path string) ([]byte, error) {
	p, err := cleanPath(path)
	if err != nil {
		return nil, err
	}
	var data []byte
	err = s.db.QueryRowContext(ctx, "SELECT data FROM nodes WHERE path = ?", p).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", p, err)
	}
	return data, nil
}

// Set upserts path and its missing parents in one transaction.
func (s *SQLiteStore) Set(ctx context.Context, path string, data []byte) error {
	p, err := cleanPath(path)
	if err != nil {
		return err
	}
	if data == nil {
		data = []byte{}
	}
	now := s.now().Unix()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, parent := range parents(p) {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO nodes (path, data, updated_at) VALUES (?, ?, ?)",
			parent, []byte{}, now); err != nil {
			return fmt.Errorf("create %s: %w", parent, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO nodes (path, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		p, data, now); err != nil {
		return fmt.Errorf("set %s: %w", p, err)
	}
	return tx.Commit()
}

// Lock inserts a lease row for path, retrying until timeout. Expired
// leases are taken over.
func (s *SQLiteStore) Lock(ctx context.Context, path string, timeout time.Duration) (Lock, error) {
	p, err := cleanPath(path)
	if err != nil {
		return nil, err
	}
	owner := uuid.NewString()
	deadline := time.Now().Add(timeout)

	for {
		ok, err := s.tryLock(ctx, p, owner)
		if err != nil {
			return nil, err
		}
		if ok {
			return &sqliteLock{store: s, path: p, owner: owner}, nil
		}
		if !time.Now().Before(deadline) {
			return nil, lockHeld(p)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}

func (s *SQLiteStore) tryLock(ctx context.Context, path, owner string) (bool, error) {
	now := s.now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM locks WHERE path = ? AND expires_at <= ?", path, now.Unix()); err != nil {
		return false, fmt.Errorf("expire lock %s: %w", path, err)
	}
	res, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO locks (path, owner, expires_at) VALUES (?, ?, ?)",
		path, owner, now.Add(sqliteLockLease).Unix())
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", path, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return n == 1, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type sqliteLock struct {
	store *SQLiteStore
	path  string
	owner string
	once  sync.Once
}

func (l *sqliteLock) Unlock() error {
	var err error
	l.once.Do(func() {
		_, err = l.store.db.Exec("DELETE FROM locks WHERE path = ? AND owner = ?", l.path, l.owner)
	})
	return err
}
