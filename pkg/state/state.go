// Copyright 2026 PaaSTA Tools Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package state stores small pieces of autoscaling state (instance counts,
// controller memory, cpu samples) under slash separated paths, and provides
// the cluster-wide run lock.
package state

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/paasta-tools/paasta/pkg/config"
	perrors "github.com/paasta-tools/paasta/pkg/errors"
	"github.com/paasta-tools/paasta/pkg/observability"
)

var (
	// ErrNotFound is returned by Get when the path holds no value.
	ErrNotFound = errors.New("state: no node at path")
	// ErrLockHeld is wrapped by the error Lock returns when the timeout
	// expires.
	ErrLockHeld = errors.New("state: lock is held")
)

func lockHeld(path string) error {
	return perrors.LockHeldError("lock "+path+" is held by another process", ErrLockHeld).WithContext("path", path)
}

// Store is a hierarchical key/value store.
type Store interface {
	// Get returns the value stored at path or ErrNotFound.
	Get(ctx context.Context, path string) ([]byte, error)
	// Set stores data at path, creating missing parents.
	Set(ctx context.Context, path string, data []byte) error
	// Lock acquires an exclusive lock named by path, waiting at most timeout.
	Lock(ctx context.Context, path string, timeout time.Duration) (Lock, error)
	// Close releases the store's connections. Held locks are released.
	Close() error
}

// Lock is a held lock.
type Lock interface {
	Unlock() error
}

// Open creates the store selected by cfg.State.Backend.
func Open(cfg *config.Config, log observability.Logger) (Store, error) {
	switch cfg.State.Backend {
	case config.BackendZookeeper:
		return DialZookeeper(cfg.Zookeeper.Hosts, cfg.Zookeeper.SessionTimeout, log)
	case config.BackendSQLite:
		return OpenSQLite(cfg.State.Path)
	case config.BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.State.Backend)
	}
}

// GetFloat reads a float stored as text.
func GetFloat(ctx context.Context, s Store, path string) (float64, error) {
	data, err := s.Get(ctx, path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	return v, nil
}

// SetFloat stores a float as text.
func SetFloat(ctx context.Context, s Store, path string, v float64) error {
	return s.Set(ctx, path, []byte(strconv.FormatFloat(v, 'f', -1, 64)))
}

// GetInt reads an integer stored as text.
func GetInt(ctx context.Context, s Store, path string) (int, error) {
	data, err := s.Get(ctx, path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	return v, nil
}

// SetInt stores an integer as text.
func SetInt(ctx context.Context, s Store, path string, v int) error {
	return s.Set(ctx, path, []byte(strconv.Itoa(v)))
}

// cleanPath normalizes path to a leading slash and no trailing slash.
func cleanPath(path string) (string, error) {
	parts := splitPath(path)
	if len(parts) == 0 {
		return "", fmt.Errorf("invalid state path %q", path)
	}
	return "/" + strings.Join(parts, "/"), nil
}

func splitPath(path string) []string {
	var parts []string
	for _, p := range strings.Split(path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// parents returns every proper ancestor of path, root first.
func parents(path string) []string {
	parts := splitPath(path)
	out := make([]string, 0, len(parts))
	for i := 1; i < len(parts); i++ {
		out = append(out, "/"+strings.Join(parts[:i], "/"))
	}
	return out
}
