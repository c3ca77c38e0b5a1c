// Copyright 2026 PaaSTA Tools Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package state

import (
	"context"
	"sync"
	"time"
)

// lockPollInterval is how often in-process and sqlite locks are retried.
const lockPollInterval = 20 * time.Millisecond

// MemoryStore is an in-process store used by tests and dry runs.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string][]byte
	locks map[string]struct{}
}

// NewMemoryStore creates an empty memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string][]byte),
		locks: make(map[string]struct{}),
	}
}

// Get retrieves a value.
func (m *MemoryStore) Get(ctx context.Context, path string) ([]byte, error) {
	p, err := cleanPath(path)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.items[p]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Set stores a value and creates empty parents.
func (m *MemoryStore) Set(ctx context.Context, path string, data []byte) error {
	p, err := cleanPath(path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, parent := range parents(p) {
		if _, ok := m.items[parent]; !ok {
			m.items[parent] = []byte{}
		}
	}
	m.items[p] = append([]byte(nil), data...)
	return nil
}

// Lock acquires path, polling until timeout.
func (m *MemoryStore) Lock(ctx context.Context, path string, timeout time.Duration) (Lock, error) {
	p, err := cleanPath(path)
	if err != nil {
		return nil, err
	}
	deadline := time.Now().Add(timeout)
	for {
		m.mu.Lock()
		if _, held := m.locks[p]; !held {
			m.locks[p] = struct{}{}
			m.mu.Unlock()
			return &memoryLock{store: m, path: p}, nil
		}
		m.mu.Unlock()

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

// Close drops all locks.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locks = make(map[string]struct{})
	return nil
}

type memoryLock struct {
	store *MemoryStore
	path  string
	once  sync.Once
}

func (l *memoryLock) Unlock() error {
	l.once.Do(func() {
		l.store.mu.Lock()
		delete(l.store.locks, l.path)
		l.store.mu.Unlock()
	})
	return nil
}
