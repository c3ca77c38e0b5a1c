// Copyright 2026 PaaSTA Tools Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package state

import (
	"context"
	"errors"
	"time"
)

// OverlayStore reads through to a base store but keeps every write in
// memory. Dry runs use it so that controller state evolves within the run
// without touching the shared store.
type OverlayStore struct {
	base  Store
	delta *MemoryStore
}

// NewOverlay wraps base.
func NewOverlay(base Store) *OverlayStore {
	return &OverlayStore{base: base, delta: NewMemoryStore()}
}

// Get prefers values written through the overlay.
func (o *OverlayStore) Get(ctx context.Context, path string) ([]byte, error) {
	data, err := o.delta.Get(ctx, path)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return o.base.Get(ctx, path)
}

// Set writes to the in-memory layer only.
func (o *OverlayStore) Set(ctx context.Context, path string, data []byte) error {
	return o.delta.Set(ctx, path, data)
}

// Lock takes the real lock so a dry run still excludes concurrent runs.
func (o *OverlayStore) Lock(ctx context.Context, path string, timeout time.Duration) (Lock, error) {
	return o.base.Lock(ctx, path, timeout)
}

// Close closes the base store.
func (o *OverlayStore) Close() error {
	return o.base.Close()
}
