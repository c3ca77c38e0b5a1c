// Copyright 2026 PaaSTA Tools Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package runctx builds the root context of a CLI invocation.
package runctx

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"time"
)

// WithSignalTimeout returns a context cancelled when one of sigs arrives,
// when timeout elapses (if positive), or when parent is done. The returned
// cancel function must be called to stop signal delivery.
func WithSignalTimeout(parent context.Context, timeout time.Duration, sigs ...os.Signal) (context.Context, context.CancelFunc) {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, timeout)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}

	ch := make(chan os.Signal, 1)
	if len(sigs) > 0 {
		signal.Notify(ch, sigs...)
	}
	stopCh := make(chan struct{})

	go func() {
		select {
		case <-ch:
			cancel()
		case <-stopCh:
		case <-ctx.Done():
		}
	}()

	var once sync.Once
	return ctx, func() {
		once.Do(func() {
			signal.Stop(ch)
			close(stopCh)
			cancel()
		})
	}
}
