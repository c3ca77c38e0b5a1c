// Copyright 2026 PaaSTA Tools Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package runner executes external commands with captured output.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	perrors "github.com/paasta-tools/paasta/pkg/errors"
)

// Command describes one invocation.
type Command struct {
	Name string
	Args []string
	// Dir defaults to the executor's directory.
	Dir string
	// Env entries are appended to the current environment.
	Env []string
}

// String renders the command line for logs and errors.
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result is the captured outcome of a command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Executor runs commands.
type Executor interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// ExecExecutor runs commands as local processes.
type ExecExecutor struct {
	dir string
}

// NewExecExecutor creates an executor rooted at dir.
func NewExecExecutor(dir string) *ExecExecutor {
	return &ExecExecutor{dir: dir}
}

// Run starts the command and waits for it. A non-zero exit returns both the
// result and an *ExitError. Cancellation returns a timeout error
// wrapping ErrTimeout.
func (e *ExecExecutor) Run(ctx context.Context, c Command) (*Result, error) {
	if _, err := exec.LookPath(c.Name); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBinaryNotFound, c.Name)
	}

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = e.dir
	if c.Dir != "" {
		cmd.Dir = c.Dir
	}
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	if err != nil {
		if ctx.Err() != nil {
			return res, perrors.TimeoutError(c.String()+" timed out", ErrTimeout)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return res, &ExitError{Command: c.String(), ExitCode: res.ExitCode, Stderr: res.Stderr}
		}
		return res, fmt.Errorf("failed to run %s: %w", c, err)
	}
	return res, nil
}
