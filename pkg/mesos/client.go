// Copyright 2026 PaaSTA Tools Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package mesos reads cluster state from the Mesos master and per-task
// statistics from the agents.
package mesos

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	paastaerrors "github.com/paasta-tools/paasta/pkg/errors"
	"github.com/paasta-tools/paasta/pkg/observability"
	"github.com/paasta-tools/paasta/pkg/version"
)

var slavePIDPattern = regexp.MustCompile(`.+?@([\d.]+):(\d+)`)

// SlaveIP extracts the IP address from an agent pid such as
// "slave(1)@10.0.0.1:5051".
func SlaveIP(pid string) (string, error) {
	m := slavePIDPattern.FindStringSubmatch(pid)
	if m == nil {
		return "", fmt.Errorf("malformed slave pid %q", pid)
	}
	return m[1], nil
}

func slaveAddr(pid string) (string, error) {
	m := slavePIDPattern.FindStringSubmatch(pid)
	if m == nil {
		return "", fmt.Errorf("malformed slave pid %q", pid)
	}
	return m[1] + ":" + m[2], nil
}

// Client queries a Mesos master and its agents.
type Client struct {
	masterURL   string
	concurrency int
	httpClient  *http.Client
	log         observability.Logger
}

// NewClient creates a client for the master at masterURL.
func NewClient(masterURL string, timeout time.Duration, concurrency int, log observability.Logger) (*Client, error) {
	u, err := url.Parse(masterURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid mesos master url %q", masterURL)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if concurrency < 1 {
		concurrency = 1
	}
	if log == nil {
		log = observability.NewNop()
	}
	return &Client{
		masterURL:   strings.TrimSuffix(masterURL, "/"),
		concurrency: concurrency,
		httpClient:  &http.Client{Timeout: timeout},
		log:         log,
	}, nil
}

// State fetches the master state.
func (c *Client) State(ctx context.Context) (*State, error) {
	var st State
	if err := c.getJSON(ctx, c.masterURL+"/master/state", &st); err != nil {
		return nil, paastaerrors.MesosError("failed to fetch master state", err)
	}
	return &st, nil
}

// RunningTasks returns the running tasks of active frameworks, with agent
// statistics attached. Agents that cannot be reached are logged and their
// tasks are returned without statistics.
func (c *Client) RunningTasks(ctx context.Context, st *State) ([]Task, error) {
	var tasks []Task
	for _, fw := range st.Frameworks {
		if !fw.Active {
			continue
		}
		for _, t := range fw.Tasks {
			if t.State == TaskRunning {
				tasks = append(tasks, t)
			}
		}
	}

	pids := make(map[string]string, len(st.Slaves))
	for _, s := range st.Slaves {
		pids[s.ID] = s.PID
	}
	needed := make(map[string]bool)
	for _, t := range tasks {
		needed[t.SlaveID] = true
	}

	var (
		mu    sync.Mutex
		stats = make(map[string]map[string]TaskStats)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for slaveID := range needed {
		pid, ok := pids[slaveID]
		if !ok {
			continue
		}
		slaveID := slaveID
		g.Go(func() error {
			s, err := c.agentStatistics(gctx, pid)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				c.log.Warn("failed to fetch agent statistics",
					observability.String("slave_id", slaveID), observability.Err(err))
				return nil
			}
			mu.Lock()
			stats[slaveID] = s
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, paastaerrors.MesosError("failed to fetch agent statistics", err)
	}

	for i := range tasks {
		byExecutor := stats[tasks[i].SlaveID]
		key := tasks[i].ExecutorID
		if key == "" {
			key = tasks[i].ID
		}
		if s, ok := byExecutor[key]; ok {
			tasks[i].Stats = &s
		}
	}
	return tasks, nil
}

// agentStatistics returns executor statistics keyed by executor id.
func (c *Client) agentStatistics(ctx context.Context, pid string) (map[string]TaskStats, error) {
	addr, err := slaveAddr(pid)
	if err != nil {
		return nil, err
	}
	var raw []executorStatistics
	if err := c.getJSON(ctx, "http://"+addr+"/monitor/statistics.json", &raw); err != nil {
		return nil, err
	}
	out := make(map[string]TaskStats, len(raw))
	for _, e := range raw {
		out[e.ExecutorID] = e.Statistics
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status code: %d", endpoint, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("GET %s: %w", endpoint, err)
	}
	return nil
}
