// Copyright 2026 PaaSTA Tools Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package autoscaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	paastaerrors "github.com/paasta-tools/paasta/pkg/errors"
	"github.com/paasta-tools/paasta/pkg/marathon"
	"github.com/paasta-tools/paasta/pkg/observability"
	"github.com/paasta-tools/paasta/pkg/state"
	"github.com/paasta-tools/paasta/pkg/version"
)

// cpuLimitOverhead is the share of cpus_limit Mesos reserves for the
// executor itself.
const cpuLimitOverhead = 0.1

// HTTPMetricsProvider averages the utilization each task reports on
// http://<host>:<port>/<endpoint>. The endpoint param defaults to
// "status". Tasks that fail to answer are ignored.
func HTTPMetricsProvider(ctx context.Context, a *Autoscaler, in ServiceInput) (float64, error) {
	endpoint := strings.TrimLeft(paramString(in.Params, "endpoint", "status"), "/")

	values := make([]float64, len(in.MarathonTasks))
	ok := make([]bool, len(in.MarathonTasks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, task := range in.MarathonTasks {
		if len(task.Ports) == 0 {
			continue
		}
		url := fmt.Sprintf("http://%s:%d/%s", task.Host, task.Ports[0], endpoint)
		i, task := i, task
		g.Go(func() error {
			u, err := a.fetchUtilization(gctx, url)
			if err != nil {
				a.log.Debug("utilization endpoint failed",
					observability.String("task_id", task.ID), observability.Err(err))
				return nil
			}
			values[i], ok[i] = u, true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var sum float64
	var n int
	for i := range values {
		if ok[i] {
			sum += values[i]
			n++
		}
	}
	if n == 0 {
		return 0, paastaerrors.NoDataError(fmt.Sprintf("Couldn't get any data from http endpoint %s for %s.%s",
			endpoint, in.Config.Service, in.Config.Instance))
	}
	return sum / float64(n), nil
}

func (a *Autoscaler) fetchUtilization(ctx context.Context, url string) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", version.UserAgent())
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, err
	}
	return paramFloat(body, "utilization")
}

// MesosCPUMetricsProvider derives utilization from the growth of each
// task's cpu seconds since the previous run, normalized by its cpu limit.
// The current sample is stored for the next run; a first run or a run with
// no overlapping tasks has no data.
func MesosCPUMetricsProvider(ctx context.Context, a *Autoscaler, in ServiceInput) (float64, error) {
	root := marathon.AutoscalingRoot(in.Config.Service, in.Config.Instance)
	lastTimePath := root + "/cpu_last_time"
	lastDataPath := root + "/cpu_data"

	lastTime, lastData, err := readCPUSample(ctx, a.store, lastTimePath, lastDataPath)
	if err != nil {
		return 0, err
	}

	now := float64(a.now().Unix())
	timeDelta := now - lastTime

	current := make(map[string]float64, len(in.MesosTasks))
	for _, t := range in.MesosTasks {
		if t.Stats == nil {
			continue
		}
		limit := t.Stats.CPUsLimit - cpuLimitOverhead
		if limit <= 0 {
			a.log.Debug("task has no cpu allowance beyond the executor overhead",
				observability.String("task_id", t.ID), observability.Float("cpus_limit", t.Stats.CPUsLimit))
			continue
		}
		current[t.ID] = (t.Stats.CPUsSystemTimeSecs + t.Stats.CPUsUserTimeSecs) / limit
	}
	if len(current) == 0 {
		return 0, paastaerrors.NoDataError("Couldn't get any cpu or ram data from Mesos")
	}

	if err := a.store.Set(ctx, lastDataPath, []byte(formatCPUData(current))); err != nil {
		return 0, paastaerrors.StateError("failed to store cpu data", err)
	}
	if err := state.SetInt(ctx, a.store, lastTimePath, int(now)); err != nil {
		return 0, paastaerrors.StateError("failed to store cpu sample time", err)
	}

	if timeDelta <= 0 {
		return 0, paastaerrors.NoDataError("no time has passed since the previous cpu sample")
	}

	var sum float64
	var n int
	for taskID, lastSecs := range lastData {
		secs, ok := current[taskID]
		if !ok {
			continue
		}
		sum += (secs - lastSecs) / timeDelta
		n++
	}
	if n == 0 {
		return 0, paastaerrors.NoDataError("The mesos_cpu metrics provider doesn't have state for this service. " +
			"This is expected for its first run.")
	}
	return sum / float64(n), nil
}

func readCPUSample(ctx context.Context, s state.Store, timePath, dataPath string) (float64, map[string]float64, error) {
	lastTime, err := state.GetFloat(ctx, s, timePath)
	if errors.Is(err, state.ErrNotFound) {
		return 0, nil, nil
	}
	if err != nil {
		return 0, nil, paastaerrors.StateError("failed to read cpu sample time", err)
	}
	raw, err := s.Get(ctx, dataPath)
	if errors.Is(err, state.ErrNotFound) {
		return 0, nil, nil
	}
	if err != nil {
		return 0, nil, paastaerrors.StateError("failed to read cpu data", err)
	}
	return lastTime, parseCPUData(string(raw)), nil
}

// formatCPUData renders "seconds:task_id" pairs, comma separated, sorted
// by task id.
func formatCPUData(data map[string]float64) string {
	ids := make([]string, 0, len(data))
	for id := range data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatFloat(data[id], 'f', -1, 64)+":"+id)
	}
	return strings.Join(parts, ",")
}

// parseCPUData skips malformed entries.
func parseCPUData(csv string) map[string]float64 {
	out := make(map[string]float64)
	for _, datum := range strings.Split(csv, ",") {
		secs, id, ok := strings.Cut(datum, ":")
		if !ok || id == "" {
			continue
		}
		v, err := strconv.ParseFloat(secs, 64)
		if err != nil {
			continue
		}
		out[id] = v
	}
	return out
}
