// Copyright 2026 PaaSTA Tools Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package autoscaling

import (
	"context"
	"errors"
	"math"

	paastaerrors "github.com/paasta-tools/paasta/pkg/errors"
	"github.com/paasta-tools/paasta/pkg/state"
)

// AutoscalingDelay is the nominal interval between autoscaler runs, in
// seconds. The PID gains are tuned against it.
const AutoscalingDelay = 300

// PID gains.
const (
	pidKp = 4.0
	pidKi = 4.0 / AutoscalingDelay
	pidKd = 1.0 * AutoscalingDelay
)

// ThresholdDecisionPolicy moves by 10% of the current instances (at least
// one) whenever the error is non-zero.
func ThresholdDecisionPolicy(_ context.Context, _ *Autoscaler, in DecisionInput) (int, error) {
	amount := max(1, in.Current/10)
	switch {
	case in.Error > 0:
		return amount, nil
	case in.Error < 0:
		return -amount, nil
	default:
		return 0, nil
	}
}

// PIDDecisionPolicy runs a PID controller over the utilization error. The
// integral term, last error and last run time are kept under
// in.StateRoot. Both the integral and the output are clamped so the result
// stays within [Min, Max] instances. Without stored history only the
// proportional term applies; the history is recorded for the next run.
func PIDDecisionPolicy(ctx context.Context, a *Autoscaler, in DecisionInput) (int, error) {
	minDelta := float64(in.Min - in.Current)
	maxDelta := float64(in.Max - in.Current)
	clamp := func(v float64) float64 {
		return math.Min(math.Max(v, minDelta), maxDelta)
	}

	itermPath := in.StateRoot + "/pid_iterm"
	lastErrorPath := in.StateRoot + "/pid_last_error"
	lastTimePath := in.StateRoot + "/pid_last_time"

	hist, err := readPIDState(ctx, a.store, itermPath, lastErrorPath, lastTimePath)
	if err != nil {
		return 0, err
	}

	now := float64(a.now().Unix())
	iterm, derivative := 0.0, 0.0
	if hist != nil {
		timeDelta := now - hist.lastTime
		iterm = clamp(hist.iterm + pidKi*in.Error*math.Max(timeDelta, 0))
		if timeDelta > 0 {
			derivative = pidKd * (in.Error - hist.lastError) / timeDelta
		}
	}

	for _, kv := range []struct {
		path string
		v    float64
	}{
		{itermPath, iterm},
		{lastErrorPath, in.Error},
		{lastTimePath, now},
	} {
		if err := state.SetFloat(ctx, a.store, kv.path, kv.v); err != nil {
			return 0, paastaerrors.StateError("failed to store pid state", err)
		}
	}

	return int(math.Round(clamp(pidKp*in.Error + iterm + derivative))), nil
}

type pidHistory struct {
	iterm, lastError, lastTime float64
}

// readPIDState returns nil unless all three values are present.
func readPIDState(ctx context.Context, s state.Store, itermPath, lastErrorPath, lastTimePath string) (*pidHistory, error) {
	vals := make([]float64, 3)
	for i, p := range []string{itermPath, lastErrorPath, lastTimePath} {
		v, err := state.GetFloat(ctx, s, p)
		if errors.Is(err, state.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, paastaerrors.StateError("failed to read pid state", err)
		}
		vals[i] = v
	}
	return &pidHistory{iterm: vals[0], lastError: vals[1], lastTime: vals[2]}, nil
}
