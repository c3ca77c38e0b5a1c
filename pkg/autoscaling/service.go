// Copyright 2026 PaaSTA Tools Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package autoscaling

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/paasta-tools/paasta/pkg/config"
	paastaerrors "github.com/paasta-tools/paasta/pkg/errors"
	"github.com/paasta-tools/paasta/pkg/marathon"
	"github.com/paasta-tools/paasta/pkg/mesos"
	"github.com/paasta-tools/paasta/pkg/observability"
	"github.com/paasta-tools/paasta/pkg/state"
)

// DecisionPolicyBespoke marks services that scale themselves.
const DecisionPolicyBespoke = "bespoke"

// ErrorFromUtilization returns how far utilization is outside the band in
// which the instance count is right. Above setpoint the error is positive.
// Below the level at which one fewer instance would still stay under the
// setpoint the error is negative. In between it is zero.
func ErrorFromUtilization(utilization, setpoint float64, current int) float64 {
	maxThreshold := setpoint
	minThreshold := 0.0
	if current > 0 {
		minThreshold = maxThreshold * float64(current-1) / float64(current)
	}
	switch {
	case utilization < minThreshold:
		return utilization - minThreshold
	case utilization > maxThreshold:
		return utilization - maxThreshold
	default:
		return 0
	}
}

// HumanizeError describes a utilization error for the deploy log.
func HumanizeError(e float64) string {
	switch {
	case e < 0:
		return fmt.Sprintf("%d%% underutilized", int(math.Floor(-e*100)))
	case e > 0:
		return fmt.Sprintf("%d%% overutilized", int(math.Ceil(e*100)))
	default:
		return "utilization within thresholds"
	}
}

// CurrentInstances returns the instance count Marathon should run.
// Autoscaled instances read it from the store, starting at min_instances.
func (a *Autoscaler) CurrentInstances(ctx context.Context, ic *config.InstanceConfig) (int, error) {
	if ic.DesiredState == config.DesiredStateStop {
		return 0, nil
	}
	if _, ok := ic.MaxInstanceCount(); !ok {
		return ic.ConfiguredInstances(), nil
	}
	n, err := state.GetInt(ctx, a.store, instancesPath(ic))
	if errors.Is(err, state.ErrNotFound) {
		n = ic.MinInstanceCount()
	} else if err != nil {
		return 0, paastaerrors.StateError("failed to read instance count", err)
	}
	return ic.LimitInstanceCount(n), nil
}

// SetInstances records the desired instance count.
func (a *Autoscaler) SetInstances(ctx context.Context, ic *config.InstanceConfig, n int) error {
	if err := state.SetInt(ctx, a.store, instancesPath(ic), n); err != nil {
		return paastaerrors.StateError("failed to write instance count", err)
	}
	return nil
}

func instancesPath(ic *config.InstanceConfig) string {
	return marathon.AutoscalingRoot(ic.Service, ic.Instance) + "/instances"
}

// AutoscaleMarathonInstance makes one scaling decision for an instance
// given its healthy Marathon tasks and their Mesos tasks.
func (a *Autoscaler) AutoscaleMarathonInstance(ctx context.Context, ic *config.InstanceConfig, marathonTasks []marathon.Task, mesosTasks []mesos.Task) error {
	current, err := a.CurrentInstances(ctx, ic)
	if err != nil {
		return err
	}
	if len(marathonTasks) != current {
		a.logEvent(ic, observability.LevelEvent, "Delaying scaling as marathon is either waiting for resources or is delayed")
		a.metrics.RecordDecision("service", "delayed")
		return nil
	}

	params := ic.AutoscalingParams()
	providerName := paramString(params, config.ParamMetricsProvider, "")
	policyName := paramString(params, config.ParamDecisionPolicy, "")
	setpoint, err := paramFloat(params, config.ParamSetpoint)
	if err != nil {
		return paastaerrors.ConfigError("invalid setpoint", err)
	}
	delete(params, config.ParamMetricsProvider)
	delete(params, config.ParamDecisionPolicy)
	delete(params, config.ParamSetpoint)

	provider, err := a.registry.ServiceMetricsProvider(providerName)
	if err != nil {
		return err
	}
	policy, err := a.registry.DecisionPolicy(policyName)
	if err != nil {
		return err
	}

	utilization, err := provider(ctx, a, ServiceInput{
		Config:        ic,
		MarathonTasks: marathonTasks,
		MesosTasks:    mesosTasks,
		Params:        params,
	})
	if err != nil {
		return err
	}
	if math.IsNaN(utilization) || math.IsInf(utilization, 0) {
		return paastaerrors.NoDataError(fmt.Sprintf("metrics provider %s returned utilization %v", providerName, utilization))
	}
	utilizationError := ErrorFromUtilization(utilization, setpoint, current)

	maxInstances, _ := ic.MaxInstanceCount()
	amount, err := policy(ctx, a, DecisionInput{
		StateRoot: marathon.AutoscalingRoot(ic.Service, ic.Instance),
		Current:   current,
		Min:       ic.MinInstanceCount(),
		Max:       maxInstances,
		Error:     utilizationError,
		Params:    params,
	})
	if err != nil {
		return err
	}

	next := ic.LimitInstanceCount(current + amount)
	if next == current {
		a.logEvent(ic, observability.LevelDebug,
			fmt.Sprintf("Staying at %d instances (%s)", current, HumanizeError(utilizationError)))
		a.metrics.RecordDecision("service", "steady")
		return nil
	}

	a.logEvent(ic, observability.LevelEvent,
		fmt.Sprintf("Scaling from %d to %d instances (%s)", current, next, HumanizeError(utilizationError)))
	if next > current {
		a.metrics.RecordDecision("service", "up")
	} else {
		a.metrics.RecordDecision("service", "down")
	}
	return a.SetInstances(ctx, ic, next)
}

// AutoscaleServices runs one pass over every autoscaled Marathon instance
// of the cluster. The pass is skipped when another run holds the lock.
// Failures of individual instances are logged and do not stop the pass.
func (a *Autoscaler) AutoscaleServices(ctx context.Context) error {
	lock, err := a.store.Lock(ctx, marathon.AutoscalingLockPath, a.cfg.State.LockTimeout)
	if paastaerrors.IsType(err, paastaerrors.ErrLockHeld) {
		a.log.Info("autoscaling lock is held by another run, skipping", observability.Err(err))
		a.metrics.Inc("lock_held", nil)
		return nil
	}
	if err != nil {
		return paastaerrors.StateError("failed to acquire autoscaling lock", err)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			a.log.Warn("failed to release autoscaling lock", observability.Err(err))
		}
	}()

	all, err := config.LoadInstanceConfigs(a.cfg.SOADir, a.cfg.Cluster)
	if err != nil {
		return paastaerrors.ConfigError("failed to load service configs", err)
	}
	configs := autoscaledConfigs(all)
	if len(configs) == 0 {
		a.log.Debug("no autoscaled instances")
		return nil
	}
	if a.marathon == nil || a.mesos == nil {
		return paastaerrors.ConfigError("service autoscaling needs marathon and mesos clients", nil)
	}

	allMarathonTasks, err := a.marathon.ListTasks(ctx)
	if err != nil {
		return err
	}
	st, err := a.mesos.State(ctx)
	if err != nil {
		return err
	}
	allMesosTasks, err := a.mesos.RunningTasks(ctx, st)
	if err != nil {
		return err
	}

	for _, ic := range configs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := a.autoscaleInstance(ctx, ic, allMarathonTasks, allMesosTasks); err != nil {
			a.logEvent(ic, observability.LevelEvent, fmt.Sprintf("Caught Exception %s", err))
			a.metrics.RecordError("service")
		}
	}
	return nil
}

func (a *Autoscaler) autoscaleInstance(ctx context.Context, ic *config.InstanceConfig, allMarathonTasks []marathon.Task, allMesosTasks []mesos.Task) error {
	jobID := marathon.FormatJobID(ic.Service, ic.Instance)

	ids := make(map[string]bool)
	var marathonTasks []marathon.Task
	for _, t := range allMarathonTasks {
		if marathon.ShortJobID(t.ID) != jobID || len(t.HealthCheckResults) == 0 || ids[t.ID] {
			continue
		}
		ids[t.ID] = true
		marathonTasks = append(marathonTasks, t)
	}
	if len(marathonTasks) == 0 {
		return paastaerrors.NoDataError("Couldn't find any healthy marathon tasks")
	}

	var mesosTasks []mesos.Task
	for _, t := range allMesosTasks {
		if ids[t.ID] {
			mesosTasks = append(mesosTasks, t)
		}
	}
	return a.AutoscaleMarathonInstance(ctx, ic, marathonTasks, mesosTasks)
}

// autoscaledConfigs keeps started instances with max_instances set whose
// policy is not bespoke.
func autoscaledConfigs(all []*config.InstanceConfig) []*config.InstanceConfig {
	var out []*config.InstanceConfig
	for _, ic := range all {
		if hi, ok := ic.MaxInstanceCount(); !ok || hi == 0 {
			continue
		}
		if ic.DesiredState != config.DesiredStateStart {
			continue
		}
		if ic.DecisionPolicy() == DecisionPolicyBespoke {
			continue
		}
		out = append(out, ic)
	}
	return out
}
