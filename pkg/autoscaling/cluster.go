// Copyright 2026 PaaSTA Tools Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package autoscaling

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/paasta-tools/paasta/pkg/config"
	paastaerrors "github.com/paasta-tools/paasta/pkg/errors"
	"github.com/paasta-tools/paasta/pkg/fleet"
	"github.com/paasta-tools/paasta/pkg/mesos"
	"github.com/paasta-tools/paasta/pkg/observability"
)

const (
	// TargetClusterUtilization is the utilization cluster capacity aims for.
	TargetClusterUtilization = 0.8
	// MissingSlavePanicThreshold is the largest share of a fleet's
	// instances that may be missing from Mesos before scaling is refused.
	MissingSlavePanicThreshold = 0.3
	// MaxClusterDelta bounds a single capacity change, as a fraction of
	// the current capacity.
	MaxClusterDelta = 0.1
)

const defaultPool = "default"

// AutoscaleLocalCluster runs one pass over the configured cluster
// resources in identifier order. ClusterAutoscalingError failures are
// logged and the pass continues; any other failure aborts it.
func (a *Autoscaler) AutoscaleLocalCluster(ctx context.Context) error {
	resources := a.cfg.ClusterAutoscalingResources
	if len(resources) == 0 {
		a.log.Debug("no cluster autoscaling resources configured")
		return nil
	}
	if a.mesos == nil {
		return paastaerrors.ConfigError("cluster autoscaling needs a mesos client", nil)
	}

	st, err := a.mesos.State(ctx)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(resources))
	for id := range resources {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		res := resources[id]
		if err := a.autoscaleResource(ctx, id, res, st); err != nil {
			if paastaerrors.IsType(err, paastaerrors.ErrClusterAutoscaling) {
				a.log.Error(fmt.Sprintf("%s: %s", id, err), observability.String("resource", id))
				a.metrics.RecordError("cluster")
				continue
			}
			return err
		}
	}
	return nil
}

func (a *Autoscaler) autoscaleResource(ctx context.Context, id string, res config.ResourceConfig, st *mesos.State) error {
	provider, err := a.registry.ClusterMetricsProvider(res.Type)
	if err != nil {
		return err
	}
	utilization, err := provider(ctx, a, res, st)
	if err != nil {
		return err
	}
	a.log.Debug(fmt.Sprintf("Utilization for %s: %.2f%%", id, utilization*100),
		observability.String("resource", id))

	scaler, err := a.registry.Scaler(res.Type)
	if err != nil {
		return err
	}
	return scaler(ctx, a, res, utilization-TargetClusterUtilization)
}

func resourcePool(res config.ResourceConfig) string {
	if res.Pool == "" {
		return defaultPool
	}
	return res.Pool
}

// SpotFleetMetricsProvider measures how much of a spot fleet's pool is in
// use. The fleet's instances are matched to Mesos agents by private IP and
// pool attribute. Utilization is one minus the smallest free fraction over
// cpus, mem and disk.
func SpotFleetMetricsProvider(ctx context.Context, a *Autoscaler, res config.ResourceConfig, st *mesos.State) (float64, error) {
	if a.fleet == nil {
		return 0, paastaerrors.ConfigError("spot fleet autoscaling needs an AWS client", nil)
	}
	pool := resourcePool(res)

	instanceIDs, err := a.fleet.ActiveInstanceIDs(ctx, res.ID)
	if err != nil {
		return 0, err
	}
	desired := len(instanceIDs)
	if desired == 0 {
		return 0, paastaerrors.ClusterAutoscalingError(
			fmt.Sprintf("spot fleet request %s has no active instances", res.ID))
	}
	ips, err := a.fleet.PrivateIPs(ctx, instanceIDs)
	if err != nil {
		return 0, err
	}
	ipSet := make(map[string]bool, len(ips))
	for _, ip := range ips {
		ipSet[ip] = true
	}

	var slaves []mesos.Slave
	slaveIDs := make(map[string]bool)
	for _, s := range st.Slaves {
		ip, err := mesos.SlaveIP(s.PID)
		if err != nil || !ipSet[ip] || s.Attribute("pool", defaultPool) != pool {
			continue
		}
		slaves = append(slaves, s)
		slaveIDs[s.ID] = true
	}
	current := len(slaves)
	a.log.Info(fmt.Sprintf("Found %.2f%% slaves registered in mesos for this SFR (%d/%d)",
		float64(current)/float64(desired)*100, current, desired),
		observability.String("resource", res.ID))

	if float64(current)/float64(desired) < 1-MissingSlavePanicThreshold {
		return 0, paastaerrors.ClusterAutoscalingError(fmt.Sprintf(
			"We currently have %d instances active in mesos out of a desired %d. "+
				"Refusing to scale because we either need to wait for the requests to be filled, "+
				"or the new instances are not healthy for some reason. "+
				"(cowardly refusing to go past %.2f%% missing instances)",
			current, desired, MissingSlavePanicThreshold*100))
	}

	var tasks []mesos.Task
	for _, fw := range st.Frameworks {
		for _, t := range fw.Tasks {
			if slaveIDs[t.SlaveID] {
				tasks = append(tasks, t)
			}
		}
	}

	usage := mesos.UtilizationForAttribute(slaves, tasks, "pool", defaultPool)
	free := usage.Free[pool].Named()
	total := usage.Total[pool].Named()

	minFree := math.Inf(1)
	for name, t := range total {
		if t <= 0 {
			continue
		}
		minFree = math.Min(minFree, free[name]/t)
	}
	if math.IsInf(minFree, 1) {
		return 0, paastaerrors.ClusterAutoscalingError(
			fmt.Sprintf("pool %s of spot fleet request %s reports no resources", pool, res.ID))
	}
	return 1 - minFree, nil
}

// SpotFleetScaler moves an active spot fleet request's target capacity
// toward (1+error) times its current capacity, by at most MaxClusterDelta
// per run and within the resource's min and max instances. A request never
// goes below one instance.
func SpotFleetScaler(ctx context.Context, a *Autoscaler, res config.ResourceConfig, utilizationError float64) error {
	if a.fleet == nil {
		return paastaerrors.ConfigError("spot fleet autoscaling needs an AWS client", nil)
	}
	req, err := a.fleet.DescribeRequest(ctx, res.ID)
	if err != nil {
		return err
	}
	if req.State != fleet.StateActive {
		return paastaerrors.ClusterAutoscalingError(
			fmt.Sprintf("Can not scale non-active spot fleet requests. This one is %q", req.State))
	}

	current := req.TargetCapacity
	ideal, next := SpotFleetCapacity(current, utilizationError, res.MinInstances, res.MaxInstances)
	log := a.log.With(observability.String("resource", res.ID))
	log.Debug(fmt.Sprintf("Ideal calculated capacity is %d instances", ideal))
	log.Debug(fmt.Sprintf("The new capacity to scale to is %d instances", next))

	if ideal > res.MaxInstances {
		log.Warn(fmt.Sprintf("Our ideal capacity (%d) is higher than max_instances (%d). Consider raising max_instances!",
			ideal, res.MaxInstances))
	}
	if ideal < res.MinInstances {
		log.Warn(fmt.Sprintf("Our ideal capacity (%d) is lower than min_instances (%d). Consider lowering min_instances!",
			ideal, res.MinInstances))
	}
	lower, upper := capacityBounds(current)
	if ideal < lower || ideal > upper {
		log.Warn(fmt.Sprintf("Our ideal capacity (%d) is greater than %.2f%% of current %d. Just doing a %.2f%% change for now to %d.",
			ideal, MaxClusterDelta*100, current, MaxClusterDelta*100, next))
	}

	if next == current {
		log.Info(fmt.Sprintf("No need to scale. new_capacity (%d) matches current capacity (%d)", next, current))
		a.metrics.RecordDecision("cluster", "steady")
		return nil
	}

	log.Info(fmt.Sprintf("Scaling SFR %s from %d to %d!", res.ID, current, next))
	if next > current {
		a.metrics.RecordDecision("cluster", "up")
	} else {
		a.metrics.RecordDecision("cluster", "down")
	}
	if a.dryRun {
		log.Info("dry run, not modifying spot fleet request")
		return nil
	}
	return a.fleet.SetTargetCapacity(ctx, res.ID, next)
}

// SpotFleetCapacity returns the ideal capacity for the given error and the
// capacity to actually request.
func SpotFleetCapacity(current int, utilizationError float64, minInstances, maxInstances int) (ideal, next int) {
	// Rounding away float noise keeps 1.1*10 at 11 instead of 12.
	scaled := math.Round((1+utilizationError)*float64(current)*1e9) / 1e9
	ideal = int(math.Ceil(scaled))
	lower, upper := capacityBounds(current)
	next = min(max(minInstances, lower, ideal, 1), upper, maxInstances)
	return ideal, next
}

// capacityBounds returns floor(current*(1-MaxClusterDelta)) and
// ceil(current*(1+MaxClusterDelta)), computed in integers so that exact
// multiples do not round up.
func capacityBounds(current int) (lower, upper int) {
	const tenths = 10 // 1 / MaxClusterDelta
	lower = current * (tenths - 1) / tenths
	upper = (current*(tenths+1) + tenths - 1) / tenths
	return lower, upper
}
