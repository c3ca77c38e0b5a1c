// Copyright 2026 PaaSTA Tools Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package marathon

import "strings"

// TaskSpacer separates the components of a job or task id.
const TaskSpacer = "."

// AutoscalingZKRoot is the root of all autoscaler state.
const AutoscalingZKRoot = "/autoscaling"

// FormatJobID composes "service.instance". Underscores become "--" since
// Marathon app ids may not contain them.
func FormatJobID(service, instance string) string {
	return strings.Join([]string{formatComponent(service), formatComponent(instance)}, TaskSpacer)
}

func formatComponent(s string) string {
	return strings.ReplaceAll(s, "_", "--")
}

// ShortJobID keeps the first two components of a task id, which
// identify the service instance the task belongs to.
func ShortJobID(taskID string) string {
	parts := strings.SplitN(taskID, TaskSpacer, 3)
	if len(parts) > 2 {
		parts = parts[:2]
	}
	return strings.Join(parts, TaskSpacer)
}

// AutoscalingRoot is the state path holding an instance's autoscaler data.
func AutoscalingRoot(service, instance string) string {
	return AutoscalingZKRoot + "/" + service + "/" + instance
}

// AutoscalingLockPath is the cluster-wide lock serializing autoscaler runs.
const AutoscalingLockPath = AutoscalingZKRoot + "/autoscaling.lock"
