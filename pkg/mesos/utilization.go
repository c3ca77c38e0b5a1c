// Copyright 2026 PaaSTA Tools Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package mesos

// AttributeUtilization holds total and free resources per attribute value.
type AttributeUtilization struct {
	Total map[string]Resources
	Free  map[string]Resources
}

// UtilizationForAttribute groups agents by the value of attr (fallback
// when unset) and sums their resources. Free is total minus the resources
// of the given tasks running on each group's agents.
func UtilizationForAttribute(slaves []Slave, tasks []Task, attr, fallback string) AttributeUtilization {
	u := AttributeUtilization{
		Total: make(map[string]Resources),
		Free:  make(map[string]Resources),
	}
	group := make(map[string]string, len(slaves))
	for _, s := range slaves {
		v := s.Attribute(attr, fallback)
		group[s.ID] = v
		u.Total[v] = u.Total[v].Add(s.Resources)
	}
	used := make(map[string]Resources)
	for _, t := range tasks {
		v, ok := group[t.SlaveID]
		if !ok {
			continue
		}
		used[v] = used[v].Add(t.Resources)
	}
	for v, total := range u.Total {
		u.Free[v] = total.Sub(used[v])
	}
	return u
}
