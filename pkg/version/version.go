// Copyright 2026 PaaSTA Tools Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package version holds build information stamped in with ldflags:
//
//	-ldflags "-X github.com/paasta-tools/paasta/pkg/version.Version=0.16.10"
package version

import "runtime"

var (
	// Version is the release version, "dev" for local builds.
	Version = "dev"
	// BuildDate is when the binary was built.
	BuildDate = "unknown"
	// GitCommit is the commit the binary was built from.
	GitCommit = "unknown"
)

// FullString is the --version output.
func FullString() string {
	if Version == "dev" {
		return "paasta development version"
	}
	return "paasta " + Version
}

// UserAgent identifies paasta to Marathon, Mesos and service endpoints.
func UserAgent() string {
	return "paasta-tools/" + Version
}

// Info returns all build information keyed by name.
func Info() map[string]string {
	return map[string]string{
		"version":   Version,
		"buildDate": BuildDate,
		"gitCommit": GitCommit,
		"goVersion": runtime.Version(),
	}
}
