// Copyright 2026 PaaSTA Tools Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package release implements the release metadata procedure: deriving the
// version from a release string, prepending a Debian changelog entry and
// stamping the version into setup.py.
package release

import (
	"fmt"
	"strconv"
	"strings"

	"pault.ag/go/debian/version"
)

// Release is a release string and the version token derived from it.
type Release struct {
	// Name is the full release, e.g. "0.16.10-yelp1". It is also the
	// Debian version of the changelog entry.
	Name string
	// Version is the first "-" separated word of Name, e.g. "0.16.10".
	Version string
}

// ParseRelease validates s as a Debian version and derives the version
// token.
func ParseRelease(s string) (Release, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Release{}, fmt.Errorf("release must not be empty")
	}
	if _, err := ParseVersion(s); err != nil {
		return Release{}, err
	}
	fields := strings.Fields(strings.ReplaceAll(s, "-", " "))
	return Release{Name: s, Version: fields[0]}, nil
}

// ParseVersion parses a Debian version string.
func ParseVersion(s string) (version.Version, error) {
	v, err := version.Parse(s)
	if err != nil {
		return version.Version{}, fmt.Errorf("invalid version %q: %w", s, err)
	}
	return v, nil
}

// CompareVersions orders two Debian versions the way dpkg does. It returns
// -1, 0 or 1.
func CompareVersions(a, b string) (int, error) {
	va, err := ParseVersion(a)
	if err != nil {
		return 0, err
	}
	vb, err := ParseVersion(b)
	if err != nil {
		return 0, err
	}
	return sign(version.Compare(va, vb)), nil
}

// BumpRevision returns a version that sorts after v by incrementing its
// Debian revision:
//  1. No revision: append "-1".
//  2. A trailing digit run is incremented as a number
//     ("1.0-yelp19" -> "1.0-yelp20", "1.0-1.19" -> "1.0-1.20").
//  3. A trailing letter below "z" is advanced ("1.0-rca" -> "1.0-rcb").
//  4. Anything else gets a "1" appended.
func BumpRevision(v string) string {
	idx := strings.LastIndex(v, "-")
	if idx == -1 {
		return v + "-1"
	}
	prefix, rev := v[:idx+1], v[idx+1:]
	if rev == "" {
		return prefix + "1"
	}

	start := len(rev)
	for start > 0 && isDigit(rev[start-1]) {
		start--
	}
	if start < len(rev) {
		return prefix + rev[:start] + incrementDigits(rev[start:])
	}

	last := rev[len(rev)-1]
	if (last >= 'a' && last < 'z') || (last >= 'A' && last < 'Z') {
		return prefix + rev[:len(rev)-1] + string(last+1)
	}
	return prefix + rev + "1"
}

// incrementDigits adds one to a decimal string of any length, keeping its
// width unless it carries over.
func incrementDigits(d string) string {
	if n, err := strconv.ParseUint(d, 10, 63); err == nil {
		s := strconv.FormatUint(n+1, 10)
		if len(s) < len(d) {
			s = strings.Repeat("0", len(d)-len(s)) + s
		}
		return s
	}
	b := []byte(d)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < '9' {
			b[i]++
			return string(b)
		}
		b[i] = '0'
	}
	return "1" + string(b)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}
