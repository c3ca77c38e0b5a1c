// Copyright 2026 PaaSTA Tools Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package release

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/paasta-tools/paasta/pkg/errors"
	"github.com/paasta-tools/paasta/pkg/runner"
)

// fakeGit answers git invocations keyed by their joined arguments.
type fakeGit struct {
	out   map[string]string
	calls []string
}

func (f *fakeGit) Run(_ context.Context, c runner.Command) (*runner.Result, error) {
	key := strings.Join(c.Args, " ")
	f.calls = append(f.calls, key)
	out, ok := f.out[key]
	if !ok {
		return &runner.Result{ExitCode: 1}, &runner.ExitError{Command: c.String(), ExitCode: 1}
	}
	return &runner.Result{Stdout: out}, nil
}

const setupPy = "setup(\n    name='paasta-tools',\n    version='0.16.9',\n)\n"

func newTestReleaser(t *testing.T, env map[string]string) (*Releaser, *fakeGit, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "debian"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultChangelogPath), []byte(sampleChangelog), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultSetupPath), []byte(setupPy), 0o644))

	git := &fakeGit{out: map[string]string{
		"status --porcelain --untracked-files=no": "",
		"log -1 --pretty=%B":                      "Merge pull request #101\n\nAdd release tooling\n",
		"config user.name":                        "Git User\n",
		"config user.email":                       "git@example.com\n",
		"diff":                                    "diff --git a/setup.py b/setup.py\n",
	}}
	r := NewReleaser(dir, git, nil)
	r.now = func() time.Time {
		return time.Date(2016, 2, 2, 12, 0, 0, 0, time.FixedZone("PST", -8*3600))
	}
	r.getenv = func(k string) string { return env[k] }
	return r, git, dir
}

func TestReleaserRun(t *testing.T) {
	r, _, dir := newTestReleaser(t, map[string]string{
		"DEBFULLNAME": "Jane Doe",
		"DEBEMAIL":    "jane@example.com",
	})

	res, err := r.Run(context.Background(), Options{Release: "0.16.10-yelp1"})
	require.NoError(t, err)

	assert.Equal(t, "0.16.10", res.Release.Version)
	assert.True(t, res.SetupChanged)
	assert.Equal(t, "diff --git a/setup.py b/setup.py\n", res.Diff)
	assert.Equal(t, []string{
		`git commit -a -m "Released 0.16.10-yelp1 via make release"`,
		"git tag --force v0.16.10",
		"git push --tags origin master",
	}, res.NextSteps)

	changelog, err := os.ReadFile(filepath.Join(dir, DefaultChangelogPath))
	require.NoError(t, err)
	want := `paasta-tools (0.16.10-yelp1) lucid; urgency=low

  * 0.16.10 tagged with 'make release'
    Commit: Merge pull request #101
    Add release tooling

 -- Jane Doe <jane@example.com>  Tue, 02 Feb 2016 12:00:00 -0800

` + sampleChangelog
	assert.Equal(t, want, string(changelog))

	setup, err := os.ReadFile(filepath.Join(dir, DefaultSetupPath))
	require.NoError(t, err)
	assert.Contains(t, string(setup), "version='0.16.10',")
}

func TestReleaserMaintainerFromGit(t *testing.T) {
	r, git, _ := newTestReleaser(t, nil)

	res, err := r.Run(context.Background(), Options{Release: "0.16.10-yelp1", Distribution: "trusty"})
	require.NoError(t, err)
	assert.Equal(t, "Git User", res.Entry.Maintainer)
	assert.Equal(t, "git@example.com", res.Entry.Email)
	assert.Equal(t, []string{"trusty"}, res.Entry.Distributions)
	assert.Contains(t, git.calls, "config user.name")
}

func TestReleaserDryRunWritesNothing(t *testing.T) {
	r, git, dir := newTestReleaser(t, nil)

	res, err := r.Run(context.Background(), Options{Release: "0.16.10-yelp1", DryRun: true})
	require.NoError(t, err)
	assert.Empty(t, res.Diff)
	assert.Equal(t, "0.16.10-yelp1", res.Entry.Version)
	assert.NotContains(t, git.calls, "diff")

	changelog, err := os.ReadFile(filepath.Join(dir, DefaultChangelogPath))
	require.NoError(t, err)
	assert.Equal(t, sampleChangelog, string(changelog))
	setup, err := os.ReadFile(filepath.Join(dir, DefaultSetupPath))
	require.NoError(t, err)
	assert.Equal(t, setupPy, string(setup))
}

func TestReleaserRefusesDirtyTree(t *testing.T) {
	r, git, _ := newTestReleaser(t, nil)
	git.out["status --porcelain --untracked-files=no"] = " M setup.py\n"

	_, err := r.Run(context.Background(), Options{Release: "0.16.10-yelp1"})
	require.Error(t, err)
	assert.True(t, perrors.IsType(err, perrors.ErrRelease))
	assert.Contains(t, err.Error(), "working directory is not clean")
}

func TestReleaserRefusesOldVersion(t *testing.T) {
	r, _, _ := newTestReleaser(t, nil)

	for _, rel := range []string{"0.16.9-yelp1", "0.16.8-yelp1"} {
		_, err := r.Run(context.Background(), Options{Release: rel})
		require.Error(t, err, rel)
		assert.Contains(t, err.Error(), "is not newer than 0.16.9-yelp1")
	}
}

func TestReleaserInvalidRelease(t *testing.T) {
	r, git, _ := newTestReleaser(t, nil)

	_, err := r.Run(context.Background(), Options{Release: "latest"})
	require.Error(t, err)
	assert.True(t, perrors.IsType(err, perrors.ErrValidation))
	assert.Empty(t, git.calls)
}

func TestReleaserUnknownMaintainer(t *testing.T) {
	r, git, _ := newTestReleaser(t, nil)
	delete(git.out, "config user.email")

	_, err := r.Run(context.Background(), Options{Release: "0.16.10-yelp1"})
	require.Error(t, err)
	assert.True(t, perrors.IsType(err, perrors.ErrValidation))
}

func TestReleaserEmptyChangelogNeedsPackage(t *testing.T) {
	r, _, dir := newTestReleaser(t, map[string]string{"DEBFULLNAME": "Jane Doe", "DEBEMAIL": "jane@example.com"})
	require.NoError(t, os.Remove(filepath.Join(dir, DefaultChangelogPath)))

	_, err := r.Run(context.Background(), Options{Release: "0.1.0-yelp1"})
	require.Error(t, err)

	res, err := r.Run(context.Background(), Options{Release: "0.1.0-yelp1", Package: "paasta-tools"})
	require.NoError(t, err)
	assert.Equal(t, "paasta-tools", res.Entry.Package)

	cl, err := LoadChangelog(filepath.Join(dir, DefaultChangelogPath))
	require.NoError(t, err)
	require.Len(t, cl.Entries, 1)
}

func TestReleaserStagingFailureLeavesCheckoutUntouched(t *testing.T) {
	r, git, dir := newTestReleaser(t, map[string]string{"DEBFULLNAME": "Jane Doe", "DEBEMAIL": "jane@example.com"})
	r.createTemp = func(d, pattern string) (*os.File, error) {
		if strings.Contains(pattern, "setup.py") {
			return nil, os.ErrPermission
		}
		return os.CreateTemp(d, pattern)
	}

	_, err := r.Run(context.Background(), Options{Release: "0.16.10-yelp1"})
	require.Error(t, err)
	assert.True(t, perrors.IsType(err, perrors.ErrRelease))
	assert.ErrorIs(t, err, os.ErrPermission)
	assert.NotContains(t, git.calls, "diff")

	changelog, err := os.ReadFile(filepath.Join(dir, DefaultChangelogPath))
	require.NoError(t, err)
	assert.Equal(t, sampleChangelog, string(changelog))
	setup, err := os.ReadFile(filepath.Join(dir, DefaultSetupPath))
	require.NoError(t, err)
	assert.Equal(t, setupPy, string(setup))

	leftovers, err := filepath.Glob(filepath.Join(dir, "debian", ".changelog.*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

// timeoutGit reports every invocation as timed out.
type timeoutGit struct{}

func (timeoutGit) Run(_ context.Context, c runner.Command) (*runner.Result, error) {
	return nil, perrors.TimeoutError(c.String()+" timed out", runner.ErrTimeout)
}

func TestReleaserGitTimeout(t *testing.T) {
	r, _, _ := newTestReleaser(t, nil)
	r.exec = timeoutGit{}

	_, err := r.Run(context.Background(), Options{Release: "0.16.10-yelp1"})
	require.Error(t, err)
	assert.True(t, perrors.IsType(err, perrors.ErrTimeout), "got %v", err)
	assert.ErrorIs(t, err, runner.ErrTimeout)
}
