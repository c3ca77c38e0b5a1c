// Copyright 2026 PaaSTA Tools Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package release

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	perrors "github.com/paasta-tools/paasta/pkg/errors"
	"github.com/paasta-tools/paasta/pkg/observability"
	"github.com/paasta-tools/paasta/pkg/runner"
)

// Defaults for the release procedure.
const (
	DefaultChangelogPath = "debian/changelog"
	DefaultSetupPath     = "setup.py"
	DefaultDistribution  = "lucid"
	DefaultUrgency       = "low"
)

// Options configures one release.
type Options struct {
	Release       string
	ChangelogPath string
	SetupPath     string
	Distribution  string
	// Package names the source package when the changelog is still empty.
	Package string
	DryRun  bool
}

func (o *Options) applyDefaults() {
	if o.ChangelogPath == "" {
		o.ChangelogPath = DefaultChangelogPath
	}
	if o.SetupPath == "" {
		o.SetupPath = DefaultSetupPath
	}
	if o.Distribution == "" {
		o.Distribution = DefaultDistribution
	}
}

// Result reports what a release did, or would do on a dry run.
type Result struct {
	Release      Release
	Entry        Entry
	SetupChanged bool
	// Diff is the working tree diff after the files were written. Empty on
	// a dry run.
	Diff      string
	NextSteps []string
}

// Releaser prepares release metadata in a git checkout.
type Releaser struct {
	dir    string
	exec   runner.Executor
	log    observability.Logger
	now    func() time.Time
	getenv func(string) string
	// createTemp stages files before they replace their targets.
	createTemp func(dir, pattern string) (*os.File, error)
}

// NewReleaser creates a releaser for the checkout at dir.
func NewReleaser(dir string, exec runner.Executor, log observability.Logger) *Releaser {
	if log == nil {
		log = observability.NewNop()
	}
	return &Releaser{dir: dir, exec: exec, log: log, now: time.Now, getenv: os.Getenv, createTemp: os.CreateTemp}
}

// Run performs the release procedure. Both files are rendered and staged
// next to their targets before either target is replaced, so a failed read,
// check or staging write leaves the checkout untouched.
func (r *Releaser) Run(ctx context.Context, opts Options) (*Result, error) {
	opts.applyDefaults()

	rel, err := ParseRelease(opts.Release)
	if err != nil {
		return nil, perrors.ValidationError("invalid release", err).WithContext("release", opts.Release)
	}
	log := r.log.With(observability.String("release", rel.Name))

	status, err := r.git(ctx, "status", "--porcelain", "--untracked-files=no")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(status) != "" {
		return nil, perrors.ReleaseError("working directory is not clean, commit or stash your changes first", nil).
			WithContext("status", strings.TrimSpace(status))
	}

	changelogPath := r.path(opts.ChangelogPath)
	cl, err := LoadChangelog(changelogPath)
	if err != nil {
		return nil, perrors.ReleaseError("read changelog", err).WithContext("path", changelogPath)
	}

	pkg := opts.Package
	if latest := cl.Latest(); latest != nil {
		c, err := CompareVersions(rel.Name, latest.Version)
		if err != nil {
			return nil, perrors.ReleaseError("compare versions", err)
		}
		if c <= 0 {
			return nil, perrors.ReleaseError(
				fmt.Sprintf("release %s is not newer than %s", rel.Name, latest.Version), nil).
				WithContext("next", BumpRevision(latest.Version))
		}
		if pkg == "" {
			pkg = latest.Package
		}
	}
	if pkg == "" {
		return nil, perrors.ValidationError("package name required for an empty changelog", nil)
	}

	commit, err := r.git(ctx, "log", "-1", "--pretty=%B")
	if err != nil {
		return nil, err
	}
	name, email, err := r.maintainer(ctx)
	if err != nil {
		return nil, err
	}

	entry := Entry{
		Package:       pkg,
		Version:       rel.Name,
		Distributions: []string{opts.Distribution},
		Urgency:       DefaultUrgency,
		Changes:       changeLines(rel.Version, commit),
		Maintainer:    name,
		Email:         email,
		Date:          FormatChangelogDate(r.now()),
	}
	cl.Prepend(entry)

	setupPath := r.path(opts.SetupPath)
	setup, err := os.ReadFile(setupPath)
	if err != nil {
		return nil, perrors.ReleaseError("read setup metadata", err).WithContext("path", setupPath)
	}
	updated, changed := UpdateSetupVersion(string(setup), rel.Version)
	if !changed {
		log.Warn("setup metadata unchanged", observability.String("path", setupPath))
	}

	res := &Result{
		Release:      rel,
		Entry:        entry,
		SetupChanged: changed,
		NextSteps: []string{
			fmt.Sprintf(`git commit -a -m "Released %s via make release"`, rel.Name),
			fmt.Sprintf("git tag --force v%s", rel.Version),
			"git push --tags origin master",
		},
	}
	if opts.DryRun {
		log.Info("Dry run, not writing release metadata")
		return res, nil
	}

	writes := map[string][]byte{changelogPath: cl.Bytes()}
	if changed {
		writes[setupPath] = []byte(updated)
	}
	if err := r.replaceFiles(writes); err != nil {
		return nil, err
	}
	log.Info("Release metadata written", observability.String("version", rel.Version))

	diff, err := r.git(ctx, "diff")
	if err != nil {
		return nil, err
	}
	res.Diff = diff
	return res, nil
}

// maintainer follows dch: DEBFULLNAME/DEBEMAIL first, then git config.
func (r *Releaser) maintainer(ctx context.Context) (string, string, error) {
	name := r.getenv("DEBFULLNAME")
	email := r.getenv("DEBEMAIL")
	if name == "" {
		name = r.gitConfig(ctx, "user.name")
	}
	if email == "" {
		email = r.gitConfig(ctx, "user.email")
	}
	if name == "" || email == "" {
		return "", "", perrors.ValidationError("maintainer unknown, set DEBFULLNAME and DEBEMAIL or git user.name and user.email", nil)
	}
	return name, email, nil
}

// gitConfig returns "" for unset keys.
func (r *Releaser) gitConfig(ctx context.Context, key string) string {
	out, err := r.git(ctx, "config", key)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

// replaceFiles stages every file, then renames the staged copies over
// their targets. Staged copies are removed if any staging step fails.
func (r *Releaser) replaceFiles(files map[string][]byte) error {
	staged := make(map[string]string, len(files))
	cleanup := func() {
		for _, tmp := range staged {
			os.Remove(tmp)
		}
	}
	for path, data := range files {
		tmp, err := r.stage(path, data)
		if err != nil {
			cleanup()
			return perrors.ReleaseError("stage "+filepath.Base(path), err).WithContext("path", path)
		}
		staged[path] = tmp
	}
	for path, tmp := range staged {
		if err := os.Rename(tmp, path); err != nil {
			cleanup()
			return perrors.ReleaseError("replace "+filepath.Base(path), err).WithContext("path", path)
		}
		delete(staged, path)
	}
	return nil
}

func (r *Releaser) stage(path string, data []byte) (string, error) {
	f, err := r.createTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return "", err
	}
	tmp := f.Name()
	_, err = f.Write(data)
	if err == nil {
		err = f.Chmod(0o644)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return "", err
	}
	return tmp, nil
}

// git wraps failures as release errors. Timeouts pass through unchanged.
func (r *Releaser) git(ctx context.Context, args ...string) (string, error) {
	res, err := r.exec.Run(ctx, runner.Command{Name: "git", Args: args, Dir: r.dir})
	if perrors.IsType(err, perrors.ErrTimeout) {
		return "", err
	}
	if err != nil {
		return "", perrors.ReleaseError("git "+args[0]+" failed", err)
	}
	return res.Stdout, nil
}

func (r *Releaser) path(p string) string {
	if filepath.IsAbs(p) || r.dir == "" {
		return p
	}
	return filepath.Join(r.dir, p)
}

func changeLines(version, commit string) []string {
	lines := []string{fmt.Sprintf("* %s tagged with 'make release'", version)}
	prefix := "  Commit: "
	for _, l := range strings.Split(strings.TrimSpace(commit), "\n") {
		l = strings.TrimRight(l, " \t\r")
		if l == "" {
			continue
		}
		lines = append(lines, prefix+l)
		prefix = "  "
	}
	if prefix != "  " {
		lines = append(lines, "  Commit:")
	}
	return lines
}
