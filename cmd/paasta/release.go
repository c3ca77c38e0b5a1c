// Copyright 2026 PaaSTA Tools Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/paasta-tools/paasta/pkg/release"
	"github.com/paasta-tools/paasta/pkg/runner"
)

// releaseFlags holds the flags for the release command
type releaseFlags struct {
	changelog    string
	setup        string
	distribution string
	pkg          string
	dir          string
}

var releaseOpts releaseFlags

// releaseCmd prepares release metadata.
var releaseCmd = &cobra.Command{
	Use:   "release RELEASE",
	Short: "Prepend a changelog entry and stamp the version into setup.py",
	Long: `Prepare release metadata for RELEASE (for example 0.16.10-yelp1).

The working tree must be clean. A changelog entry is prepended and the
version (0.16.10) is written into setup.py. The resulting diff and the
commands to commit, tag and push are printed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		r := release.NewReleaser(releaseOpts.dir, runner.NewExecExecutor(releaseOpts.dir), log)
		res, err := r.Run(ctx, release.Options{
			Release:       args[0],
			ChangelogPath: releaseOpts.changelog,
			SetupPath:     releaseOpts.setup,
			Distribution:  releaseOpts.distribution,
			Package:       releaseOpts.pkg,
			DryRun:        globalOpts.dryRun,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if res.Diff != "" {
			fmt.Fprintln(out, res.Diff)
		}
		fmt.Fprintf(out, "Release %s prepared (version %s).\n", res.Release.Name, res.Release.Version)
		fmt.Fprintln(out, "If this looks good, run:")
		for _, step := range res.NextSteps {
			fmt.Fprintln(out, "  "+step)
		}
		return nil
	},
}

func init() {
	wd, _ := os.Getwd()
	rootCmd.AddCommand(releaseCmd)

	releaseCmd.Flags().StringVar(&releaseOpts.changelog, "changelog", release.DefaultChangelogPath, "Debian changelog to prepend to")
	releaseCmd.Flags().StringVar(&releaseOpts.setup, "setup", release.DefaultSetupPath, "setup.py to stamp the version into")
	releaseCmd.Flags().StringVar(&releaseOpts.distribution, "distribution", release.DefaultDistribution, "Changelog distribution")
	releaseCmd.Flags().StringVar(&releaseOpts.pkg, "package", "", "Source package name when the changelog is empty")
	releaseCmd.Flags().StringVar(&releaseOpts.dir, "dir", wd, "Repository checkout")
}
