// Copyright 2026 PaaSTA Tools Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package main

import (
	"context"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/paasta-tools/paasta/pkg/observability"
	"github.com/paasta-tools/paasta/pkg/runctx"
	"github.com/paasta-tools/paasta/pkg/version"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	config   string
	logLevel string
	timeout  time.Duration
	dryRun   bool
}

var (
	globalOpts globalFlags
	log        = observability.NewNop()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "paasta",
	Short: "PaaSTA cluster tooling",
	Long: `paasta autoscales Marathon services and cluster capacity, and prepares
release metadata for the paasta-tools package.`,
	Version:       version.FullString(),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogger(globalOpts.logLevel)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		observability.Sync(log)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// commandContext is cancelled on SIGINT, SIGTERM or the --timeout deadline.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return runctx.WithSignalTimeout(cmd.Context(), globalOpts.timeout, os.Interrupt, syscall.SIGTERM)
}

func setupLogger(level string) error {
	l, err := observability.NewLogger(level)
	if err != nil {
		return err
	}
	log = l
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&globalOpts.config, "config", "c", "", "Path to the system config file (default: /etc/paasta/paasta.yaml, ./.paasta.yaml, PAASTA_* env)")
	rootCmd.PersistentFlags().StringVar(&globalOpts.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().DurationVar(&globalOpts.timeout, "timeout", 0, "Abort the run after this long (0 disables)")
	rootCmd.PersistentFlags().BoolVar(&globalOpts.dryRun, "dry-run", false, "Compute everything but write nothing")
}
