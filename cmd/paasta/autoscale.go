// Copyright 2026 PaaSTA Tools Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package main

import (
	"context"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/paasta-tools/paasta/pkg/autoscaling"
	"github.com/paasta-tools/paasta/pkg/config"
	"github.com/paasta-tools/paasta/pkg/fleet"
	"github.com/paasta-tools/paasta/pkg/marathon"
	"github.com/paasta-tools/paasta/pkg/mesos"
	"github.com/paasta-tools/paasta/pkg/observability"
	"github.com/paasta-tools/paasta/pkg/state"
)

// autoscaleCmd groups the autoscaling passes.
var autoscaleCmd = &cobra.Command{
	Use:   "autoscale",
	Short: "Run one autoscaling pass",
}

var autoscaleServicesCmd = &cobra.Command{
	Use:   "services",
	Short: "Autoscale every Marathon instance of the local cluster",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAutoscaler(cmd, true, func(ctx context.Context, a *autoscaling.Autoscaler) error {
			return a.AutoscaleServices(ctx)
		})
	},
}

var autoscaleClusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Autoscale the cluster autoscaling resources of the local cluster",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAutoscaler(cmd, false, func(ctx context.Context, a *autoscaling.Autoscaler) error {
			return a.AutoscaleLocalCluster(ctx)
		})
	},
}

// loadConfig reads and validates the system config. Marathon settings are
// only required for service runs. The config's log level applies unless
// --log-level was given.
func loadConfig(cmd *cobra.Command, services bool) (*config.Config, error) {
	loader := config.NewLoader()
	var (
		cfg *config.Config
		err error
	)
	if globalOpts.config != "" {
		cfg, err = loader.LoadFromPath(globalOpts.config)
	} else {
		cfg, err = loader.Load()
	}
	if err != nil {
		return nil, err
	}
	validate := config.NewValidator().Validate
	if services {
		validate = config.NewValidator().ValidateServices
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	if !cmd.Flags().Changed("log-level") {
		if err := setupLogger(cfg.Global.LogLevel); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// runAutoscaler wires the clients named by the config into an Autoscaler
// and runs pass with it. The Marathon client is only built for service runs.
func runAutoscaler(cmd *cobra.Command, services bool, pass func(context.Context, *autoscaling.Autoscaler) error) error {
	cfg, err := loadConfig(cmd, services)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	store, err := state.Open(cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	ms, err := mesos.NewClient(cfg.Mesos.MasterURL, cfg.Mesos.Timeout, cfg.Mesos.Concurrency, log)
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics()
	opts := []autoscaling.Option{
		autoscaling.WithMesos(ms),
		autoscaling.WithLogger(log),
		autoscaling.WithMetrics(metrics),
		autoscaling.WithDryRun(globalOpts.dryRun),
	}
	if services {
		mc, err := marathon.NewClient(cfg.Marathon.URL, cfg.Marathon.User, cfg.Marathon.Password(), cfg.Marathon.Timeout)
		if err != nil {
			return err
		}
		opts = append(opts,
			autoscaling.WithMarathon(mc),
			autoscaling.WithHTTPClient(&http.Client{Timeout: cfg.Marathon.Timeout}),
		)
	}
	if len(cfg.ClusterAutoscalingResources) > 0 {
		ec2, err := fleet.NewEC2(ctx, cfg.AWS.Region)
		if err != nil {
			return err
		}
		opts = append(opts, autoscaling.WithFleet(ec2))
	}

	err = pass(ctx, autoscaling.New(cfg, store, opts...))
	metrics.Report(log)
	return err
}

func init() {
	autoscaleCmd.AddCommand(autoscaleServicesCmd)
	autoscaleCmd.AddCommand(autoscaleClusterCmd)
	rootCmd.AddCommand(autoscaleCmd)
}
