// Copyright 2026 PaaSTA Tools Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package fleet wraps the EC2 spot fleet calls used by cluster autoscaling.
package fleet

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	paastaerrors "github.com/paasta-tools/paasta/pkg/errors"
)

// StateActive is the state of a spot fleet request that can be scaled.
const StateActive = "active"

// Request describes a spot fleet request.
type Request struct {
	ID             string
	State          string
	TargetCapacity int
}

// API is the set of spot fleet operations the autoscaler needs.
type API interface {
	// ActiveInstanceIDs lists the instances currently running for a request.
	ActiveInstanceIDs(ctx context.Context, requestID string) ([]string, error)
	// PrivateIPs returns the private addresses of the given instances.
	PrivateIPs(ctx context.Context, instanceIDs []string) ([]string, error)
	// DescribeRequest returns the request's state and target capacity.
	DescribeRequest(ctx context.Context, requestID string) (*Request, error)
	// SetTargetCapacity changes the request's target capacity.
	SetTargetCapacity(ctx context.Context, requestID string, capacity int) error
}

// ec2API is the subset of *ec2.Client used here.
type ec2API interface {
	DescribeSpotFleetInstances(ctx context.Context, in *ec2.DescribeSpotFleetInstancesInput, opts ...func(*ec2.Options)) (*ec2.DescribeSpotFleetInstancesOutput, error)
	DescribeInstances(ctx context.Context, in *ec2.DescribeInstancesInput, opts ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	DescribeSpotFleetRequests(ctx context.Context, in *ec2.DescribeSpotFleetRequestsInput, opts ...func(*ec2.Options)) (*ec2.DescribeSpotFleetRequestsOutput, error)
	ModifySpotFleetRequest(ctx context.Context, in *ec2.ModifySpotFleetRequestInput, opts ...func(*ec2.Options)) (*ec2.ModifySpotFleetRequestOutput, error)
}

// EC2 implements API on top of the AWS SDK.
type EC2 struct {
	client ec2API
}

// NewEC2 loads the default AWS credential chain. An empty region defers to
// the environment and shared config.
func NewEC2(ctx context.Context, region string) (*EC2, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, paastaerrors.AWSError("failed to load aws config", err)
	}
	return &EC2{client: ec2.NewFromConfig(cfg)}, nil
}

// ActiveInstanceIDs follows pagination until all active instances are read.
func (e *EC2) ActiveInstanceIDs(ctx context.Context, requestID string) ([]string, error) {
	var (
		ids   []string
		token *string
	)
	for {
		out, err := e.client.DescribeSpotFleetInstances(ctx, &ec2.DescribeSpotFleetInstancesInput{
			SpotFleetRequestId: aws.String(requestID),
			NextToken:          token,
		})
		if err != nil {
			return nil, paastaerrors.AWSError("describe spot fleet instances", err).WithContext("request_id", requestID)
		}
		for _, inst := range out.ActiveInstances {
			if id := aws.ToString(inst.InstanceId); id != "" {
				ids = append(ids, id)
			}
		}
		if aws.ToString(out.NextToken) == "" {
			return ids, nil
		}
		token = out.NextToken
	}
}

// PrivateIPs resolves instance ids to private IP addresses.
func (e *EC2) PrivateIPs(ctx context.Context, instanceIDs []string) ([]string, error) {
	if len(instanceIDs) == 0 {
		return nil, nil
	}
	var (
		ips   []string
		token *string
	)
	for {
		out, err := e.client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
			InstanceIds: instanceIDs,
			NextToken:   token,
		})
		if err != nil {
			return nil, paastaerrors.AWSError("describe instances", err)
		}
		for _, res := range out.Reservations {
			ips = append(ips, reservationIPs(res)...)
		}
		if aws.ToString(out.NextToken) == "" {
			return ips, nil
		}
		token = out.NextToken
	}
}

func reservationIPs(res types.Reservation) []string {
	var ips []string
	for _, inst := range res.Instances {
		if ip := aws.ToString(inst.PrivateIpAddress); ip != "" {
			ips = append(ips, ip)
		}
	}
	return ips
}

// DescribeRequest fetches a single spot fleet request.
func (e *EC2) DescribeRequest(ctx context.Context, requestID string) (*Request, error) {
	out, err := e.client.DescribeSpotFleetRequests(ctx, &ec2.DescribeSpotFleetRequestsInput{
		SpotFleetRequestIds: []string{requestID},
	})
	if err != nil {
		return nil, paastaerrors.AWSError("describe spot fleet request", err).WithContext("request_id", requestID)
	}
	if len(out.SpotFleetRequestConfigs) == 0 {
		return nil, paastaerrors.AWSError(fmt.Sprintf("spot fleet request %s not found", requestID), nil)
	}
	cfg := out.SpotFleetRequestConfigs[0]
	req := &Request{
		ID:    requestID,
		State: string(cfg.SpotFleetRequestState),
	}
	if cfg.SpotFleetRequestConfig != nil {
		req.TargetCapacity = int(aws.ToInt32(cfg.SpotFleetRequestConfig.TargetCapacity))
	}
	return req, nil
}

// SetTargetCapacity modifies the request's target capacity.
func (e *EC2) SetTargetCapacity(ctx context.Context, requestID string, capacity int) error {
	_, err := e.client.ModifySpotFleetRequest(ctx, &ec2.ModifySpotFleetRequestInput{
		SpotFleetRequestId: aws.String(requestID),
		TargetCapacity:     aws.Int32(int32(capacity)),
	})
	if err != nil {
		return paastaerrors.AWSError("modify spot fleet request", err).
			WithContext("request_id", requestID).
			WithContext("target_capacity", capacity)
	}
	return nil
}
