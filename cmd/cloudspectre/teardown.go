package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/cloudspectre/internal/teardown"
	"github.com/ppiankov/cloudspectre/pkg/config"
)

type teardownOptions struct {
	flags   flagValues
	region  string
	infraID string

	cfg *config.Config
}

// NewTeardownCmd creates the teardown command
func NewTeardownCmd() *cobra.Command {
	return newTeardownCmd(&teardownOptions{})
}

func newTeardownCmd(opts *teardownOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "teardown <cluster-name>",
		Short: "Run one teardown pass for a footprint cluster",
		Long: `Delete the network footprint of one cluster: load balancers, NAT
gateways, addresses, interfaces, endpoints, security groups, subnets, route
tables, gateways and finally the VPC, then its DNS records and state bucket
objects.

A pass stops at resources that still have dependencies. Exit code 4 means
the pass was incomplete; run the command again later.`,
		Args: cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(args[0]) == "" {
				return fmt.Errorf("cluster name is required")
			}
			if strings.TrimSpace(opts.region) == "" {
				return fmt.Errorf("--region is required")
			}
			cfg, err := loadConfig(cmd, &opts.flags)
			if err != nil {
				return err
			}
			if err := setupLogging(cfg); err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTeardown(cmd, opts, strings.TrimSpace(args[0]))
		},
	}

	registerConfigFlags(cmd, &opts.flags)
	cmd.Flags().StringVar(&opts.region, "region", "", "Region of the cluster (required)")
	cmd.Flags().StringVar(&opts.infraID, "infra-id", "", "Infra id of the cluster (detected from VPC tags when empty)")

	return cmd
}

func runTeardown(cmd *cobra.Command, opts *teardownOptions, clusterName string) error {
	cfg := opts.cfg

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	comps, err := newComponents(ctx, cfg)
	if err != nil {
		return err
	}

	infraID := strings.TrimSpace(opts.infraID)
	if infraID == "" {
		infraID = comps.resolver.InfraID(ctx, opts.region, clusterName)
		if infraID == "" {
			return fmt.Errorf("infra id not found for cluster %q in %s", clusterName, opts.region)
		}
	}

	outcome := comps.orchestrator.Run(ctx, opts.region, clusterName, infraID)
	cmd.Printf("teardown %s (%s): %s\n", clusterName, infraID, outcome)
	if outcome != teardown.Complete {
		return &IncompleteError{InfraID: infraID}
	}
	return nil
}
