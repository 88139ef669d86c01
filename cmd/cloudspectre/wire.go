package main

import (
	"context"
	"log/slog"

	"github.com/ppiankov/cloudspectre/internal/audit"
	"github.com/ppiankov/cloudspectre/internal/awsapi"
	"github.com/ppiankov/cloudspectre/internal/cluster"
	"github.com/ppiankov/cloudspectre/internal/executor"
	"github.com/ppiankov/cloudspectre/internal/policy"
	"github.com/ppiankov/cloudspectre/internal/scanner"
	"github.com/ppiankov/cloudspectre/internal/teardown"
	"github.com/ppiankov/cloudspectre/pkg/config"
)

// components are the long-lived pieces of one invocation, built from one
// Config and one AWS client factory.
type components struct {
	factory      *awsapi.Factory
	throttle     *awsapi.Throttle
	resolver     *cluster.Resolver
	orchestrator *teardown.Orchestrator
}

func newComponents(ctx context.Context, cfg *config.Config) (*components, error) {
	awsCfg, err := awsapi.Load(ctx, awsapi.Options{
		Profile:     cfg.Profile,
		HomeRegion:  cfg.HomeRegion,
		MaxAttempts: cfg.MaxAttempts,
	})
	if err != nil {
		return nil, err
	}

	factory := awsapi.NewFactory(awsCfg)
	throttle := awsapi.NewThrottle(cfg.APIRateLimit)
	global := factory.Global()

	return &components{
		factory:  factory,
		throttle: throttle,
		resolver: cluster.NewResolver(func(region string) cluster.VPCAPI {
			return factory.ForRegion(region).EC2
		}, cluster.NewCache(cluster.DefaultCacheTTL), throttle),
		orchestrator: teardown.New(func(region string) teardown.RegionClients {
			c := factory.ForRegion(region)
			return teardown.RegionClients{EC2: c.EC2, ELB: c.ELB, ELBv2: c.ELBv2, S3: c.S3}
		}, teardown.GlobalClients{
			Route53: global.Route53,
			STS:     global.STS,
		}, teardown.Options{
			DryRun:     cfg.DryRun,
			BaseDomain: cfg.OpenShiftBaseDomain,
			Throttle:   throttle,
		}),
	}, nil
}

// newScanner builds the full run pipeline.
func (c *components) newScanner(cfg *config.Config, sink audit.Sink) (*scanner.Scanner, error) {
	evaluator, err := policy.FromConfig(cfg)
	if err != nil {
		return nil, err
	}

	exec := executor.New(func(region string) executor.Clients {
		rc := c.factory.ForRegion(region)
		return executor.Clients{EC2: rc.EC2, CloudFormation: rc.CloudFormation}
	}, evaluator.Protector(), c.resolver, c.orchestrator, executor.Options{
		DryRun:           cfg.DryRun,
		EKSCleanup:       cfg.EKSCleanupEnabled,
		OpenShiftCleanup: cfg.OpenShiftCleanupEnabled,
		Throttle:         c.throttle,
	})

	return scanner.New(cfg, func(region string) scanner.EC2API {
		return c.factory.ForRegion(region).EC2
	}, evaluator, c.resolver, exec, sink, version), nil
}

// openAuditSink returns the ClickHouse sink when a DSN is configured. A sink
// that cannot be opened is replaced by audit.Nop so the run still happens.
func openAuditSink(ctx context.Context, cfg *config.Config) audit.Sink {
	if cfg.AuditDSN == "" {
		return audit.Nop{}
	}
	sink, err := audit.NewClickHouseSink(ctx, cfg.AuditDSN)
	if err != nil {
		slog.Warn("audit sink unavailable, continuing without it",
			slog.String("error", err.Error()),
		)
		return audit.Nop{}
	}
	slog.Info("audit sink connected", slog.String("table", audit.Table))
	return sink
}
