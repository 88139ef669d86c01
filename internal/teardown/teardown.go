// Package teardown removes the network footprint a self-managed cluster
// leaves in a region. Each Run is a single pass; a pass that cannot finish
// returns Incomplete and the next scheduled run picks up where it stopped.
package teardown

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/ppiankov/cloudspectre/internal/awsapi"
)

// Outcome is the result of one teardown pass.
type Outcome int

const (
	Incomplete Outcome = iota
	Complete
)

func (o Outcome) String() string {
	if o == Complete {
		return "complete"
	}
	return "incomplete"
}

// Options configures an Orchestrator.
type Options struct {
	DryRun     bool
	BaseDomain string
	Throttle   *awsapi.Throttle
}

// Orchestrator runs teardown passes.
type Orchestrator struct {
	regional func(region string) RegionClients
	global   GlobalClients
	opts     Options
}

// New creates an orchestrator. regional returns the clients for a region.
func New(regional func(region string) RegionClients, global GlobalClients, opts Options) *Orchestrator {
	return &Orchestrator{regional: regional, global: global, opts: opts}
}

// target is the cluster a pass works on.
type target struct {
	clients RegionClients
	region  string
	cluster string
	infraID string
	vpcID   string
}

type step struct {
	name string
	run  func(ctx context.Context, t *target) error
}

func (o *Orchestrator) steps() []step {
	return []step{
		{"load-balancers", o.deleteLoadBalancers},
		{"nat-gateways", o.deleteNatGateways},
		{"elastic-ips", o.releaseAddresses},
		{"network-interfaces", o.deleteNetworkInterfaces},
		{"vpc-endpoints", o.deleteVpcEndpoints},
		{"security-groups", o.deleteSecurityGroups},
		{"subnets", o.deleteSubnets},
		{"route-tables", o.deleteRouteTables},
		{"internet-gateways", o.deleteInternetGateways},
	}
}

// Run makes one teardown pass for the cluster owning infraID. When the VPC is
// already gone only DNS and storage cleanup run. DNS and storage are cleaned
// only after the VPC itself is deleted.
func (o *Orchestrator) Run(ctx context.Context, region, clusterName, infraID string) Outcome {
	if infraID == "" {
		slog.Error("teardown requires an infra id",
			slog.String("cluster_name", clusterName),
			slog.String("region", region),
		)
		return Incomplete
	}

	t := &target{
		clients: o.regional(region),
		region:  region,
		cluster: clusterName,
		infraID: infraID,
	}
	slog.Info("starting cluster teardown",
		slog.String("cluster_name", clusterName),
		slog.String("infra_id", infraID),
		slog.String("region", region),
		slog.Bool("dry_run", o.opts.DryRun),
	)

	vpcID, err := o.findVPC(ctx, t)
	if err != nil {
		slog.Error("failed to look up cluster vpc",
			slog.String("infra_id", infraID),
			slog.String("region", region),
			slog.String("error", err.Error()),
		)
		return Incomplete
	}
	if vpcID == "" {
		slog.Info("cluster vpc not found, cleaning up external resources",
			slog.String("infra_id", infraID),
			slog.String("region", region),
		)
		o.cleanupExternal(ctx, t)
		return Complete
	}
	t.vpcID = vpcID

	for _, s := range o.steps() {
		if err := s.run(ctx, t); err != nil {
			slog.Warn("teardown step left resources behind",
				slog.String("step", s.name),
				slog.String("vpc_id", vpcID),
				slog.String("error", err.Error()),
			)
		}
	}

	if !o.deleteVPC(ctx, t) {
		slog.Info("cluster vpc still has dependencies, next run continues teardown",
			slog.String("vpc_id", vpcID),
			slog.String("infra_id", infraID),
		)
		return Incomplete
	}

	o.cleanupExternal(ctx, t)
	slog.Info("cluster teardown complete",
		slog.String("cluster_name", clusterName),
		slog.String("infra_id", infraID),
		slog.String("region", region),
	)
	return Complete
}

func (o *Orchestrator) findVPC(ctx context.Context, t *target) (string, error) {
	out, err := t.clients.EC2.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{
		Filters: []ec2types.Filter{awsapi.OwnedFilter(t.infraID)},
	})
	if err != nil {
		return "", err
	}
	for _, vpc := range out.Vpcs {
		if vpc.VpcId != nil {
			return *vpc.VpcId, nil
		}
	}
	return "", nil
}

func (o *Orchestrator) deleteVPC(ctx context.Context, t *target) bool {
	err := o.mutate(ctx, "delete vpc", t.vpcID, func() error {
		_, err := t.clients.EC2.DeleteVpc(ctx, &ec2.DeleteVpcInput{VpcId: &t.vpcID})
		return err
	})
	return err == nil
}

func (o *Orchestrator) cleanupExternal(ctx context.Context, t *target) {
	if err := o.cleanupDNS(ctx, t.cluster); err != nil {
		slog.Error("dns cleanup failed",
			slog.String("cluster_name", t.cluster),
			slog.String("error", err.Error()),
		)
	}
	if err := o.cleanupStorage(ctx, t); err != nil {
		slog.Error("state storage cleanup failed",
			slog.String("cluster_name", t.cluster),
			slog.String("region", t.region),
			slog.String("error", err.Error()),
		)
	}
}

// mutate performs one mutating call. Not-found counts as done; any other
// failure is logged and returned. Dry-run only logs.
func (o *Orchestrator) mutate(ctx context.Context, op, id string, call func() error) error {
	if o.opts.DryRun {
		slog.Info("Would "+op, slog.String("resource_id", id))
		return nil
	}
	if err := o.opts.Throttle.Wait(ctx); err != nil {
		return fmt.Errorf("%s %s: %w", op, id, err)
	}

	err := call()
	switch {
	case err == nil:
		slog.Info("teardown call succeeded", slog.String("op", op), slog.String("resource_id", id))
		return nil
	case awsapi.IsNotFound(err):
		slog.Debug("resource already gone", slog.String("op", op), slog.String("resource_id", id))
		return nil
	case awsapi.IsDependencyViolation(err):
		slog.Warn("resource still has dependencies",
			slog.String("op", op),
			slog.String("resource_id", id),
			slog.String("error", err.Error()),
		)
	default:
		slog.Error("teardown call failed",
			slog.String("op", op),
			slog.String("resource_id", id),
			slog.String("error", err.Error()),
		)
	}
	return fmt.Errorf("%s %s: %w", op, id, err)
}

// collect runs fn for each id and aggregates the failures.
func collect(ids []string, fn func(id string) error) error {
	var errs []error
	for _, id := range ids {
		if err := fn(id); err != nil {
			errs = append(errs, err)
		}
	}
	return utilerrors.NewAggregate(errs)
}
