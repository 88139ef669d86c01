// Package executor carries out cleanup actions against the cloud provider.
package executor

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/ppiankov/cloudspectre/internal/awsapi"
	"github.com/ppiankov/cloudspectre/internal/cluster"
	"github.com/ppiankov/cloudspectre/internal/models"
	"github.com/ppiankov/cloudspectre/internal/policy"
	"github.com/ppiankov/cloudspectre/internal/teardown"
)

// EC2API is the slice of the EC2 API the executor uses.
type EC2API interface {
	TerminateInstances(ctx context.Context, params *ec2.TerminateInstancesInput, optFns ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error)
	StopInstances(ctx context.Context, params *ec2.StopInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StopInstancesOutput, error)
	DescribeVolumes(ctx context.Context, params *ec2.DescribeVolumesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error)
	DeleteVolume(ctx context.Context, params *ec2.DeleteVolumeInput, optFns ...func(*ec2.Options)) (*ec2.DeleteVolumeOutput, error)
	DescribeSecurityGroups(ctx context.Context, params *ec2.DescribeSecurityGroupsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error)
	RevokeSecurityGroupIngress(ctx context.Context, params *ec2.RevokeSecurityGroupIngressInput, optFns ...func(*ec2.Options)) (*ec2.RevokeSecurityGroupIngressOutput, error)
	DisassociateRouteTable(ctx context.Context, params *ec2.DisassociateRouteTableInput, optFns ...func(*ec2.Options)) (*ec2.DisassociateRouteTableOutput, error)
	DeleteRoute(ctx context.Context, params *ec2.DeleteRouteInput, optFns ...func(*ec2.Options)) (*ec2.DeleteRouteOutput, error)
}

// CloudFormationAPI is the slice of the CloudFormation API used for managed
// cluster stacks.
type CloudFormationAPI interface {
	DescribeStacks(ctx context.Context, params *cloudformation.DescribeStacksInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStacksOutput, error)
	DeleteStack(ctx context.Context, params *cloudformation.DeleteStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DeleteStackOutput, error)
	DescribeStackEvents(ctx context.Context, params *cloudformation.DescribeStackEventsInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStackEventsOutput, error)
}

// Clients are the regional clients an action needs.
type Clients struct {
	EC2            EC2API
	CloudFormation CloudFormationAPI
}

// InfraResolver finds the infra id of a cluster.
type InfraResolver interface {
	InfraID(ctx context.Context, region, name string) string
}

// Teardowner removes a cluster's network footprint.
type Teardowner interface {
	Run(ctx context.Context, region, clusterName, infraID string) teardown.Outcome
}

// Options configures an Executor.
type Options struct {
	DryRun           bool
	EKSCleanup       bool
	OpenShiftCleanup bool
	Throttle         *awsapi.Throttle
}

// Executor runs cleanup actions one at a time.
type Executor struct {
	clients   func(region string) Clients
	protector *policy.Protector
	resolver  InfraResolver
	teardown  Teardowner
	opts      Options
	now       func() time.Time

	// infra ids already torn down in this run, keyed by region/infra
	tornDown sets.Set[string]
}

// New creates an executor. clients returns the clients for a region.
func New(clients func(region string) Clients, protector *policy.Protector, resolver InfraResolver, td Teardowner, opts Options) *Executor {
	return &Executor{
		clients:   clients,
		protector: protector,
		resolver:  resolver,
		teardown:  td,
		opts:      opts,
		now:       time.Now,
		tornDown:  sets.New[string](),
	}
}

// Execute carries out action in action.Region and reports success. Provider
// failures are logged and reported as false.
func (e *Executor) Execute(ctx context.Context, action models.CleanupAction) bool {
	switch action.Action {
	case models.ActionTerminate:
		return e.terminate(ctx, action, "")
	case models.ActionStop:
		return e.stop(ctx, action)
	case models.ActionTerminateCluster:
		return e.terminateManagedCluster(ctx, action)
	case models.ActionTerminateOpenShiftCluster:
		return e.terminateFootprintCluster(ctx, action)
	case models.ActionDeleteVolume:
		return e.deleteVolume(ctx, action)
	default:
		slog.Error("unknown action",
			slog.String("action", string(action.Action)),
			slog.String("resource_id", action.TargetID()),
		)
		return false
	}
}

func (e *Executor) terminate(ctx context.Context, action models.CleanupAction, clusterName string) bool {
	attrs := []any{
		slog.String("instance_id", action.InstanceID),
		slog.String("region", action.Region),
		slog.String("reason", action.Reason),
	}
	if clusterName != "" {
		attrs = append(attrs, slog.String("cluster_name", clusterName))
	}
	if e.opts.DryRun {
		slog.Info("Would TERMINATE instance", append(attrs, slog.Bool("dry_run", true))...)
		return true
	}

	slog.Info("TERMINATE instance", attrs...)
	if err := e.opts.Throttle.Wait(ctx); err != nil {
		return e.failed(action, err)
	}
	_, err := e.clients(action.Region).EC2.TerminateInstances(ctx, &ec2.TerminateInstancesInput{
		InstanceIds: []string{action.InstanceID},
	})
	if err != nil {
		return e.failed(action, err)
	}
	return true
}

func (e *Executor) stop(ctx context.Context, action models.CleanupAction) bool {
	if e.opts.DryRun {
		slog.Info("Would STOP instance",
			slog.Bool("dry_run", true),
			slog.String("instance_id", action.InstanceID),
			slog.String("region", action.Region),
			slog.String("reason", action.Reason),
		)
		return true
	}

	slog.Info("STOP instance",
		slog.String("instance_id", action.InstanceID),
		slog.String("region", action.Region),
		slog.String("reason", action.Reason),
	)
	if err := e.opts.Throttle.Wait(ctx); err != nil {
		return e.failed(action, err)
	}
	_, err := e.clients(action.Region).EC2.StopInstances(ctx, &ec2.StopInstancesInput{
		InstanceIds: []string{action.InstanceID},
	})
	if err != nil {
		return e.failed(action, err)
	}
	return true
}

func (e *Executor) terminateManagedCluster(ctx context.Context, action models.CleanupAction) bool {
	if action.ClusterName == "" {
		slog.Error("missing cluster name for TERMINATE_CLUSTER action",
			slog.String("instance_id", action.InstanceID),
		)
		return false
	}
	if !e.opts.EKSCleanup {
		slog.Info("EKS cleanup disabled",
			slog.String("instance_id", action.InstanceID),
			slog.String("cluster_name", action.ClusterName),
		)
		return true
	}

	if e.opts.DryRun {
		slog.Info("Would TERMINATE_CLUSTER eks",
			slog.Bool("dry_run", true),
			slog.String("cluster_name", action.ClusterName),
			slog.String("stack_name", StackName(action.ClusterName)),
			slog.String("region", action.Region),
		)
		return e.terminate(ctx, action, action.ClusterName)
	}

	slog.Info("TERMINATE_CLUSTER eks",
		slog.String("cluster_name", action.ClusterName),
		slog.String("region", action.Region),
	)
	if !e.deleteStack(ctx, action.Region, action.ClusterName) {
		slog.Warn("cluster stack not deleted, terminating instance anyway",
			slog.String("cluster_name", action.ClusterName),
			slog.String("instance_id", action.InstanceID),
		)
	}
	return e.terminate(ctx, action, action.ClusterName)
}

func (e *Executor) terminateFootprintCluster(ctx context.Context, action models.CleanupAction) bool {
	if action.ClusterName == "" {
		slog.Error("missing cluster name for TERMINATE_OPENSHIFT_CLUSTER action",
			slog.String("instance_id", action.InstanceID),
		)
		return false
	}
	if !e.opts.OpenShiftCleanup {
		slog.Info("OpenShift cleanup disabled",
			slog.String("instance_id", action.InstanceID),
			slog.String("cluster_name", action.ClusterName),
		)
		return true
	}

	infra := e.resolver.InfraID(ctx, action.Region, action.ClusterName)
	switch {
	case infra == "":
		slog.Warn("no infra id found for cluster, terminating instance only",
			slog.String("cluster_name", action.ClusterName),
			slog.String("region", action.Region),
		)
	case e.tornDown.Has(action.Region + "/" + infra):
		slog.Debug("cluster already torn down in this run",
			slog.String("infra_id", infra),
			slog.String("region", action.Region),
		)
	default:
		e.tornDown.Insert(action.Region + "/" + infra)
		name := cluster.NameFromInfraID(infra)
		slog.Info("TERMINATE_OPENSHIFT_CLUSTER",
			slog.Bool("dry_run", e.opts.DryRun),
			slog.String("cluster_name", name),
			slog.String("infra_id", infra),
			slog.String("region", action.Region),
		)
		outcome := e.teardown.Run(ctx, action.Region, name, infra)
		slog.Info("cluster teardown pass finished",
			slog.String("infra_id", infra),
			slog.String("outcome", outcome.String()),
		)
	}

	return e.terminate(ctx, action, action.ClusterName)
}

func (e *Executor) failed(action models.CleanupAction, err error) bool {
	slog.Error("failed to execute cleanup action",
		slog.String("action", string(action.Action)),
		slog.String("resource_id", action.TargetID()),
		slog.String("region", action.Region),
		slog.String("error", err.Error()),
	)
	return false
}
