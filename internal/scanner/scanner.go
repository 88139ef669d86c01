// Package scanner walks the selected regions, evaluates every instance and
// unattached volume, and hands the decided actions to the executor.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/ppiankov/cloudspectre/internal/audit"
	"github.com/ppiankov/cloudspectre/internal/awsapi"
	"github.com/ppiankov/cloudspectre/internal/cluster"
	"github.com/ppiankov/cloudspectre/internal/models"
	"github.com/ppiankov/cloudspectre/internal/policy"
	"github.com/ppiankov/cloudspectre/pkg/config"
)

// ToolName is reported in every run summary.
const ToolName = "cloudspectre"

// EC2API is the slice of the EC2 API the scanner reads and tags with.
type EC2API interface {
	DescribeRegions(ctx context.Context, params *ec2.DescribeRegionsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeRegionsOutput, error)
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	DescribeVolumes(ctx context.Context, params *ec2.DescribeVolumesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error)
	CreateTags(ctx context.Context, params *ec2.CreateTagsInput, optFns ...func(*ec2.Options)) (*ec2.CreateTagsOutput, error)
}

// Executor carries out one action.
type Executor interface {
	Execute(ctx context.Context, action models.CleanupAction) bool
}

// IdentityResolver verifies cluster identities guessed from tags.
type IdentityResolver interface {
	Resolve(ctx context.Context, region string, id cluster.Identity) cluster.Identity
}

// Scanner runs one full reconciliation pass.
type Scanner struct {
	cfg       *config.Config
	ec2       func(region string) EC2API
	evaluator *policy.Evaluator
	resolver  IdentityResolver
	executor  Executor
	sink      audit.Sink
	version   string
	now       func() time.Time
}

// New creates a scanner. ec2 returns the EC2 client for a region; the home
// region client is used to enumerate regions. A nil sink discards entries.
func New(cfg *config.Config, ec2 func(region string) EC2API, evaluator *policy.Evaluator,
	resolver IdentityResolver, executor Executor, sink audit.Sink, version string) *Scanner {
	if sink == nil {
		sink = audit.Nop{}
	}
	return &Scanner{
		cfg:       cfg,
		ec2:       ec2,
		evaluator: evaluator,
		resolver:  resolver,
		executor:  executor,
		sink:      sink,
		version:   version,
		now:       time.Now,
	}
}

// Regions returns the enabled regions of the account that the configuration
// selects, in the order the provider lists them.
func (s *Scanner) Regions(ctx context.Context) ([]string, error) {
	out, err := s.ec2(s.cfg.HomeRegion).DescribeRegions(ctx, &ec2.DescribeRegionsInput{})
	if err != nil {
		return nil, fmt.Errorf("failed to describe regions: %w", err)
	}
	all := make([]string, 0, len(out.Regions))
	for _, r := range out.Regions {
		if name := aws.ToString(r.RegionName); name != "" {
			all = append(all, name)
		}
	}
	return s.cfg.FilterRegions(all), nil
}

// Run scans every selected region in sequence and executes the decided
// actions. Only a failure to enumerate regions is returned as an error; a
// failing region is recorded in its summary and the run moves on.
func (s *Scanner) Run(ctx context.Context) (*models.Report, error) {
	start := s.now()
	slog.Info("starting resource cleanup", slog.Bool("dry_run", s.cfg.DryRun))

	regions, err := s.Regions(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("regions selected", slog.Int("count", len(regions)))

	report := &models.Report{
		Tool:      ToolName,
		Version:   s.version,
		Timestamp: start.UTC().Format(time.RFC3339),
		DryRun:    s.cfg.DryRun,
		Actions:   []models.CleanupAction{},
	}

	for _, region := range regions {
		if err := ctx.Err(); err != nil {
			slog.Warn("run interrupted, skipping remaining regions",
				slog.String("region", region),
				slog.String("error", err.Error()),
			)
			break
		}
		actions, summary := s.scanRegion(ctx, region)
		report.Actions = append(report.Actions, actions...)
		report.Regions = append(report.Regions, summary)
	}

	report.Summarize()
	report.Metadata = models.Metadata{
		GeneratedAt:    s.now().UTC(),
		Duration:       s.now().Sub(start).Round(time.Millisecond).String(),
		RegionsScanned: len(report.Regions),
		Version:        s.version,
	}
	logRunSummary(report)
	return report, nil
}

func (s *Scanner) scanRegion(ctx context.Context, region string) ([]models.CleanupAction, models.RegionSummary) {
	start := s.now()
	summary := models.RegionSummary{Region: region, ProtectionReasons: map[string]int{}}
	client := s.ec2(region)

	instances, err := listInstances(ctx, client)
	if err != nil {
		slog.Error("failed to process region",
			slog.String("region", region),
			slog.String("error", err.Error()),
		)
		summary.Error = err.Error()
		return nil, summary
	}

	now := s.now()
	protector := s.evaluator.Protector()
	var actions []models.CleanupAction
	for _, inst := range instances {
		summary.InstancesScanned++
		s.autoTagCirrusCI(ctx, client, region, inst)

		if d := protector.Instance(inst.Tags, inst.ID, now); d.Protected {
			summary.InstancesProtected++
			summary.ProtectionReasons[d.Reason]++
			continue
		}
		action, ok := s.evaluator.Evaluate(inst, now)
		if !ok {
			continue
		}
		action = s.promoteCluster(ctx, region, inst, action)
		actions = append(actions, action.WithRegion(region))
	}
	slog.Info("instance scan finished",
		slog.String("region", region),
		slog.Int("scanned", summary.InstancesScanned),
		slog.Int("actions", len(actions)),
		slog.Int("protected", summary.InstancesProtected),
	)
	s.executeAll(ctx, actions, &summary)

	volumeActions := s.scanVolumes(ctx, client, region, &summary)
	s.executeAll(ctx, volumeActions, &summary)

	all := append(actions, volumeActions...)
	summary.Actions = len(all)
	slog.Info("region finished",
		slog.String("region", region),
		slog.String("duration", s.now().Sub(start).Round(time.Millisecond).String()),
		slog.Int("instances", summary.InstancesScanned),
		slog.Int("volumes", summary.VolumesScanned),
		slog.Int("actions", summary.Actions),
	)
	return all, summary
}

// scanVolumes evaluates available volumes. Errors are logged and leave the
// instance results of the region intact.
func (s *Scanner) scanVolumes(ctx context.Context, client EC2API, region string, summary *models.RegionSummary) []models.CleanupAction {
	if !s.cfg.VolumeCleanupEnabled {
		slog.Info("volume cleanup disabled", slog.String("region", region))
		return nil
	}

	volumes, err := listVolumes(ctx, client)
	if err != nil {
		slog.Error("error during volume cleanup",
			slog.String("region", region),
			slog.String("error", err.Error()),
		)
		return nil
	}

	now := s.now()
	protector := s.evaluator.Protector()
	var actions []models.CleanupAction
	for _, vol := range volumes {
		summary.VolumesScanned++
		if d := protector.Volume(vol.Tags, vol.ID, now); d.Protected {
			summary.VolumesProtected++
			summary.ProtectionReasons[d.Reason]++
			continue
		}
		if action, ok := s.evaluator.EvaluateVolume(vol, now); ok {
			actions = append(actions, action.WithRegion(region))
		}
	}
	slog.Info("volume scan finished",
		slog.String("region", region),
		slog.Int("scanned", summary.VolumesScanned),
		slog.Int("actions", len(actions)),
		slog.Int("protected", summary.VolumesProtected),
	)
	return actions
}

// promoteCluster turns a TTL termination of an instance whose tags only hint
// at a footprint cluster into a cluster teardown once the hint is verified.
func (s *Scanner) promoteCluster(ctx context.Context, region string, inst models.Instance, action models.CleanupAction) models.CleanupAction {
	if action.Rule != policy.RuleTTL || action.Action != models.ActionTerminate || action.ClusterName != "" {
		return action
	}
	id := cluster.Classify(inst.Tags)
	if id.Family != cluster.FamilyNetworkFootprint || s.resolver == nil {
		return action
	}
	id = s.resolver.Resolve(ctx, region, id)
	if !id.IsFootprint() {
		return action
	}

	slog.Info("instance belongs to a footprint cluster",
		slog.String("instance_id", inst.ID),
		slog.String("cluster_name", id.ClusterName),
		slog.String("infra_id", id.InfraID),
		slog.String("source", id.Source),
	)
	action.Action = models.ActionTerminateOpenShiftCluster
	action.ClusterName = id.ClusterName
	return action
}

func (s *Scanner) executeAll(ctx context.Context, actions []models.CleanupAction, summary *models.RegionSummary) {
	for _, action := range actions {
		ok := s.executor.Execute(ctx, action)
		if ok {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
		s.sink.Record(ctx, audit.Entry{
			Time:      s.now(),
			DryRun:    s.cfg.DryRun,
			Succeeded: ok,
			Action:    action,
		})
	}
}

func listInstances(ctx context.Context, client EC2API) ([]models.Instance, error) {
	var out []models.Instance
	p := ec2.NewDescribeInstancesPaginator(client, &ec2.DescribeInstancesInput{
		Filters: []ec2types.Filter{awsapi.Filter("instance-state-name", models.StateRunning, models.StateStopped)},
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe instances: %w", err)
		}
		for _, r := range page.Reservations {
			for _, inst := range r.Instances {
				out = append(out, toInstance(inst))
			}
		}
	}
	return out, nil
}

func listVolumes(ctx context.Context, client EC2API) ([]models.Volume, error) {
	var out []models.Volume
	p := ec2.NewDescribeVolumesPaginator(client, &ec2.DescribeVolumesInput{
		Filters: []ec2types.Filter{awsapi.Filter("status", models.StateAvailable)},
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe volumes: %w", err)
		}
		for _, v := range page.Volumes {
			out = append(out, toVolume(v))
		}
	}
	return out, nil
}

func toInstance(in ec2types.Instance) models.Instance {
	inst := models.Instance{
		ID:         aws.ToString(in.InstanceId),
		LaunchTime: aws.ToTime(in.LaunchTime),
		Tags:       awsapi.EC2Tags(in.Tags),
	}
	if in.State != nil {
		inst.State = string(in.State.Name)
	}
	if in.Placement != nil {
		inst.AvailabilityZone = aws.ToString(in.Placement.AvailabilityZone)
	}
	return inst
}

func toVolume(in ec2types.Volume) models.Volume {
	return models.Volume{
		ID:         aws.ToString(in.VolumeId),
		State:      string(in.State),
		CreateTime: aws.ToTime(in.CreateTime),
		SizeGiB:    aws.ToInt32(in.Size),
		VolumeType: string(in.VolumeType),
		Tags:       awsapi.EC2Tags(in.Tags),
	}
}

func logRunSummary(r *models.Report) {
	slog.Info("cleanup complete",
		slog.Int("actions", r.TotalActions),
		slog.Int("regions", len(r.Regions)),
		slog.String("duration", r.Metadata.Duration),
	)
	for kind, count := range r.ByAction {
		slog.Info("actions by kind", slog.String("action", string(kind)), slog.Int("count", count))
	}
	if r.VolumeAges != nil {
		slog.Info("volume ages",
			slog.Float64("min_days", r.VolumeAges.Min),
			slog.Float64("max_days", r.VolumeAges.Max),
			slog.Float64("avg_days", r.VolumeAges.Avg),
		)
	}
}
