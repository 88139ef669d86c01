package scanner

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/ppiankov/cloudspectre/internal/audit"
	"github.com/ppiankov/cloudspectre/internal/awsapi/fakeaws"
	"github.com/ppiankov/cloudspectre/internal/cluster"
	"github.com/ppiankov/cloudspectre/internal/models"
	"github.com/ppiankov/cloudspectre/internal/policy"
	"github.com/ppiankov/cloudspectre/internal/tags"
	"github.com/ppiankov/cloudspectre/pkg/config"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type recordingExecutor struct {
	actions []models.CleanupAction
	fail    bool
}

func (r *recordingExecutor) Execute(_ context.Context, a models.CleanupAction) bool {
	r.actions = append(r.actions, a)
	return !r.fail
}

type recordingSink struct {
	entries []audit.Entry
}

func (r *recordingSink) Record(_ context.Context, e audit.Entry) {
	r.entries = append(r.entries, e)
}

func (r *recordingSink) Close() error { return nil }

// account maps region names to fake regions. The first region is home and
// lists every region.
type account map[string]*fakeaws.Cloud

func newAccount(regions ...string) account {
	a := account{}
	for _, r := range regions {
		a[r] = fakeaws.New(r)
	}
	a[regions[0]].Regions = regions
	return a
}

func testConfig(home string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.HomeRegion = home
	return cfg
}

func newScanner(t *testing.T, cfg *config.Config, acct account, exec Executor, sink audit.Sink) *Scanner {
	t.Helper()
	eval, err := policy.FromConfig(cfg)
	if err != nil {
		t.Fatalf("policy.FromConfig: %v", err)
	}
	resolver := cluster.NewResolver(func(region string) cluster.VPCAPI { return acct[region].EC2() }, nil, nil)
	s := New(cfg, func(region string) EC2API { return acct[region].EC2() }, eval, resolver, exec, sink, "test")
	s.now = func() time.Time { return testNow }
	return s
}

func unix(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}

func running(id string, launched time.Duration, kv ...string) *fakeaws.Instance {
	return &fakeaws.Instance{
		ID:               id,
		State:            models.StateRunning,
		LaunchTime:       testNow.Add(-launched),
		AvailabilityZone: "us-east-2a",
		Tags:             tags.FromPairs(kv...),
	}
}

func seedMixedRegion(c *fakeaws.Cloud) {
	c.Instances["i-ttl"] = running("i-ttl", 3*time.Hour,
		tags.KeyName, "ttl-box",
		tags.KeyBilling, "test-team",
		tags.KeyCreationTime, unix(testNow.Add(-2*time.Hour)),
		tags.KeyTTLHours, "1",
	)
	c.Instances["i-protected"] = running("i-protected", 3*time.Hour,
		tags.KeyBilling, "jenkins-pg",
		tags.KeyCreationTime, unix(testNow.Add(-2*time.Hour)),
		tags.KeyTTLHours, "1",
	)
	c.Instances["i-valid"] = running("i-valid", 3*time.Hour, tags.KeyBilling, "team-a")
	c.Instances["i-untagged"] = running("i-untagged", 2*time.Hour, tags.KeyName, "scratch")
	c.Instances["i-gone"] = &fakeaws.Instance{ID: "i-gone", State: "terminated", LaunchTime: testNow.Add(-48 * time.Hour)}

	c.Volumes["vol-old"] = &fakeaws.Volume{
		ID: "vol-old", State: models.StateAvailable, CreateTime: testNow.Add(-7 * 24 * time.Hour), SizeGiB: 8, Type: "gp3",
	}
	c.Volumes["vol-keep"] = &fakeaws.Volume{
		ID: "vol-keep", State: models.StateAvailable, CreateTime: testNow.Add(-30 * 24 * time.Hour), SizeGiB: 100, Type: "gp2",
		Tags: tags.FromPairs(tags.KeyKeep, "yes"),
	}
	c.Volumes["vol-attached"] = &fakeaws.Volume{
		ID: "vol-attached", State: "in-use", CreateTime: testNow.Add(-30 * 24 * time.Hour), SizeGiB: 8, Type: "gp3",
	}
}

func TestRunDecidesAndExecutes(t *testing.T) {
	acct := newAccount("us-east-2")
	seedMixedRegion(acct["us-east-2"])
	exec := &recordingExecutor{}
	sink := &recordingSink{}

	report, err := newScanner(t, testConfig("us-east-2"), acct, exec, sink).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantTargets := []string{"i-ttl", "i-untagged", "vol-old"}
	if len(exec.actions) != len(wantTargets) {
		t.Fatalf("expected %d executed actions, got %d: %+v", len(wantTargets), len(exec.actions), exec.actions)
	}
	for i, want := range wantTargets {
		got := exec.actions[i]
		if got.TargetID() != want {
			t.Fatalf("action %d: expected %s, got %s", i, want, got.TargetID())
		}
		if got.Region != "us-east-2" {
			t.Fatalf("action %d: expected region to be set, got %q", i, got.Region)
		}
	}
	if exec.actions[0].Rule != policy.RuleTTL || exec.actions[1].Rule != policy.RuleUntagged {
		t.Fatalf("unexpected rules: %s, %s", exec.actions[0].Rule, exec.actions[1].Rule)
	}

	if report.TotalActions != 3 || report.ByAction[models.ActionTerminate] != 2 || report.ByAction[models.ActionDeleteVolume] != 1 {
		t.Fatalf("unexpected totals: %d %v", report.TotalActions, report.ByAction)
	}
	if !report.DryRun || report.Tool != ToolName {
		t.Fatalf("unexpected report header: dry_run=%v tool=%s", report.DryRun, report.Tool)
	}
	if report.VolumeAges == nil || report.VolumeAges.Min != 7 {
		t.Fatalf("expected volume age stats, got %+v", report.VolumeAges)
	}
	if len(report.Regions) != 1 {
		t.Fatalf("expected 1 region summary, got %d", len(report.Regions))
	}

	sum := report.Regions[0]
	if sum.InstancesScanned != 4 || sum.InstancesProtected != 2 {
		t.Fatalf("unexpected instance stats: %+v", sum)
	}
	if sum.VolumesScanned != 2 || sum.VolumesProtected != 1 {
		t.Fatalf("unexpected volume stats: %+v", sum)
	}
	if sum.Actions != 3 || sum.Succeeded != 3 || sum.Failed != 0 {
		t.Fatalf("unexpected action stats: %+v", sum)
	}
	if sum.ProtectionReasons["Persistent billing tag 'jenkins-pg'"] != 1 ||
		sum.ProtectionReasons["Valid billing tag 'team-a'"] != 1 ||
		sum.ProtectionReasons["Has PerconaKeep tag"] != 1 {
		t.Fatalf("unexpected protection reasons: %v", sum.ProtectionReasons)
	}

	if len(sink.entries) != 3 {
		t.Fatalf("expected 3 audit entries, got %d", len(sink.entries))
	}
	if !sink.entries[0].DryRun || !sink.entries[0].Succeeded {
		t.Fatalf("unexpected audit entry: %+v", sink.entries[0])
	}
}

func TestProtectedInstancesGetNoAction(t *testing.T) {
	acct := newAccount("us-east-2")
	c := acct["us-east-2"]
	for i, billing := range config.DefaultPersistentTags {
		id := "i-" + strconv.Itoa(i)
		c.Instances[id] = running(id, 90*24*time.Hour,
			tags.KeyBilling, billing,
			tags.KeyCreationTime, unix(testNow.Add(-48*time.Hour)),
			tags.KeyTTLHours, "1",
			tags.KeyStopAfterDays, "1",
		)
	}
	exec := &recordingExecutor{}

	report, err := newScanner(t, testConfig("us-east-2"), acct, exec, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(exec.actions) != 0 {
		t.Fatalf("expected no actions for protected instances, got %+v", exec.actions)
	}
	if got := report.Regions[0].InstancesProtected; got != len(config.DefaultPersistentTags) {
		t.Fatalf("expected %d protected, got %d", len(config.DefaultPersistentTags), got)
	}
}

func TestRegionSelection(t *testing.T) {
	acct := newAccount("us-east-2", "us-east-1", "eu-west-1")
	for _, c := range acct {
		c.Instances["i-1"] = running("i-1", 2*time.Hour)
	}
	cfg := testConfig("us-east-2")
	cfg.TargetRegions = []string{"us-east-2", "eu-west-1"}
	cfg.ExcludeRegions = []string{"eu-*"}

	report, err := newScanner(t, cfg, acct, &recordingExecutor{}, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Regions) != 1 || report.Regions[0].Region != "us-east-2" {
		t.Fatalf("expected only us-east-2, got %+v", report.Regions)
	}
	for _, region := range []string{"us-east-1", "eu-west-1"} {
		if n := acct[region].Calls("ec2:DescribeInstances"); n != 0 {
			t.Fatalf("region %s should not be scanned, got %d calls", region, n)
		}
	}
	if report.Metadata.RegionsScanned != 1 {
		t.Fatalf("expected RegionsScanned=1, got %d", report.Metadata.RegionsScanned)
	}
}

func TestRegionEnumerationFailureIsFatal(t *testing.T) {
	acct := newAccount("us-east-2")
	acct["us-east-2"].Fail["ec2:DescribeRegions"] = fakeaws.APIError("UnauthorizedOperation", "not allowed")

	report, err := newScanner(t, testConfig("us-east-2"), acct, &recordingExecutor{}, nil).Run(context.Background())
	if err == nil {
		t.Fatal("expected error when regions cannot be listed")
	}
	if report != nil {
		t.Fatalf("expected no report, got %+v", report)
	}
}

func TestRegionFailureDoesNotStopRun(t *testing.T) {
	acct := newAccount("us-east-2", "us-west-2")
	acct["us-east-2"].Fail["ec2:DescribeInstances"] = errors.New("connection reset")
	acct["us-west-2"].Instances["i-1"] = running("i-1", 2*time.Hour)
	exec := &recordingExecutor{}

	report, err := newScanner(t, testConfig("us-east-2"), acct, exec, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Regions) != 2 {
		t.Fatalf("expected 2 region summaries, got %d", len(report.Regions))
	}
	if report.Regions[0].Error == "" {
		t.Fatal("expected the failing region to carry its error")
	}
	if len(exec.actions) != 1 || exec.actions[0].Region != "us-west-2" {
		t.Fatalf("expected the healthy region to be processed, got %+v", exec.actions)
	}
}

func TestVolumeErrorKeepsInstanceActions(t *testing.T) {
	acct := newAccount("us-east-2")
	seedMixedRegion(acct["us-east-2"])
	acct["us-east-2"].Fail["ec2:DescribeVolumes"] = errors.New("throttled")
	exec := &recordingExecutor{}

	report, err := newScanner(t, testConfig("us-east-2"), acct, exec, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(exec.actions) != 2 {
		t.Fatalf("expected the 2 instance actions, got %d", len(exec.actions))
	}
	if report.Regions[0].Error != "" {
		t.Fatalf("volume errors must not fail the region, got %q", report.Regions[0].Error)
	}
}

func TestVolumeCleanupDisabled(t *testing.T) {
	acct := newAccount("us-east-2")
	seedMixedRegion(acct["us-east-2"])
	cfg := testConfig("us-east-2")
	cfg.VolumeCleanupEnabled = false

	report, err := newScanner(t, cfg, acct, &recordingExecutor{}, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n := acct["us-east-2"].Calls("ec2:DescribeVolumes"); n != 0 {
		t.Fatalf("expected no volume listing, got %d calls", n)
	}
	if report.ByAction[models.ActionDeleteVolume] != 0 || report.VolumeAges != nil {
		t.Fatalf("expected no volume actions, got %v", report.ByAction)
	}
}

func TestFailedActionsAreCounted(t *testing.T) {
	acct := newAccount("us-east-2")
	seedMixedRegion(acct["us-east-2"])
	sink := &recordingSink{}

	report, err := newScanner(t, testConfig("us-east-2"), acct, &recordingExecutor{fail: true}, sink).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	sum := report.Regions[0]
	if sum.Failed != 3 || sum.Succeeded != 0 {
		t.Fatalf("expected 3 failures, got %+v", sum)
	}
	for _, e := range sink.entries {
		if e.Succeeded {
			t.Fatalf("audit entry should record failure: %+v", e)
		}
	}
}

func TestCirrusCIAutoTag(t *testing.T) {
	cases := []struct {
		name       string
		dryRun     bool
		wantTagged bool
		wantAction bool
	}{
		{name: "live run tags and protects", dryRun: false, wantTagged: true, wantAction: false},
		{name: "dry run protects without tagging", dryRun: true, wantTagged: false, wantAction: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			acct := newAccount("us-east-2")
			c := acct["us-east-2"]
			c.Instances["i-ci"] = running("i-ci", 2*time.Hour, tags.KeyCirrusCI, "TRUE", tags.KeyName, "cirrus-task")
			c.Instances["i-billed"] = running("i-billed", 2*time.Hour, tags.KeyCirrusCI, "true", tags.KeyBilling, "team-a")
			cfg := testConfig("us-east-2")
			cfg.DryRun = tc.dryRun
			cfg.VolumeCleanupEnabled = false
			exec := &recordingExecutor{}

			if _, err := newScanner(t, cfg, acct, exec, nil).Run(context.Background()); err != nil {
				t.Fatalf("Run: %v", err)
			}

			wantCalls := 0
			if tc.wantTagged {
				wantCalls = 1
			}
			if n := c.Calls("ec2:CreateTags"); n != wantCalls {
				t.Fatalf("expected %d CreateTags calls, got %d", wantCalls, n)
			}
			tagged := c.Instances["i-ci"].Tags[tags.KeyBilling] == CirrusCIBilling
			if tagged != tc.wantTagged {
				t.Fatalf("tagged = %v, want %v", tagged, tc.wantTagged)
			}
			if c.Instances["i-billed"].Tags[tags.KeyBilling] != "team-a" {
				t.Fatal("existing billing tag must not be replaced")
			}
			if got := len(exec.actions) > 0; got != tc.wantAction {
				t.Fatalf("actions = %+v, wantAction %v", exec.actions, tc.wantAction)
			}
		})
	}
}

func TestNamePatternClusterIsPromotedWhenVerified(t *testing.T) {
	cases := []struct {
		name        string
		seedVPC     bool
		wantAction  models.ActionKind
		wantCluster string
	}{
		{name: "verified by vpc tag", seedVPC: true, wantAction: models.ActionTerminateOpenShiftCluster, wantCluster: "demo"},
		{name: "no matching vpc", seedVPC: false, wantAction: models.ActionTerminate},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			acct := newAccount("us-east-2")
			c := acct["us-east-2"]
			c.Instances["i-master"] = running("i-master", 3*time.Hour,
				tags.KeyName, "demo-abc12-master-0",
				tags.KeyBilling, "test-team",
				tags.KeyCreationTime, unix(testNow.Add(-2*time.Hour)),
				tags.KeyTTLHours, "1",
			)
			if tc.seedVPC {
				c.VPCs["vpc-1"] = &fakeaws.VPC{ID: "vpc-1", Tags: tags.FromPairs(tags.ClusterOwnershipPrefix+"demo-abc12", "owned")}
			}
			cfg := testConfig("us-east-2")
			cfg.VolumeCleanupEnabled = false
			exec := &recordingExecutor{}

			if _, err := newScanner(t, cfg, acct, exec, nil).Run(context.Background()); err != nil {
				t.Fatalf("Run: %v", err)
			}
			if len(exec.actions) != 1 {
				t.Fatalf("expected 1 action, got %d", len(exec.actions))
			}
			got := exec.actions[0]
			if got.Action != tc.wantAction || got.ClusterName != tc.wantCluster {
				t.Fatalf("got %s/%q, want %s/%q", got.Action, got.ClusterName, tc.wantAction, tc.wantCluster)
			}
		})
	}
}

func TestCanceledContextStopsBeforeNextRegion(t *testing.T) {
	acct := newAccount("us-east-2", "us-west-2")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := newScanner(t, testConfig("us-east-2"), acct, &recordingExecutor{}, nil).Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Regions) != 0 {
		t.Fatalf("expected no regions scanned, got %d", len(report.Regions))
	}
}
