package policy

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/cloudspectre/internal/models"
	"github.com/ppiankov/cloudspectre/internal/tags"
	"github.com/ppiankov/cloudspectre/pkg/config"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func unix(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}

func newTestEvaluator() *Evaluator {
	return NewEvaluator(Options{
		PersistentTags:    config.DefaultPersistentTags,
		UntaggedThreshold: 30 * time.Minute,
		StoppedThreshold:  30 * day,
		SkipPattern:       regexp.MustCompile("^(?:pe-.*)"),
	})
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestProtectorInstance(t *testing.T) {
	p := NewProtector(config.DefaultPersistentTags)
	future := unix(testNow.Add(time.Hour))
	past := unix(testNow.Add(-time.Hour))

	cases := []struct {
		name      string
		tags      tags.Set
		protected bool
		reason    string
	}{
		{
			name:      "persistent_wins_over_ttl_and_stop",
			tags:      tags.FromPairs("iit-billing-tag", "jenkins-pxc", "delete-cluster-after-hours", "1", "creation-time", "1", "stop-after-days", "1"),
			protected: true,
			reason:    "Persistent billing tag 'jenkins-pxc'",
		},
		{
			name:      "valid_category",
			tags:      tags.FromPairs("iit-billing-tag", "test-team"),
			protected: true,
			reason:    "Valid billing tag 'test-team'",
		},
		{
			name: "valid_category_with_ttl_is_not_protected",
			tags: tags.FromPairs("iit-billing-tag", "test-team", "delete-cluster-after-hours", "1"),
		},
		{
			name: "valid_category_with_stop_policy_is_not_protected",
			tags: tags.FromPairs("iit-billing-tag", "pmm-staging", "stop-after-days", "7"),
		},
		{
			name:      "future_timestamp",
			tags:      tags.FromPairs("iit-billing-tag", future),
			protected: true,
			reason:    "Valid billing tag '" + future + "'",
		},
		{
			name: "expired_timestamp",
			tags: tags.FromPairs("iit-billing-tag", past),
		},
		{
			name: "empty_billing",
			tags: tags.FromPairs("iit-billing-tag", ""),
		},
		{
			name: "no_tags",
			tags: nil,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := p.Instance(tc.tags, "i-1", testNow)
			if got.Protected != tc.protected || got.Reason != tc.reason {
				t.Fatalf("got %+v, want protected=%v reason=%q", got, tc.protected, tc.reason)
			}
		})
	}
}

func TestProtectorVolume(t *testing.T) {
	p := NewProtector(config.DefaultPersistentTags)

	cases := []struct {
		name      string
		tags      tags.Set
		protected bool
		reason    string
	}{
		{
			name:      "do_not_remove_case_insensitive",
			tags:      tags.FromPairs("Name", "DB backup - Do Not Remove", "iit-billing-tag", "jenkins-pxc"),
			protected: true,
			reason:    "Name contains 'do not remove'",
		},
		{
			name:      "keep_tag",
			tags:      tags.FromPairs("PerconaKeep", ""),
			protected: true,
			reason:    "Has PerconaKeep tag",
		},
		{
			name:      "persistent",
			tags:      tags.FromPairs("iit-billing-tag", "pmm-dev"),
			protected: true,
			reason:    "Persistent billing tag 'pmm-dev'",
		},
		{
			name:      "valid_billing_ignores_ttl",
			tags:      tags.FromPairs("iit-billing-tag", "team", "delete-cluster-after-hours", "1"),
			protected: true,
			reason:    "Valid billing tag 'team'",
		},
		{
			name: "untagged",
			tags: tags.Set{},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := p.Volume(tc.tags, "vol-1", testNow)
			if got.Protected != tc.protected || got.Reason != tc.reason {
				t.Fatalf("got %+v, want protected=%v reason=%q", got, tc.protected, tc.reason)
			}
		})
	}
}

func TestProtectorHasNoSideEffects(t *testing.T) {
	p := NewProtector(config.DefaultPersistentTags)
	set := tags.FromPairs("iit-billing-tag", "team", "Name", "web")
	before := set.Clone()

	first := p.Instance(set, "i-1", testNow)
	second := p.Instance(set, "i-1", testNow)
	p.Volume(set, "vol-1", testNow)

	if first != second {
		t.Fatalf("expected repeatable decisions, got %+v and %+v", first, second)
	}
	if len(set) != len(before) {
		t.Fatalf("tag set was modified: %v", set)
	}
	for k, v := range before {
		if set[k] != v {
			t.Fatalf("tag %s changed from %q to %q", k, v, set[k])
		}
	}
}

func TestTTLRule(t *testing.T) {
	cases := []struct {
		name     string
		created  time.Time
		hours    string
		extra    []string
		fires    bool
		action   models.ActionKind
		days     float64
		cluster  string
		contains string
	}{
		{
			name:     "expired_two_hours_ago_created",
			created:  testNow.Add(-2 * time.Hour),
			hours:    "1",
			extra:    []string{"iit-billing-tag", "test-team"},
			fires:    true,
			action:   models.ActionTerminate,
			days:     1.0 / 24,
			contains: "TTL expired: 1h policy. Created 2025-06-01 10:00:00 UTC, expired 2025-06-01 11:00:00 UTC",
		},
		{
			name:    "exactly_at_expiry_fires",
			created: testNow.Add(-time.Hour),
			hours:   "1",
			extra:   []string{"iit-billing-tag", "test-team"},
			fires:   true,
			action:  models.ActionTerminate,
			days:    0,
		},
		{
			name:    "one_second_before_expiry",
			created: testNow.Add(-time.Hour + time.Second),
			hours:   "1",
			extra:   []string{"iit-billing-tag", "test-team"},
		},
		{
			name:    "managed_cluster",
			created: testNow.Add(-48 * time.Hour),
			hours:   "24",
			extra:   []string{"aws:eks:cluster-name", "test-eks", "iit-billing-tag", "eks"},
			fires:   true,
			action:  models.ActionTerminateCluster,
			days:    1,
			cluster: "test-eks",
		},
		{
			name:    "footprint_cluster",
			created: testNow.Add(-48 * time.Hour),
			hours:   "24",
			extra:   []string{"kubernetes.io/cluster/demo-abc12", "owned", "iit-billing-tag", "openshift"},
			fires:   true,
			action:  models.ActionTerminateOpenShiftCluster,
			days:    1,
			cluster: "demo-abc12",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pairs := append([]string{"creation-time", unix(tc.created), "delete-cluster-after-hours", tc.hours}, tc.extra...)
			inst := models.Instance{
				ID:         "i-ttl",
				State:      models.StateRunning,
				LaunchTime: testNow.Add(-time.Minute),
				Tags:       tags.FromPairs(pairs...),
			}
			action, ok := ttlRule{}.Evaluate(inst, testNow)
			if ok != tc.fires {
				t.Fatalf("fires=%v, want %v", ok, tc.fires)
			}
			if !ok {
				return
			}
			if action.Action != tc.action {
				t.Fatalf("action=%s, want %s", action.Action, tc.action)
			}
			if !approx(action.DaysOverdue, tc.days) {
				t.Fatalf("days overdue=%f, want %f", action.DaysOverdue, tc.days)
			}
			if action.ClusterName != tc.cluster {
				t.Fatalf("cluster=%q, want %q", action.ClusterName, tc.cluster)
			}
			if tc.contains != "" && action.Reason != tc.contains {
				t.Fatalf("reason=%q, want %q", action.Reason, tc.contains)
			}
			if action.Name != "N/A" || action.Owner != "unknown" {
				t.Fatalf("expected N/A name and unknown owner defaults, got %q %q", action.Name, action.Owner)
			}
		})
	}
}

func TestTTLExpiryIsMonotonicInCreationTime(t *testing.T) {
	var previous float64
	for i, offset := range []time.Duration{10 * time.Hour, 8 * time.Hour, 5 * time.Hour, 2 * time.Hour} {
		inst := models.Instance{
			ID:   "i-m",
			Tags: tags.FromPairs("creation-time", unix(testNow.Add(-offset)), "delete-cluster-after-hours", "1"),
		}
		action, ok := ttlRule{}.Evaluate(inst, testNow)
		if !ok {
			t.Fatalf("expected expiry for offset %s", offset)
		}
		if i > 0 && action.DaysOverdue >= previous {
			t.Fatalf("later creation must be less overdue: %f >= %f", action.DaysOverdue, previous)
		}
		previous = action.DaysOverdue
	}
}

func TestTTLMalformedAbstains(t *testing.T) {
	e := newTestEvaluator()
	created := unix(testNow.Add(-2 * time.Hour))
	cases := []struct {
		name    string
		created string
		hours   string
	}{
		{name: "unparseable_creation_time", created: "yesterday", hours: "1"},
		{name: "huge_ttl_hours", created: created, hours: "99999999"},
		{name: "huge_negative_ttl_hours", created: created, hours: "-99999999"},
		{name: "float_creation_time_out_of_range", created: "1e30", hours: "1"},
		{name: "integer_creation_time_out_of_range", created: "9223372036854775807", hours: "1"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			inst := models.Instance{
				ID:         "i-bad",
				State:      models.StateRunning,
				LaunchTime: testNow.Add(-100 * day),
				Tags:       tags.FromPairs("creation-time", tc.created, "delete-cluster-after-hours", tc.hours, "iit-billing-tag", "team"),
			}
			if action, ok := e.Evaluate(inst, testNow); ok {
				t.Fatalf("expected no action, got %+v", action)
			}
		})
	}
}

func TestStopRule(t *testing.T) {
	e := newTestEvaluator()
	inst := models.Instance{
		ID:         "i-stop",
		State:      models.StateRunning,
		LaunchTime: testNow.Add(-8 * day),
		Tags:       tags.FromPairs("stop-after-days", "7", "iit-billing-tag", "pmm-staging", "owner", "alice"),
	}

	action, ok := e.Evaluate(inst, testNow)
	if !ok || action.Action != models.ActionStop {
		t.Fatalf("expected STOP, got %+v ok=%v", action, ok)
	}
	if !approx(action.DaysOverdue, 1.0) {
		t.Fatalf("expected ~1 day overdue, got %f", action.DaysOverdue)
	}
	if action.Reason != "Stop policy: 7d. Launched 2025-05-24 12:00:00 UTC" {
		t.Fatalf("unexpected reason %q", action.Reason)
	}
	if action.Owner != "alice" || action.BillingTag != "pmm-staging" {
		t.Fatalf("unexpected owner/billing %q %q", action.Owner, action.BillingTag)
	}

	inst.State = models.StateStopped
	if action, ok := e.Evaluate(inst, testNow); ok {
		t.Fatalf("stopped instance must not be stopped again, got %+v", action)
	}

	inst.State = models.StateRunning
	inst.Tags = tags.FromPairs("stop-after-days", "seven", "iit-billing-tag", "pmm-staging")
	if action, ok := (stopRule{}).Evaluate(inst, testNow); ok {
		t.Fatalf("non-integer stop days must abstain, got %+v", action)
	}

	for _, days := range []string{"999999", "9223372036854775807"} {
		inst = models.Instance{
			ID:         "i-fresh",
			State:      models.StateRunning,
			LaunchTime: testNow.Add(-time.Minute),
			Tags:       tags.FromPairs("stop-after-days", days, "iit-billing-tag", "team"),
		}
		if action, ok := e.Evaluate(inst, testNow); ok {
			t.Fatalf("stop-after-days=%s must not stop a fresh instance, got %+v", days, action)
		}
	}
}

func TestLongStoppedBoundary(t *testing.T) {
	e := newTestEvaluator()
	cases := []struct {
		name  string
		age   time.Duration
		fires bool
	}{
		{name: "exactly_threshold", age: 30 * day},
		{name: "just_past_threshold", age: 30*day + time.Second, fires: true},
		{name: "well_past_threshold", age: 45 * day, fires: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			inst := models.Instance{
				ID:         "i-old",
				State:      models.StateStopped,
				LaunchTime: testNow.Add(-tc.age),
				Tags:       tags.FromPairs("iit-billing-tag", "team", "stop-after-days", "1"),
			}
			action, ok := e.Evaluate(inst, testNow)
			if ok != tc.fires {
				t.Fatalf("fires=%v, want %v (%+v)", ok, tc.fires, action)
			}
			if !ok {
				return
			}
			if action.Action != models.ActionTerminate || action.Reason != "Stopped instance older than 30 days" {
				t.Fatalf("unexpected action %+v", action)
			}
			want := tc.age.Hours()/24 - 30
			if !approx(action.DaysOverdue, want) {
				t.Fatalf("days overdue=%f, want %f", action.DaysOverdue, want)
			}
		})
	}
}

func TestUntaggedRule(t *testing.T) {
	e := newTestEvaluator()
	cases := []struct {
		name  string
		age   time.Duration
		tags  tags.Set
		fires bool
	}{
		{name: "at_threshold", age: 30 * time.Minute, tags: tags.Set{}, fires: true},
		{name: "just_under_threshold", age: 30*time.Minute - time.Second, tags: tags.Set{}},
		{name: "expired_timestamp_billing", age: time.Hour, tags: tags.FromPairs("iit-billing-tag", unix(testNow.Add(-time.Minute))), fires: true},
		{name: "skip_pattern_cluster", age: time.Hour, tags: tags.FromPairs("aws:eks:cluster-name", "pe-main")},
		{name: "skip_pattern_is_anchored", age: time.Hour, tags: tags.FromPairs("aws:eks:cluster-name", "xpe-main"), fires: true},
		{name: "skip_pattern_alias_key", age: time.Hour, tags: tags.FromPairs("eks:eks-cluster-name", "pe-ops")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			inst := models.Instance{
				ID:         "i-untagged",
				State:      models.StateRunning,
				LaunchTime: testNow.Add(-tc.age),
				Tags:       tc.tags,
			}
			action, ok := e.Evaluate(inst, testNow)
			if ok != tc.fires {
				t.Fatalf("fires=%v, want %v (%+v)", ok, tc.fires, action)
			}
			if !ok {
				return
			}
			if action.BillingTag != "<MISSING>" || action.Action != models.ActionTerminate || action.Rule != RuleUntagged {
				t.Fatalf("unexpected action %+v", action)
			}
			if !approx(action.DaysOverdue, tc.age.Minutes()/1440) {
				t.Fatalf("days overdue=%f, want %f", action.DaysOverdue, tc.age.Minutes()/1440)
			}
		})
	}

	inst := models.Instance{ID: "i-r", State: models.StateRunning, LaunchTime: testNow.Add(-30 * time.Minute)}
	action, _ := e.Evaluate(inst, testNow)
	if action.Reason != "Missing billing tag. Running 30 minutes (threshold: 30)" {
		t.Fatalf("unexpected reason %q", action.Reason)
	}
}

func TestMissingLaunchTimeAbstains(t *testing.T) {
	e := newTestEvaluator()
	for _, state := range []string{models.StateRunning, models.StateStopped} {
		inst := models.Instance{ID: "i-nolaunch", State: state, Tags: tags.FromPairs("stop-after-days", "1")}
		if action, ok := e.Evaluate(inst, testNow); ok {
			t.Fatalf("expected no action without launch time in state %s, got %+v", state, action)
		}
	}
}

func TestTTLWinsOverUntagged(t *testing.T) {
	e := newTestEvaluator()
	inst := models.Instance{
		ID:         "i-both",
		State:      models.StateRunning,
		LaunchTime: testNow.Add(-10 * time.Hour),
		Tags:       tags.FromPairs("creation-time", unix(testNow.Add(-10*time.Hour)), "delete-cluster-after-hours", "2"),
	}
	action, ok := e.Evaluate(inst, testNow)
	if !ok || action.Rule != RuleTTL {
		t.Fatalf("expected ttl rule to win, got %+v", action)
	}
	if action.BillingTag != "unknown" {
		t.Fatalf("expected ttl billing default, got %q", action.BillingTag)
	}
	if got := e.ruleNames(); strings.Join(got, ",") != "ttl,stop,long-stopped,untagged" {
		t.Fatalf("unexpected rule order %v", got)
	}
}

func TestEvaluateVolume(t *testing.T) {
	e := newTestEvaluator()
	created := testNow.Add(-7 * day)

	action, ok := e.EvaluateVolume(models.Volume{
		ID:         "vol-1",
		State:      models.StateAvailable,
		CreateTime: created,
		SizeGiB:    8,
		VolumeType: "gp3",
		Tags:       tags.Set{},
	}, testNow)
	if !ok {
		t.Fatal("expected DELETE_VOLUME")
	}
	if action.Action != models.ActionDeleteVolume || action.VolumeID != "vol-1" || action.ResourceType != models.ResourceVolume {
		t.Fatalf("unexpected action %+v", action)
	}
	if !approx(action.DaysOverdue, 7.0) {
		t.Fatalf("expected 7 days, got %f", action.DaysOverdue)
	}
	if action.Name != "<UNTAGGED>" || action.BillingTag != "<MISSING>" {
		t.Fatalf("unexpected defaults %q %q", action.Name, action.BillingTag)
	}
	want := "Unattached volume (8GB gp3, created 2025-05-25 12:00:00 UTC, 7.0 days old)"
	if action.Reason != want {
		t.Fatalf("reason=%q, want %q", action.Reason, want)
	}

	abstain := []models.Volume{
		{ID: "vol-in-use", State: "in-use", CreateTime: created},
		{ID: "vol-keep", State: models.StateAvailable, CreateTime: created, Tags: tags.FromPairs("PerconaKeep", "yes")},
		{ID: "vol-no-time", State: models.StateAvailable},
	}
	for _, vol := range abstain {
		if action, ok := e.EvaluateVolume(vol, testNow); ok {
			t.Fatalf("expected no action for %s, got %+v", vol.ID, action)
		}
	}
}

func TestFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	e, err := FromConfig(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !e.Protector().IsPersistent("jenkins-pxc") || e.Protector().IsPersistent("") {
		t.Fatal("expected default persistent tags")
	}

	cfg.EKSSkipPattern = "(["
	if _, err := FromConfig(cfg); err == nil {
		t.Fatal("expected error for invalid skip pattern")
	}
}
