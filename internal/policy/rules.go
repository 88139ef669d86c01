package policy

import (
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"time"

	"github.com/ppiankov/cloudspectre/internal/cluster"
	"github.com/ppiankov/cloudspectre/internal/models"
	"github.com/ppiankov/cloudspectre/internal/tags"
)

// Rule names, in evaluation order.
const (
	RuleTTL         = "ttl"
	RuleStop        = "stop"
	RuleLongStopped = "long-stopped"
	RuleUntagged    = "untagged"
	RuleVolume      = "unattached-volume"
)

const (
	day           = 24 * time.Hour
	maxStopDays   = math.MaxInt64 / int64(day)
	timeLayout    = "2006-01-02 15:04:05 UTC"
	missingTag    = "<MISSING>"
	unknownTag    = "unknown"
	notApplicable = "N/A"
)

// Rule inspects one instance and returns the action it decides, if any.
type Rule interface {
	Name() string
	Evaluate(inst models.Instance, now time.Time) (models.CleanupAction, bool)
}

func daysBetween(from, to time.Time) float64 {
	return to.Sub(from).Seconds() / day.Seconds()
}

func formatUTC(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ttlRule fires once creation-time + delete-cluster-after-hours has passed.
type ttlRule struct{}

func (ttlRule) Name() string { return RuleTTL }

func (ttlRule) Evaluate(inst models.Instance, now time.Time) (models.CleanupAction, bool) {
	ttl, ok, err := inst.Tags.ParseTTL()
	if err != nil {
		slog.Warn("invalid TTL tags",
			slog.String("instance_id", inst.ID),
			slog.String("creation_time", inst.Tags[tags.KeyCreationTime]),
			slog.String("ttl_hours", inst.Tags[tags.KeyTTLHours]),
			slog.String("error", err.Error()),
		)
		return models.CleanupAction{}, false
	}
	if !ok {
		return models.CleanupAction{}, false
	}

	expiry := ttl.Expiry()
	if now.Before(expiry) {
		return models.CleanupAction{}, false
	}

	action := models.CleanupAction{
		InstanceID:   inst.ID,
		ResourceType: models.ResourceInstance,
		Name:         inst.Tags.Name(notApplicable),
		Action:       models.ActionTerminate,
		Reason: fmt.Sprintf("TTL expired: %sh policy. Created %s, expired %s",
			formatNumber(ttl.Hours), formatUTC(ttl.Created), formatUTC(expiry)),
		DaysOverdue: daysBetween(expiry, now),
		BillingTag:  inst.Tags.Value(tags.KeyBilling, unknownTag),
		ClusterName: inst.Tags.ClusterName(),
		Owner:       inst.Tags.Value(tags.KeyOwner, unknownTag),
		Rule:        RuleTTL,
	}
	if action.ClusterName != "" {
		if cluster.Classify(inst.Tags).Family == cluster.FamilyNetworkFootprint {
			action.Action = models.ActionTerminateOpenShiftCluster
		} else {
			action.Action = models.ActionTerminateCluster
		}
	}
	return action, true
}

// stopRule stops running instances once stop-after-days have passed since launch.
type stopRule struct{}

func (stopRule) Name() string { return RuleStop }

func (stopRule) Evaluate(inst models.Instance, now time.Time) (models.CleanupAction, bool) {
	if inst.State != models.StateRunning || inst.LaunchTime.IsZero() {
		return models.CleanupAction{}, false
	}
	days, ok, err := inst.Tags.StopAfterDays()
	if err != nil {
		slog.Warn("invalid stop policy tag",
			slog.String("instance_id", inst.ID),
			slog.String("error", err.Error()),
		)
		return models.CleanupAction{}, false
	}
	if !ok {
		return models.CleanupAction{}, false
	}
	if int64(days) > maxStopDays {
		slog.Warn("stop policy out of range",
			slog.String("instance_id", inst.ID),
			slog.Int("stop_after_days", days),
		)
		return models.CleanupAction{}, false
	}

	stopAt := inst.LaunchTime.Add(time.Duration(days) * day)
	if now.Before(stopAt) {
		return models.CleanupAction{}, false
	}

	return models.CleanupAction{
		InstanceID:   inst.ID,
		ResourceType: models.ResourceInstance,
		Name:         inst.Tags.Name(notApplicable),
		Action:       models.ActionStop,
		Reason:       fmt.Sprintf("Stop policy: %dd. Launched %s", days, formatUTC(inst.LaunchTime)),
		DaysOverdue:  daysBetween(stopAt, now),
		BillingTag:   inst.Tags.Value(tags.KeyBilling, unknownTag),
		Owner:        inst.Tags.Value(tags.KeyOwner, unknownTag),
		Rule:         RuleStop,
	}, true
}

// longStoppedRule terminates stopped instances launched more than threshold ago.
type longStoppedRule struct {
	threshold time.Duration
}

func (longStoppedRule) Name() string { return RuleLongStopped }

func (r longStoppedRule) Evaluate(inst models.Instance, now time.Time) (models.CleanupAction, bool) {
	if inst.State != models.StateStopped || inst.LaunchTime.IsZero() {
		return models.CleanupAction{}, false
	}

	days := daysBetween(inst.LaunchTime, now)
	thresholdDays := r.threshold.Hours() / 24
	if days <= thresholdDays {
		return models.CleanupAction{}, false
	}

	return models.CleanupAction{
		InstanceID:   inst.ID,
		ResourceType: models.ResourceInstance,
		Name:         inst.Tags.Name(notApplicable),
		Action:       models.ActionTerminate,
		Reason:       fmt.Sprintf("Stopped instance older than %s days", formatNumber(thresholdDays)),
		DaysOverdue:  days - thresholdDays,
		BillingTag:   inst.Tags.Value(tags.KeyBilling, unknownTag),
		Rule:         RuleLongStopped,
	}, true
}

// untaggedRule terminates instances without a valid billing tag once they
// have run for threshold. Managed cluster nodes matching skip are left alone.
type untaggedRule struct {
	threshold time.Duration
	skip      *regexp.Regexp
}

func (untaggedRule) Name() string { return RuleUntagged }

func (r untaggedRule) Evaluate(inst models.Instance, now time.Time) (models.CleanupAction, bool) {
	if tags.HasValidBilling(inst.Tags, now) {
		return models.CleanupAction{}, false
	}
	if r.skip != nil {
		if name := inst.Tags.EKSClusterName(); name != "" && r.skip.MatchString(name) {
			slog.Debug("untagged instance skipped by cluster pattern",
				slog.String("instance_id", inst.ID),
				slog.String("cluster_name", name),
			)
			return models.CleanupAction{}, false
		}
	}
	if inst.LaunchTime.IsZero() {
		return models.CleanupAction{}, false
	}

	running := now.Sub(inst.LaunchTime)
	if running < r.threshold {
		return models.CleanupAction{}, false
	}

	minutes := running.Minutes()
	return models.CleanupAction{
		InstanceID:   inst.ID,
		ResourceType: models.ResourceInstance,
		Name:         inst.Tags.Name(notApplicable),
		Action:       models.ActionTerminate,
		Reason: fmt.Sprintf("Missing billing tag. Running %.0f minutes (threshold: %s)",
			minutes, formatNumber(r.threshold.Minutes())),
		DaysOverdue: minutes / 1440,
		BillingTag:  missingTag,
		Rule:        RuleUntagged,
	}, true
}
