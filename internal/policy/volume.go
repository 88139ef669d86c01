package policy

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ppiankov/cloudspectre/internal/models"
	"github.com/ppiankov/cloudspectre/internal/tags"
)

// EvaluateVolume decides whether an unattached, unprotected volume is deleted.
func (e *Evaluator) EvaluateVolume(vol models.Volume, now time.Time) (models.CleanupAction, bool) {
	if vol.State != models.StateAvailable {
		return models.CleanupAction{}, false
	}
	if e.protector.Volume(vol.Tags, vol.ID, now).Protected {
		return models.CleanupAction{}, false
	}
	if vol.CreateTime.IsZero() {
		slog.Warn("volume has no create time, skipping", slog.String("volume_id", vol.ID))
		return models.CleanupAction{}, false
	}

	age := daysBetween(vol.CreateTime, now)
	if age < 0 {
		age = 0
	}
	volumeType := vol.VolumeType
	if volumeType == "" {
		volumeType = unknownTag
	}

	return models.CleanupAction{
		VolumeID:     vol.ID,
		ResourceType: models.ResourceVolume,
		Name:         vol.Tags.Name(untaggedVolume),
		Action:       models.ActionDeleteVolume,
		Reason: fmt.Sprintf("Unattached volume (%dGB %s, created %s, %.1f days old)",
			vol.SizeGiB, volumeType, formatUTC(vol.CreateTime), age),
		DaysOverdue: age,
		BillingTag:  vol.Tags.Value(tags.KeyBilling, missingTag),
		Rule:        RuleVolume,
	}, true
}
