package executor

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/ppiankov/cloudspectre/internal/awsapi"
	"github.com/ppiankov/cloudspectre/internal/models"
)

// deleteVolume deletes an unattached volume after checking again that it is
// still available and unprotected.
func (e *Executor) deleteVolume(ctx context.Context, action models.CleanupAction) bool {
	if action.VolumeID == "" {
		slog.Error("missing volume id for DELETE_VOLUME action",
			slog.String("region", action.Region),
		)
		return false
	}
	if e.opts.DryRun {
		slog.Info("Would DELETE volume",
			slog.Bool("dry_run", true),
			slog.String("volume_id", action.VolumeID),
			slog.String("region", action.Region),
			slog.String("reason", action.Reason),
		)
		return true
	}

	client := e.clients(action.Region).EC2
	out, err := client.DescribeVolumes(ctx, &ec2.DescribeVolumesInput{VolumeIds: []string{action.VolumeID}})
	if err != nil {
		return e.volumeFailed(action, err)
	}
	if len(out.Volumes) == 0 {
		slog.Warn("volume not found, skipping deletion", slog.String("volume_id", action.VolumeID))
		return false
	}

	vol := out.Volumes[0]
	if vol.State != ec2types.VolumeStateAvailable {
		slog.Warn("volume is no longer available, skipping deletion",
			slog.String("volume_id", action.VolumeID),
			slog.String("state", string(vol.State)),
		)
		return false
	}
	if d := e.protector.Volume(awsapi.EC2Tags(vol.Tags), "", e.now()); d.Protected {
		slog.Warn("volume is now protected, skipping deletion",
			slog.String("volume_id", action.VolumeID),
			slog.String("protection_reason", d.Reason),
		)
		return false
	}

	if err := e.opts.Throttle.Wait(ctx); err != nil {
		return e.volumeFailed(action, err)
	}
	if _, err := client.DeleteVolume(ctx, &ec2.DeleteVolumeInput{VolumeId: aws.String(action.VolumeID)}); err != nil {
		return e.volumeFailed(action, err)
	}
	slog.Info("DELETE volume",
		slog.String("volume_id", action.VolumeID),
		slog.String("region", action.Region),
		slog.String("reason", action.Reason),
	)
	return true
}

func (e *Executor) volumeFailed(action models.CleanupAction, err error) bool {
	switch {
	case awsapi.IsNotFound(err):
		slog.Warn("volume not found, already deleted?",
			slog.String("volume_id", action.VolumeID),
			slog.String("error", err.Error()),
		)
		return false
	case awsapi.ErrorCode(err) == "VolumeInUse":
		slog.Warn("volume is in use, cannot delete",
			slog.String("volume_id", action.VolumeID),
			slog.String("error", err.Error()),
		)
		return false
	}
	return e.failed(action, err)
}
