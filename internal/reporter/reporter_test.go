package reporter

import (
	"time"

	"github.com/ppiankov/cloudspectre/internal/models"
)

func sampleReport() *models.Report {
	r := &models.Report{
		Tool:      "cloudspectre",
		Version:   "1.2.3",
		Timestamp: "2025-06-01T12:00:00Z",
		DryRun:    true,
		Metadata: models.Metadata{
			GeneratedAt:    time.Date(2025, 6, 1, 12, 0, 5, 0, time.UTC),
			Duration:       "5s",
			RegionsScanned: 2,
			Version:        "1.2.3",
		},
		Actions: []models.CleanupAction{
			{
				InstanceID:   "i-0abc",
				ResourceType: models.ResourceInstance,
				Region:       "us-east-2",
				Name:         "ttl-box",
				Action:       models.ActionTerminate,
				Reason:       "TTL expired: 1h policy",
				DaysOverdue:  0.041666,
				BillingTag:   "test-team",
				Owner:        "alice",
			},
			{
				InstanceID:   "i-0def",
				ResourceType: models.ResourceInstance,
				Region:       "us-east-2",
				Name:         "demo-abc12-master-0",
				Action:       models.ActionTerminateOpenShiftCluster,
				Reason:       "TTL expired: 2h policy",
				DaysOverdue:  1.5,
				BillingTag:   "openshift",
				ClusterName:  "demo",
			},
			{
				VolumeID:     "vol-1",
				ResourceType: models.ResourceVolume,
				Region:       "eu-west-1",
				Name:         "<UNTAGGED>",
				Action:       models.ActionDeleteVolume,
				Reason:       "Unattached volume (8GB gp3)",
				DaysOverdue:  7,
				BillingTag:   "<MISSING>",
			},
		},
		Regions: []models.RegionSummary{
			{Region: "us-east-2", InstancesScanned: 10, InstancesProtected: 4, Actions: 2, Succeeded: 2},
			{Region: "eu-west-1", VolumesScanned: 3, VolumesProtected: 1, Actions: 1, Failed: 1, Error: "describe instances: throttled"},
		},
	}
	r.Summarize()
	return r
}
