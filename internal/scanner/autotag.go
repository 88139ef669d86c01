package scanner

import (
	"context"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/ppiankov/cloudspectre/internal/models"
	"github.com/ppiankov/cloudspectre/internal/tags"
)

// CirrusCIBilling is the billing tag given to untagged CirrusCI runners.
const CirrusCIBilling = "CirrusCI"

// autoTagCirrusCI gives CirrusCI runners without a billing tag the CirrusCI
// billing tag. inst.Tags is updated in place so the rest of the pass sees it,
// in dry-run too, so the preview decides what a live run would.
func (s *Scanner) autoTagCirrusCI(ctx context.Context, client EC2API, region string, inst models.Instance) {
	if !strings.EqualFold(inst.Tags[tags.KeyCirrusCI], "true") || inst.Tags.Has(tags.KeyBilling) {
		return
	}

	attrs := []any{
		slog.String("instance_id", inst.ID),
		slog.String("instance_name", inst.Tags.Name("")),
		slog.String("billing_tag", CirrusCIBilling),
		slog.String("region", region),
	}
	if s.cfg.DryRun {
		slog.Info("Would tag CirrusCI instance", append(attrs, slog.Bool("dry_run", true))...)
		inst.Tags[tags.KeyBilling] = CirrusCIBilling
		return
	}

	_, err := client.CreateTags(ctx, &ec2.CreateTagsInput{
		Resources: []string{inst.ID},
		Tags:      []ec2types.Tag{{Key: aws.String(tags.KeyBilling), Value: aws.String(CirrusCIBilling)}},
	})
	if err != nil {
		slog.Error("failed to tag CirrusCI instance", append(attrs, slog.String("error", err.Error()))...)
		return
	}
	inst.Tags[tags.KeyBilling] = CirrusCIBilling
	slog.Info("CirrusCI instance auto-tagged", attrs...)
}
