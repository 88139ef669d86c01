package teardown

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/ppiankov/cloudspectre/internal/awsapi"
)

// maxDeleteBatch is the DeleteObjects key limit.
const maxDeleteBatch = 1000

// StateBucket returns the installer state bucket for account and region.
func StateBucket(account, region string) string {
	return fmt.Sprintf("openshift-clusters-%s-%s", account, region)
}

// cleanupStorage deletes every object under <cluster>/ in the state bucket.
func (o *Orchestrator) cleanupStorage(ctx context.Context, t *target) error {
	if t.clients.S3 == nil || o.global.STS == nil {
		slog.Debug("state storage cleanup disabled", slog.String("cluster_name", t.cluster))
		return nil
	}

	ident, err := o.global.STS.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return fmt.Errorf("get caller identity: %w", err)
	}
	bucket := StateBucket(aws.ToString(ident.Account), t.region)
	prefix := t.cluster + "/"

	var keys []string
	p := s3.NewListObjectsV2Paginator(t.clients.S3, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			if awsapi.IsNotFound(err) {
				slog.Info("state bucket not found, nothing to clean",
					slog.String("bucket", bucket),
					slog.String("cluster_name", t.cluster),
				)
				return nil
			}
			return fmt.Errorf("list objects in %s/%s: %w", bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	if len(keys) == 0 {
		slog.Debug("no state objects for cluster",
			slog.String("bucket", bucket),
			slog.String("prefix", prefix),
		)
		return nil
	}

	var errs []error
	for start := 0; start < len(keys); start += maxDeleteBatch {
		end := start + maxDeleteBatch
		if end > len(keys) {
			end = len(keys)
		}
		batch := keys[start:end]
		id := fmt.Sprintf("s3://%s/%s (%d objects)", bucket, prefix, len(batch))
		errs = append(errs, o.mutate(ctx, "delete state objects", id, func() error {
			return deleteBatch(ctx, t.clients.S3, bucket, batch)
		}))
	}
	return utilerrors.NewAggregate(errs)
}

func deleteBatch(ctx context.Context, client S3API, bucket string, keys []string) error {
	objects := make([]s3types.ObjectIdentifier, len(keys))
	for i, k := range keys {
		objects[i] = s3types.ObjectIdentifier{Key: aws.String(k)}
	}
	out, err := client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(bucket),
		Delete: &s3types.Delete{Objects: objects, Quiet: aws.Bool(true)},
	})
	if err != nil {
		return err
	}
	var errs []error
	for _, e := range out.Errors {
		errs = append(errs, fmt.Errorf("%s: %s", aws.ToString(e.Key), aws.ToString(e.Message)))
	}
	return utilerrors.NewAggregate(errs)
}
