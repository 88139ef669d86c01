package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/ppiankov/cloudspectre/internal/awsapi"
	"github.com/ppiankov/cloudspectre/internal/tags"
)

// DefaultCacheTTL outlives any single run.
const DefaultCacheTTL = time.Hour

// VPCAPI is the slice of the EC2 API the resolver needs.
type VPCAPI interface {
	DescribeVpcs(ctx context.Context, params *ec2.DescribeVpcsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVpcsOutput, error)
}

// Resolver maps cluster names to infra ids through VPC ownership tags.
type Resolver struct {
	vpcs     func(region string) VPCAPI
	cache    *Cache
	throttle *awsapi.Throttle
}

// NewResolver creates a resolver. vpcs returns the EC2 client for a region.
func NewResolver(vpcs func(region string) VPCAPI, cache *Cache, throttle *awsapi.Throttle) *Resolver {
	if cache == nil {
		cache = NewCache(DefaultCacheTTL)
	}
	return &Resolver{vpcs: vpcs, cache: cache, throttle: throttle}
}

// InfraID returns the infra id of the cluster called name in region, or "".
// It tries an exact ownership key first, then <name>-*. Errors are logged and
// reported as a miss.
func (r *Resolver) InfraID(ctx context.Context, region, name string) string {
	if name == "" {
		return ""
	}
	if infra, ok := r.cache.Get(region, name); ok {
		slog.Debug("infra id cache hit",
			slog.String("cluster_name", name),
			slog.String("region", region),
			slog.String("infra_id", infra),
		)
		return infra
	}

	infra, err := r.lookup(ctx, region, name)
	if err != nil {
		slog.Error("failed to detect infra id",
			slog.String("cluster_name", name),
			slog.String("region", region),
			slog.String("error", err.Error()),
		)
		return ""
	}
	r.cache.Set(region, name, infra)
	if infra != "" {
		slog.Info("detected infra id",
			slog.String("cluster_name", name),
			slog.String("region", region),
			slog.String("infra_id", infra),
		)
	}
	return infra
}

func (r *Resolver) lookup(ctx context.Context, region, name string) (string, error) {
	client := r.vpcs(region)
	for _, key := range []string{tags.ClusterOwnershipPrefix + name, tags.ClusterOwnershipPrefix + name + "-*"} {
		if err := r.throttle.Wait(ctx); err != nil {
			return "", err
		}
		out, err := client.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{
			Filters: []ec2types.Filter{awsapi.Filter("tag-key", key)},
		})
		if err != nil {
			return "", fmt.Errorf("describe vpcs with %s: %w", key, err)
		}
		if len(out.Vpcs) == 0 {
			continue
		}
		vpcTags := awsapi.EC2Tags(out.Vpcs[0].Tags)
		for _, k := range vpcTags.KeysWithPrefix(tags.ClusterOwnershipPrefix) {
			if infra := tags.LastSegment(k); infra != "" {
				return infra, nil
			}
		}
		slog.Warn("vpc matched but carries no ownership tag",
			slog.String("vpc_id", aws.ToString(out.Vpcs[0].VpcId)),
			slog.String("cluster_name", name),
		)
	}
	return "", nil
}

// Resolve completes an identity from Classify. A name-pattern guess becomes a
// verified footprint when an infra id exists for it and FamilyNone otherwise.
// A footprint without an infra id gets one looked up.
func (r *Resolver) Resolve(ctx context.Context, region string, id Identity) Identity {
	if id.Family != FamilyNetworkFootprint || id.InfraID != "" {
		return id
	}

	infra := r.InfraID(ctx, region, id.ClusterName)
	if id.NeedsVerification {
		if infra == "" {
			return Identity{Family: FamilyNone}
		}
		id.NeedsVerification = false
	}
	id.InfraID = infra
	return id
}
