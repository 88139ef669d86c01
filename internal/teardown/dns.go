package teardown

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	r53types "github.com/aws/aws-sdk-go-v2/service/route53/types"
)

// cleanupDNS deletes the api and apps records of cluster from the hosted zone
// named after the base domain, in one change batch.
func (o *Orchestrator) cleanupDNS(ctx context.Context, cluster string) error {
	domain := strings.TrimSuffix(o.opts.BaseDomain, ".")
	if domain == "" || o.global.Route53 == nil {
		slog.Debug("dns cleanup disabled", slog.String("cluster_name", cluster))
		return nil
	}

	zoneID, err := o.findZone(ctx, domain)
	if err != nil {
		return err
	}
	if zoneID == "" {
		slog.Warn("hosted zone not found, skipping dns cleanup",
			slog.String("domain", domain),
			slog.String("cluster_name", cluster),
		)
		return nil
	}

	records, err := o.clusterRecords(ctx, zoneID, cluster, domain)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		slog.Debug("no dns records for cluster",
			slog.String("cluster_name", cluster),
			slog.String("zone_id", zoneID),
		)
		return nil
	}

	names := make([]string, len(records))
	changes := make([]r53types.Change, len(records))
	for i := range records {
		names[i] = aws.ToString(records[i].Name)
		changes[i] = r53types.Change{Action: r53types.ChangeActionDelete, ResourceRecordSet: &records[i]}
	}
	return o.mutate(ctx, "delete dns records", strings.Join(names, ","), func() error {
		_, err := o.global.Route53.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
			HostedZoneId: aws.String(zoneID),
			ChangeBatch: &r53types.ChangeBatch{
				Comment: aws.String("cloudspectre cleanup of cluster " + cluster),
				Changes: changes,
			},
		})
		return err
	})
}

func (o *Orchestrator) findZone(ctx context.Context, domain string) (string, error) {
	p := route53.NewListHostedZonesPaginator(o.global.Route53, &route53.ListHostedZonesInput{})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return "", fmt.Errorf("list hosted zones: %w", err)
		}
		for _, zone := range page.HostedZones {
			if strings.TrimSuffix(aws.ToString(zone.Name), ".") == domain {
				return aws.ToString(zone.Id), nil
			}
		}
	}
	return "", nil
}

func (o *Orchestrator) clusterRecords(ctx context.Context, zoneID, cluster, domain string) ([]r53types.ResourceRecordSet, error) {
	markers := []string{
		"api." + cluster + "." + domain,
		"apps." + cluster + "." + domain,
	}

	var records []r53types.ResourceRecordSet
	in := &route53.ListResourceRecordSetsInput{HostedZoneId: aws.String(zoneID)}
	for {
		out, err := o.global.Route53.ListResourceRecordSets(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("list records in zone %s: %w", zoneID, err)
		}
		for _, rrs := range out.ResourceRecordSets {
			name := aws.ToString(rrs.Name)
			for _, m := range markers {
				if strings.Contains(name, m) {
					records = append(records, rrs)
					break
				}
			}
		}
		if out.NextRecordName == nil {
			break
		}
		in.StartRecordName = out.NextRecordName
		in.StartRecordType = out.NextRecordType
		in.StartRecordIdentifier = out.NextRecordIdentifier
	}
	return records, nil
}
