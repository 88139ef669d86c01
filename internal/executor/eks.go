package executor

import (
	"context"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	cfntypes "github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/ppiankov/cloudspectre/internal/awsapi"
)

// Resource types that commonly block eksctl stack deletion.
const (
	resourceIngress        = "AWS::EC2::SecurityGroupIngress"
	resourceRouteTableLink = "AWS::EC2::SubnetRouteTableAssociation"
	resourceRoute          = "AWS::EC2::Route"
)

// StackName returns the eksctl control plane stack of cluster.
func StackName(cluster string) string {
	return "eksctl-" + cluster + "-cluster"
}

// stackBillingTag returns the billing tag on stack, or "" when the stack is
// missing or untagged.
func stackBillingTag(stack *cfntypes.Stack) string {
	if stack == nil {
		return ""
	}
	return awsapi.StackTags(stack.Tags).BillingTag()
}

func (e *Executor) describeStack(ctx context.Context, region, name string) (*cfntypes.Stack, error) {
	out, err := e.clients(region).CloudFormation.DescribeStacks(ctx, &cloudformation.DescribeStacksInput{
		StackName: aws.String(name),
	})
	if err != nil {
		if awsapi.IsNotFound(err) {
			slog.Warn("cloudformation stack not found",
				slog.String("stack_name", name),
				slog.String("region", region),
			)
			return nil, nil
		}
		slog.Error("failed to describe cloudformation stack",
			slog.String("stack_name", name),
			slog.String("region", region),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	if len(out.Stacks) == 0 {
		return nil, nil
	}
	return &out.Stacks[0], nil
}

// deleteStack starts deletion of the cluster's stack. A stack stuck in
// DELETE_FAILED has its known blockers cleared before deletion is retried.
func (e *Executor) deleteStack(ctx context.Context, region, cluster string) bool {
	name := StackName(cluster)
	stack, err := e.describeStack(ctx, region, name)
	if err != nil || stack == nil {
		return false
	}

	status := stack.StackStatus
	switch {
	case status == cfntypes.StackStatusDeleteFailed:
		slog.Info("stack previously failed deletion, clearing blockers and retrying",
			slog.String("stack_name", name),
			slog.String("billing_tag", stackBillingTag(stack)),
			slog.String("region", region),
		)
		e.clearStackBlockers(ctx, region, name)
	case strings.Contains(string(status), "DELETE") && status != cfntypes.StackStatusDeleteComplete:
		slog.Info("stack already deleting",
			slog.String("stack_name", name),
			slog.String("status", string(status)),
		)
		return true
	}

	if err := e.opts.Throttle.Wait(ctx); err != nil {
		return false
	}
	if _, err := e.clients(region).CloudFormation.DeleteStack(ctx, &cloudformation.DeleteStackInput{
		StackName: aws.String(name),
	}); err != nil {
		slog.Error("failed to delete cloudformation stack",
			slog.String("stack_name", name),
			slog.String("region", region),
			slog.String("error", err.Error()),
		)
		return false
	}
	slog.Info("initiated stack deletion",
		slog.String("stack_name", name),
		slog.String("cluster_name", cluster),
		slog.String("billing_tag", stackBillingTag(stack)),
		slog.String("region", region),
	)
	return true
}

type stackBlocker struct {
	resourceType string
	physicalID   string
}

// clearStackBlockers removes the resources behind DELETE_FAILED stack events,
// once per logical id. Failures are logged and do not stop the retry.
func (e *Executor) clearStackBlockers(ctx context.Context, region, stack string) {
	c := e.clients(region)
	seen := sets.New[string]()
	var blockers []stackBlocker

	p := cloudformation.NewDescribeStackEventsPaginator(c.CloudFormation, &cloudformation.DescribeStackEventsInput{
		StackName: aws.String(stack),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			slog.Error("failed to list stack events",
				slog.String("stack_name", stack),
				slog.String("error", err.Error()),
			)
			return
		}
		for _, ev := range page.StackEvents {
			if ev.ResourceStatus != cfntypes.ResourceStatusDeleteFailed {
				continue
			}
			logical := aws.ToString(ev.LogicalResourceId)
			if seen.Has(logical) {
				continue
			}
			seen.Insert(logical)
			blockers = append(blockers, stackBlocker{
				resourceType: aws.ToString(ev.ResourceType),
				physicalID:   aws.ToString(ev.PhysicalResourceId),
			})
		}
	}
	if len(blockers) == 0 {
		return
	}

	slog.Info("clearing failed stack resources",
		slog.String("stack_name", stack),
		slog.Int("count", len(blockers)),
	)
	for _, b := range blockers {
		if err := e.clearBlocker(ctx, c.EC2, b); err != nil && !awsapi.IsNotFound(err) {
			slog.Warn("could not clear stack blocker",
				slog.String("resource_type", b.resourceType),
				slog.String("physical_id", b.physicalID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (e *Executor) clearBlocker(ctx context.Context, client EC2API, b stackBlocker) error {
	if b.physicalID == "" {
		return nil
	}
	if err := e.opts.Throttle.Wait(ctx); err != nil {
		return err
	}

	switch b.resourceType {
	case resourceIngress:
		groupID, _, found := strings.Cut(b.physicalID, "|")
		if !found || !strings.HasPrefix(groupID, "sg-") {
			return nil
		}
		out, err := client.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{GroupIds: []string{groupID}})
		if err != nil {
			return err
		}
		if len(out.SecurityGroups) == 0 || len(out.SecurityGroups[0].IpPermissions) == 0 {
			return nil
		}
		if _, err := client.RevokeSecurityGroupIngress(ctx, &ec2.RevokeSecurityGroupIngressInput{
			GroupId:       aws.String(groupID),
			IpPermissions: out.SecurityGroups[0].IpPermissions,
		}); err != nil {
			return err
		}
		slog.Info("revoked ingress rules", slog.String("group_id", groupID))

	case resourceRouteTableLink:
		if !strings.HasPrefix(b.physicalID, "rtbassoc-") {
			return nil
		}
		if _, err := client.DisassociateRouteTable(ctx, &ec2.DisassociateRouteTableInput{
			AssociationId: aws.String(b.physicalID),
		}); err != nil {
			return err
		}
		slog.Info("disassociated route table", slog.String("association_id", b.physicalID))

	case resourceRoute:
		parts := strings.Split(b.physicalID, "_")
		if len(parts) != 2 || !strings.HasPrefix(parts[0], "rtb-") {
			return nil
		}
		if _, err := client.DeleteRoute(ctx, &ec2.DeleteRouteInput{
			RouteTableId:         aws.String(parts[0]),
			DestinationCidrBlock: aws.String(parts[1]),
		}); err != nil {
			return err
		}
		slog.Info("deleted route",
			slog.String("route_table_id", parts[0]),
			slog.String("destination", parts[1]),
		)
	}
	return nil
}
