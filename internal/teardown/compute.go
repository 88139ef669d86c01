package teardown

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	elb "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancing"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
)

// deleteLoadBalancers removes classic and v2 load balancers whose name
// contains the infra id or that live in the cluster VPC.
func (o *Orchestrator) deleteLoadBalancers(ctx context.Context, t *target) error {
	var errs []error
	owned := func(name, vpcID string) bool {
		return strings.Contains(name, t.infraID) || vpcID == t.vpcID
	}

	if t.clients.ELB != nil {
		var names []string
		p := elb.NewDescribeLoadBalancersPaginator(t.clients.ELB, &elb.DescribeLoadBalancersInput{})
		for p.HasMorePages() {
			page, err := p.NextPage(ctx)
			if err != nil {
				errs = append(errs, fmt.Errorf("list classic load balancers: %w", err))
				break
			}
			for _, lb := range page.LoadBalancerDescriptions {
				name := aws.ToString(lb.LoadBalancerName)
				if owned(name, aws.ToString(lb.VPCId)) {
					names = append(names, name)
				}
			}
		}
		errs = append(errs, collect(names, func(name string) error {
			return o.mutate(ctx, "delete classic load balancer", name, func() error {
				_, err := t.clients.ELB.DeleteLoadBalancer(ctx, &elb.DeleteLoadBalancerInput{LoadBalancerName: aws.String(name)})
				return err
			})
		}))
	}

	if t.clients.ELBv2 != nil {
		var arns []string
		p := elbv2.NewDescribeLoadBalancersPaginator(t.clients.ELBv2, &elbv2.DescribeLoadBalancersInput{})
		for p.HasMorePages() {
			page, err := p.NextPage(ctx)
			if err != nil {
				errs = append(errs, fmt.Errorf("list load balancers: %w", err))
				break
			}
			for _, lb := range page.LoadBalancers {
				if owned(aws.ToString(lb.LoadBalancerName), aws.ToString(lb.VpcId)) {
					arns = append(arns, aws.ToString(lb.LoadBalancerArn))
				}
			}
		}
		errs = append(errs, collect(arns, func(arn string) error {
			return o.mutate(ctx, "delete load balancer", arn, func() error {
				_, err := t.clients.ELBv2.DeleteLoadBalancer(ctx, &elbv2.DeleteLoadBalancerInput{LoadBalancerArn: aws.String(arn)})
				return err
			})
		}))
	}

	return utilerrors.NewAggregate(errs)
}
