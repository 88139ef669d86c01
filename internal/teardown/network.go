package teardown

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/ppiankov/cloudspectre/internal/awsapi"
)

func (t *target) inVPC() []ec2types.Filter {
	return []ec2types.Filter{awsapi.Filter("vpc-id", t.vpcID)}
}

func (o *Orchestrator) deleteNatGateways(ctx context.Context, t *target) error {
	var ids []string
	p := ec2.NewDescribeNatGatewaysPaginator(t.clients.EC2, &ec2.DescribeNatGatewaysInput{
		Filter: []ec2types.Filter{
			awsapi.OwnedFilter(t.infraID),
			awsapi.Filter("state", string(ec2types.NatGatewayStateAvailable), string(ec2types.NatGatewayStatePending)),
		},
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("list nat gateways: %w", err)
		}
		for _, nat := range page.NatGateways {
			ids = append(ids, aws.ToString(nat.NatGatewayId))
		}
	}
	return collect(ids, func(id string) error {
		return o.mutate(ctx, "delete nat gateway", id, func() error {
			_, err := t.clients.EC2.DeleteNatGateway(ctx, &ec2.DeleteNatGatewayInput{NatGatewayId: aws.String(id)})
			return err
		})
	})
}

func (o *Orchestrator) releaseAddresses(ctx context.Context, t *target) error {
	out, err := t.clients.EC2.DescribeAddresses(ctx, &ec2.DescribeAddressesInput{
		Filters: []ec2types.Filter{awsapi.OwnedFilter(t.infraID)},
	})
	if err != nil {
		return fmt.Errorf("list elastic ips: %w", err)
	}
	var ids []string
	for _, addr := range out.Addresses {
		if addr.AllocationId != nil {
			ids = append(ids, *addr.AllocationId)
		}
	}
	return collect(ids, func(id string) error {
		return o.mutate(ctx, "release elastic ip", id, func() error {
			_, err := t.clients.EC2.ReleaseAddress(ctx, &ec2.ReleaseAddressInput{AllocationId: aws.String(id)})
			return err
		})
	})
}

func (o *Orchestrator) deleteNetworkInterfaces(ctx context.Context, t *target) error {
	var ids []string
	p := ec2.NewDescribeNetworkInterfacesPaginator(t.clients.EC2, &ec2.DescribeNetworkInterfacesInput{
		Filters: append(t.inVPC(), awsapi.Filter("status", string(ec2types.NetworkInterfaceStatusAvailable))),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("list network interfaces: %w", err)
		}
		for _, eni := range page.NetworkInterfaces {
			ids = append(ids, aws.ToString(eni.NetworkInterfaceId))
		}
	}
	return collect(ids, func(id string) error {
		return o.mutate(ctx, "delete network interface", id, func() error {
			_, err := t.clients.EC2.DeleteNetworkInterface(ctx, &ec2.DeleteNetworkInterfaceInput{NetworkInterfaceId: aws.String(id)})
			return err
		})
	})
}

func (o *Orchestrator) deleteVpcEndpoints(ctx context.Context, t *target) error {
	var ids []string
	in := &ec2.DescribeVpcEndpointsInput{Filters: t.inVPC()}
	for {
		out, err := t.clients.EC2.DescribeVpcEndpoints(ctx, in)
		if err != nil {
			return fmt.Errorf("list vpc endpoints: %w", err)
		}
		for _, ep := range out.VpcEndpoints {
			ids = append(ids, aws.ToString(ep.VpcEndpointId))
		}
		if aws.ToString(out.NextToken) == "" {
			break
		}
		in.NextToken = out.NextToken
	}
	if len(ids) == 0 {
		return nil
	}

	return o.mutate(ctx, "delete vpc endpoints", strings.Join(ids, ","), func() error {
		out, err := t.clients.EC2.DeleteVpcEndpoints(ctx, &ec2.DeleteVpcEndpointsInput{VpcEndpointIds: ids})
		if err != nil {
			return err
		}
		var errs []error
		for _, item := range out.Unsuccessful {
			if item.Error == nil {
				continue
			}
			code := aws.ToString(item.Error.Code)
			if strings.HasSuffix(code, ".NotFound") {
				continue
			}
			errs = append(errs, fmt.Errorf("%s: %s: %s", aws.ToString(item.ResourceId), code, aws.ToString(item.Error.Message)))
		}
		return utilerrors.NewAggregate(errs)
	})
}

// deleteSecurityGroups revokes ingress on every non-default group first so
// groups referencing each other can then be deleted in any order.
func (o *Orchestrator) deleteSecurityGroups(ctx context.Context, t *target) error {
	var groups []ec2types.SecurityGroup
	p := ec2.NewDescribeSecurityGroupsPaginator(t.clients.EC2, &ec2.DescribeSecurityGroupsInput{Filters: t.inVPC()})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("list security groups: %w", err)
		}
		for _, sg := range page.SecurityGroups {
			if aws.ToString(sg.GroupName) != "default" {
				groups = append(groups, sg)
			}
		}
	}

	var errs []error
	for _, sg := range groups {
		if len(sg.IpPermissions) == 0 {
			continue
		}
		id := aws.ToString(sg.GroupId)
		perms := sg.IpPermissions
		errs = append(errs, o.mutate(ctx, "revoke security group ingress", id, func() error {
			_, err := t.clients.EC2.RevokeSecurityGroupIngress(ctx, &ec2.RevokeSecurityGroupIngressInput{
				GroupId:       aws.String(id),
				IpPermissions: perms,
			})
			return err
		}))
	}
	for _, sg := range groups {
		id := aws.ToString(sg.GroupId)
		errs = append(errs, o.mutate(ctx, "delete security group", id, func() error {
			_, err := t.clients.EC2.DeleteSecurityGroup(ctx, &ec2.DeleteSecurityGroupInput{GroupId: aws.String(id)})
			return err
		}))
	}
	return utilerrors.NewAggregate(errs)
}

func (o *Orchestrator) deleteSubnets(ctx context.Context, t *target) error {
	var ids []string
	p := ec2.NewDescribeSubnetsPaginator(t.clients.EC2, &ec2.DescribeSubnetsInput{Filters: t.inVPC()})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("list subnets: %w", err)
		}
		for _, sn := range page.Subnets {
			ids = append(ids, aws.ToString(sn.SubnetId))
		}
	}
	return collect(ids, func(id string) error {
		return o.mutate(ctx, "delete subnet", id, func() error {
			_, err := t.clients.EC2.DeleteSubnet(ctx, &ec2.DeleteSubnetInput{SubnetId: aws.String(id)})
			return err
		})
	})
}

func (o *Orchestrator) deleteRouteTables(ctx context.Context, t *target) error {
	var ids []string
	p := ec2.NewDescribeRouteTablesPaginator(t.clients.EC2, &ec2.DescribeRouteTablesInput{Filters: t.inVPC()})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("list route tables: %w", err)
		}
		for _, rt := range page.RouteTables {
			if !isMainRouteTable(rt) {
				ids = append(ids, aws.ToString(rt.RouteTableId))
			}
		}
	}
	return collect(ids, func(id string) error {
		return o.mutate(ctx, "delete route table", id, func() error {
			_, err := t.clients.EC2.DeleteRouteTable(ctx, &ec2.DeleteRouteTableInput{RouteTableId: aws.String(id)})
			return err
		})
	})
}

func isMainRouteTable(rt ec2types.RouteTable) bool {
	for _, assoc := range rt.Associations {
		if aws.ToBool(assoc.Main) {
			return true
		}
	}
	return false
}

func (o *Orchestrator) deleteInternetGateways(ctx context.Context, t *target) error {
	var ids []string
	p := ec2.NewDescribeInternetGatewaysPaginator(t.clients.EC2, &ec2.DescribeInternetGatewaysInput{
		Filters: []ec2types.Filter{awsapi.Filter("attachment.vpc-id", t.vpcID)},
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("list internet gateways: %w", err)
		}
		for _, igw := range page.InternetGateways {
			ids = append(ids, aws.ToString(igw.InternetGatewayId))
		}
	}
	return collect(ids, func(id string) error {
		err := o.mutate(ctx, "detach internet gateway", id, func() error {
			_, err := t.clients.EC2.DetachInternetGateway(ctx, &ec2.DetachInternetGatewayInput{
				InternetGatewayId: aws.String(id),
				VpcId:             aws.String(t.vpcID),
			})
			if awsapi.ErrorCode(err) == "Gateway.NotAttached" {
				return nil
			}
			return err
		})
		if err != nil {
			return err
		}
		return o.mutate(ctx, "delete internet gateway", id, func() error {
			_, err := t.clients.EC2.DeleteInternetGateway(ctx, &ec2.DeleteInternetGatewayInput{InternetGatewayId: aws.String(id)})
			return err
		})
	})
}
