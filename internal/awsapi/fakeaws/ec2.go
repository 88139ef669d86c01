package fakeaws

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/ppiankov/cloudspectre/internal/tags"
)

// EC2 is the EC2 facade of a Cloud.
type EC2 struct{ c *Cloud }

// EC2 returns the EC2 facade.
func (c *Cloud) EC2() *EC2 { return &EC2{c: c} }

type attrFunc func(name string) []string

func matchFilters(filters []ec2types.Filter, attrs attrFunc) bool {
	for _, f := range filters {
		have := attrs(aws.ToString(f.Name))
		matched := false
		for _, want := range f.Values {
			for _, v := range have {
				if valueMatches(want, v) {
					matched = true
				}
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

func tagAttrs(set tags.Set, name string) []string {
	if name == "tag-key" {
		return sortedKeys(set)
	}
	if key, ok := strings.CutPrefix(name, "tag:"); ok {
		if v, exists := set[key]; exists {
			return []string{v}
		}
	}
	return nil
}

func toEC2Tags(set tags.Set) []ec2types.Tag {
	out := make([]ec2types.Tag, 0, len(set))
	for _, k := range sortedKeys(set) {
		out = append(out, ec2types.Tag{Key: aws.String(k), Value: aws.String(set[k])})
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (e *EC2) DescribeRegions(_ context.Context, _ *ec2.DescribeRegionsInput, _ ...func(*ec2.Options)) (*ec2.DescribeRegionsOutput, error) {
	e.c.mu.Lock()
	defer e.c.mu.Unlock()
	if err := e.c.call("ec2:DescribeRegions"); err != nil {
		return nil, err
	}
	out := &ec2.DescribeRegionsOutput{}
	for _, r := range e.c.Regions {
		out.Regions = append(out.Regions, ec2types.Region{RegionName: aws.String(r)})
	}
	return out, nil
}

func (e *EC2) DescribeInstances(_ context.Context, in *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	e.c.mu.Lock()
	defer e.c.mu.Unlock()
	if err := e.c.call("ec2:DescribeInstances"); err != nil {
		return nil, err
	}
	out := &ec2.DescribeInstancesOutput{}
	for _, id := range sortedKeys(e.c.Instances) {
		inst := e.c.Instances[id]
		if len(in.InstanceIds) > 0 && !containsString(in.InstanceIds, id) {
			continue
		}
		ok := matchFilters(in.Filters, func(name string) []string {
			switch name {
			case "instance-state-name":
				return []string{inst.State}
			case "instance-id":
				return []string{inst.ID}
			}
			return tagAttrs(inst.Tags, name)
		})
		if !ok {
			continue
		}
		item := ec2types.Instance{
			InstanceId: aws.String(inst.ID),
			State:      &ec2types.InstanceState{Name: ec2types.InstanceStateName(inst.State)},
			Placement:  &ec2types.Placement{AvailabilityZone: aws.String(inst.AvailabilityZone)},
			Tags:       toEC2Tags(inst.Tags),
		}
		if !inst.LaunchTime.IsZero() {
			item.LaunchTime = aws.Time(inst.LaunchTime)
		}
		out.Reservations = append(out.Reservations, ec2types.Reservation{Instances: []ec2types.Instance{item}})
	}
	return out, nil
}

func (e *EC2) CreateTags(_ context.Context, in *ec2.CreateTagsInput, _ ...func(*ec2.Options)) (*ec2.CreateTagsOutput, error) {
	e.c.mu.Lock()
	defer e.c.mu.Unlock()
	if err := e.c.call("ec2:CreateTags"); err != nil {
		return nil, err
	}
	for _, id := range in.Resources {
		inst, ok := e.c.Instances[id]
		if !ok {
			return nil, APIError("InvalidInstanceID.NotFound", "The instance ID '%s' does not exist", id)
		}
		if inst.Tags == nil {
			inst.Tags = tags.Set{}
		}
		for _, t := range in.Tags {
			inst.Tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
		}
	}
	return &ec2.CreateTagsOutput{}, nil
}

func (e *EC2) TerminateInstances(_ context.Context, in *ec2.TerminateInstancesInput, _ ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error) {
	e.c.mu.Lock()
	defer e.c.mu.Unlock()
	if err := e.c.call("ec2:TerminateInstances"); err != nil {
		return nil, err
	}
	for _, id := range in.InstanceIds {
		inst, ok := e.c.Instances[id]
		if !ok {
			return nil, APIError("InvalidInstanceID.NotFound", "The instance ID '%s' does not exist", id)
		}
		inst.State = string(ec2types.InstanceStateNameTerminated)
	}
	return &ec2.TerminateInstancesOutput{}, nil
}

func (e *EC2) StopInstances(_ context.Context, in *ec2.StopInstancesInput, _ ...func(*ec2.Options)) (*ec2.StopInstancesOutput, error) {
	e.c.mu.Lock()
	defer e.c.mu.Unlock()
	if err := e.c.call("ec2:StopInstances"); err != nil {
		return nil, err
	}
	for _, id := range in.InstanceIds {
		inst, ok := e.c.Instances[id]
		if !ok {
			return nil, APIError("InvalidInstanceID.NotFound", "The instance ID '%s' does not exist", id)
		}
		inst.State = string(ec2types.InstanceStateNameStopped)
	}
	return &ec2.StopInstancesOutput{}, nil
}

func (e *EC2) DescribeVolumes(_ context.Context, in *ec2.DescribeVolumesInput, _ ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error) {
	e.c.mu.Lock()
	defer e.c.mu.Unlock()
	if err := e.c.call("ec2:DescribeVolumes"); err != nil {
		return nil, err
	}
	for _, id := range in.VolumeIds {
		if _, ok := e.c.Volumes[id]; !ok {
			return nil, APIError("InvalidVolume.NotFound", "The volume '%s' does not exist.", id)
		}
	}
	out := &ec2.DescribeVolumesOutput{}
	for _, id := range sortedKeys(e.c.Volumes) {
		vol := e.c.Volumes[id]
		if len(in.VolumeIds) > 0 && !containsString(in.VolumeIds, id) {
			continue
		}
		ok := matchFilters(in.Filters, func(name string) []string {
			if name == "status" {
				return []string{vol.State}
			}
			return tagAttrs(vol.Tags, name)
		})
		if !ok {
			continue
		}
		item := ec2types.Volume{
			VolumeId:   aws.String(vol.ID),
			State:      ec2types.VolumeState(vol.State),
			Size:       aws.Int32(vol.SizeGiB),
			VolumeType: ec2types.VolumeType(vol.Type),
			Tags:       toEC2Tags(vol.Tags),
		}
		if !vol.CreateTime.IsZero() {
			item.CreateTime = aws.Time(vol.CreateTime)
		}
		out.Volumes = append(out.Volumes, item)
	}
	return out, nil
}

func (e *EC2) DeleteVolume(_ context.Context, in *ec2.DeleteVolumeInput, _ ...func(*ec2.Options)) (*ec2.DeleteVolumeOutput, error) {
	e.c.mu.Lock()
	defer e.c.mu.Unlock()
	if err := e.c.call("ec2:DeleteVolume"); err != nil {
		return nil, err
	}
	id := aws.ToString(in.VolumeId)
	vol, ok := e.c.Volumes[id]
	if !ok {
		return nil, APIError("InvalidVolume.NotFound", "The volume '%s' does not exist.", id)
	}
	if vol.State != string(ec2types.VolumeStateAvailable) {
		return nil, APIError("VolumeInUse", "Volume %s is currently attached", id)
	}
	delete(e.c.Volumes, id)
	return &ec2.DeleteVolumeOutput{}, nil
}

func (e *EC2) DescribeVpcs(_ context.Context, in *ec2.DescribeVpcsInput, _ ...func(*ec2.Options)) (*ec2.DescribeVpcsOutput, error) {
	e.c.mu.Lock()
	defer e.c.mu.Unlock()
	if err := e.c.call("ec2:DescribeVpcs"); err != nil {
		return nil, err
	}
	out := &ec2.DescribeVpcsOutput{}
	for _, id := range sortedKeys(e.c.VPCs) {
		vpc := e.c.VPCs[id]
		if len(in.VpcIds) > 0 && !containsString(in.VpcIds, id) {
			continue
		}
		ok := matchFilters(in.Filters, func(name string) []string {
			if name == "vpc-id" {
				return []string{vpc.ID}
			}
			return tagAttrs(vpc.Tags, name)
		})
		if ok {
			out.Vpcs = append(out.Vpcs, ec2types.Vpc{VpcId: aws.String(vpc.ID), Tags: toEC2Tags(vpc.Tags)})
		}
	}
	return out, nil
}

func (e *EC2) DeleteVpc(_ context.Context, in *ec2.DeleteVpcInput, _ ...func(*ec2.Options)) (*ec2.DeleteVpcOutput, error) {
	e.c.mu.Lock()
	defer e.c.mu.Unlock()
	if err := e.c.call("ec2:DeleteVpc"); err != nil {
		return nil, err
	}
	id := aws.ToString(in.VpcId)
	if _, ok := e.c.VPCs[id]; !ok {
		return nil, APIError("InvalidVpcID.NotFound", "The vpc ID '%s' does not exist", id)
	}
	if dep := e.c.vpcDependent(id); dep != "" {
		return nil, APIError("DependencyViolation", "The vpc '%s' has dependencies and cannot be deleted (%s).", id, dep)
	}
	delete(e.c.VPCs, id)
	for rtID, rt := range e.c.RouteTables {
		if rt.VpcID == id {
			delete(e.c.RouteTables, rtID)
		}
	}
	for sgID, sg := range e.c.SecurityGroups {
		if sg.VpcID == id {
			delete(e.c.SecurityGroups, sgID)
		}
	}
	return &ec2.DeleteVpcOutput{}, nil
}

// vpcDependent names one remaining dependent of the VPC, or "".
func (c *Cloud) vpcDependent(vpcID string) string {
	for _, id := range sortedKeys(c.Subnets) {
		if c.Subnets[id].VpcID == vpcID {
			return "subnet " + id
		}
	}
	for _, id := range sortedKeys(c.NetworkInterfaces) {
		if c.NetworkInterfaces[id].VpcID == vpcID {
			return "network interface " + id
		}
	}
	for _, id := range sortedKeys(c.NatGateways) {
		if c.NatGateways[id].VpcID == vpcID {
			return "nat gateway " + id
		}
	}
	for _, id := range sortedKeys(c.VpcEndpoints) {
		if c.VpcEndpoints[id].VpcID == vpcID {
			return "vpc endpoint " + id
		}
	}
	for _, id := range sortedKeys(c.InternetGateways) {
		if c.InternetGateways[id].AttachedVpc == vpcID {
			return "internet gateway " + id
		}
	}
	for _, id := range sortedKeys(c.SecurityGroups) {
		sg := c.SecurityGroups[id]
		if sg.VpcID == vpcID && sg.Name != "default" {
			return "security group " + id
		}
	}
	for _, id := range sortedKeys(c.RouteTables) {
		rt := c.RouteTables[id]
		if rt.VpcID == vpcID && !rt.Main {
			return "route table " + id
		}
	}
	for _, lbs := range []map[string]*LoadBalancer{c.ClassicLBs, c.LoadBalancers} {
		for _, id := range sortedKeys(lbs) {
			if lbs[id].VpcID == vpcID {
				return "load balancer " + id
			}
		}
	}
	return ""
}

func (e *EC2) DescribeSecurityGroups(_ context.Context, in *ec2.DescribeSecurityGroupsInput, _ ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error) {
	e.c.mu.Lock()
	defer e.c.mu.Unlock()
	if err := e.c.call("ec2:DescribeSecurityGroups"); err != nil {
		return nil, err
	}
	for _, id := range in.GroupIds {
		if _, ok := e.c.SecurityGroups[id]; !ok {
			return nil, APIError("InvalidGroup.NotFound", "The security group '%s' does not exist", id)
		}
	}
	out := &ec2.DescribeSecurityGroupsOutput{}
	for _, id := range sortedKeys(e.c.SecurityGroups) {
		sg := e.c.SecurityGroups[id]
		if len(in.GroupIds) > 0 && !containsString(in.GroupIds, id) {
			continue
		}
		ok := matchFilters(in.Filters, func(name string) []string {
			switch name {
			case "vpc-id":
				return []string{sg.VpcID}
			case "group-name":
				return []string{sg.Name}
			}
			return tagAttrs(sg.Tags, name)
		})
		if !ok {
			continue
		}
		item := ec2types.SecurityGroup{
			GroupId:   aws.String(sg.ID),
			GroupName: aws.String(sg.Name),
			VpcId:     aws.String(sg.VpcID),
			Tags:      toEC2Tags(sg.Tags),
		}
		for _, cidr := range sg.Ingress {
			item.IpPermissions = append(item.IpPermissions, ec2types.IpPermission{
				IpProtocol: aws.String("-1"),
				IpRanges:   []ec2types.IpRange{{CidrIp: aws.String(cidr)}},
			})
		}
		out.SecurityGroups = append(out.SecurityGroups, item)
	}
	return out, nil
}

func (e *EC2) RevokeSecurityGroupIngress(_ context.Context, in *ec2.RevokeSecurityGroupIngressInput, _ ...func(*ec2.Options)) (*ec2.RevokeSecurityGroupIngressOutput, error) {
	e.c.mu.Lock()
	defer e.c.mu.Unlock()
	if err := e.c.call("ec2:RevokeSecurityGroupIngress"); err != nil {
		return nil, err
	}
	id := aws.ToString(in.GroupId)
	sg, ok := e.c.SecurityGroups[id]
	if !ok {
		return nil, APIError("InvalidGroup.NotFound", "The security group '%s' does not exist", id)
	}
	revoke := map[string]bool{}
	for _, perm := range in.IpPermissions {
		for _, r := range perm.IpRanges {
			revoke[aws.ToString(r.CidrIp)] = true
		}
	}
	var kept []string
	for _, cidr := range sg.Ingress {
		if !revoke[cidr] {
			kept = append(kept, cidr)
		}
	}
	sg.Ingress = kept
	return &ec2.RevokeSecurityGroupIngressOutput{}, nil
}

func (e *EC2) DeleteSecurityGroup(_ context.Context, in *ec2.DeleteSecurityGroupInput, _ ...func(*ec2.Options)) (*ec2.DeleteSecurityGroupOutput, error) {
	e.c.mu.Lock()
	defer e.c.mu.Unlock()
	if err := e.c.call("ec2:DeleteSecurityGroup"); err != nil {
		return nil, err
	}
	id := aws.ToString(in.GroupId)
	sg, ok := e.c.SecurityGroups[id]
	if !ok {
		return nil, APIError("InvalidGroup.NotFound", "The security group '%s' does not exist", id)
	}
	if sg.Name == "default" {
		return nil, APIError("CannotDelete", "the specified group: %q name: \"default\" cannot be deleted by a user", id)
	}
	delete(e.c.SecurityGroups, id)
	return &ec2.DeleteSecurityGroupOutput{}, nil
}

func (e *EC2) DescribeRouteTables(_ context.Context, in *ec2.DescribeRouteTablesInput, _ ...func(*ec2.Options)) (*ec2.DescribeRouteTablesOutput, error) {
	e.c.mu.Lock()
	defer e.c.mu.Unlock()
	if err := e.c.call("ec2:DescribeRouteTables"); err != nil {
		return nil, err
	}
	out := &ec2.DescribeRouteTablesOutput{}
	for _, id := range sortedKeys(e.c.RouteTables) {
		rt := e.c.RouteTables[id]
		ok := matchFilters(in.Filters, func(name string) []string {
			if name == "vpc-id" {
				return []string{rt.VpcID}
			}
			return tagAttrs(rt.Tags, name)
		})
		if !ok {
			continue
		}
		item := ec2types.RouteTable{
			RouteTableId: aws.String(rt.ID),
			VpcId:        aws.String(rt.VpcID),
			Tags:         toEC2Tags(rt.Tags),
		}
		if rt.Main {
			item.Associations = append(item.Associations, ec2types.RouteTableAssociation{
				Main:                    aws.Bool(true),
				RouteTableAssociationId: aws.String("rtbassoc-main-" + rt.ID),
			})
		}
		for _, assoc := range sortedKeys(rt.Associations) {
			item.Associations = append(item.Associations, ec2types.RouteTableAssociation{
				Main:                    aws.Bool(false),
				RouteTableAssociationId: aws.String(assoc),
				SubnetId:                aws.String(rt.Associations[assoc]),
			})
		}
		for _, cidr := range rt.Routes {
			item.Routes = append(item.Routes, ec2types.Route{DestinationCidrBlock: aws.String(cidr)})
		}
		out.RouteTables = append(out.RouteTables, item)
	}
	return out, nil
}

func (e *EC2) DisassociateRouteTable(_ context.Context, in *ec2.DisassociateRouteTableInput, _ ...func(*ec2.Options)) (*ec2.DisassociateRouteTableOutput, error) {
	e.c.mu.Lock()
	defer e.c.mu.Unlock()
	if err := e.c.call("ec2:DisassociateRouteTable"); err != nil {
		return nil, err
	}
	id := aws.ToString(in.AssociationId)
	for _, rt := range e.c.RouteTables {
		if _, ok := rt.Associations[id]; ok {
			delete(rt.Associations, id)
			return &ec2.DisassociateRouteTableOutput{}, nil
		}
	}
	return nil, APIError("InvalidAssociationID.NotFound", "The association ID '%s' does not exist", id)
}

func (e *EC2) DeleteRoute(_ context.Context, in *ec2.DeleteRouteInput, _ ...func(*ec2.Options)) (*ec2.DeleteRouteOutput, error) {
	e.c.mu.Lock()
	defer e.c.mu.Unlock()
	if err := e.c.call("ec2:DeleteRoute"); err != nil {
		return nil, err
	}
	rtID := aws.ToString(in.RouteTableId)
	cidr := aws.ToString(in.DestinationCidrBlock)
	rt, ok := e.c.RouteTables[rtID]
	if !ok {
		return nil, APIError("InvalidRouteTableID.NotFound", "The routeTable ID '%s' does not exist", rtID)
	}
	for i, route := range rt.Routes {
		if route == cidr {
			rt.Routes = append(rt.Routes[:i], rt.Routes[i+1:]...)
			return &ec2.DeleteRouteOutput{}, nil
		}
	}
	return nil, APIError("InvalidRoute.NotFound", "no route with destination-cidr-block %s in route table %s", cidr, rtID)
}

func (e *EC2) DeleteRouteTable(_ context.Context, in *ec2.DeleteRouteTableInput, _ ...func(*ec2.Options)) (*ec2.DeleteRouteTableOutput, error) {
	e.c.mu.Lock()
	defer e.c.mu.Unlock()
	if err := e.c.call("ec2:DeleteRouteTable"); err != nil {
		return nil, err
	}
	id := aws.ToString(in.RouteTableId)
	rt, ok := e.c.RouteTables[id]
	if !ok {
		return nil, APIError("InvalidRouteTableID.NotFound", "The routeTable ID '%s' does not exist", id)
	}
	if rt.Main || len(rt.Associations) > 0 {
		return nil, APIError("DependencyViolation", "The routeTable '%s' has dependencies and cannot be deleted.", id)
	}
	delete(e.c.RouteTables, id)
	return &ec2.DeleteRouteTableOutput{}, nil
}

func (e *EC2) DescribeNatGateways(_ context.Context, in *ec2.DescribeNatGatewaysInput, _ ...func(*ec2.Options)) (*ec2.DescribeNatGatewaysOutput, error) {
	e.c.mu.Lock()
	defer e.c.mu.Unlock()
	if err := e.c.call("ec2:DescribeNatGateways"); err != nil {
		return nil, err
	}
	out := &ec2.DescribeNatGatewaysOutput{}
	for _, id := range sortedKeys(e.c.NatGateways) {
		nat := e.c.NatGateways[id]
		ok := matchFilters(in.Filter, func(name string) []string {
			switch name {
			case "state":
				return []string{nat.State}
			case "vpc-id":
				return []string{nat.VpcID}
			}
			return tagAttrs(nat.Tags, name)
		})
		if ok {
			out.NatGateways = append(out.NatGateways, ec2types.NatGateway{
				NatGatewayId: aws.String(nat.ID),
				VpcId:        aws.String(nat.VpcID),
				SubnetId:     aws.String(nat.SubnetID),
				State:        ec2types.NatGatewayState(nat.State),
				Tags:         toEC2Tags(nat.Tags),
			})
		}
	}
	return out, nil
}

func (e *EC2) DeleteNatGateway(_ context.Context, in *ec2.DeleteNatGatewayInput, _ ...func(*ec2.Options)) (*ec2.DeleteNatGatewayOutput, error) {
	e.c.mu.Lock()
	defer e.c.mu.Unlock()
	if err := e.c.call("ec2:DeleteNatGateway"); err != nil {
		return nil, err
	}
	id := aws.ToString(in.NatGatewayId)
	nat, ok := e.c.NatGateways[id]
	if !ok {
		return nil, APIError("NatGatewayNotFound", "The Nat Gateway %s was not found", id)
	}
	nat.State = string(ec2types.NatGatewayStateDeleting)
	return &ec2.DeleteNatGatewayOutput{NatGatewayId: aws.String(id)}, nil
}

func (e *EC2) DescribeAddresses(_ context.Context, in *ec2.DescribeAddressesInput, _ ...func(*ec2.Options)) (*ec2.DescribeAddressesOutput, error) {
	e.c.mu.Lock()
	defer e.c.mu.Unlock()
	if err := e.c.call("ec2:DescribeAddresses"); err != nil {
		return nil, err
	}
	out := &ec2.DescribeAddressesOutput{}
	for _, id := range sortedKeys(e.c.Addresses) {
		addr := e.c.Addresses[id]
		ok := matchFilters(in.Filters, func(name string) []string {
			return tagAttrs(addr.Tags, name)
		})
		if !ok {
			continue
		}
		item := ec2types.Address{PublicIp: aws.String(addr.PublicIP), Tags: toEC2Tags(addr.Tags)}
		if addr.AllocationID != "" {
			item.AllocationId = aws.String(addr.AllocationID)
		}
		out.Addresses = append(out.Addresses, item)
	}
	return out, nil
}

func (e *EC2) ReleaseAddress(_ context.Context, in *ec2.ReleaseAddressInput, _ ...func(*ec2.Options)) (*ec2.ReleaseAddressOutput, error) {
	e.c.mu.Lock()
	defer e.c.mu.Unlock()
	if err := e.c.call("ec2:ReleaseAddress"); err != nil {
		return nil, err
	}
	id := aws.ToString(in.AllocationId)
	if _, ok := e.c.Addresses[id]; !ok {
		return nil, APIError("InvalidAllocationID.NotFound", "The allocation ID '%s' does not exist", id)
	}
	delete(e.c.Addresses, id)
	return &ec2.ReleaseAddressOutput{}, nil
}

func (e *EC2) DescribeNetworkInterfaces(_ context.Context, in *ec2.DescribeNetworkInterfacesInput, _ ...func(*ec2.Options)) (*ec2.DescribeNetworkInterfacesOutput, error) {
	e.c.mu.Lock()
	defer e.c.mu.Unlock()
	if err := e.c.call("ec2:DescribeNetworkInterfaces"); err != nil {
		return nil, err
	}
	out := &ec2.DescribeNetworkInterfacesOutput{}
	for _, id := range sortedKeys(e.c.NetworkInterfaces) {
		eni := e.c.NetworkInterfaces[id]
		ok := matchFilters(in.Filters, func(name string) []string {
			switch name {
			case "vpc-id":
				return []string{eni.VpcID}
			case "status":
				return []string{eni.Status}
			case "subnet-id":
				return []string{eni.SubnetID}
			}
			return nil
		})
		if ok {
			out.NetworkInterfaces = append(out.NetworkInterfaces, ec2types.NetworkInterface{
				NetworkInterfaceId: aws.String(eni.ID),
				VpcId:              aws.String(eni.VpcID),
				SubnetId:           aws.String(eni.SubnetID),
				Status:             ec2types.NetworkInterfaceStatus(eni.Status),
			})
		}
	}
	return out, nil
}

func (e *EC2) DeleteNetworkInterface(_ context.Context, in *ec2.DeleteNetworkInterfaceInput, _ ...func(*ec2.Options)) (*ec2.DeleteNetworkInterfaceOutput, error) {
	e.c.mu.Lock()
	defer e.c.mu.Unlock()
	if err := e.c.call("ec2:DeleteNetworkInterface"); err != nil {
		return nil, err
	}
	id := aws.ToString(in.NetworkInterfaceId)
	eni, ok := e.c.NetworkInterfaces[id]
	if !ok {
		return nil, APIError("InvalidNetworkInterfaceID.NotFound", "The networkInterface ID '%s' does not exist", id)
	}
	if eni.Status != string(ec2types.NetworkInterfaceStatusAvailable) {
		return nil, APIError("InvalidNetworkInterface.InUse", "Interface %s is currently in use.", id)
	}
	delete(e.c.NetworkInterfaces, id)
	return &ec2.DeleteNetworkInterfaceOutput{}, nil
}

func (e *EC2) DescribeVpcEndpoints(_ context.Context, in *ec2.DescribeVpcEndpointsInput, _ ...func(*ec2.Options)) (*ec2.DescribeVpcEndpointsOutput, error) {
	e.c.mu.Lock()
	defer e.c.mu.Unlock()
	if err := e.c.call("ec2:DescribeVpcEndpoints"); err != nil {
		return nil, err
	}
	out := &ec2.DescribeVpcEndpointsOutput{}
	for _, id := range sortedKeys(e.c.VpcEndpoints) {
		ep := e.c.VpcEndpoints[id]
		ok := matchFilters(in.Filters, func(name string) []string {
			if name == "vpc-id" {
				return []string{ep.VpcID}
			}
			return nil
		})
		if ok {
			out.VpcEndpoints = append(out.VpcEndpoints, ec2types.VpcEndpoint{
				VpcEndpointId: aws.String(ep.ID),
				VpcId:         aws.String(ep.VpcID),
			})
		}
	}
	return out, nil
}

func (e *EC2) DeleteVpcEndpoints(_ context.Context, in *ec2.DeleteVpcEndpointsInput, _ ...func(*ec2.Options)) (*ec2.DeleteVpcEndpointsOutput, error) {
	e.c.mu.Lock()
	defer e.c.mu.Unlock()
	if err := e.c.call("ec2:DeleteVpcEndpoints"); err != nil {
		return nil, err
	}
	out := &ec2.DeleteVpcEndpointsOutput{}
	for _, id := range in.VpcEndpointIds {
		if _, ok := e.c.VpcEndpoints[id]; !ok {
			out.Unsuccessful = append(out.Unsuccessful, ec2types.UnsuccessfulItem{
				ResourceId: aws.String(id),
				Error: &ec2types.UnsuccessfulItemError{
					Code:    aws.String("InvalidVpcEndpoint.NotFound"),
					Message: aws.String(fmt.Sprintf("The Vpc Endpoint Id '%s' does not exist", id)),
				},
			})
			continue
		}
		delete(e.c.VpcEndpoints, id)
	}
	return out, nil
}

func (e *EC2) DescribeSubnets(_ context.Context, in *ec2.DescribeSubnetsInput, _ ...func(*ec2.Options)) (*ec2.DescribeSubnetsOutput, error) {
	e.c.mu.Lock()
	defer e.c.mu.Unlock()
	if err := e.c.call("ec2:DescribeSubnets"); err != nil {
		return nil, err
	}
	out := &ec2.DescribeSubnetsOutput{}
	for _, id := range sortedKeys(e.c.Subnets) {
		sn := e.c.Subnets[id]
		ok := matchFilters(in.Filters, func(name string) []string {
			if name == "vpc-id" {
				return []string{sn.VpcID}
			}
			return tagAttrs(sn.Tags, name)
		})
		if ok {
			out.Subnets = append(out.Subnets, ec2types.Subnet{
				SubnetId: aws.String(sn.ID),
				VpcId:    aws.String(sn.VpcID),
				Tags:     toEC2Tags(sn.Tags),
			})
		}
	}
	return out, nil
}

func (e *EC2) DeleteSubnet(_ context.Context, in *ec2.DeleteSubnetInput, _ ...func(*ec2.Options)) (*ec2.DeleteSubnetOutput, error) {
	e.c.mu.Lock()
	defer e.c.mu.Unlock()
	if err := e.c.call("ec2:DeleteSubnet"); err != nil {
		return nil, err
	}
	id := aws.ToString(in.SubnetId)
	if _, ok := e.c.Subnets[id]; !ok {
		return nil, APIError("InvalidSubnetID.NotFound", "The subnet ID '%s' does not exist", id)
	}
	for _, nat := range e.c.NatGateways {
		if nat.SubnetID == id {
			return nil, APIError("DependencyViolation", "The subnet '%s' has dependencies and cannot be deleted.", id)
		}
	}
	for _, eni := range e.c.NetworkInterfaces {
		if eni.SubnetID == id {
			return nil, APIError("DependencyViolation", "The subnet '%s' has dependencies and cannot be deleted.", id)
		}
	}
	delete(e.c.Subnets, id)
	for _, rt := range e.c.RouteTables {
		for assoc, subnet := range rt.Associations {
			if subnet == id {
				delete(rt.Associations, assoc)
			}
		}
	}
	return &ec2.DeleteSubnetOutput{}, nil
}

func (e *EC2) DescribeInternetGateways(_ context.Context, in *ec2.DescribeInternetGatewaysInput, _ ...func(*ec2.Options)) (*ec2.DescribeInternetGatewaysOutput, error) {
	e.c.mu.Lock()
	defer e.c.mu.Unlock()
	if err := e.c.call("ec2:DescribeInternetGateways"); err != nil {
		return nil, err
	}
	out := &ec2.DescribeInternetGatewaysOutput{}
	for _, id := range sortedKeys(e.c.InternetGateways) {
		igw := e.c.InternetGateways[id]
		ok := matchFilters(in.Filters, func(name string) []string {
			if name == "attachment.vpc-id" {
				if igw.AttachedVpc == "" {
					return nil
				}
				return []string{igw.AttachedVpc}
			}
			return tagAttrs(igw.Tags, name)
		})
		if !ok {
			continue
		}
		item := ec2types.InternetGateway{InternetGatewayId: aws.String(igw.ID), Tags: toEC2Tags(igw.Tags)}
		if igw.AttachedVpc != "" {
			item.Attachments = []ec2types.InternetGatewayAttachment{{
				VpcId: aws.String(igw.AttachedVpc),
				State: ec2types.AttachmentStatusAttached,
			}}
		}
		out.InternetGateways = append(out.InternetGateways, item)
	}
	return out, nil
}

func (e *EC2) DetachInternetGateway(_ context.Context, in *ec2.DetachInternetGatewayInput, _ ...func(*ec2.Options)) (*ec2.DetachInternetGatewayOutput, error) {
	e.c.mu.Lock()
	defer e.c.mu.Unlock()
	if err := e.c.call("ec2:DetachInternetGateway"); err != nil {
		return nil, err
	}
	id := aws.ToString(in.InternetGatewayId)
	igw, ok := e.c.InternetGateways[id]
	if !ok {
		return nil, APIError("InvalidInternetGatewayID.NotFound", "The internetGateway ID '%s' does not exist", id)
	}
	if igw.AttachedVpc != aws.ToString(in.VpcId) {
		return nil, APIError("Gateway.NotAttached", "resource %s is not attached to network %s", id, aws.ToString(in.VpcId))
	}
	igw.AttachedVpc = ""
	return &ec2.DetachInternetGatewayOutput{}, nil
}

func (e *EC2) DeleteInternetGateway(_ context.Context, in *ec2.DeleteInternetGatewayInput, _ ...func(*ec2.Options)) (*ec2.DeleteInternetGatewayOutput, error) {
	e.c.mu.Lock()
	defer e.c.mu.Unlock()
	if err := e.c.call("ec2:DeleteInternetGateway"); err != nil {
		return nil, err
	}
	id := aws.ToString(in.InternetGatewayId)
	igw, ok := e.c.InternetGateways[id]
	if !ok {
		return nil, APIError("InvalidInternetGatewayID.NotFound", "The internetGateway ID '%s' does not exist", id)
	}
	if igw.AttachedVpc != "" {
		return nil, APIError("DependencyViolation", "The internetGateway '%s' has dependencies and cannot be deleted.", id)
	}
	delete(e.c.InternetGateways, id)
	return &ec2.DeleteInternetGatewayOutput{}, nil
}
