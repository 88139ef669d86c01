package fakeaws

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	cfntypes "github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	elb "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancing"
	elbtypes "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancing/types"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbv2types "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	r53types "github.com/aws/aws-sdk-go-v2/service/route53/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// MaxDeleteObjects is the S3 DeleteObjects batch limit.
const MaxDeleteObjects = 1000

// ELB is the classic load balancer facade of a Cloud.
type ELB struct{ c *Cloud }

// ELB returns the classic load balancer facade.
func (c *Cloud) ELB() *ELB { return &ELB{c: c} }

func (e *ELB) DescribeLoadBalancers(_ context.Context, _ *elb.DescribeLoadBalancersInput, _ ...func(*elb.Options)) (*elb.DescribeLoadBalancersOutput, error) {
	e.c.mu.Lock()
	defer e.c.mu.Unlock()
	if err := e.c.call("elb:DescribeLoadBalancers"); err != nil {
		return nil, err
	}
	out := &elb.DescribeLoadBalancersOutput{}
	for _, name := range sortedKeys(e.c.ClassicLBs) {
		lb := e.c.ClassicLBs[name]
		out.LoadBalancerDescriptions = append(out.LoadBalancerDescriptions, elbtypes.LoadBalancerDescription{
			LoadBalancerName: aws.String(lb.Name),
			VPCId:            aws.String(lb.VpcID),
		})
	}
	return out, nil
}

func (e *ELB) DeleteLoadBalancer(_ context.Context, in *elb.DeleteLoadBalancerInput, _ ...func(*elb.Options)) (*elb.DeleteLoadBalancerOutput, error) {
	e.c.mu.Lock()
	defer e.c.mu.Unlock()
	if err := e.c.call("elb:DeleteLoadBalancer"); err != nil {
		return nil, err
	}
	delete(e.c.ClassicLBs, aws.ToString(in.LoadBalancerName))
	return &elb.DeleteLoadBalancerOutput{}, nil
}

// ELBv2 is the application/network load balancer facade of a Cloud.
type ELBv2 struct{ c *Cloud }

// ELBv2 returns the v2 load balancer facade.
func (c *Cloud) ELBv2() *ELBv2 { return &ELBv2{c: c} }

func (e *ELBv2) DescribeLoadBalancers(_ context.Context, _ *elbv2.DescribeLoadBalancersInput, _ ...func(*elbv2.Options)) (*elbv2.DescribeLoadBalancersOutput, error) {
	e.c.mu.Lock()
	defer e.c.mu.Unlock()
	if err := e.c.call("elbv2:DescribeLoadBalancers"); err != nil {
		return nil, err
	}
	out := &elbv2.DescribeLoadBalancersOutput{}
	for _, arn := range sortedKeys(e.c.LoadBalancers) {
		lb := e.c.LoadBalancers[arn]
		out.LoadBalancers = append(out.LoadBalancers, elbv2types.LoadBalancer{
			LoadBalancerArn:  aws.String(lb.ARN),
			LoadBalancerName: aws.String(lb.Name),
			VpcId:            aws.String(lb.VpcID),
		})
	}
	return out, nil
}

func (e *ELBv2) DeleteLoadBalancer(_ context.Context, in *elbv2.DeleteLoadBalancerInput, _ ...func(*elbv2.Options)) (*elbv2.DeleteLoadBalancerOutput, error) {
	e.c.mu.Lock()
	defer e.c.mu.Unlock()
	if err := e.c.call("elbv2:DeleteLoadBalancer"); err != nil {
		return nil, err
	}
	arn := aws.ToString(in.LoadBalancerArn)
	if _, ok := e.c.LoadBalancers[arn]; !ok {
		return nil, APIError("LoadBalancerNotFound", "Load balancer '%s' not found", arn)
	}
	delete(e.c.LoadBalancers, arn)
	return &elbv2.DeleteLoadBalancerOutput{}, nil
}

// CloudFormation is the CloudFormation facade of a Cloud.
type CloudFormation struct{ c *Cloud }

// CloudFormation returns the CloudFormation facade.
func (c *Cloud) CloudFormation() *CloudFormation { return &CloudFormation{c: c} }

func stackMissing(name string) error {
	return APIError("ValidationError", "Stack with id %s does not exist", name)
}

func (f *CloudFormation) DescribeStacks(_ context.Context, in *cloudformation.DescribeStacksInput, _ ...func(*cloudformation.Options)) (*cloudformation.DescribeStacksOutput, error) {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()
	if err := f.c.call("cloudformation:DescribeStacks"); err != nil {
		return nil, err
	}
	name := aws.ToString(in.StackName)
	stack, ok := f.c.Stacks[name]
	if !ok {
		return nil, stackMissing(name)
	}
	item := cfntypes.Stack{
		StackName:    aws.String(stack.Name),
		StackStatus:  cfntypes.StackStatus(stack.Status),
		CreationTime: aws.Time(time.Unix(0, 0).UTC()),
	}
	for _, k := range sortedKeys(stack.Tags) {
		item.Tags = append(item.Tags, cfntypes.Tag{Key: aws.String(k), Value: aws.String(stack.Tags[k])})
	}
	return &cloudformation.DescribeStacksOutput{Stacks: []cfntypes.Stack{item}}, nil
}

func (f *CloudFormation) DeleteStack(_ context.Context, in *cloudformation.DeleteStackInput, _ ...func(*cloudformation.Options)) (*cloudformation.DeleteStackOutput, error) {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()
	if err := f.c.call("cloudformation:DeleteStack"); err != nil {
		return nil, err
	}
	if stack, ok := f.c.Stacks[aws.ToString(in.StackName)]; ok {
		stack.Status = string(cfntypes.StackStatusDeleteInProgress)
	}
	return &cloudformation.DeleteStackOutput{}, nil
}

func (f *CloudFormation) DescribeStackEvents(_ context.Context, in *cloudformation.DescribeStackEventsInput, _ ...func(*cloudformation.Options)) (*cloudformation.DescribeStackEventsOutput, error) {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()
	if err := f.c.call("cloudformation:DescribeStackEvents"); err != nil {
		return nil, err
	}
	name := aws.ToString(in.StackName)
	stack, ok := f.c.Stacks[name]
	if !ok {
		return nil, stackMissing(name)
	}
	out := &cloudformation.DescribeStackEventsOutput{}
	for i, ev := range stack.Events {
		out.StackEvents = append(out.StackEvents, cfntypes.StackEvent{
			EventId:            aws.String(name + "-" + strconv.Itoa(i)),
			StackName:          aws.String(name),
			LogicalResourceId:  aws.String(ev.LogicalID),
			PhysicalResourceId: aws.String(ev.PhysicalID),
			ResourceType:       aws.String(ev.ResourceType),
			ResourceStatus:     cfntypes.ResourceStatus(ev.Status),
		})
	}
	return out, nil
}

// Route53 is the Route53 facade of a Cloud.
type Route53 struct{ c *Cloud }

// Route53 returns the Route53 facade.
func (c *Cloud) Route53() *Route53 { return &Route53{c: c} }

func (r *Route53) zone(id string) *HostedZone {
	short := id[strings.LastIndex(id, "/")+1:]
	for _, z := range r.c.HostedZones {
		if z.ID == id || z.ID[strings.LastIndex(z.ID, "/")+1:] == short {
			return z
		}
	}
	return nil
}

func (r *Route53) ListHostedZones(_ context.Context, _ *route53.ListHostedZonesInput, _ ...func(*route53.Options)) (*route53.ListHostedZonesOutput, error) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if err := r.c.call("route53:ListHostedZones"); err != nil {
		return nil, err
	}
	out := &route53.ListHostedZonesOutput{}
	for _, id := range sortedKeys(r.c.HostedZones) {
		z := r.c.HostedZones[id]
		out.HostedZones = append(out.HostedZones, r53types.HostedZone{
			Id:              aws.String(z.ID),
			Name:            aws.String(z.Name),
			CallerReference: aws.String(z.ID),
		})
	}
	return out, nil
}

func (r *Route53) ListResourceRecordSets(_ context.Context, in *route53.ListResourceRecordSetsInput, _ ...func(*route53.Options)) (*route53.ListResourceRecordSetsOutput, error) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if err := r.c.call("route53:ListResourceRecordSets"); err != nil {
		return nil, err
	}
	z := r.zone(aws.ToString(in.HostedZoneId))
	if z == nil {
		return nil, APIError("NoSuchHostedZone", "No hosted zone found with ID: %s", aws.ToString(in.HostedZoneId))
	}
	records := append([]Record(nil), z.Records...)
	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })
	out := &route53.ListResourceRecordSetsOutput{}
	for _, rec := range records {
		out.ResourceRecordSets = append(out.ResourceRecordSets, r53types.ResourceRecordSet{
			Name:            aws.String(rec.Name),
			Type:            r53types.RRType(rec.Type),
			TTL:             aws.Int64(300),
			ResourceRecords: []r53types.ResourceRecord{{Value: aws.String(rec.Value)}},
		})
	}
	return out, nil
}

func (r *Route53) ChangeResourceRecordSets(_ context.Context, in *route53.ChangeResourceRecordSetsInput, _ ...func(*route53.Options)) (*route53.ChangeResourceRecordSetsOutput, error) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if err := r.c.call("route53:ChangeResourceRecordSets"); err != nil {
		return nil, err
	}
	z := r.zone(aws.ToString(in.HostedZoneId))
	if z == nil {
		return nil, APIError("NoSuchHostedZone", "No hosted zone found with ID: %s", aws.ToString(in.HostedZoneId))
	}
	remove := map[string]bool{}
	for _, change := range in.ChangeBatch.Changes {
		if change.Action == r53types.ChangeActionDelete && change.ResourceRecordSet != nil {
			rrs := change.ResourceRecordSet
			remove[aws.ToString(rrs.Name)+"|"+string(rrs.Type)] = true
		}
	}
	var kept []Record
	for _, rec := range z.Records {
		if !remove[rec.Name+"|"+rec.Type] {
			kept = append(kept, rec)
		}
	}
	z.Records = kept
	return &route53.ChangeResourceRecordSetsOutput{
		ChangeInfo: &r53types.ChangeInfo{Id: aws.String("/change/C1"), Status: r53types.ChangeStatusPending},
	}, nil
}

// S3 is the S3 facade of a Cloud.
type S3 struct{ c *Cloud }

// S3 returns the S3 facade.
func (c *Cloud) S3() *S3 { return &S3{c: c} }

func (s *S3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	if err := s.c.call("s3:ListObjectsV2"); err != nil {
		return nil, err
	}
	bucket := aws.ToString(in.Bucket)
	objects, ok := s.c.Buckets[bucket]
	if !ok {
		return nil, APIError("NoSuchBucket", "The specified bucket does not exist")
	}
	prefix := aws.ToString(in.Prefix)
	out := &s3.ListObjectsV2Output{Name: aws.String(bucket)}
	for _, key := range sortedKeys(objects) {
		if strings.HasPrefix(key, prefix) {
			out.Contents = append(out.Contents, s3types.Object{Key: aws.String(key)})
		}
	}
	out.KeyCount = aws.Int32(int32(len(out.Contents)))
	return out, nil
}

func (s *S3) DeleteObjects(_ context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	if err := s.c.call("s3:DeleteObjects"); err != nil {
		return nil, err
	}
	bucket := aws.ToString(in.Bucket)
	objects, ok := s.c.Buckets[bucket]
	if !ok {
		return nil, APIError("NoSuchBucket", "The specified bucket does not exist")
	}
	if in.Delete == nil || len(in.Delete.Objects) == 0 || len(in.Delete.Objects) > MaxDeleteObjects {
		return nil, APIError("MalformedXML", "The XML you provided was not well-formed")
	}
	out := &s3.DeleteObjectsOutput{}
	for _, obj := range in.Delete.Objects {
		key := aws.ToString(obj.Key)
		delete(objects, key)
		out.Deleted = append(out.Deleted, s3types.DeletedObject{Key: aws.String(key)})
	}
	return out, nil
}

// STS is the STS facade of a Cloud.
type STS struct{ c *Cloud }

// STS returns the STS facade.
func (c *Cloud) STS() *STS { return &STS{c: c} }

func (s *STS) GetCallerIdentity(_ context.Context, _ *sts.GetCallerIdentityInput, _ ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	if err := s.c.call("sts:GetCallerIdentity"); err != nil {
		return nil, err
	}
	return &sts.GetCallerIdentityOutput{
		Account: aws.String(s.c.Account),
		Arn:     aws.String("arn:aws:iam::" + s.c.Account + ":user/reaper"),
		UserId:  aws.String("AIDAFAKE"),
	}, nil
}
