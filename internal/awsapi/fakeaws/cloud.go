// Package fakeaws is an in-memory, stateful stand-in for one AWS account
// region. Its service facades implement the same method signatures as the
// aws-sdk-go-v2 clients so they satisfy every narrow interface used by the
// scanner, executor, cluster and teardown packages.
package fakeaws

import (
	"fmt"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/aws/smithy-go"

	"github.com/ppiankov/cloudspectre/internal/tags"
)

// Instance is an EC2 instance.
type Instance struct {
	ID               string
	State            string
	LaunchTime       time.Time
	AvailabilityZone string
	Tags             tags.Set
}

// Volume is an EBS volume.
type Volume struct {
	ID         string
	State      string
	CreateTime time.Time
	SizeGiB    int32
	Type       string
	Tags       tags.Set
}

// VPC is a virtual network.
type VPC struct {
	ID   string
	Tags tags.Set
}

// Subnet belongs to a VPC.
type Subnet struct {
	ID    string
	VpcID string
	Tags  tags.Set
}

// RouteTable belongs to a VPC. Associations maps association id to subnet id
// and Routes holds destination CIDRs.
type RouteTable struct {
	ID           string
	VpcID        string
	Main         bool
	Associations map[string]string
	Routes       []string
	Tags         tags.Set
}

// SecurityGroup belongs to a VPC. Ingress holds source CIDRs.
type SecurityGroup struct {
	ID      string
	Name    string
	VpcID   string
	Ingress []string
	Tags    tags.Set
}

// NatGateway sits in a subnet. Deletion leaves it in "deleting" until Settle.
type NatGateway struct {
	ID       string
	VpcID    string
	SubnetID string
	State    string
	Tags     tags.Set
}

// Address is an elastic IP.
type Address struct {
	AllocationID string
	PublicIP     string
	Tags         tags.Set
}

// NetworkInterface sits in a subnet.
type NetworkInterface struct {
	ID       string
	VpcID    string
	SubnetID string
	Status   string
}

// VpcEndpoint belongs to a VPC.
type VpcEndpoint struct {
	ID    string
	VpcID string
}

// InternetGateway is attached to at most one VPC.
type InternetGateway struct {
	ID          string
	AttachedVpc string
	Tags        tags.Set
}

// LoadBalancer is a classic or v2 load balancer.
type LoadBalancer struct {
	Name  string
	ARN   string
	VpcID string
}

// StackEvent is one CloudFormation stack event.
type StackEvent struct {
	LogicalID    string
	PhysicalID   string
	ResourceType string
	Status       string
}

// Stack is a CloudFormation stack.
type Stack struct {
	Name   string
	Status string
	Tags   tags.Set
	Events []StackEvent
}

// Record is a Route53 record set.
type Record struct {
	Name  string
	Type  string
	Value string
}

// HostedZone is a Route53 zone. Name carries the trailing dot.
type HostedZone struct {
	ID      string
	Name    string
	Records []Record
}

// Cloud is one region of a fake account. The exported maps may be seeded
// directly by tests before use.
type Cloud struct {
	mu sync.Mutex

	Region  string
	Account string

	Instances         map[string]*Instance
	Volumes           map[string]*Volume
	VPCs              map[string]*VPC
	Subnets           map[string]*Subnet
	RouteTables       map[string]*RouteTable
	SecurityGroups    map[string]*SecurityGroup
	NatGateways       map[string]*NatGateway
	Addresses         map[string]*Address
	NetworkInterfaces map[string]*NetworkInterface
	VpcEndpoints      map[string]*VpcEndpoint
	InternetGateways  map[string]*InternetGateway
	ClassicLBs        map[string]*LoadBalancer
	LoadBalancers     map[string]*LoadBalancer
	Stacks            map[string]*Stack
	HostedZones       map[string]*HostedZone
	Buckets           map[string]map[string]struct{}
	Regions           []string

	// Fail injects an error for an operation, keyed like "ec2:DeleteVpc".
	Fail map[string]error

	calls map[string]int
	log   []string
}

// New creates an empty region.
func New(region string) *Cloud {
	return &Cloud{
		Region:            region,
		Account:           "123456789012",
		Instances:         make(map[string]*Instance),
		Volumes:           make(map[string]*Volume),
		VPCs:              make(map[string]*VPC),
		Subnets:           make(map[string]*Subnet),
		RouteTables:       make(map[string]*RouteTable),
		SecurityGroups:    make(map[string]*SecurityGroup),
		NatGateways:       make(map[string]*NatGateway),
		Addresses:         make(map[string]*Address),
		NetworkInterfaces: make(map[string]*NetworkInterface),
		VpcEndpoints:      make(map[string]*VpcEndpoint),
		InternetGateways:  make(map[string]*InternetGateway),
		ClassicLBs:        make(map[string]*LoadBalancer),
		LoadBalancers:     make(map[string]*LoadBalancer),
		Stacks:            make(map[string]*Stack),
		HostedZones:       make(map[string]*HostedZone),
		Buckets:           make(map[string]map[string]struct{}),
		Regions:           []string{region},
		Fail:              make(map[string]error),
		calls:             make(map[string]int),
	}
}

// APIError builds an error carrying an AWS error code.
func APIError(code, format string, args ...any) error {
	return &smithy.GenericAPIError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Calls returns how many times op was invoked.
func (c *Cloud) Calls(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[op]
}

// CallLog returns every operation in invocation order.
func (c *Cloud) CallLog() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.log...)
}

// MutatingCalls returns the invoked operations that change state.
func (c *Cloud) MutatingCalls() []string {
	var out []string
	for _, op := range c.CallLog() {
		if !isReadOnly(op) {
			out = append(out, op)
		}
	}
	return out
}

// Settle completes asynchronous deletions.
func (c *Cloud) Settle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, nat := range c.NatGateways {
		if nat.State == "deleting" {
			delete(c.NatGateways, id)
		}
	}
}

// PutObject adds an object, creating the bucket if needed.
func (c *Cloud) PutObject(bucket, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Buckets[bucket] == nil {
		c.Buckets[bucket] = make(map[string]struct{})
	}
	c.Buckets[bucket][key] = struct{}{}
}

// ObjectCount returns the number of objects in bucket.
func (c *Cloud) ObjectCount(bucket string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Buckets[bucket])
}

// call records op and returns any injected failure. Callers hold c.mu.
func (c *Cloud) call(op string) error {
	c.calls[op]++
	c.log = append(c.log, op)
	return c.Fail[op]
}

func isReadOnly(op string) bool {
	for _, prefix := range []string{"Describe", "List", "Get"} {
		_, name := splitOp(op)
		if len(name) >= len(prefix) && name[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

func splitOp(op string) (string, string) {
	for i := 0; i < len(op); i++ {
		if op[i] == ':' {
			return op[:i], op[i+1:]
		}
	}
	return "", op
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// valueMatches applies EC2 filter wildcard semantics.
func valueMatches(pattern, value string) bool {
	if pattern == value {
		return true
	}
	ok, err := path.Match(pattern, value)
	return err == nil && ok
}
