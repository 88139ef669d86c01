// Package awsapi holds the AWS SDK wiring shared by the scanner, executor and
// teardown packages: client construction, error classification, throttling
// and tag conversion.
package awsapi

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancing"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// Options selects credentials and SDK retry behavior.
type Options struct {
	Profile     string
	HomeRegion  string
	MaxAttempts int
}

// Load resolves the shared AWS configuration.
func Load(ctx context.Context, opts Options) (aws.Config, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.HomeRegion),
	}
	if opts.MaxAttempts > 0 {
		maxAttempts := opts.MaxAttempts
		loadOpts = append(loadOpts, awsconfig.WithRetryer(func() aws.Retryer {
			return retry.AddWithMaxAttempts(retry.NewStandard(), maxAttempts)
		}))
	}
	if opts.Profile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(opts.Profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return cfg, nil
}

// Clients bundles the service clients for one region.
type Clients struct {
	Region         string
	EC2            *ec2.Client
	ELB            *elasticloadbalancing.Client
	ELBv2          *elasticloadbalancingv2.Client
	CloudFormation *cloudformation.Client
	S3             *s3.Client
}

// Global bundles the clients that are not region scoped.
type Global struct {
	Route53 *route53.Client
	STS     *sts.Client
}

// Factory builds and memoizes per-region clients from one base config.
type Factory struct {
	base    aws.Config
	regions map[string]*Clients
	global  *Global
}

// NewFactory creates a client factory.
func NewFactory(base aws.Config) *Factory {
	return &Factory{
		base:    base,
		regions: make(map[string]*Clients),
	}
}

// HomeRegion returns the region the base config was loaded with.
func (f *Factory) HomeRegion() string {
	return f.base.Region
}

// ForRegion returns the clients for region.
func (f *Factory) ForRegion(region string) *Clients {
	if c, ok := f.regions[region]; ok {
		return c
	}

	cfg := f.base.Copy()
	cfg.Region = region
	c := &Clients{
		Region:         region,
		EC2:            ec2.NewFromConfig(cfg),
		ELB:            elasticloadbalancing.NewFromConfig(cfg),
		ELBv2:          elasticloadbalancingv2.NewFromConfig(cfg),
		CloudFormation: cloudformation.NewFromConfig(cfg),
		S3:             s3.NewFromConfig(cfg),
	}
	f.regions[region] = c
	return c
}

// Global returns the Route53 and STS clients.
func (f *Factory) Global() *Global {
	if f.global == nil {
		f.global = &Global{
			Route53: route53.NewFromConfig(f.base),
			STS:     sts.NewFromConfig(f.base),
		}
	}
	return f.global
}
