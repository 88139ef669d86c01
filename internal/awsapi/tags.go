package awsapi

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	cfntypes "github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/ppiankov/cloudspectre/internal/tags"
)

// EC2Tags converts an EC2 tag list into a tag set.
func EC2Tags(in []ec2types.Tag) tags.Set {
	out := make(tags.Set, len(in))
	for _, t := range in {
		out[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	return out
}

// StackTags converts a CloudFormation tag list into a tag set.
func StackTags(in []cfntypes.Tag) tags.Set {
	out := make(tags.Set, len(in))
	for _, t := range in {
		out[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	return out
}

// OwnedFilter matches resources whose ownership tag for infraID is "owned".
func OwnedFilter(infraID string) ec2types.Filter {
	return ec2types.Filter{
		Name:   aws.String("tag:" + tags.ClusterOwnershipPrefix + infraID),
		Values: []string{"owned"},
	}
}

// Filter builds an EC2 filter.
func Filter(name string, values ...string) ec2types.Filter {
	return ec2types.Filter{Name: aws.String(name), Values: values}
}
