package awssdk

import (
	"context"
	"strings"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
)

// LoadDefault loads the default AWS configuration for the given region using the
// standard environment/credentials chain.
func LoadDefault(ctx context.Context, region string, optFns ...func(*awsconfig.LoadOptions) error) (awsv2.Config, error) {
	if region != "" {
		optFns = append(optFns, awsconfig.WithRegion(region))
	}
	return awsconfig.LoadDefaultConfig(ctx, optFns...)
}

// LoadNoRetry loads the default configuration with SDK retries disabled.
// The authorizer fails closed on the first error instead of spending the
// caller's latency budget on retries.
func LoadNoRetry(ctx context.Context, region string) (awsv2.Config, error) {
	return LoadDefault(ctx, region, awsconfig.WithRetryer(func() awsv2.Retryer {
		return awsv2.NopRetryer{}
	}))
}

// PartitionForRegion derives the AWS partition from a region name.
func PartitionForRegion(region string) string {
	switch {
	case strings.HasPrefix(region, "cn-"):
		return "aws-cn"
	case strings.HasPrefix(region, "us-gov-"):
		return "aws-us-gov"
	default:
		return "aws"
	}
}

// ArnRegion returns the region field of an ARN, or "" when arn is not an ARN.
func ArnRegion(arn string) string {
	parts := strings.SplitN(arn, ":", 6)
	if len(parts) < 6 || parts[0] != "arn" {
		return ""
	}
	return parts[3]
}
