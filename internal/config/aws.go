package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// LoadAWSConfig resolves credentials and region through the SDK default chain
// (environment, shared profile, instance or function role). Static storage keys are
// only honoured together with a custom storage endpoint, e.g. a local S3 emulator.
func LoadAWSConfig(ctx context.Context, s *Settings) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error

	if s.AWS.Region != "" {
		opts = append(opts, awsconfig.WithRegion(s.AWS.Region))
	}
	if s.AWS.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(s.AWS.Profile))
	}
	if s.Storage.Endpoint != "" && s.Storage.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.Storage.AccessKeyID, s.Storage.SecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load aws config: %w", err)
	}
	return cfg, nil
}
