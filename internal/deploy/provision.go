package deploy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/sirupsen/logrus"

	"s3-archive-lambda/internal/config"
)

const defaultRegion = "us-east-1"

var executionPolicies = []string{
	"arn:aws:iam::aws:policy/service-role/AWSLambdaBasicExecutionRole",
	"arn:aws:iam::aws:policy/AmazonS3FullAccess",
}

type policyDocument struct {
	Version   string            `json:"Version"`
	Statement []policyStatement `json:"Statement"`
}

type policyStatement struct {
	Effect    string            `json:"Effect"`
	Principal map[string]string `json:"Principal"`
	Action    string            `json:"Action"`
}

// trustPolicy allows the Lambda service to assume the execution role
func trustPolicy() (string, error) {
	doc := policyDocument{
		Version: "2012-10-17",
		Statement: []policyStatement{{
			Effect:    "Allow",
			Principal: map[string]string{"Service": "lambda.amazonaws.com"},
			Action:    "sts:AssumeRole",
		}},
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ensureBucket creates the bucket when missing, then lays out the prefixes and the archive expiration rule
func (d *Deployer) ensureBucket(ctx context.Context, settings *config.Settings, logger *logrus.Entry) error {
	bucket := settings.Storage.Bucket

	_, err := d.buckets.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	switch {
	case err == nil:
		logger.Debug("Bucket exists")
	case isBucketMissing(err):
		input := &s3.CreateBucketInput{Bucket: aws.String(bucket)}
		if region := settings.AWS.Region; region != "" && region != defaultRegion {
			input.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
				LocationConstraint: s3types.BucketLocationConstraint(region),
			}
		}
		if _, err := d.buckets.CreateBucket(ctx, input); err != nil {
			var owned *s3types.BucketAlreadyOwnedByYou
			if !errors.As(err, &owned) {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		logger.Info("Bucket created")
	default:
		return fmt.Errorf("failed to check bucket %s: %w", bucket, err)
	}

	for _, prefix := range []string{settings.Storage.IncomingPrefix, settings.Storage.ArchivePrefix} {
		key := folderKey(prefix)
		if _, err := d.buckets.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
			Body:   bytes.NewReader(nil),
		}); err != nil {
			return fmt.Errorf("failed to create folder %s: %w", key, err)
		}
	}

	if days := settings.Storage.ArchiveExpirationDays; days > 0 {
		prefix := folderKey(settings.Storage.ArchivePrefix)
		_, err := d.buckets.PutBucketLifecycleConfiguration(ctx, &s3.PutBucketLifecycleConfigurationInput{
			Bucket: aws.String(bucket),
			LifecycleConfiguration: &s3types.BucketLifecycleConfiguration{
				Rules: []s3types.LifecycleRule{{
					ID:         aws.String(fmt.Sprintf("expire-%s-after-%d-days", strings.TrimSuffix(prefix, "/"), days)),
					Status:     s3types.ExpirationStatusEnabled,
					Filter:     &s3types.LifecycleRuleFilter{Prefix: aws.String(prefix)},
					Expiration: &s3types.LifecycleExpiration{Days: aws.Int32(int32(days))},
				}},
			},
		})
		if err != nil {
			return fmt.Errorf("failed to set lifecycle rule: %w", err)
		}
		logger.WithField("expiration_days", days).Info("Archive lifecycle rule set")
	}

	return nil
}

// resolveRole returns the execution role ARN, creating the role when allowed
func (d *Deployer) resolveRole(ctx context.Context, settings *config.Settings, logger *logrus.Entry) (string, error) {
	if settings.AWS.RoleARN != "" {
		return settings.AWS.RoleARN, nil
	}

	name := settings.AWS.RoleName
	out, err := d.roles.GetRole(ctx, &iam.GetRoleInput{RoleName: aws.String(name)})
	if err == nil {
		logger.Debug("Role exists")
		return aws.ToString(out.Role.Arn), nil
	}

	var missing *iamtypes.NoSuchEntityException
	if !errors.As(err, &missing) || !settings.Deploy.ProvisionRole {
		return "", fmt.Errorf("failed to look up role %s: %w", name, err)
	}

	policy, err := trustPolicy()
	if err != nil {
		return "", fmt.Errorf("failed to encode trust policy: %w", err)
	}

	created, err := d.roles.CreateRole(ctx, &iam.CreateRoleInput{
		RoleName:                 aws.String(name),
		AssumeRolePolicyDocument: aws.String(policy),
		Description:              aws.String("Execution role for " + settings.Function.Name),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create role %s: %w", name, err)
	}

	for _, policyARN := range executionPolicies {
		if _, err := d.roles.AttachRolePolicy(ctx, &iam.AttachRolePolicyInput{
			RoleName:  aws.String(name),
			PolicyArn: aws.String(policyARN),
		}); err != nil {
			return "", fmt.Errorf("failed to attach %s: %w", policyARN, err)
		}
	}

	logger.WithField("role_arn", aws.ToString(created.Role.Arn)).Info("Role created")

	// New roles cannot be assumed by Lambda until IAM has propagated them
	if err := d.sleep(ctx, settings.Deploy.RolePropagationSeconds); err != nil {
		return "", err
	}

	return aws.ToString(created.Role.Arn), nil
}

// configureTrigger lets S3 invoke the function and subscribes it to uploads under the incoming prefix
func (d *Deployer) configureTrigger(ctx context.Context, settings *config.Settings, functionARN string, logger *logrus.Entry) error {
	bucket := settings.Storage.Bucket

	_, err := d.functions.AddPermission(ctx, &lambda.AddPermissionInput{
		FunctionName: aws.String(settings.Function.Name),
		StatementId:  aws.String(triggerStatementID(bucket)),
		Action:       aws.String("lambda:InvokeFunction"),
		Principal:    aws.String("s3.amazonaws.com"),
		SourceArn:    aws.String("arn:aws:s3:::" + bucket),
	})
	if err != nil {
		var conflict *lambdatypes.ResourceConflictException
		if !errors.As(err, &conflict) {
			return fmt.Errorf("failed to grant invoke permission: %w", err)
		}
		logger.Debug("Invoke permission already present")
	}

	if err := d.waitActive(ctx, settings.Function.Name); err != nil {
		return err
	}

	filterRules := []s3types.FilterRule{}
	if prefix := settings.Storage.IncomingPrefix; prefix != "" {
		filterRules = append(filterRules, s3types.FilterRule{
			Name:  s3types.FilterRuleNamePrefix,
			Value: aws.String(folderKey(prefix)),
		})
	}

	_, err = d.buckets.PutBucketNotificationConfiguration(ctx, &s3.PutBucketNotificationConfigurationInput{
		Bucket: aws.String(bucket),
		NotificationConfiguration: &s3types.NotificationConfiguration{
			LambdaFunctionConfigurations: []s3types.LambdaFunctionConfiguration{{
				LambdaFunctionArn: aws.String(functionARN),
				Events:            []s3types.Event{s3types.EventS3ObjectCreatedPut},
				Filter: &s3types.NotificationConfigurationFilter{
					Key: &s3types.S3KeyFilter{FilterRules: filterRules},
				},
			}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to configure bucket notification: %w", err)
	}

	logger.WithField("prefix", settings.Storage.IncomingPrefix).Info("Bucket trigger configured")
	return nil
}

// triggerStatementID derives a permission statement id from the bucket name.
// Statement ids only allow letters, digits, '-' and '_', bucket names may also contain '.'.
func triggerStatementID(bucket string) string {
	return strings.ReplaceAll(bucket, ".", "-") + "-s3-trigger"
}

func isBucketMissing(err error) bool {
	var notFound *s3types.NotFound
	var noSuchBucket *s3types.NoSuchBucket
	if errors.As(err, &notFound) || errors.As(err, &noSuchBucket) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchBucket":
			return true
		}
	}
	return false
}

func folderKey(prefix string) string {
	if strings.HasSuffix(prefix, "/") {
		return prefix
	}
	return prefix + "/"
}
