package deploy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"

	"s3-archive-lambda/internal/config"
)

const functionWaitTimeout = 5 * time.Minute

// Result describes the deployed function
type Result struct {
	FunctionName string
	FunctionARN  string
	Version      string
	Created      bool
	RoleARN      string
}

// Deployer creates the function when it is absent and updates it otherwise
type Deployer struct {
	functions FunctionAPI
	roles     RoleAPI
	buckets   BucketAPI
	logger    *logrus.Logger
	sleep     func(ctx context.Context, seconds int) error
}

// New creates a deployer over the given API clients
func New(functions FunctionAPI, roles RoleAPI, buckets BucketAPI, logger *logrus.Logger) *Deployer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Deployer{
		functions: functions,
		roles:     roles,
		buckets:   buckets,
		logger:    logger,
		sleep:     sleepSeconds,
	}
}

// NewFromConfig creates a deployer backed by SDK clients for cfg
func NewFromConfig(cfg aws.Config, logger *logrus.Logger) *Deployer {
	return New(lambda.NewFromConfig(cfg), iam.NewFromConfig(cfg), s3.NewFromConfig(cfg), logger)
}

// Deploy runs every enabled step in order and stops at the first failure.
// Steps are not rolled back.
func (d *Deployer) Deploy(ctx context.Context, settings *config.Settings) (*Result, error) {
	logger := d.logger.WithField("function", settings.Function.Name)

	logger.WithField("step", StepValidate).Info("Validating settings")
	if err := settings.ValidateForDeploy(); err != nil {
		return nil, stepError(StepValidate, err)
	}

	logger.WithField("step", StepPackage).Info("Packaging handler")
	archive, err := Package(settings.Function.Artifact, settings.Function.Handler)
	if err != nil {
		return nil, stepError(StepPackage, err)
	}
	if settings.Function.Archive != "" {
		if err := writeArchive(settings.Function.Archive, archive); err != nil {
			return nil, stepError(StepPackage, err)
		}
	}
	logger.WithField("size_bytes", len(archive)).Debug("Handler packaged")

	if settings.Deploy.ProvisionBucket {
		stepLogger := logger.WithFields(logrus.Fields{"step": StepBucket, "bucket": settings.Storage.Bucket})
		stepLogger.Info("Provisioning bucket")
		if err := d.ensureBucket(ctx, settings, stepLogger); err != nil {
			return nil, stepError(StepBucket, err)
		}
	}

	stepLogger := logger.WithField("step", StepRole)
	stepLogger.Info("Resolving execution role")
	roleARN, err := d.resolveRole(ctx, settings, stepLogger)
	if err != nil {
		return nil, stepError(StepRole, err)
	}

	stepLogger = logger.WithFields(logrus.Fields{"step": StepFunction, "role_arn": roleARN})
	stepLogger.Info("Deploying function")
	result, err := d.deployFunction(ctx, settings, roleARN, archive, stepLogger)
	if err != nil {
		return nil, stepError(StepFunction, err)
	}

	if settings.Deploy.ConfigureTrigger {
		stepLogger = logger.WithFields(logrus.Fields{"step": StepTrigger, "bucket": settings.Storage.Bucket})
		stepLogger.Info("Configuring bucket trigger")
		if err := d.configureTrigger(ctx, settings, result.FunctionARN, stepLogger); err != nil {
			return nil, stepError(StepTrigger, err)
		}
	}

	logger.WithFields(logrus.Fields{
		"function_arn": result.FunctionARN,
		"version":      result.Version,
		"created":      result.Created,
	}).Info("Deployment completed")

	return result, nil
}

func (d *Deployer) deployFunction(ctx context.Context, settings *config.Settings, roleARN string, archive []byte, logger *logrus.Entry) (*Result, error) {
	fn := settings.Function

	_, err := d.functions.GetFunction(ctx, &lambda.GetFunctionInput{FunctionName: aws.String(fn.Name)})
	if err != nil {
		var notFound *lambdatypes.ResourceNotFoundException
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to look up function %s: %w", fn.Name, err)
		}
		return d.createFunction(ctx, settings, roleARN, archive, logger)
	}

	return d.updateFunction(ctx, settings, roleARN, archive, logger)
}

func (d *Deployer) createFunction(ctx context.Context, settings *config.Settings, roleARN string, archive []byte, logger *logrus.Entry) (*Result, error) {
	fn := settings.Function

	out, err := d.functions.CreateFunction(ctx, &lambda.CreateFunctionInput{
		FunctionName:  aws.String(fn.Name),
		Role:          aws.String(roleARN),
		Runtime:       lambdatypes.Runtime(fn.Runtime),
		Handler:       aws.String(fn.Handler),
		Code:          &lambdatypes.FunctionCode{ZipFile: archive},
		Description:   aws.String(fn.Description),
		Timeout:       aws.Int32(int32(fn.Timeout)),
		MemorySize:    aws.Int32(int32(fn.MemorySize)),
		Architectures: []lambdatypes.Architecture{lambdatypes.Architecture(fn.Architecture)},
		Environment:   &lambdatypes.Environment{Variables: settings.FunctionEnvironment()},
		Publish:       fn.Publish,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create function %s: %w", fn.Name, err)
	}

	logger.WithField("function_arn", aws.ToString(out.FunctionArn)).Info("Function created")

	return &Result{
		FunctionName: fn.Name,
		FunctionARN:  unqualifiedARN(aws.ToString(out.FunctionArn)),
		Version:      aws.ToString(out.Version),
		Created:      true,
		RoleARN:      roleARN,
	}, nil
}

func (d *Deployer) updateFunction(ctx context.Context, settings *config.Settings, roleARN string, archive []byte, logger *logrus.Entry) (*Result, error) {
	fn := settings.Function

	// With a configuration update pending, the version is published afterwards so it carries both
	publishWithCode := fn.Publish && !settings.Deploy.UpdateConfiguration

	out, err := d.functions.UpdateFunctionCode(ctx, &lambda.UpdateFunctionCodeInput{
		FunctionName:  aws.String(fn.Name),
		ZipFile:       archive,
		Architectures: []lambdatypes.Architecture{lambdatypes.Architecture(fn.Architecture)},
		Publish:       publishWithCode,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update code of %s: %w", fn.Name, err)
	}

	result := &Result{
		FunctionName: fn.Name,
		FunctionARN:  unqualifiedARN(aws.ToString(out.FunctionArn)),
		Version:      aws.ToString(out.Version),
		RoleARN:      roleARN,
	}
	logger.WithField("version", result.Version).Info("Function code updated")

	if !settings.Deploy.UpdateConfiguration {
		return result, nil
	}

	// A configuration change is rejected while the code update is still in progress
	if err := d.waitUpdated(ctx, fn.Name); err != nil {
		return nil, err
	}

	if _, err := d.functions.UpdateFunctionConfiguration(ctx, &lambda.UpdateFunctionConfigurationInput{
		FunctionName: aws.String(fn.Name),
		Role:         aws.String(roleARN),
		Runtime:      lambdatypes.Runtime(fn.Runtime),
		Handler:      aws.String(fn.Handler),
		Description:  aws.String(fn.Description),
		Timeout:      aws.Int32(int32(fn.Timeout)),
		MemorySize:   aws.Int32(int32(fn.MemorySize)),
		Environment:  &lambdatypes.Environment{Variables: settings.FunctionEnvironment()},
	}); err != nil {
		return nil, fmt.Errorf("failed to update configuration of %s: %w", fn.Name, err)
	}
	logger.Info("Function configuration updated")

	if !fn.Publish {
		return result, nil
	}

	if err := d.waitUpdated(ctx, fn.Name); err != nil {
		return nil, err
	}
	published, err := d.functions.PublishVersion(ctx, &lambda.PublishVersionInput{
		FunctionName: aws.String(fn.Name),
		Description:  aws.String(fn.Description),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to publish version of %s: %w", fn.Name, err)
	}
	result.Version = aws.ToString(published.Version)
	logger.WithField("version", result.Version).Info("Function version published")

	return result, nil
}

func (d *Deployer) waitUpdated(ctx context.Context, name string) error {
	waiter := lambda.NewFunctionUpdatedWaiter(d.functions)
	if err := waiter.Wait(ctx, &lambda.GetFunctionConfigurationInput{FunctionName: aws.String(name)}, functionWaitTimeout); err != nil {
		return fmt.Errorf("function %s did not finish updating: %w", name, err)
	}
	return nil
}

func (d *Deployer) waitActive(ctx context.Context, name string) error {
	waiter := lambda.NewFunctionActiveWaiter(d.functions)
	if err := waiter.Wait(ctx, &lambda.GetFunctionConfigurationInput{FunctionName: aws.String(name)}, functionWaitTimeout); err != nil {
		return fmt.Errorf("function %s did not become active: %w", name, err)
	}
	return nil
}

// unqualifiedARN drops a version or alias qualifier from a function ARN
// (arn:aws:lambda:<region>:<account>:function:<name>[:<qualifier>])
func unqualifiedARN(arn string) string {
	parts := strings.Split(arn, ":")
	if len(parts) > 7 && parts[5] == "function" {
		return strings.Join(parts[:7], ":")
	}
	return arn
}

func sleepSeconds(ctx context.Context, seconds int) error {
	if seconds <= 0 {
		return nil
	}
	timer := time.NewTimer(time.Duration(seconds) * time.Second)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
