package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"s3-archive-lambda/internal/config"
	"s3-archive-lambda/internal/deploy"
	"s3-archive-lambda/internal/logging"
)

// options holds the command line flags
type options struct {
	settingsFile string
	logLevel     string
}

func (o *options) flagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("deploy", pflag.ContinueOnError)
	fs.StringVar(&o.settingsFile, "settings", config.DefaultSettingsFile, "path to the settings file")
	fs.StringVar(&o.logLevel, "log-level", "", "override log.level from the settings file")
	return fs
}

// deployerFactory builds the deployer once settings are loaded
type deployerFactory func(ctx context.Context, settings *config.Settings, logger *logrus.Logger) (*deploy.Deployer, error)

func newAWSDeployer(ctx context.Context, settings *config.Settings, logger *logrus.Logger) (*deploy.Deployer, error) {
	cfg, err := config.LoadAWSConfig(ctx, settings)
	if err != nil {
		return nil, err
	}
	return deploy.NewFromConfig(cfg, logger), nil
}

func newCommand(newDeployer deployerFactory, exit func(int)) *cobra.Command {
	opts := &options{}

	command := &cobra.Command{
		Use:           "deploy",
		Short:         "Create or update the archive function from a settings file",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, _ []string) {
			exit(processCommand(cmd.Context(), opts, newDeployer))
		},
	}
	command.Flags().AddFlagSet(opts.flagSet())

	return command
}

func processCommand(ctx context.Context, opts *options, newDeployer deployerFactory) int {
	if ctx == nil {
		ctx = context.Background()
	}

	settings, err := config.Load(opts.settingsFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load settings: %v\n", err)
		return 1
	}
	if opts.logLevel != "" {
		settings.Log.Level = opts.logLevel
	}

	logger := logging.New(settings.Log.Level, settings.Log.Format)

	deployer, err := newDeployer(ctx, settings, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize deployer")
		return 1
	}

	result, err := deployer.Deploy(ctx, settings)
	if err != nil {
		logger.WithError(err).Error("Deployment failed")
		return 1
	}

	action := "updated"
	if result.Created {
		action = "created"
	}
	logger.WithFields(logrus.Fields{
		"function_name": result.FunctionName,
		"function_arn":  result.FunctionARN,
		"version":       result.Version,
		"role_arn":      result.RoleARN,
	}).Infof("Function %s", action)

	return 0
}

func main() {
	command := newCommand(newAWSDeployer, os.Exit)
	if err := command.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
