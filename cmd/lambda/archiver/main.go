package main

import (
	"context"

	awslambda "github.com/aws/aws-lambda-go/lambda"
	"github.com/sirupsen/logrus"

	"s3-archive-lambda/internal/config"
	"s3-archive-lambda/internal/logging"
	"s3-archive-lambda/pkg/server"
)

var container *server.Container

func init() {
	// Inside Lambda the settings arrive through the function environment
	settings, err := config.Load("")
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	logger := logging.New(settings.Log.Level, settings.Log.Format)
	runtime := config.DetectRuntime()
	logger.WithFields(logrus.Fields{
		"function_name":    runtime.FunctionName,
		"function_version": runtime.FunctionVersion,
		"region":           runtime.Region,
		"memory_mb":        runtime.MemoryMB,
		"mode":             runtime.DeploymentMode(),
		"storage":          settings.Storage.Type,
	}).Info("Initializing handler")

	container, err = server.NewContainer(context.Background(), settings, logger)
	if err != nil {
		panic("Failed to initialize container: " + err.Error())
	}
}

func main() {
	awslambda.Start(container.Handler.Handle)
}
