package config

import (
	"os"
	"strconv"
)

// RuntimeInfo describes the execution environment the process was started in
type RuntimeInfo struct {
	IsLambda        bool
	FunctionName    string
	FunctionVersion string
	Region          string
	MemoryMB        int
}

// DetectRuntime reads the variables the Lambda runtime sets for every function instance
func DetectRuntime() RuntimeInfo {
	return RuntimeInfo{
		IsLambda:        os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "",
		FunctionName:    os.Getenv("AWS_LAMBDA_FUNCTION_NAME"),
		FunctionVersion: os.Getenv("AWS_LAMBDA_FUNCTION_VERSION"),
		Region:          os.Getenv("AWS_REGION"),
		MemoryMB:        getEnvAsInt("AWS_LAMBDA_FUNCTION_MEMORY_SIZE", 0),
	}
}

// DeploymentMode returns "serverless" inside Lambda and "local" everywhere else
func (r RuntimeInfo) DeploymentMode() string {
	if r.IsLambda {
		return "serverless"
	}
	return "local"
}

// getEnvAsInt gets an environment variable as integer with a fallback value
func getEnvAsInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}
