package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DefaultSettingsFile is read by the deploy command when no path is given
const DefaultSettingsFile = "settings.yaml"

// ErrInvalidSettings marks configuration errors. They are fatal and reported before any remote call.
var ErrInvalidSettings = errors.New("invalid settings")

// Settings holds all configuration shared by the handler and the deployer
type Settings struct {
	Function FunctionSettings `mapstructure:"function" yaml:"function"`
	AWS      AWSSettings      `mapstructure:"aws" yaml:"aws"`
	Storage  StorageSettings  `mapstructure:"storage" yaml:"storage"`
	Deploy   DeploySettings   `mapstructure:"deploy" yaml:"deploy"`
	Log      LogSettings      `mapstructure:"log" yaml:"log"`
}

// FunctionSettings describes the remote function resource
type FunctionSettings struct {
	Name         string `mapstructure:"name" yaml:"name" validate:"required,max=64"`
	Handler      string `mapstructure:"handler" yaml:"handler" validate:"required"`
	Runtime      string `mapstructure:"runtime" yaml:"runtime" validate:"required"`
	Architecture string `mapstructure:"architecture" yaml:"architecture" validate:"oneof=x86_64 arm64"`
	Artifact     string `mapstructure:"artifact" yaml:"artifact" validate:"required"`
	Archive      string `mapstructure:"archive" yaml:"archive"`
	Description  string `mapstructure:"description" yaml:"description" validate:"max=256"`
	Timeout      int    `mapstructure:"timeout" yaml:"timeout" validate:"min=1,max=900"`
	MemorySize   int    `mapstructure:"memory_size" yaml:"memory_size" validate:"min=128,max=10240"`
	Publish      bool   `mapstructure:"publish" yaml:"publish"`
}

// AWSSettings holds account level settings. Credentials are resolved by the SDK.
type AWSSettings struct {
	Region   string `mapstructure:"region" yaml:"region" validate:"required"`
	Profile  string `mapstructure:"profile" yaml:"profile"`
	RoleName string `mapstructure:"role_name" yaml:"role_name" validate:"omitempty,max=64"`
	RoleARN  string `mapstructure:"role_arn" yaml:"role_arn" validate:"omitempty,startswith=arn:"`
}

// StorageSettings holds object storage configuration used by the handler
type StorageSettings struct {
	Type                  string `mapstructure:"type" yaml:"type" validate:"oneof=s3 minio local memory"`
	Bucket                string `mapstructure:"bucket" yaml:"bucket" validate:"omitempty,min=3,max=63"`
	Endpoint              string `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKeyID           string `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey       string `mapstructure:"secret_access_key" yaml:"secret_access_key"`
	UseSSL                bool   `mapstructure:"use_ssl" yaml:"use_ssl"`
	LocalPath             string `mapstructure:"local_path" yaml:"local_path"`
	DefaultKey            string `mapstructure:"default_key" yaml:"default_key" validate:"max=1024"`
	DefaultBody           string `mapstructure:"default_body" yaml:"default_body"`
	IncomingPrefix        string `mapstructure:"incoming_prefix" yaml:"incoming_prefix" validate:"required"`
	ArchivePrefix         string `mapstructure:"archive_prefix" yaml:"archive_prefix" validate:"required,nefield=IncomingPrefix"`
	ArchiveExpirationDays int    `mapstructure:"archive_expiration_days" yaml:"archive_expiration_days" validate:"min=0"`
}

// DeploySettings toggles the provisioning steps of the deployer
type DeploySettings struct {
	ProvisionBucket        bool `mapstructure:"provision_bucket" yaml:"provision_bucket"`
	ProvisionRole          bool `mapstructure:"provision_role" yaml:"provision_role"`
	ConfigureTrigger       bool `mapstructure:"configure_trigger" yaml:"configure_trigger"`
	UpdateConfiguration    bool `mapstructure:"update_configuration" yaml:"update_configuration"`
	RolePropagationSeconds int  `mapstructure:"role_propagation_seconds" yaml:"role_propagation_seconds" validate:"min=0,max=300"`
}

// LogSettings holds logging configuration
type LogSettings struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=trace debug info warn warning error"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=json text"`
}

var validate = validator.New()

// Load loads settings from defaults, an optional .env file, the settings file at path and
// the process environment, in increasing order of precedence. An empty path skips the file.
func Load(path string) (*Settings, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: failed to read %s: %v", ErrInvalidSettings, path, err)
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}

	return settings, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("function.name", "")
	v.SetDefault("function.handler", "bootstrap")
	v.SetDefault("function.runtime", "provided.al2023")
	v.SetDefault("function.architecture", "x86_64")
	v.SetDefault("function.artifact", "./dist/bootstrap")
	v.SetDefault("function.archive", "")
	v.SetDefault("function.description", "")
	v.SetDefault("function.timeout", 10)
	v.SetDefault("function.memory_size", 128)
	v.SetDefault("function.publish", true)

	v.SetDefault("aws.region", "us-east-1")
	v.SetDefault("aws.profile", "")
	v.SetDefault("aws.role_name", "")
	v.SetDefault("aws.role_arn", "")

	v.SetDefault("storage.type", "s3")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.access_key_id", "")
	v.SetDefault("storage.secret_access_key", "")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.local_path", "./data/objects")
	v.SetDefault("storage.default_key", "")
	v.SetDefault("storage.default_body", "Hello, World!")
	v.SetDefault("storage.incoming_prefix", "incoming/")
	v.SetDefault("storage.archive_prefix", "archive/")
	v.SetDefault("storage.archive_expiration_days", 1)

	v.SetDefault("deploy.provision_bucket", true)
	v.SetDefault("deploy.provision_role", true)
	v.SetDefault("deploy.configure_trigger", true)
	v.SetDefault("deploy.update_configuration", true)
	v.SetDefault("deploy.role_propagation_seconds", 10)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks the settings the handler needs
func (s *Settings) Validate() error {
	if err := validateStruct(s.Storage); err != nil {
		return err
	}
	if err := validateStruct(s.Log); err != nil {
		return err
	}

	switch s.Storage.Type {
	case "s3", "minio":
		if s.Storage.Bucket == "" {
			return fmt.Errorf("%w: storage.bucket is required for %s storage", ErrInvalidSettings, s.Storage.Type)
		}
	}
	if s.Storage.Type == "minio" && s.Storage.Endpoint == "" {
		return fmt.Errorf("%w: storage.endpoint is required for minio storage", ErrInvalidSettings)
	}

	return nil
}

// ValidateForDeploy checks everything the deployer needs before it makes any remote call
func (s *Settings) ValidateForDeploy() error {
	if err := s.Validate(); err != nil {
		return err
	}
	if s.Storage.Bucket == "" {
		return fmt.Errorf("%w: storage.bucket is required", ErrInvalidSettings)
	}
	if err := validateStruct(s.Function); err != nil {
		return err
	}
	if err := validateStruct(s.AWS); err != nil {
		return err
	}
	if err := validateStruct(s.Deploy); err != nil {
		return err
	}
	if s.AWS.RoleARN == "" && s.AWS.RoleName == "" {
		return fmt.Errorf("%w: one of aws.role_arn or aws.role_name is required", ErrInvalidSettings)
	}
	return nil
}

func validateStruct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}

	messages := make([]string, 0, len(validationErrors))
	for _, fieldErr := range validationErrors {
		messages = append(messages, formatFieldError(fieldErr))
	}
	return fmt.Errorf("%w: %s", ErrInvalidSettings, strings.Join(messages, "; "))
}

func formatFieldError(fieldErr validator.FieldError) string {
	field := strings.ToLower(fieldErr.Namespace())
	switch fieldErr.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fieldErr.Param())
	case "min", "max":
		return fmt.Sprintf("%s must satisfy %s=%s", field, fieldErr.Tag(), fieldErr.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fieldErr.Tag())
	}
}

// WriteFile serializes every recognized key to a YAML settings file
func (s *Settings) WriteFile(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write settings to %s: %w", path, err)
	}
	return nil
}

// FunctionEnvironment returns the environment deployed with the function so the handler
// resolves the same storage and log settings at runtime
func (s *Settings) FunctionEnvironment() map[string]string {
	env := map[string]string{
		"STORAGE_TYPE":            s.Storage.Type,
		"STORAGE_BUCKET":          s.Storage.Bucket,
		"STORAGE_DEFAULT_KEY":     s.Storage.DefaultKey,
		"STORAGE_DEFAULT_BODY":    s.Storage.DefaultBody,
		"STORAGE_INCOMING_PREFIX": s.Storage.IncomingPrefix,
		"STORAGE_ARCHIVE_PREFIX":  s.Storage.ArchivePrefix,
		"LOG_LEVEL":               s.Log.Level,
		"LOG_FORMAT":              s.Log.Format,
	}
	if s.Storage.Endpoint != "" {
		env["STORAGE_ENDPOINT"] = s.Storage.Endpoint
		env["STORAGE_USE_SSL"] = strconv.FormatBool(s.Storage.UseSSL)
	}
	return env
}
