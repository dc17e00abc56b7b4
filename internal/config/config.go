package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	DefaultPollInterval  = 3 * time.Second
	DefaultDeadlineFloor = 10 * time.Second
	DefaultContainerName = "kaniko"
	DefaultLaunchType    = "FARGATE"

	RegistryECR = "ecr"
	RegistryOCI = "oci"
)

const envPrefix = "KANIKO_CONTROLLER_"

// Config holds all configuration for the controller
type Config struct {
	// Completion waiter
	PollInterval  time.Duration
	DeadlineFloor time.Duration

	// Local scratch space used while repackaging source archives
	StagingDir string

	// Build task
	ContainerName string
	LaunchType    string

	// Registry probe: "ecr" uses DescribeImages, "oci" talks to RegistryHost
	// over the distribution API.
	Registry     string
	RegistryHost string

	// AWS overrides, empty means SDK defaults
	Region      string
	S3Endpoint  string
	AccessKeyID string
	SecretKey   string

	// When set, source archives are read from and written to this directory
	// instead of S3. Keys are paths relative to <dir>/<bucket>.
	LocalStorageDir string
}

func Default() Config {
	return Config{
		PollInterval:  DefaultPollInterval,
		DeadlineFloor: DefaultDeadlineFloor,
		StagingDir:    os.TempDir(),
		ContainerName: DefaultContainerName,
		LaunchType:    DefaultLaunchType,
		Registry:      RegistryECR,
	}
}

// FromEnv returns Default overlaid with KANIKO_CONTROLLER_* variables.
func FromEnv() (Config, error) {
	cfg := Default()

	var err error
	if cfg.PollInterval, err = durationEnv("POLL_INTERVAL", cfg.PollInterval); err != nil {
		return Config{}, err
	}
	if cfg.DeadlineFloor, err = durationEnv("DEADLINE_FLOOR", cfg.DeadlineFloor); err != nil {
		return Config{}, err
	}
	cfg.StagingDir = stringEnv("STAGING_DIR", cfg.StagingDir)
	cfg.ContainerName = stringEnv("CONTAINER_NAME", cfg.ContainerName)
	cfg.LaunchType = stringEnv("LAUNCH_TYPE", cfg.LaunchType)
	cfg.Registry = stringEnv("REGISTRY", cfg.Registry)
	cfg.RegistryHost = stringEnv("REGISTRY_HOST", cfg.RegistryHost)
	cfg.Region = stringEnv("REGION", os.Getenv("AWS_REGION"))
	cfg.S3Endpoint = stringEnv("S3_ENDPOINT", cfg.S3Endpoint)
	cfg.AccessKeyID = stringEnv("ACCESS_KEY_ID", cfg.AccessKeyID)
	cfg.SecretKey = stringEnv("SECRET_ACCESS_KEY", cfg.SecretKey)
	cfg.LocalStorageDir = stringEnv("LOCAL_STORAGE_DIR", cfg.LocalStorageDir)

	return cfg.Normalized(), nil
}

// Normalized returns c with case-insensitive settings folded to their
// canonical case.
func (c Config) Normalized() Config {
	c.Registry = strings.ToLower(strings.TrimSpace(c.Registry))
	c.LaunchType = strings.ToUpper(strings.TrimSpace(c.LaunchType))
	return c
}

func (c Config) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}
	if c.DeadlineFloor < 0 {
		return fmt.Errorf("deadline floor must not be negative, got %s", c.DeadlineFloor)
	}
	if c.StagingDir == "" {
		return fmt.Errorf("staging directory must be set")
	}
	if c.ContainerName == "" {
		return fmt.Errorf("container name must be set")
	}
	switch c.Registry {
	case RegistryECR:
	case RegistryOCI:
		if c.RegistryHost == "" {
			return fmt.Errorf("registry %q requires a registry host", RegistryOCI)
		}
	default:
		return fmt.Errorf("unknown registry %q, expected %q or %q", c.Registry, RegistryECR, RegistryOCI)
	}
	if (c.AccessKeyID == "") != (c.SecretKey == "") {
		return fmt.Errorf("access key id and secret access key must be set together")
	}
	return nil
}

func stringEnv(name string, fallback string) string {
	if v := os.Getenv(envPrefix + name); v != "" {
		return v
	}
	return fallback
}

func durationEnv(name string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(envPrefix + name)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s%s: %w", envPrefix, name, err)
	}
	return d, nil
}
