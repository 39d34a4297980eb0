// Package configuration parses and validates the YAML configuration the
// storage factory consumes. Values are typed and validated once, at load
// time; a Configuration is immutable after Parse returns.
package configuration

import (
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v2"
)

// Driver kinds recognized by storage.type.
const (
	DriverFilesystem = "file"
	DriverS3         = "s3"
	DriverGCS        = "gcs"
	DriverInMemory   = "inmemory"
)

// Lock strategy kinds recognized by storage.lock.strategy.
const (
	LockFile        = "file"
	LockObject      = "object"
	LockCoordinator = "coordinator"
)

// Configuration is the root configuration object.
type Configuration struct {
	// Log supplies the level and default fields applied to the process
	// logger by the consumer.
	Log Log `yaml:"log"`

	// Storage selects and parameterizes the backend driver and lock
	// strategy.
	Storage Storage `yaml:"storage"`
}

// Log holds logging options.
type Log struct {
	// Level is the granularity of log output: debug, info, warn, error.
	Level string `yaml:"level"`

	// Fields is a map of default fields added to every log line.
	Fields map[string]any `yaml:"fields,omitempty"`
}

// Storage describes the backend kind and its connection parameters, plus
// the nested lock strategy.
type Storage struct {
	// Type selects the backend driver: file, s3, gcs or inmemory.
	Type string `yaml:"type"`

	// BaseDir is the filesystem backend root. Required when Type is file.
	BaseDir string `yaml:"base_dir,omitempty"`

	// Bucket and Prefix locate object-store data. Bucket is required for
	// the s3 and gcs backends.
	Bucket string `yaml:"bucket,omitempty"`
	Prefix string `yaml:"prefix,omitempty"`

	// Region, RegionEndpoint and the credential fields parameterize the
	// s3 backend.
	Region         string `yaml:"region,omitempty"`
	RegionEndpoint string `yaml:"region_endpoint,omitempty"`
	AccessKey      string `yaml:"access_key,omitempty"`
	SecretKey      string `yaml:"secret_key,omitempty"`
	SessionToken   string `yaml:"session_token,omitempty"`
	Insecure       bool   `yaml:"insecure,omitempty"`

	// Keyfile is the gcs service-account credentials file; application
	// default credentials are used when empty.
	Keyfile string `yaml:"keyfile,omitempty"`

	// Lock configures the lock strategy guarding writes.
	Lock Lock `yaml:"lock"`
}

// Lock describes the lock strategy kind and lease/retry parameters.
type Lock struct {
	// Strategy selects the lock strategy: file, object or coordinator.
	Strategy string `yaml:"strategy"`

	// BaseDir is where the file strategy keeps its marker files.
	// Required when Strategy is file.
	BaseDir string `yaml:"base_dir,omitempty"`

	// LeaseDurationSeconds is the lease length before passive expiry.
	LeaseDurationSeconds float64 `yaml:"lease_duration_seconds"`

	// RetryAttempts and RetryDelaySeconds govern client-side contention
	// handling. The initial attempt counts toward RetryAttempts.
	RetryAttempts     int     `yaml:"retry_attempts"`
	RetryDelaySeconds float64 `yaml:"retry_delay_seconds"`

	// Redis holds the coordinator connection. Only consulted when
	// Strategy is coordinator.
	Redis Redis `yaml:"redis,omitempty"`
}

// Redis holds the coordinator connection parameters.
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// LeaseDuration returns the configured lease length.
func (l Lock) LeaseDuration() time.Duration {
	return time.Duration(l.LeaseDurationSeconds * float64(time.Second))
}

// RetryDelay returns the configured base backoff.
func (l Lock) RetryDelay() time.Duration {
	return time.Duration(l.RetryDelaySeconds * float64(time.Second))
}

// Parse parses and validates a configuration from the given reader.
func Parse(rd io.Reader) (*Configuration, error) {
	in, err := io.ReadAll(rd)
	if err != nil {
		return nil, err
	}

	config := new(Configuration)
	if err := yaml.UnmarshalStrict(in, config); err != nil {
		return nil, fmt.Errorf("configuration: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks kind selections, per-kind required parameters and value
// ranges. A configuration that passes Validate will not fail construction
// later for configuration reasons.
func (c *Configuration) Validate() error {
	s := &c.Storage

	switch s.Type {
	case DriverFilesystem:
		if s.BaseDir == "" {
			return fmt.Errorf("configuration: storage.base_dir is required for the file backend")
		}
	case DriverS3:
		if s.Bucket == "" {
			return fmt.Errorf("configuration: storage.bucket is required for the s3 backend")
		}
		if s.Region == "" && s.RegionEndpoint == "" {
			return fmt.Errorf("configuration: storage.region or storage.region_endpoint is required for the s3 backend")
		}
	case DriverGCS:
		if s.Bucket == "" {
			return fmt.Errorf("configuration: storage.bucket is required for the gcs backend")
		}
	case DriverInMemory:
	case "":
		return fmt.Errorf("configuration: storage.type is required")
	default:
		return fmt.Errorf("configuration: unknown storage type %q", s.Type)
	}

	l := &s.Lock
	switch l.Strategy {
	case LockFile:
		if l.BaseDir == "" {
			return fmt.Errorf("configuration: storage.lock.base_dir is required for the file strategy")
		}
	case LockObject:
	case LockCoordinator:
		if l.Redis.Addr == "" {
			return fmt.Errorf("configuration: storage.lock.redis.addr is required for the coordinator strategy")
		}
		if l.Redis.DB < 0 {
			return fmt.Errorf("configuration: storage.lock.redis.db must not be negative")
		}
	case "":
		return fmt.Errorf("configuration: storage.lock.strategy is required")
	default:
		return fmt.Errorf("configuration: unknown lock strategy %q", l.Strategy)
	}

	if l.LeaseDurationSeconds <= 0 {
		return fmt.Errorf("configuration: storage.lock.lease_duration_seconds must be positive")
	}
	if l.RetryAttempts < 1 {
		return fmt.Errorf("configuration: storage.lock.retry_attempts must be at least 1")
	}
	if l.RetryDelaySeconds < 0 {
		return fmt.Errorf("configuration: storage.lock.retry_delay_seconds must not be negative")
	}

	return nil
}
