// Package config loads medusa's YAML configuration file into a typed
// Config, the way a manifest-driven operator loads resource manifests
// with gopkg.in/yaml.v3.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/spotify/medusa-go/internal/merrors"
)

// StorageConfig configures the object storage backend.
type StorageConfig struct {
	StorageProvider   string `yaml:"storage_provider"`
	BucketName        string `yaml:"bucket_name"`
	Prefix            string `yaml:"prefix"`
	BasePath          string `yaml:"base_path"`
	KeyFile           string `yaml:"key_file"`
	FQDN              string `yaml:"fqdn"`
	HostFileSeparator string `yaml:"host_file_separator"`
	MaxBackupAge      int    `yaml:"max_backup_age"`
	MaxBackupCount    int    `yaml:"max_backup_count"`
	APIProfile        string `yaml:"api_profile"`
}

// CassandraConfig configures how the Cassandra collaborator is invoked.
// DataDir, CommitLogDir and SavedCachesDir are not named in the original
// config table but are required to locate a concrete data directory on
// disk; they default to cassandra.yaml's own stock defaults.
type CassandraConfig struct {
	StartCmd         string `yaml:"start_cmd"`
	StopCmd          string `yaml:"stop_cmd"`
	ConfigFile       string `yaml:"config_file"`
	CQLUsername      string `yaml:"cql_username"`
	CQLPassword      string `yaml:"cql_password"`
	CheckRunning     bool   `yaml:"check_running"`
	IsCCM            bool   `yaml:"is_ccm"`
	SstableloaderBin string `yaml:"sstableloader_bin"`
	DataDir          string `yaml:"data_dir"`
	CommitLogDir     string `yaml:"commitlog_dir"`
	SavedCachesDir   string `yaml:"saved_caches_dir"`
}

// SSHConfig configures the transport used for cluster restore fan-out.
type SSHConfig struct {
	Username string `yaml:"username"`
	KeyFile  string `yaml:"key_file"`
}

// HealthCheck selects which readiness probe restore-node/restore-cluster
// wait on before considering a node up.
type HealthCheck string

const (
	HealthCheckCQL    HealthCheck = "cql"
	HealthCheckThrift HealthCheck = "thrift"
	HealthCheckAll    HealthCheck = "all"
)

// RestoreConfig configures restore-node/restore-cluster behavior.
type RestoreConfig struct {
	HealthCheck HealthCheck `yaml:"health_check"`
}

// MonitoringConfig configures where report-last-backup pushes metrics.
type MonitoringConfig struct {
	MonitoringProvider string `yaml:"monitoring_provider"`
}

// Config is the root configuration document: one group per concern below.
type Config struct {
	Storage    StorageConfig    `yaml:"storage"`
	Cassandra  CassandraConfig  `yaml:"cassandra"`
	SSH        SSHConfig        `yaml:"ssh"`
	Restore    RestoreConfig    `yaml:"restore"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

// LoadFile reads and parses the YAML config file at path, validating it
// before returning.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, merrors.New("config.LoadFile", merrors.ConfigError, fmt.Errorf("read %s: %w", path, err))
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, merrors.New("config.LoadFile", merrors.ConfigError, fmt.Errorf("parse %s: %w", path, err))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the fields required for any medusa operation to run.
func (c *Config) Validate() error {
	if c.Storage.StorageProvider == "" {
		return merrors.New("config.Validate", merrors.ConfigError, fmt.Errorf("storage.storage_provider is required"))
	}
	switch c.Storage.StorageProvider {
	case "gcs":
		if c.Storage.BucketName == "" {
			return merrors.New("config.Validate", merrors.ConfigError, fmt.Errorf("storage.bucket_name is required for gcs"))
		}
	case "local":
		if c.Storage.BasePath == "" {
			return merrors.New("config.Validate", merrors.ConfigError, fmt.Errorf("storage.base_path is required for local"))
		}
	default:
		return merrors.New("config.Validate", merrors.ConfigError, fmt.Errorf("unknown storage_provider %q", c.Storage.StorageProvider))
	}
	if c.Storage.FQDN == "" {
		return merrors.New("config.Validate", merrors.ConfigError, fmt.Errorf("storage.fqdn is required"))
	}
	if c.Storage.HostFileSeparator == "" {
		c.Storage.HostFileSeparator = ","
	}
	if c.Restore.HealthCheck == "" {
		c.Restore.HealthCheck = HealthCheckCQL
	}
	if c.Cassandra.DataDir == "" {
		c.Cassandra.DataDir = "/var/lib/cassandra/data"
	}
	if c.Cassandra.CommitLogDir == "" {
		c.Cassandra.CommitLogDir = "/var/lib/cassandra/commitlog"
	}
	if c.Cassandra.SavedCachesDir == "" {
		c.Cassandra.SavedCachesDir = "/var/lib/cassandra/saved_caches"
	}
	return nil
}
