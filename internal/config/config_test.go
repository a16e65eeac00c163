package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spotify/medusa-go/internal/merrors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "medusa.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFileParsesAllGroups(t *testing.T) {
	path := writeConfig(t, `
storage:
  storage_provider: gcs
  bucket_name: my-bucket
  prefix: medusa
  fqdn: node1.example.com
  key_file: /etc/medusa/gcs.json
cassandra:
  start_cmd: service cassandra start
  stop_cmd: service cassandra stop
  check_running: true
ssh:
  username: medusa
  key_file: /home/medusa/.ssh/id_rsa
restore:
  health_check: all
monitoring:
  monitoring_provider: prometheus
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "gcs", cfg.Storage.StorageProvider)
	assert.Equal(t, "my-bucket", cfg.Storage.BucketName)
	assert.Equal(t, "node1.example.com", cfg.Storage.FQDN)
	assert.Equal(t, "service cassandra start", cfg.Cassandra.StartCmd)
	assert.True(t, cfg.Cassandra.CheckRunning)
	assert.Equal(t, "medusa", cfg.SSH.Username)
	assert.Equal(t, HealthCheckAll, cfg.Restore.HealthCheck)
	assert.Equal(t, "prometheus", cfg.Monitoring.MonitoringProvider)
	assert.Equal(t, ",", cfg.Storage.HostFileSeparator, "default separator applied when omitted")
}

func TestLoadFileDefaultsHealthCheckToCQL(t *testing.T) {
	path := writeConfig(t, `
storage:
  storage_provider: local
  base_path: /var/backups/medusa
  fqdn: node1.example.com
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, HealthCheckCQL, cfg.Restore.HealthCheck)
}

func TestLoadFileRejectsMissingStorageProvider(t *testing.T) {
	path := writeConfig(t, `
storage:
  fqdn: node1.example.com
`)

	_, err := LoadFile(path)
	require.Error(t, err)
	assert.Equal(t, merrors.ConfigError, merrors.KindOf(err))
}

func TestLoadFileRejectsUnknownStorageProvider(t *testing.T) {
	path := writeConfig(t, `
storage:
  storage_provider: azure
  fqdn: node1.example.com
`)

	_, err := LoadFile(path)
	require.Error(t, err)
}

func TestLoadFileRejectsMissingBucketForGCS(t *testing.T) {
	path := writeConfig(t, `
storage:
  storage_provider: gcs
  fqdn: node1.example.com
`)

	_, err := LoadFile(path)
	require.Error(t, err)
}

func TestLoadFileDefaultsCassandraDirectories(t *testing.T) {
	path := writeConfig(t, `
storage:
  storage_provider: local
  base_path: /var/backups/medusa
  fqdn: node1.example.com
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/cassandra/data", cfg.Cassandra.DataDir)
	assert.Equal(t, "/var/lib/cassandra/commitlog", cfg.Cassandra.CommitLogDir)
	assert.Equal(t, "/var/lib/cassandra/saved_caches", cfg.Cassandra.SavedCachesDir)
}

func TestLoadFileRejectsMissingFQDN(t *testing.T) {
	path := writeConfig(t, `
storage:
  storage_provider: local
  base_path: /var/backups/medusa
`)

	_, err := LoadFile(path)
	require.Error(t, err)
}

func TestLoadFileMissingFileReturnsConfigError(t *testing.T) {
	_, err := LoadFile("/nonexistent/path/medusa.yaml")
	require.Error(t, err)
	assert.Equal(t, merrors.ConfigError, merrors.KindOf(err))
}
