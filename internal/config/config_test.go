package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// yamlSafePath converts a filesystem path to a YAML-safe representation.
func yamlSafePath(p string) string {
	return filepath.ToSlash(p)
}

func TestLoad_DefaultConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
logging:
  level: "INFO"

shutdown_timeout: 45s

dictionary:
  base_dir: "` + yamlSafePath(tmpDir) + `/dictionary"
  root_file: "FIX44.xml"

log_store:
  path: "` + yamlSafePath(tmpDir) + `/logstore"

registry:
  backend: badger
  path: "` + yamlSafePath(tmpDir) + `/registry"

sessions:
  - sender_comp_id: FIXA1
    target_comp_id: FIXB1
    connection_type: acceptor
    port: 9001
    heartbeat_interval: 30s
    schedule:
      timezone: UTC
      start_time: "00:00:00"
      end_time: "23:59:59"
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "stdout", cfg.Logging.Output)
	assert.Equal(t, 45*time.Second, cfg.ShutdownTimeout)
	require.Len(t, cfg.Sessions, 1)
	assert.Equal(t, "FIXA1", cfg.Sessions[0].SenderCompID)
	assert.Equal(t, 30*time.Second, cfg.Sessions[0].HeartbeatInterval)
}

func TestLoad_NoConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	nonExistentPath := filepath.Join(tmpDir, "nonexistent.yaml")

	cfg, err := Load(nonExistentPath)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "SYNC_FALLBACK", cfg.Pool.Backpressure)
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Dictionary.BaseDir = "/etc/fixengine/dictionary"
	cfg.LogStore.Path = "/var/lib/fixengine/logstore"
	cfg.Registry.Path = "/var/lib/fixengine/registry"

	assert.NoError(t, Validate(cfg))
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Dictionary.BaseDir = "/tmp/dict"
	cfg.LogStore.Path = "/tmp/logstore"
	cfg.Logging.Level = "VERBOSE"

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oneof")
}

func TestValidate_InvalidNetworkPort(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Dictionary.BaseDir = "/tmp/dict"
	cfg.LogStore.Path = "/tmp/logstore"
	cfg.Network.Ports = []int{70000}

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max")
}

func TestApplyDefaults_SessionSchedule(t *testing.T) {
	cfg := &EngineConfig{
		Sessions: []SessionConfig{{SenderCompID: "A", TargetCompID: "B"}},
	}
	ApplyDefaults(cfg)

	assert.Equal(t, "UTC", cfg.Sessions[0].Schedule.Timezone)
	assert.Equal(t, 30*time.Second, cfg.Sessions[0].HeartbeatInterval)
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "sub", "config.yaml")

	cfg := DefaultConfig()
	cfg.Dictionary.BaseDir = "/tmp/dict"
	cfg.LogStore.Path = "/tmp/logstore"

	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Logging.Level, loaded.Logging.Level)
}
