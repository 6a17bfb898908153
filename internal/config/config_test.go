package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandEnvVars_UsesEnvValueWhenSet(t *testing.T) {
	os.Setenv("AION_TEST_VAR", "from-env")
	defer os.Unsetenv("AION_TEST_VAR")

	result := expandEnvVars("host: ${AION_TEST_VAR:fallback}")
	assert.Equal(t, "host: from-env", result)
}

func TestExpandEnvVars_FallsBackToDefault(t *testing.T) {
	os.Unsetenv("AION_TEST_UNSET_VAR")

	result := expandEnvVars("host: ${AION_TEST_UNSET_VAR:fallback}")
	assert.Equal(t, "host: fallback", result)
}

func TestExpandEnvVars_MultipleReferences(t *testing.T) {
	result := expandEnvVars("${A:1}-${B:2}-${C:3}")
	assert.Equal(t, "1-2-3", result)
}

func TestLoad_AppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("service:\n  name: test-relayer\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "test-relayer", cfg.Service.Name)
	assert.Equal(t, 8080, cfg.Service.HTTPPort)
	assert.Equal(t, int64(31337), cfg.Blockchain.ChainID)
	assert.Equal(t, 3, cfg.Relayer.DefaultConcurrency)
	assert.Equal(t, 10, cfg.Relayer.MaxConcurrency)
	assert.Equal(t, 3, cfg.Relayer.MaxRetries)
	assert.Equal(t, 5, cfg.Relayer.SchedulerTickIntervalSeconds)
	assert.Equal(t, 300, cfg.Relayer.LockoutGracePeriodSeconds)
	assert.Equal(t, 600, cfg.Relayer.LockoutDelaySeconds)
	assert.Equal(t, 30, cfg.WebSocket.PingIntervalSeconds)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestRelayerConfig_DurationHelpers(t *testing.T) {
	cfg := RelayerConfig{
		SchedulerTickIntervalSeconds: 5,
		LockoutGracePeriodSeconds:    300,
		LockoutDelaySeconds:          600,
	}
	assert.Equal(t, "5s", cfg.SchedulerTickInterval().String())
	assert.Equal(t, "5m0s", cfg.LockoutGracePeriod().String())
	assert.Equal(t, "10m0s", cfg.LockoutDelay().String())
}

func TestLoad_MissingFileReturnsError(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestWebSocketConfig_DurationHelpers(t *testing.T) {
	cfg := WebSocketConfig{PingIntervalSeconds: 30, PongWaitSeconds: 60, WriteWaitSeconds: 10}
	assert.Equal(t, "30s", cfg.PingInterval().String())
	assert.Equal(t, "1m0s", cfg.PongWait().String())
	assert.Equal(t, "10s", cfg.WriteWait().String())
}

func TestGetEnvInt_FallsBackOnMissingOrInvalid(t *testing.T) {
	os.Unsetenv("AION_TEST_INT")
	assert.Equal(t, 42, GetEnvInt("AION_TEST_INT", 42))

	os.Setenv("AION_TEST_INT", "not-an-int")
	defer os.Unsetenv("AION_TEST_INT")
	assert.Equal(t, 42, GetEnvInt("AION_TEST_INT", 42))
}

func TestGetEnvString_ReturnsSetValue(t *testing.T) {
	os.Setenv("AION_TEST_STR", "value")
	defer os.Unsetenv("AION_TEST_STR")
	assert.Equal(t, "value", GetEnvString("AION_TEST_STR", "default"))
}
