package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/scalarorg/ismp-relayer/config"
	"github.com/scalarorg/ismp-relayer/pkg/types"
	"github.com/stretchr/testify/require"
)

const testConfig = `{
  "log_level": "debug",
  "database": {"url": "postgres://relayer@localhost/relayer"},
  "tracker": {"max_streams": 8, "submit_timeouts": true, "challenge_poll_interval": "2s"},
  "hyperbridge": {"state_machine": "EVM-31337", "consensus_state_id": "ETH0", "rpc_url": "http://localhost:8545"},
  "chains": [
    {"state_machine": "EVM-97", "consensus_state_id": "BSC0", "rpc_url": "wss://bsc", "host_address": "0x8Aa0Dea6D675d785A882967Bf38183f6117C09b7", "retry_interval": "500ms"},
    {"state_machine": "EVM-11155111", "consensus_state_id": "ETH0", "rpc_url": "wss://sepolia"}
  ]
}`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, testConfig))
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, "console", cfg.LogFormat)
	require.Equal(t, ":8080", cfg.Api.ListenAddress)
	require.Equal(t, 8, cfg.Tracker.MaxStreams)
	require.True(t, cfg.Tracker.SubmitTimeouts)
	require.Equal(t, 2*time.Second, cfg.Tracker.ChallengePollInterval)
	require.Equal(t, uint64(1000), cfg.Tracker.DeliveryScanWindow)
	require.Len(t, cfg.Chains, 2)
	require.Equal(t, types.EvmStateMachine(97), cfg.Chains[0].StateMachine)
	require.Equal(t, 500*time.Millisecond, cfg.Chains[0].RetryInterval)
	require.Equal(t, types.EvmStateMachine(31337), cfg.Hyperbridge.StateMachine)
	require.Same(t, cfg, config.GlobalConfig)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("RELAYER_LOG_LEVEL", "warn")
	t.Setenv("RELAYER_TRACKER_MAX_STREAMS", "3")
	cfg, err := config.Load(writeConfig(t, testConfig))
	require.NoError(t, err)
	require.Equal(t, "warn", cfg.LogLevel)
	require.Equal(t, 3, cfg.Tracker.MaxStreams)
}

func TestLoadInvalid(t *testing.T) {
	tests := map[string]string{
		"missing_chains":   `{"hyperbridge": {"state_machine": "EVM-1", "consensus_state_id": "ETH0", "rpc_url": "x"}}`,
		"bad_consensus_id": `{"chains": [{"state_machine": "EVM-97", "consensus_state_id": "BSC", "rpc_url": "x"}, {"state_machine": "EVM-1", "consensus_state_id": "ETH0", "rpc_url": "x"}]}`,
		"bad_log_level":    `{"log_level": "loud"}`,
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, content))
			require.Error(t, err)
		})
	}

	_, err := config.Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestLoadEnv(t *testing.T) {
	require.NoError(t, config.LoadEnv(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("RELAYER_TEST_VALUE=loaded\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("RELAYER_TEST_VALUE") })
	require.NoError(t, config.LoadEnv(path))
	require.Equal(t, "loaded", os.Getenv("RELAYER_TEST_VALUE"))
}
