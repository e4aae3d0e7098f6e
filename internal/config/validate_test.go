package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validConfig returns a config that passes Validate unmodified, so each
// test can mutate a single field and assert the expected outcome.
func validConfig() *Config {
	concurrency := 10

	return &Config{
		Workload: Workload{
			TestMode:           "max_throughput",
			Concurrency:        &concurrency,
			NumAccounts:        100_000,
			ZipfianExponent:    1.0,
			InitialBalance:     1_000_000,
			MinTransferAmount:  1,
			MaxTransferAmount:  1000,
			WarmupDurationSecs: 120,
			TestDurationSecs:   300,
		},
		Database: Database{Type: "postgresql"},
		Postgresql: &Postgresql{
			IsolationLevel:     ReadCommitted,
			ConnectionPoolSize: 20,
		},
		Deployment: Deployment{Type: Local, NumDBNodes: 1},
		Coordinator: Coordinator{
			TestRuns:             3,
			MaxVarianceThreshold: 0.1,
			MaxErrorRate:         0.05,
			MetricsExportPath:    "./results",
		},
		Monitoring: Monitoring{GrafanaPort: 3000, PrometheusPort: 9090, OtelCollectorPort: 4317},
	}
}

func TestValidate_ValidConfigPasses(t *testing.T) {
	require.NoError(t, Validate(validConfig()))
}

func TestValidate_MissingPostgresqlSection(t *testing.T) {
	cfg := validConfig()
	cfg.Postgresql = nil
	assert.Error(t, Validate(cfg))
}

func TestValidate_InvertedTransferAmounts(t *testing.T) {
	cfg := validConfig()
	cfg.Workload.MinTransferAmount = 1000
	cfg.Workload.MaxTransferAmount = 1
	assert.Error(t, Validate(cfg))
}

func TestValidate_MissingConcurrencyForMaxThroughput(t *testing.T) {
	cfg := validConfig()
	cfg.Workload.Concurrency = nil
	assert.Error(t, Validate(cfg))
}

func TestValidate_FixedRateModeValid(t *testing.T) {
	cfg := validConfig()
	rate := uint64(1000)
	maxConcurrency := 50
	cfg.Workload.TestMode = "fixed_rate"
	cfg.Workload.Concurrency = nil
	cfg.Workload.TargetRate = &rate
	cfg.Workload.MaxConcurrency = &maxConcurrency
	assert.NoError(t, Validate(cfg))
}

func TestValidate_FixedRateMissingTargetRate(t *testing.T) {
	cfg := validConfig()
	maxConcurrency := 50
	cfg.Workload.TestMode = "fixed_rate"
	cfg.Workload.Concurrency = nil
	cfg.Workload.MaxConcurrency = &maxConcurrency
	assert.Error(t, Validate(cfg))
}

func TestValidate_InvalidTestMode(t *testing.T) {
	cfg := validConfig()
	cfg.Workload.TestMode = "invalid_mode"
	assert.Error(t, Validate(cfg))
}

func TestValidate_ZeroNumAccounts(t *testing.T) {
	cfg := validConfig()
	cfg.Workload.NumAccounts = 0
	assert.Error(t, Validate(cfg))
}

func TestValidate_OneNumAccounts(t *testing.T) {
	cfg := validConfig()
	cfg.Workload.NumAccounts = 1
	assert.Error(t, Validate(cfg))
}

func TestValidate_ZeroTestDuration(t *testing.T) {
	cfg := validConfig()
	cfg.Workload.TestDurationSecs = 0
	assert.Error(t, Validate(cfg))
}

func TestValidate_NegativeZipfianExponent(t *testing.T) {
	cfg := validConfig()
	cfg.Workload.ZipfianExponent = -1.0
	assert.Error(t, Validate(cfg))
}

func TestValidate_MissingTigerBeetleSection(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Type = "tigerbeetle"
	cfg.TigerBeetle = nil
	assert.Error(t, Validate(cfg))
}

func TestValidate_EmptyClusterAddresses(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Type = "tigerbeetle"
	cfg.TigerBeetle = &TigerBeetle{ClusterAddresses: nil}
	assert.Error(t, Validate(cfg))
}

func TestValidate_CloudDeploymentRequiresClientNodesAndRegion(t *testing.T) {
	cfg := validConfig()
	cfg.Deployment.Type = Cloud
	assert.Error(t, Validate(cfg))
}

func TestValidate_ZeroTestRuns(t *testing.T) {
	cfg := validConfig()
	cfg.Coordinator.TestRuns = 0
	assert.Error(t, Validate(cfg))
}

func TestValidate_AccumulatesMultipleErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Workload.NumAccounts = 0
	cfg.Workload.TestDurationSecs = 0
	cfg.Coordinator.TestRuns = 0

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "num_accounts")
	assert.Contains(t, err.Error(), "test_duration_secs")
	assert.Contains(t, err.Error(), "test_runs")
}

func TestIsolationLevel_SQL(t *testing.T) {
	assert.Equal(t, "READ COMMITTED", ReadCommitted.SQL())
	assert.Equal(t, "REPEATABLE READ", RepeatableRead.SQL())
	assert.Equal(t, "SERIALIZABLE", Serializable.SQL())
}
