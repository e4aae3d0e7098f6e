package coordinator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ledgerbench/ledgerbench/internal/config"
)

func TestRunner_ClientArgs_Postgresql(t *testing.T) {
	cfg := config.Default()
	cfg.Monitoring.OtelEndpoint = "localhost:4317"

	r := &Runner{Config: cfg, ConfigPath: "ledgerbench.toml"}
	args := r.clientArgs()

	assert.Equal(t, []string{
		"-c", "ledgerbench.toml",
		"--pg-host", "localhost",
		"--pg-port", "5432",
		"--otel-endpoint", "localhost:4317",
	}, args)
}

func TestRunner_ClientArgs_TigerBeetle(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Type = "tigerbeetle"
	cfg.TigerBeetle = &config.TigerBeetle{ClusterAddresses: []string{"3000", "3001"}}
	cfg.Monitoring.OtelEndpoint = "localhost:4317"

	r := &Runner{Config: cfg, ConfigPath: "ledgerbench.toml"}
	args := r.clientArgs()

	assert.Equal(t, []string{
		"-c", "ledgerbench.toml",
		"--tb-addresses", "3000,3001",
		"--otel-endpoint", "localhost:4317",
	}, args)
}

func TestRunner_ClientBinary_PrefersExplicitPath(t *testing.T) {
	r := &Runner{ClientBinaryPath: "/opt/ledgerbench-client"}

	path, err := r.clientBinary()
	assert.NoError(t, err)
	assert.Equal(t, "/opt/ledgerbench-client", path)
}
