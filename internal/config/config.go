// Package config loads and validates the harness's TOML configuration file
// and resolves the mode-specific workload parameters it selects between.
package config

// Config is the root configuration document, matching the section layout
// named in the harness design: workload, database, backend-specific
// sub-sections, deployment metadata, coordinator settings, monitoring.
type Config struct {
	Workload    Workload     `toml:"workload"`
	Database    Database     `toml:"database"`
	Postgresql  *Postgresql  `toml:"postgresql"`
	TigerBeetle *TigerBeetle `toml:"tigerbeetle"`
	Deployment  Deployment   `toml:"deployment"`
	Coordinator Coordinator  `toml:"coordinator"`
	Monitoring  Monitoring   `toml:"monitoring"`
}

// Workload holds the workload-generation and run-duration parameters common
// to both test modes, plus the mode-specific fields that Mode() resolves.
type Workload struct {
	TestMode          string   `toml:"test_mode"`
	Concurrency       *int     `toml:"concurrency"`
	TargetRate        *uint64  `toml:"target_rate"`
	MaxConcurrency    *int     `toml:"max_concurrency"`
	NumAccounts       uint64   `toml:"num_accounts"`
	ZipfianExponent   float64  `toml:"zipfian_exponent"`
	InitialBalance    uint64   `toml:"initial_balance"`
	MinTransferAmount uint64   `toml:"min_transfer_amount"`
	MaxTransferAmount uint64   `toml:"max_transfer_amount"`
	WarmupDurationSecs uint64  `toml:"warmup_duration_secs"`
	TestDurationSecs   uint64  `toml:"test_duration_secs"`
}

// TestModeKind distinguishes the closed-loop and open-loop runners.
type TestModeKind int

const (
	// MaxThroughput selects the closed-loop runner.
	MaxThroughput TestModeKind = iota
	// FixedRate selects the open-loop runner.
	FixedRate
)

// ResolvedMode carries the validated, mode-specific parameters the runner
// needs, so callers never touch the optional raw TOML fields directly.
type ResolvedMode struct {
	Kind           TestModeKind
	Concurrency    int
	TargetRate     uint64
	MaxConcurrency int
}

// Mode resolves w.TestMode into a ResolvedMode, enforcing that the fields
// required by the selected mode are present. Validate must be called (and
// must have passed) before Mode is relied upon by the runner; Mode repeats
// the presence checks defensively since it may be called independently of
// Validate in tests.
func (w *Workload) Mode() (ResolvedMode, error) {
	switch w.TestMode {
	case "max_throughput":
		if w.Concurrency == nil {
			return ResolvedMode{}, errRequiredField("workload.concurrency", "max_throughput")
		}

		return ResolvedMode{Kind: MaxThroughput, Concurrency: *w.Concurrency}, nil
	case "fixed_rate":
		if w.TargetRate == nil {
			return ResolvedMode{}, errRequiredField("workload.target_rate", "fixed_rate")
		}

		if w.MaxConcurrency == nil {
			return ResolvedMode{}, errRequiredField("workload.max_concurrency", "fixed_rate")
		}

		return ResolvedMode{
			Kind:           FixedRate,
			TargetRate:     *w.TargetRate,
			MaxConcurrency: *w.MaxConcurrency,
		}, nil
	default:
		return ResolvedMode{}, errInvalidTestMode(w.TestMode)
	}
}

// Database selects which backend the client drives.
type Database struct {
	Type string `toml:"type"` // "postgresql" or "tigerbeetle"
}

// IsolationLevel is one of the three SQL standard isolation levels the
// relational executors may request on every transaction.
type IsolationLevel string

const (
	ReadCommitted  IsolationLevel = "read_committed"
	RepeatableRead IsolationLevel = "repeatable_read"
	Serializable   IsolationLevel = "serializable"
)

// SQL renders the level as the literal expected after
// "SET TRANSACTION ISOLATION LEVEL".
func (l IsolationLevel) SQL() string {
	switch l {
	case RepeatableRead:
		return "REPEATABLE READ"
	case Serializable:
		return "SERIALIZABLE"
	default:
		return "READ COMMITTED"
	}
}

// Postgresql holds the relational backend's connection and execution-mode
// settings.
type Postgresql struct {
	Host                 string         `toml:"host"`
	Port                 int            `toml:"port"`
	User                 string         `toml:"user"`
	Password             string         `toml:"password"`
	Database             string         `toml:"database"`
	IsolationLevel       IsolationLevel `toml:"isolation_level"`
	ConnectionPoolSize   int            `toml:"connection_pool_size"`
	ConnectionPoolMinIdle *int          `toml:"connection_pool_min_idle"`
	BatchedMode          bool           `toml:"batched_mode"`
}

// TigerBeetle holds the accounting-engine backend's cluster addresses.
type TigerBeetle struct {
	ClusterAddresses []string `toml:"cluster_addresses"`
}

// DeploymentKind distinguishes a local, single-machine deployment from a
// cloud one with distributed client/server nodes.
type DeploymentKind string

const (
	Local DeploymentKind = "local"
	Cloud DeploymentKind = "cloud"
)

// Deployment carries metadata about where the backend and clients run. The
// core harness does not act on most of these fields directly; they exist so
// the coordinator and result records can describe the environment a run
// executed in.
type Deployment struct {
	Type                  DeploymentKind `toml:"type"`
	NumDBNodes            int            `toml:"num_db_nodes"`
	NumClientNodes        *int           `toml:"num_client_nodes"`
	AWSRegion             *string        `toml:"aws_region"`
	DBInstanceType        *string        `toml:"db_instance_type"`
	ClientInstanceType    *string        `toml:"client_instance_type"`
	MeasureNetworkLatency bool           `toml:"measure_network_latency"`
}

// Coordinator holds the orchestrator's repeated-run parameters.
type Coordinator struct {
	TestRuns             int     `toml:"test_runs"`
	MaxVarianceThreshold float64 `toml:"max_variance_threshold"`
	MaxErrorRate         float64 `toml:"max_error_rate"`
	MetricsExportPath    string  `toml:"metrics_export_path"`
	KeepGrafanaRunning   bool    `toml:"keep_grafana_running"`
}

// Monitoring holds the ports and endpoints used to reach the metrics
// pipeline.
type Monitoring struct {
	GrafanaPort       uint16 `toml:"grafana_port"`
	PrometheusPort    uint16 `toml:"prometheus_port"`
	OtelCollectorPort uint16 `toml:"otel_collector_port"`
	OtelEndpoint      string `toml:"otel_endpoint"`
	PrometheusURL     string `toml:"prometheus_url"`
}

// Default returns a Config populated with the same defaults the harness has
// always shipped: single-node local deployment, three coordinator runs,
// read-committed isolation. Callers overlay a TOML file and CLI flags on
// top of this before validating.
func Default() *Config {
	minIdle := 1

	return &Config{
		Workload: Workload{
			TestMode:          "max_throughput",
			ZipfianExponent:   0,
			InitialBalance:    1_000_000,
			MinTransferAmount: 1,
			MaxTransferAmount: 1000,
			WarmupDurationSecs: 10,
			TestDurationSecs:   30,
			NumAccounts:        100_000,
		},
		Database: Database{Type: "postgresql"},
		Postgresql: &Postgresql{
			Host:                  "localhost",
			Port:                  5432,
			User:                  "postgres",
			Database:              "ledgerbench",
			IsolationLevel:        ReadCommitted,
			ConnectionPoolSize:    20,
			ConnectionPoolMinIdle: &minIdle,
		},
		Deployment: Deployment{
			Type:       Local,
			NumDBNodes: 1,
		},
		Coordinator: Coordinator{
			TestRuns:             3,
			MaxVarianceThreshold: 0.10,
			MaxErrorRate:         0.05,
			MetricsExportPath:    "./results",
		},
		Monitoring: Monitoring{
			GrafanaPort:       3000,
			PrometheusPort:    9090,
			OtelCollectorPort: 4317,
			OtelEndpoint:      "localhost:4317",
			PrometheusURL:     "http://localhost:9090",
		},
	}
}
