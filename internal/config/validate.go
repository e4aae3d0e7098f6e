package config

import (
	"errors"
	"fmt"
	"math"
)

// Validate checks every field the harness design constrains and returns all
// violations joined together, rather than stopping at the first, so a user
// fixing a config sees the whole list in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateWorkload(&cfg.Workload)...)
	errs = append(errs, validateDatabase(cfg)...)
	errs = append(errs, validateDeployment(&cfg.Deployment)...)
	errs = append(errs, validateCoordinator(&cfg.Coordinator)...)

	return errors.Join(errs...)
}

func validateWorkload(w *Workload) []error {
	var errs []error

	if _, err := w.Mode(); err != nil {
		errs = append(errs, err)
	}

	if w.NumAccounts < 2 {
		errs = append(errs, fmt.Errorf(
			"workload.num_accounts: must be >= 2 (transfers require distinct source and destination), got %d",
			w.NumAccounts))
	}

	if w.TestDurationSecs < 1 {
		errs = append(errs, fmt.Errorf("workload.test_duration_secs: must be >= 1, got %d", w.TestDurationSecs))
	}

	if w.MinTransferAmount > w.MaxTransferAmount {
		errs = append(errs, fmt.Errorf(
			"workload.min_transfer_amount (%d) must be <= workload.max_transfer_amount (%d)",
			w.MinTransferAmount, w.MaxTransferAmount))
	}

	if math.IsNaN(w.ZipfianExponent) || math.IsInf(w.ZipfianExponent, 0) {
		errs = append(errs, errors.New("workload.zipfian_exponent: must be a finite number"))
	} else if w.ZipfianExponent < 0 {
		errs = append(errs, fmt.Errorf("workload.zipfian_exponent: must be >= 0, got %v", w.ZipfianExponent))
	}

	return errs
}

func validateDatabase(cfg *Config) []error {
	var errs []error

	switch cfg.Database.Type {
	case "postgresql":
		if cfg.Postgresql == nil {
			errs = append(errs, errors.New("database.type is \"postgresql\" but [postgresql] section is missing"))

			break
		}

		if cfg.Postgresql.ConnectionPoolSize < 1 {
			errs = append(errs, fmt.Errorf("postgresql.connection_pool_size: must be >= 1, got %d",
				cfg.Postgresql.ConnectionPoolSize))
		}

		switch cfg.Postgresql.IsolationLevel {
		case ReadCommitted, RepeatableRead, Serializable:
		default:
			errs = append(errs, fmt.Errorf(
				"postgresql.isolation_level: must be one of read_committed, repeatable_read, serializable; got %q",
				cfg.Postgresql.IsolationLevel))
		}
	case "tigerbeetle":
		if cfg.TigerBeetle == nil {
			errs = append(errs, errors.New("database.type is \"tigerbeetle\" but [tigerbeetle] section is missing"))

			break
		}

		if len(cfg.TigerBeetle.ClusterAddresses) == 0 {
			errs = append(errs, errors.New("tigerbeetle.cluster_addresses: must not be empty"))
		}
	default:
		errs = append(errs, fmt.Errorf("database.type: must be \"postgresql\" or \"tigerbeetle\", got %q", cfg.Database.Type))
	}

	return errs
}

func validateDeployment(d *Deployment) []error {
	var errs []error

	if d.Type == Cloud {
		if d.NumClientNodes == nil {
			errs = append(errs, errors.New("deployment.num_client_nodes: required when deployment.type is \"cloud\""))
		}

		if d.AWSRegion == nil {
			errs = append(errs, errors.New("deployment.aws_region: required when deployment.type is \"cloud\""))
		}
	}

	return errs
}

func validateCoordinator(c *Coordinator) []error {
	var errs []error

	if c.TestRuns < 1 {
		errs = append(errs, fmt.Errorf("coordinator.test_runs: must be >= 1, got %d", c.TestRuns))
	}

	if math.IsNaN(c.MaxVarianceThreshold) || math.IsInf(c.MaxVarianceThreshold, 0) {
		errs = append(errs, errors.New("coordinator.max_variance_threshold: must be a finite number"))
	}

	return errs
}
