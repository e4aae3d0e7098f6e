package config

import "fmt"

func errRequiredField(field, mode string) error {
	return fmt.Errorf("config: %s mode requires %q to be set", mode, field)
}

func errInvalidTestMode(mode string) error {
	return fmt.Errorf("config: workload.test_mode must be \"max_throughput\" or \"fixed_rate\", got %q", mode)
}
