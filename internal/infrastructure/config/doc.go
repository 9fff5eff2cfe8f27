// Package config handles loading and validating Gray Logic Hub configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (GRAYHUB_*)
//   - Validation of required fields
//   - Default value handling
//
// Sensitive values (broker passwords, InfluxDB tokens, Redis passwords)
// should be supplied through environment variables rather than the file.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Drivers.CallTimeout)
package config
