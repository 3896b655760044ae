// Package config handles loading and validating climate service configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Loading a local .env file for development secrets
//   - Overriding with CLIMATE_* environment variables
//   - Validation of required fields
//
// Security Considerations:
//   - Sensitive values (broker passwords, tokens, JWT secret) should be set via
//     environment variables rather than committed YAML
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Ingest.TopicPattern)
package config
