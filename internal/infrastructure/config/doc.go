// Package config handles loading and validating device server configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with DEVICESERVER_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Broker credentials and the JWT secret should be set via environment variables
//   - Broker certificate verification is on unless tls_insecure_skip_verify is set
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.MQTT.Broker.Host)
package config
