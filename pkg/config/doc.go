// Package config provides configuration management for the econdash
// performance layer.
//
// A single Config value carries every tunable: logging, cache lifetimes,
// payload codec and compression, shrinker thresholds, pagination, runtime
// memory tuning and metrics exports.
//
// # Usage
//
//	cfg := config.NewDefault()
//	if err := config.Load("econdash.yaml", cfg); err != nil {
//		log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//		log.Fatal(err)
//	}
//
// # Environment Variables
//
// YAML values may reference the environment with ${VAR} or
// ${VAR:-fallback}:
//
//	cache:
//	  store_path: ${ECONDASH_STORE:-/var/lib/econdash/payloads.db}
//	logging:
//	  level: ${LOG_LEVEL:-info}
//
// Durations use Go syntax ("30m", "2h").
package config
