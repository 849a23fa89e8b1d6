// Package config handles configuration loading for realtime-gateway.
//
// # Overview
//
// Configuration is loaded from YAML or TOML files with environment variable
// expansion. Files ending in .toml are parsed as TOML; anything else as YAML.
// Every field has a default, so an empty file yields a runnable gateway.
//
// # Configuration File
//
// Resolution order:
//
//  1. The --config flag
//  2. Path from REALTIME_GATEWAY_CONFIG environment variable
//  3. ./config.yaml (current directory)
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${GATEWAY_JWT_SECRET}"
//
// Unset variables expand to an empty string.
//
// # Environment Overrides
//
// Two variables override file values after parsing:
//
//   - ORCHESTRATOR_URL replaces orchestrator.url
//   - MEDIA_JOB_RETENTION replaces media.retention; it accepts a duration
//     ("90m") or a bare number of milliseconds ("5400000")
//
// # Durations
//
// Duration fields are written as Go duration strings ("250ms", "10m") and
// parsed after loading.
//
// # Example
//
//	server:
//	  http_addr: ":8080"
//	  grpc_addr: ":50051"
//	orchestrator:
//	  url: "http://localhost:8090/orchestrate"
//	  timeout: "8s"
//	  max_retries: 2
//	  retry_backoff: "250ms"
//	replay:
//	  backend: "sqlite"
//	  ttl: "10m"
//	database:
//	  path: "./data/gateway.db"
package config
