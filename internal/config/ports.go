// Package config provides configuration management for the consensus engine.
// This file centralizes all port constants to avoid duplication and ensure consistency.
package config

// ============================================================================
// CENTRALIZED PORT CONFIGURATION
// ============================================================================
//
// Port Allocation Strategy:
//   8200-8299: Infrastructure services (Vault, etc.)
//   9100-9199: Prometheus metrics endpoints per service
//
// ============================================================================

// Infrastructure Service Ports
const (
	// VaultPort is the default port for HashiCorp Vault.
	VaultPort = 8200

	// PostgresPort is the default port for PostgreSQL.
	PostgresPort = 5432

	// RedisPort is the default port for Redis.
	RedisPort = 6379

	// NATSPort is the default port for NATS messaging.
	NATSPort = 4222
)

// Prometheus Metrics Ports, one per service binary.
const (
	// MetricsPortParsingService is the metrics port for the parsing service.
	MetricsPortParsingService = 9101

	// MetricsPortDetector is the metrics port for cmd/detector, the position
	// tracker daemon.
	MetricsPortDetector = 9102

	// MetricsPortBacktest is the metrics port for the backtest runner.
	MetricsPortBacktest = 9103
)

// Monitoring Service Ports
const (
	// PrometheusPort is the default port for Prometheus itself.
	PrometheusPort = 9090
)

// ServiceMetricsPorts maps service binary names to their metrics ports, for
// Prometheus scrape configuration and health checks.
var ServiceMetricsPorts = map[string]int{
	"parsing-service": MetricsPortParsingService,
	"detector":        MetricsPortDetector,
	"backtest":        MetricsPortBacktest,
}

// GetServiceMetricsPort returns the metrics port for a given service name.
// Returns 0 if the service is not found.
func GetServiceMetricsPort(serviceName string) int {
	if port, ok := ServiceMetricsPorts[serviceName]; ok {
		return port
	}
	return 0
}
