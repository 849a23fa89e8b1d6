// ABOUTME: Package telemetry turns queue and cache snapshots into metric records.
// ABOUTME: Records are clamped so malformed input never yields NaN or negatives.

// Package telemetry provides pure builders that flatten queue and cache
// snapshots into metric records, an Exporter that publishes those records as
// Prometheus gauges, and a Reporter that samples live components on an
// interval.
package telemetry
