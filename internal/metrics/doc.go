// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Reconnection attempts and connection state
//   - Queue depth and message delivery outcomes
//   - Classified error counts by type
//   - Health-check ping latency
package metrics
