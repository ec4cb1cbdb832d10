// Package queue implements the Message Queue component.
//
// The queue:
//   - Buffers outbound events while the client is offline
//   - Drains in priority order, FIFO within a tier
//   - Retries with exponential backoff and jitter per message
//   - Moves exhausted messages to a failed set, never auto-retried
//   - Persists the full state after every mutation and replays on startup
package queue
