// Package transport implements the raw socket client.
//
// The client:
//   - Dials the backend with a bounded handshake
//   - Encodes messages as {event, data} envelopes
//   - Serializes writes and answers server pings
//   - Surfaces read failures on a dedicated error channel
package transport
