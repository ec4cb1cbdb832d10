// Package connection implements the Connection Manager component.
//
// The Connection Manager:
//   - Owns the single live transport handle
//   - Performs the connect + authenticate handshake with a bounded timeout
//   - Retries rejected authentication with linear backoff via token refresh
//   - Runs the periodic ping/pong health check
//   - Tears down the socket and listeners idempotently
package connection
