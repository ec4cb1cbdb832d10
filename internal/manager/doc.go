// Package manager implements the orchestrator that external collaborators
// talk to.
//
// The orchestrator:
//   - Drives the connection state machine
//   - Serializes connect attempts and owns the reconnection counter
//   - Executes the error handler's recovery strategies
//   - Drains the message queue on every connected window
//   - Re-arms reconnection when the network returns
package manager
