// Package netmon implements the Network Monitor component.
//
// The Network Monitor:
//   - Polls OS-level network interfaces for an active non-loopback link
//   - Classifies the transport (wifi, cellular, ethernet)
//   - Verifies internet reachability with a bounded dial
//   - Publishes a change snapshot whenever the status flips
package netmon
