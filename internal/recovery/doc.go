// Package recovery implements the Error Handler component.
//
// The Error Handler:
//   - Classifies failures into a fixed taxonomy with retryability
//   - Maps (type, attempt count, network status) to a recovery strategy
//   - Keeps an append-only error report trail with retention pruning
//   - Owns the shared backoff policy so retry behavior cannot diverge
package recovery
