// Package store provides the durable key-value blob persistence primitive
// backing the auth token and the message queue.
package store
