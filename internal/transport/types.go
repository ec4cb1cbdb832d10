package transport

import (
	"encoding/json"
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected  = errors.New("not connected")
	ErrAlreadyClosed = errors.New("already closed")
)

// Envelope is the wire frame: every message is an event name plus an opaque
// payload. Business payload shapes are owned by the game layers.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Message wraps a received envelope with a local receive timestamp.
type Message struct {
	Envelope
	ReceivedAt time.Time
}

// System event names used by the connect handshake.
const (
	EventAuthenticate  = "authenticate"
	EventAuthenticated = "authenticated"
	EventAuthError     = "auth_error"
)

// ClientConfig configures a socket client.
type ClientConfig struct {
	URL            string        // ws:// or wss:// endpoint
	ConnectTimeout time.Duration // Dial handshake deadline
	WriteTimeout   time.Duration // Write deadline for sends
	BufferSize     int           // Message channel buffer size
}
