package manager

import "sync"

// TransportSelector picks the endpoint for each dial. The fallback strategy
// flips it to the alternate (long-polling style) endpoint; a successful
// explicit connect resets it.
type TransportSelector struct {
	mu       sync.Mutex
	primary  string
	fallback string
	active   bool
}

// NewTransportSelector creates a selector over the two configured endpoints.
func NewTransportSelector(primary, fallback string) *TransportSelector {
	return &TransportSelector{primary: primary, fallback: fallback}
}

// URL returns the endpoint to dial next.
func (s *TransportSelector) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active && s.fallback != "" {
		return s.fallback
	}
	return s.primary
}

// UseFallback switches subsequent dials to the fallback endpoint.
func (s *TransportSelector) UseFallback() {
	s.mu.Lock()
	s.active = true
	s.mu.Unlock()
}

// Reset switches back to the primary endpoint.
func (s *TransportSelector) Reset() {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()
}

// UsingFallback reports whether the fallback endpoint is active.
func (s *TransportSelector) UsingFallback() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}
