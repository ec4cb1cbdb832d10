package netmon

import (
	"context"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	gnet "github.com/shirou/gopsutil/net"
)

// TransportType identifies the device-level network transport.
type TransportType string

const (
	TransportWifi     TransportType = "wifi"
	TransportCellular TransportType = "cellular"
	TransportEthernet TransportType = "ethernet"
	TransportNone     TransportType = "none"
	TransportUnknown  TransportType = "unknown"
)

// Status is a read-only snapshot of device network reachability.
type Status struct {
	Connected         bool
	Transport         TransportType
	InternetReachable bool
}

// Monitor observes network reachability and publishes change snapshots.
type Monitor interface {
	// Start begins polling until ctx is cancelled.
	Start(ctx context.Context)

	// Status returns the latest snapshot.
	Status() Status

	// Changes returns a channel that receives a snapshot whenever the
	// status differs from the previous poll.
	Changes() <-chan Status
}

// Prober performs one reachability check.
type Prober interface {
	Probe(ctx context.Context) Status
}

// monitor implements Monitor by polling a Prober on a fixed interval.
type monitor struct {
	prober   Prober
	interval time.Duration
	logger   *slog.Logger

	mu      sync.RWMutex
	status  Status
	changes chan Status
}

// NewMonitor creates a network monitor. A nil prober selects the system prober.
func NewMonitor(prober Prober, interval time.Duration, logger *slog.Logger) Monitor {
	if prober == nil {
		prober = &SystemProber{}
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &monitor{
		prober:   prober,
		interval: interval,
		logger:   logger,
		status:   Status{Transport: TransportUnknown},
		changes:  make(chan Status, 8),
	}
}

// Start polls the prober until ctx is cancelled.
func (m *monitor) Start(ctx context.Context) {
	// Take an initial snapshot so Status() is meaningful immediately
	m.update(m.prober.Probe(ctx))

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.update(m.prober.Probe(ctx))
		}
	}
}

// Status returns the latest snapshot.
func (m *monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Changes returns the change notification channel.
func (m *monitor) Changes() <-chan Status {
	return m.changes
}

func (m *monitor) update(next Status) {
	m.mu.Lock()
	prev := m.status
	m.status = next
	m.mu.Unlock()

	if next == prev {
		return
	}

	m.logger.Info("network status changed",
		"connected", next.Connected,
		"transport", next.Transport,
		"reachable", next.InternetReachable,
	)

	select {
	case m.changes <- next:
	default:
		m.logger.Warn("network change buffer full, dropping event")
	}
}

// SystemProber inspects OS network interfaces and dials a well-known address
// to determine reachability.
type SystemProber struct {
	// ProbeAddr is the host:port dialed for the reachability check.
	// Defaults to a public DNS resolver.
	ProbeAddr string

	// DialTimeout bounds the reachability dial. Defaults to 3s.
	DialTimeout time.Duration
}

// Probe returns the current device network status.
func (p *SystemProber) Probe(ctx context.Context) Status {
	status := Status{Transport: TransportNone}

	ifaces, err := gnet.Interfaces()
	if err != nil {
		return Status{Transport: TransportUnknown}
	}

	for _, iface := range ifaces {
		if !hasFlag(iface.Flags, "up") || hasFlag(iface.Flags, "loopback") {
			continue
		}
		if len(iface.Addrs) == 0 {
			continue
		}
		status.Connected = true
		status.Transport = transportFromName(iface.Name)
		break
	}

	if status.Connected {
		status.InternetReachable = p.dialCheck(ctx)
	}

	return status
}

func (p *SystemProber) dialCheck(ctx context.Context) bool {
	addr := p.ProbeAddr
	if addr == "" {
		addr = "1.1.1.1:443"
	}
	timeout := p.DialTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}

func transportFromName(name string) TransportType {
	lower := strings.ToLower(name)
	switch {
	case strings.HasPrefix(lower, "wlan"), strings.HasPrefix(lower, "wl"), strings.Contains(lower, "wifi"):
		return TransportWifi
	case strings.HasPrefix(lower, "rmnet"), strings.HasPrefix(lower, "wwan"), strings.HasPrefix(lower, "pdp"):
		return TransportCellular
	case strings.HasPrefix(lower, "eth"), strings.HasPrefix(lower, "en"):
		return TransportEthernet
	default:
		return TransportUnknown
	}
}
