package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/immortalpath/realtime/internal/auth"
	"github.com/immortalpath/realtime/internal/recovery"
	"github.com/immortalpath/realtime/internal/transport"
)

// Health is the current connection health snapshot, updated by the periodic
// ping/pong probe and reset on reconnect.
type Health struct {
	Healthy             bool
	LatencyMs           int64
	LastPingAt          time.Time
	ConsecutiveFailures int
}

// Config holds connect and health-check settings.
type Config struct {
	HandshakeTimeout   time.Duration
	HealthInterval     time.Duration
	HealthTimeout      time.Duration
	UnhealthyThreshold int
	AuthMaxRetries     int
	AuthRetryDelay     time.Duration
}

// authPayload is the handshake body sent after the socket opens.
type authPayload struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
}

// Manager owns the single live transport handle: the connect/authenticate
// handshake, idempotent teardown, and the background health check. Whether an
// unhealthy connection is torn down is the orchestrator's decision, not ours.
type Manager struct {
	cfg       Config
	authSvc   *auth.Service
	newClient func() transport.Client
	logger    *slog.Logger

	// onUnhealthy fires when consecutive ping failures reach the threshold.
	onUnhealthy func(error)

	// onLatency fires with the round trip time of each successful probe.
	onLatency func(time.Duration)

	mu         sync.Mutex
	client     transport.Client
	health     Health
	healthStop chan struct{}
}

// NewManager creates a connection manager. newClient builds a fresh transport
// client per connect so a stale handle is never reused.
func NewManager(cfg Config, authSvc *auth.Service, newClient func() transport.Client, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.UnhealthyThreshold < 1 {
		cfg.UnhealthyThreshold = 3
	}

	return &Manager{
		cfg:       cfg,
		authSvc:   authSvc,
		newClient: newClient,
		logger:    logger,
	}
}

// OnUnhealthy registers a callback for the consecutive-failure threshold.
func (m *Manager) OnUnhealthy(fn func(error)) {
	m.mu.Lock()
	m.onUnhealthy = fn
	m.mu.Unlock()
}

// OnLatency registers a callback for successful probe round trips.
func (m *Manager) OnLatency(fn func(time.Duration)) {
	m.mu.Lock()
	m.onLatency = fn
	m.mu.Unlock()
}

// Connect opens the transport and performs the authenticate handshake. It
// returns only after the server acknowledges authentication or rejects it.
// Authentication rejections are retried with linear backoff using the stored
// refresh token before a terminal error is surfaced.
func (m *Manager) Connect(ctx context.Context, data auth.Data) (transport.Client, error) {
	// Only one live transport handle at a time.
	m.DestroyConnection()

	for attempt := 0; ; attempt++ {
		client, err := m.open(ctx, data)
		if err == nil {
			m.mu.Lock()
			m.client = client
			m.health = Health{Healthy: true}
			m.healthStop = make(chan struct{})
			stop := m.healthStop
			m.mu.Unlock()

			go m.healthLoop(client, stop)

			return client, nil
		}

		ce := recovery.Classify(err)
		if ce.Type != recovery.TypeAuthenticationFailed {
			return nil, err
		}
		if attempt >= m.cfg.AuthMaxRetries {
			return nil, recovery.New(recovery.TypeAuthenticationFailed, false,
				fmt.Errorf("authentication retries exhausted: %w", err))
		}

		// Linear backoff between auth retries.
		wait := time.Duration(attempt+1) * m.cfg.AuthRetryDelay
		m.logger.Warn("authentication rejected, retrying with refreshed token",
			"attempt", attempt+1,
			"wait", wait,
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}

		refreshed, rerr := m.authSvc.RefreshToken(ctx)
		if rerr != nil {
			return nil, recovery.New(recovery.TypeAuthenticationFailed, false,
				fmt.Errorf("token refresh after rejection: %w", rerr))
		}
		data = refreshed
	}
}

// open dials and authenticates one connection attempt.
func (m *Manager) open(ctx context.Context, data auth.Data) (transport.Client, error) {
	client := m.newClient()

	if err := client.Connect(ctx); err != nil {
		return nil, recovery.New(recovery.TypeConnectionFailed, true, err)
	}

	if err := m.handshake(ctx, client, data); err != nil {
		client.Close()
		return nil, err
	}

	return client, nil
}

// handshake sends the authenticate envelope and waits for the verdict.
// A handshake timeout is a connection failure, not an auth failure.
func (m *Manager) handshake(ctx context.Context, client transport.Client, data auth.Data) error {
	payload, err := json.Marshal(authPayload{Token: data.Token, UserID: data.UserID})
	if err != nil {
		return recovery.New(recovery.TypeInvalidData, false, err)
	}

	if err := client.Send(transport.Envelope{Event: transport.EventAuthenticate, Data: payload}); err != nil {
		return recovery.New(recovery.TypeConnectionFailed, true, err)
	}

	deadline := time.NewTimer(m.cfg.HandshakeTimeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return recovery.New(recovery.TypeConnectionFailed, true, ctx.Err())

		case <-deadline.C:
			return recovery.Newf(recovery.TypeConnectionFailed, true,
				"handshake timeout after %v", m.cfg.HandshakeTimeout)

		case err := <-client.Errors():
			return recovery.New(recovery.TypeConnectionFailed, true, err)

		case msg, ok := <-client.Messages():
			if !ok {
				return recovery.Newf(recovery.TypeConnectionFailed, true, "connection closed during handshake")
			}
			switch msg.Event {
			case transport.EventAuthenticated:
				m.logger.Info("handshake complete", "user_id", data.UserID)
				return nil
			case transport.EventAuthError:
				return recovery.Newf(recovery.TypeAuthenticationFailed, true,
					"server rejected authentication")
			default:
				// Pre-auth server chatter is ignored; the manager's read
				// pump takes over only after the handshake resolves.
				continue
			}
		}
	}
}

// DestroyConnection tears down the health check and the socket. Idempotent.
func (m *Manager) DestroyConnection() {
	m.mu.Lock()
	client := m.client
	stop := m.healthStop
	m.client = nil
	m.healthStop = nil
	m.health = Health{}
	m.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if client != nil {
		client.Close()
		m.logger.Debug("connection destroyed")
	}
}

// Health returns the current health snapshot.
func (m *Manager) Health() Health {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.health
}

// healthLoop pings on a fixed interval and expects a pong within the timeout.
// Timeouts mark the connection unhealthy without tearing it down.
func (m *Manager) healthLoop(client transport.Client, stop <-chan struct{}) {
	ticker := time.NewTicker(m.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.probe(client, stop)
		}
	}
}

func (m *Manager) probe(client transport.Client, stop <-chan struct{}) {
	pingAt := time.Now()
	if err := client.Ping(); err != nil {
		m.recordFailure(err)
		return
	}

	// Wait out the pong window; the pong handler updates LastPong.
	select {
	case <-stop:
		return
	case <-time.After(m.cfg.HealthTimeout):
	}

	lastPong := client.LastPong()
	if lastPong.Before(pingAt) {
		m.recordFailure(fmt.Errorf("no pong within %v", m.cfg.HealthTimeout))
		return
	}

	latency := lastPong.Sub(pingAt)

	m.mu.Lock()
	m.health = Health{
		Healthy:             true,
		LatencyMs:           latency.Milliseconds(),
		LastPingAt:          pingAt,
		ConsecutiveFailures: 0,
	}
	fn := m.onLatency
	m.mu.Unlock()

	if fn != nil {
		fn(latency)
	}
}

func (m *Manager) recordFailure(cause error) {
	m.mu.Lock()
	m.health.Healthy = false
	m.health.LastPingAt = time.Now()
	m.health.ConsecutiveFailures++
	failures := m.health.ConsecutiveFailures
	fn := m.onUnhealthy
	m.mu.Unlock()

	m.logger.Warn("health check failed",
		"consecutive_failures", failures,
		"error", cause,
	)

	if failures == m.cfg.UnhealthyThreshold && fn != nil {
		fn(recovery.New(recovery.TypeTimeout, true,
			fmt.Errorf("%d consecutive health checks failed: %w", failures, cause)))
	}
}
