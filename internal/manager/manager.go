package manager

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/immortalpath/realtime/internal/auth"
	"github.com/immortalpath/realtime/internal/config"
	"github.com/immortalpath/realtime/internal/connection"
	"github.com/immortalpath/realtime/internal/metrics"
	"github.com/immortalpath/realtime/internal/netmon"
	"github.com/immortalpath/realtime/internal/pubsub"
	"github.com/immortalpath/realtime/internal/queue"
	"github.com/immortalpath/realtime/internal/recovery"
	"github.com/immortalpath/realtime/internal/scheduler"
	"github.com/immortalpath/realtime/internal/transport"
)

// Errors
var (
	ErrConnectInFlight  = errors.New("connect already in flight")
	ErrAlreadyConnected = errors.New("already connected")
)

// Scheduler timer names owned by the orchestrator.
const (
	reconnectTimer = "manager.reconnect"
	redrainTimer   = "manager.redrain"
)

// ErrorNotice is the payload published on TopicError and TopicAuthFailed.
// Only manual-strategy outcomes carry a user-actionable message.
type ErrorNotice struct {
	Type     recovery.ErrorType
	Strategy recovery.Strategy
	Message  string
}

// Manager is the orchestrator external collaborators talk to.
type Manager interface {
	// Start begins background network watching until ctx is cancelled.
	Start(ctx context.Context)

	// Connect authenticates and opens the connection. With nil credentials
	// the stored token is reused.
	Connect(ctx context.Context, creds *auth.Credentials) error

	// Disconnect tears everything down and cancels all pending timers.
	Disconnect()

	// Reconnect explicitly re-triggers connection after a manual halt.
	Reconnect(ctx context.Context) error

	// Emit sends an event now if connected, otherwise enqueues it.
	Emit(event string, payload json.RawMessage) error

	// EmitWithPriority is Emit with an explicit queue priority.
	EmitWithPriority(event string, payload json.RawMessage, priority queue.Priority) error

	// On subscribes to a lifecycle topic or passthrough domain event.
	On(topic string, handler pubsub.Handler) int

	// Off removes a subscription. Idempotent.
	Off(topic string, id int)

	// State returns the current connection state.
	State() State

	// Health returns the current connection health snapshot.
	Health() connection.Health

	// Stats returns orchestrator statistics.
	Stats() Stats
}

// Stats provides orchestrator statistics.
type Stats struct {
	State           State
	ReconnectCount  int
	QueueDepth      int
	FailedMessages  int
	LastConnectedAt time.Time
}

// manager implements the Manager interface.
type manager struct {
	cfg      *config.ClientConfig
	authSvc  *auth.Service
	conns    *connection.Manager
	queue    *queue.Queue
	handler  *recovery.Handler
	monitor  netmon.Monitor
	bus      *pubsub.Bus
	sched    *scheduler.Scheduler
	selector *TransportSelector
	met      *metrics.Metrics // optional, may be nil
	logger   *slog.Logger

	mu              sync.Mutex
	state           State
	client          transport.Client
	attempts        int // single owner of the reconnection attempt counter
	lastConnectedAt time.Time
	everConnected   bool
	connecting      bool
	halted          bool
	connectCancel   context.CancelFunc
	pumpStop        chan struct{}
}

// Deps wires the orchestrator's collaborators. All services are explicit
// instances; nothing is a package-level singleton.
type Deps struct {
	Config   *config.ClientConfig
	Auth     *auth.Service
	Conns    *connection.Manager
	Queue    *queue.Queue
	Handler  *recovery.Handler
	Monitor  netmon.Monitor
	Bus      *pubsub.Bus
	Sched    *scheduler.Scheduler
	Selector *TransportSelector
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// New creates the orchestrator.
func New(d Deps) Manager {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	selector := d.Selector
	if selector == nil {
		selector = NewTransportSelector(d.Config.Transport.URL, d.Config.Transport.FallbackURL)
	}

	m := &manager{
		cfg:      d.Config,
		authSvc:  d.Auth,
		conns:    d.Conns,
		queue:    d.Queue,
		handler:  d.Handler,
		monitor:  d.Monitor,
		bus:      d.Bus,
		sched:    d.Sched,
		selector: selector,
		met:      d.Metrics,
		logger:   logger,
		state:    StateDisconnected,
	}

	m.conns.OnUnhealthy(m.onFailure)
	m.conns.OnLatency(func(rtt time.Duration) {
		if m.met != nil {
			m.met.PingLatency.Observe(rtt.Seconds())
		}
	})
	m.authSvc.OnRefreshError(m.onFailure)

	return m
}

// Start watches network changes until ctx is cancelled.
func (m *manager) Start(ctx context.Context) {
	go m.monitor.Start(ctx)
	go m.watchNetwork(ctx)
}

// Connect authenticates and opens the connection.
func (m *manager) Connect(ctx context.Context, creds *auth.Credentials) error {
	m.mu.Lock()
	if m.connecting {
		m.mu.Unlock()
		return ErrConnectInFlight
	}
	if m.state == StateConnected {
		m.mu.Unlock()
		return ErrAlreadyConnected
	}
	// Explicit user action lifts a manual halt and starts a fresh retry
	// budget on the primary transport.
	m.halted = false
	m.attempts = 0
	m.mu.Unlock()

	m.selector.Reset()

	return m.connect(ctx, creds)
}

// Reconnect explicitly re-triggers connection using stored authentication.
func (m *manager) Reconnect(ctx context.Context) error {
	return m.Connect(ctx, nil)
}

// connect runs one serialized connect sequence.
func (m *manager) connect(ctx context.Context, creds *auth.Credentials) error {
	m.mu.Lock()
	if m.connecting {
		m.mu.Unlock()
		return ErrConnectInFlight
	}
	m.connecting = true
	cctx, cancel := context.WithCancel(ctx)
	m.connectCancel = cancel
	m.mu.Unlock()

	finish := func() {
		m.mu.Lock()
		m.connecting = false
		m.connectCancel = nil
		m.mu.Unlock()
		cancel()
	}

	m.setState(StateConnecting)

	data, err := m.authSvc.Authenticate(cctx, creds)
	if err != nil {
		finish()
		m.routeFailure(err)
		return err
	}

	client, err := m.conns.Connect(cctx, data)
	if err != nil {
		finish()
		m.routeFailure(err)
		return err
	}
	finish()

	m.mu.Lock()
	prevStop := m.pumpStop
	m.client = client
	m.attempts = 0
	m.lastConnectedAt = time.Now()
	reconnected := m.everConnected
	m.everConnected = true
	m.pumpStop = make(chan struct{})
	stop := m.pumpStop
	m.mu.Unlock()

	// A reconnect that did not originate in the pump (failed health check,
	// background refresh failure) leaves the previous pump running; stop it
	// before the new one takes over.
	if prevStop != nil {
		close(prevStop)
	}

	// Attempt counters reset only here, on a confirmed connection.
	m.handler.ClearErrorState()

	m.setState(StateConnected)

	go m.pump(client, stop)

	if reconnected {
		m.bus.Publish(TopicReconnected, nil)
	}
	m.bus.Publish(TopicConnected, nil)

	m.logger.Info("connected", "reconnected", reconnected)

	go m.drainQueue()

	return nil
}

// Disconnect cancels every pending timer, rejects any in-flight connect, and
// tears down the connection.
func (m *manager) Disconnect() {
	m.mu.Lock()
	m.halted = true
	cancel := m.connectCancel
	m.connectCancel = nil
	stop := m.pumpStop
	m.pumpStop = nil
	m.client = nil
	m.mu.Unlock()

	m.sched.CancelAll()
	if cancel != nil {
		cancel()
	}
	if stop != nil {
		close(stop)
	}
	m.conns.DestroyConnection()

	m.setState(StateDisconnected)
	m.bus.Publish(TopicDisconnected, nil)

	m.logger.Info("disconnected")
}

// Emit sends an event now if connected, otherwise enqueues it at normal
// priority.
func (m *manager) Emit(event string, payload json.RawMessage) error {
	return m.EmitWithPriority(event, payload, queue.PriorityNormal)
}

// EmitWithPriority sends or enqueues an event.
func (m *manager) EmitWithPriority(event string, payload json.RawMessage, priority queue.Priority) error {
	m.mu.Lock()
	client := m.client
	connected := m.state == StateConnected
	m.mu.Unlock()

	if connected && client != nil {
		err := client.Send(transport.Envelope{Event: event, Data: payload})
		if err == nil {
			if m.met != nil {
				m.met.MessagesSent.Inc()
			}
			return nil
		}
		m.logger.Warn("send failed, enqueueing", "event", event, "error", err)
	}

	if _, err := m.queue.Enqueue(event, payload, priority); err != nil {
		return err
	}
	if m.met != nil {
		m.met.MessagesEnqueued.Inc()
		m.met.QueueDepth.Set(float64(m.queue.Len()))
	}
	return nil
}

// On subscribes to a topic.
func (m *manager) On(topic string, handler pubsub.Handler) int {
	return m.bus.Subscribe(topic, handler)
}

// Off removes a subscription.
func (m *manager) Off(topic string, id int) {
	m.bus.Unsubscribe(topic, id)
}

// State returns the current connection state.
func (m *manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Health returns the current connection health snapshot.
func (m *manager) Health() connection.Health {
	return m.conns.Health()
}

// Stats returns orchestrator statistics.
func (m *manager) Stats() Stats {
	qs := m.queue.Stats()

	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		State:           m.state,
		ReconnectCount:  m.attempts,
		QueueDepth:      qs.Pending,
		FailedMessages:  qs.Failed,
		LastConnectedAt: m.lastConnectedAt,
	}
}

// pump forwards transport events to the bus and routes transport errors.
func (m *manager) pump(client transport.Client, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return

		case err := <-client.Errors():
			m.mu.Lock()
			halted := m.halted
			current := m.client == client
			if current {
				m.client = nil
			}
			m.mu.Unlock()

			// A late error from a replaced client must not tear down
			// the connection that superseded it.
			if !current {
				return
			}

			m.conns.DestroyConnection()
			if halted {
				return
			}
			m.onFailure(recovery.New(recovery.TypeNetworkError, true, err))
			return

		case msg, ok := <-client.Messages():
			if !ok {
				return
			}
			m.bus.Publish(msg.Event, msg)
		}
	}
}

// onFailure is the entry point for asynchronous failures (transport errors,
// failed health checks, background refresh failures).
func (m *manager) onFailure(err error) {
	m.mu.Lock()
	if m.halted || m.connecting {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.routeFailure(err)
}

// routeFailure asks the error handler for a verdict and executes it.
func (m *manager) routeFailure(err error) {
	ce := recovery.Classify(err)

	m.mu.Lock()
	if m.halted {
		m.mu.Unlock()
		return
	}
	ctx := recovery.Context{
		State:           m.state.String(),
		Network:         m.monitor.Status(),
		AttemptCount:    m.attempts,
		LastConnectedAt: m.lastConnectedAt,
	}
	m.mu.Unlock()

	decision := m.handler.Handle(ce, ctx)

	if m.met != nil {
		m.met.Errors.WithLabelValues(string(ce.Type)).Inc()
	}

	switch decision.Strategy {
	case recovery.StrategyImmediate:
		m.scheduleReconnect(0)

	case recovery.StrategyDelayed:
		m.scheduleReconnect(decision.Delay)

	case recovery.StrategyFallback:
		m.selector.UseFallback()
		m.logger.Info("switching to fallback transport", "url", m.selector.URL())
		m.scheduleReconnect(m.cfg.Retry.BaseDelay)

	case recovery.StrategyManual:
		m.halt(ce, decision)
	}
}

// scheduleReconnect arms the single reconnection timer.
func (m *manager) scheduleReconnect(delay time.Duration) {
	m.setState(StateReconnecting)

	m.sched.Schedule(reconnectTimer, delay, func() {
		m.mu.Lock()
		if m.halted || m.connecting {
			m.mu.Unlock()
			return
		}
		m.attempts++
		attempt := m.attempts
		m.mu.Unlock()

		if m.met != nil {
			m.met.Reconnects.Inc()
		}
		m.logger.Info("reconnection attempt", "attempt", attempt)

		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.Transport.ConnectTimeout+m.cfg.Transport.HandshakeTimeout)
		defer cancel()

		// Reuse stored authentication on automatic retries.
		m.connect(ctx, nil)
	})
}

// halt stops automatic recovery and surfaces an actionable notification.
func (m *manager) halt(ce *recovery.ClassifiedError, decision recovery.Decision) {
	m.mu.Lock()
	m.halted = true
	m.mu.Unlock()

	m.sched.Cancel(reconnectTimer)
	m.setState(StateError)

	notice := ErrorNotice{
		Type:     ce.Type,
		Strategy: decision.Strategy,
		Message:  decision.Reason,
	}
	if ce.Type == recovery.TypeAuthenticationFailed {
		m.bus.Publish(TopicAuthFailed, notice)
	}
	m.bus.Publish(TopicError, notice)

	m.logger.Error("automatic recovery halted",
		"type", ce.Type,
		"reason", decision.Reason,
	)
}

// drainQueue delivers buffered messages while the connection holds.
func (m *manager) drainQueue() {
	sender := func(ctx context.Context, event string, payload json.RawMessage) error {
		m.mu.Lock()
		client := m.client
		m.mu.Unlock()
		if client == nil {
			return queue.ErrHalt
		}
		if err := client.Send(transport.Envelope{Event: event, Data: payload}); err != nil {
			// A write failure means the link is dead, not that this
			// message is bad.
			return errors.Join(queue.ErrHalt, err)
		}
		return nil
	}
	connected := func() bool {
		return m.State() == StateConnected
	}

	failedBefore := m.queue.Stats().Failed

	delivered, err := m.queue.Drain(context.Background(), sender, connected)
	if err != nil {
		m.logger.Warn("queue drain interrupted", "delivered", delivered, "error", err)
	} else if delivered > 0 {
		m.logger.Info("queue drained", "delivered", delivered)
	}

	if m.met != nil {
		qs := m.queue.Stats()
		m.met.QueueDepth.Set(float64(qs.Pending))
		for i := 0; i < delivered; i++ {
			m.met.MessagesSent.Inc()
		}
		for i := failedBefore; i < qs.Failed; i++ {
			m.met.MessagesFailed.Inc()
		}
	}

	// Messages parked on a backoff window get another pass.
	if m.queue.Len() > 0 && connected() {
		m.sched.Schedule(redrainTimer, m.cfg.Retry.BaseDelay, m.drainQueue)
	}
}

// watchNetwork re-arms reconnection when connectivity returns.
func (m *manager) watchNetwork(ctx context.Context) {
	changes := m.monitor.Changes()
	for {
		select {
		case <-ctx.Done():
			return
		case status, ok := <-changes:
			if !ok {
				return
			}
			if !status.Connected {
				continue
			}

			m.mu.Lock()
			state := m.state
			halted := m.halted
			connecting := m.connecting
			m.mu.Unlock()

			if state == StateConnected || halted || connecting {
				continue
			}

			m.logger.Info("network restored, re-arming reconnection")
			m.scheduleReconnect(0)
		}
	}
}

// setState transitions the state machine and publishes the change.
func (m *manager) setState(next State) {
	m.mu.Lock()
	prev := m.state
	if prev == next {
		m.mu.Unlock()
		return
	}
	m.state = next
	m.mu.Unlock()

	if m.met != nil {
		m.met.ConnectionState.Set(float64(next))
	}

	m.bus.Publish(TopicStateChanged, StateChange{From: prev, To: next})

	m.logger.Debug("state changed", "from", prev.String(), "to", next.String())
}
