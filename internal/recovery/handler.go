package recovery

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/immortalpath/realtime/internal/netmon"
)

// Strategy is the handler's verdict on how to respond to a failure.
type Strategy string

const (
	// StrategyImmediate retries right away.
	StrategyImmediate Strategy = "immediate"

	// StrategyDelayed retries after a backoff delay.
	StrategyDelayed Strategy = "delayed"

	// StrategyManual halts automatic recovery until the user re-triggers.
	StrategyManual Strategy = "manual"

	// StrategyFallback switches to the alternate transport configuration.
	StrategyFallback Strategy = "fallback"
)

// Decision is the outcome of classifying one failure.
type Decision struct {
	Strategy Strategy
	Delay    time.Duration
	Reason   string
}

// Context carries the connection situation at the time of a failure.
type Context struct {
	State           string
	Network         netmon.Status
	AttemptCount    int
	LastConnectedAt time.Time
}

// Report is one entry in the append-only error audit trail.
type Report struct {
	ID        string    `json:"id"`
	Type      ErrorType `json:"type"`
	Message   string    `json:"message"`
	Context   Context   `json:"context"`
	Strategy  Strategy  `json:"strategy"`
	Timestamp time.Time `json:"timestamp"`
	Resolved  bool      `json:"resolved"`
}

// HandlerConfig holds the thresholds consumed by the strategy table.
type HandlerConfig struct {
	MaxRetryAttempts int
	Backoff          BackoffPolicy
	ServerErrorDelay time.Duration
	ReportRetention  time.Duration
}

// Handler maps classified failures to recovery strategies and keeps the
// error report trail.
type Handler struct {
	cfg    HandlerConfig
	logger *slog.Logger
	now    func() time.Time

	mu          sync.Mutex
	reports     []Report
	occurrences map[ErrorType]int
}

// NewHandler creates an error handler.
func NewHandler(cfg HandlerConfig, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxRetryAttempts <= 0 {
		cfg.MaxRetryAttempts = 5
	}
	if cfg.ServerErrorDelay <= 0 {
		cfg.ServerErrorDelay = 5 * time.Second
	}
	if cfg.ReportRetention <= 0 {
		cfg.ReportRetention = 24 * time.Hour
	}

	return &Handler{
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
		occurrences: make(map[ErrorType]int),
	}
}

// Handle classifies err, records a report, and returns the recovery decision.
func (h *Handler) Handle(err error, ctx Context) Decision {
	ce := Classify(err)

	h.mu.Lock()
	h.occurrences[ce.Type]++
	seen := h.occurrences[ce.Type]
	h.mu.Unlock()

	decision := h.decide(ce, ctx, seen)

	h.record(ce, ctx, decision)

	h.logger.Warn("failure classified",
		"type", ce.Type,
		"retryable", ce.Retryable,
		"attempts", ctx.AttemptCount,
		"strategy", decision.Strategy,
		"reason", decision.Reason,
		"error", ce.Err,
	)

	return decision
}

// decide applies the strategy table in priority order.
func (h *Handler) decide(ce *ClassifiedError, ctx Context, seen int) Decision {
	// Retry cap wins over everything: no infinite loops.
	if ctx.AttemptCount >= h.cfg.MaxRetryAttempts {
		return Decision{Strategy: StrategyManual, Reason: "retry attempts exhausted"}
	}

	switch ce.Type {
	case TypeConnectionFailed:
		if !ctx.Network.Connected {
			return Decision{Strategy: StrategyManual, Reason: "no network, check your connection"}
		}
		if ctx.AttemptCount < 3 {
			return Decision{
				Strategy: StrategyDelayed,
				Delay:    h.cfg.Backoff.Delay(ctx.AttemptCount),
				Reason:   "connection failed, retrying with backoff",
			}
		}
		return Decision{Strategy: StrategyFallback, Reason: "repeated connection failures, switching transport"}

	case TypeAuthenticationFailed:
		if seen <= 1 {
			return Decision{Strategy: StrategyImmediate, Reason: "retrying token refresh"}
		}
		return Decision{Strategy: StrategyManual, Reason: "please log in again"}

	case TypeNetworkError:
		if !ctx.Network.Connected {
			return Decision{Strategy: StrategyManual, Reason: "waiting for network"}
		}
		return Decision{
			Strategy: StrategyDelayed,
			Delay:    h.cfg.Backoff.Delay(ctx.AttemptCount),
			Reason:   "transient network error",
		}

	case TypeTimeout:
		if ctx.AttemptCount < 2 {
			return Decision{Strategy: StrategyImmediate, Reason: "timeout, retrying now"}
		}
		return Decision{
			Strategy: StrategyDelayed,
			Delay:    h.cfg.Backoff.Delay(ctx.AttemptCount),
			Reason:   "repeated timeouts",
		}

	case TypeServerError:
		if ctx.AttemptCount < 2 {
			return Decision{Strategy: StrategyDelayed, Delay: h.cfg.ServerErrorDelay, Reason: "server error, fixed delay"}
		}
		return Decision{Strategy: StrategyManual, Reason: "server unavailable"}

	case TypeInvalidData:
		return Decision{Strategy: StrategyManual, Reason: "invalid data, not retryable"}

	default:
		return Decision{Strategy: StrategyManual, Reason: "unknown error"}
	}
}

// ClearErrorState marks open reports resolved and resets occurrence counters.
// Call only after a confirmed successful reconnection.
func (h *Handler) ClearErrorState() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.occurrences = make(map[ErrorType]int)
	for i := range h.reports {
		h.reports[i].Resolved = true
	}
}

// Reports returns a copy of the audit trail, pruned to the retention window.
func (h *Handler) Reports() []Report {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.pruneLocked()
	out := make([]Report, len(h.reports))
	copy(out, h.reports)
	return out
}

func (h *Handler) record(ce *ClassifiedError, ctx Context, d Decision) {
	report := Report{
		ID:        uuid.NewString(),
		Type:      ce.Type,
		Message:   ce.Error(),
		Context:   ctx,
		Strategy:  d.Strategy,
		Timestamp: h.now(),
	}

	h.mu.Lock()
	h.reports = append(h.reports, report)
	h.pruneLocked()
	h.mu.Unlock()
}

func (h *Handler) pruneLocked() {
	cutoff := h.now().Add(-h.cfg.ReportRetention)
	kept := h.reports[:0]
	for _, r := range h.reports {
		if r.Timestamp.After(cutoff) {
			kept = append(kept, r)
		}
	}
	h.reports = kept
}
