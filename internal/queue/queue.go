package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/immortalpath/realtime/internal/recovery"
	"github.com/immortalpath/realtime/internal/store"
)

// stateKey is the store key for the persisted queue blob.
const stateKey = "queue/state"

// ErrHalt is returned (possibly wrapped) by a Sender when the link itself is
// gone. Drain stops immediately without penalizing the message.
var ErrHalt = errors.New("delivery halted")

// Priority governs drain order.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

// String returns the priority name.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Message is one queued outbound event.
type Message struct {
	ID         string          `json:"id"`
	Event      string          `json:"event"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	Attempts   int             `json:"attempts"`
	Priority   Priority        `json:"priority"`

	// NotBefore gates redelivery after a failed attempt.
	NotBefore time.Time `json:"not_before,omitempty"`
}

// Sender delivers one message. A nil return acknowledges delivery; an error
// wrapping ErrHalt stops the drain without counting against the message.
type Sender func(ctx context.Context, event string, payload json.RawMessage) error

// Config holds queue limits.
type Config struct {
	MaxSize    int
	MaxRetries int
	Retention  time.Duration
}

// Stats is a point-in-time snapshot of queue counters.
type Stats struct {
	Pending        int
	Failed         int
	TotalEnqueued  int64
	TotalDelivered int64
	TotalEvicted   int64
	TotalExpired   int64
}

// Queue is the durable, priority-ordered outbound buffer.
type Queue struct {
	cfg     Config
	backoff recovery.BackoffPolicy
	store   store.Store
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	pending  []Message
	failed   []Message
	draining bool

	totalEnqueued  int64
	totalDelivered int64
	totalEvicted   int64
	totalExpired   int64
}

// persisted is the on-disk shape of the queue blob.
type persisted struct {
	Pending []Message `json:"pending"`
	Failed  []Message `json:"failed"`
}

// New creates the queue and replays persisted state, discarding messages
// older than the retention window.
func New(st store.Store, cfg Config, backoff recovery.BackoffPolicy, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}

	q := &Queue{
		cfg:     cfg,
		backoff: backoff,
		store:   st,
		logger:  logger,
		now:     time.Now,
	}
	q.load()
	return q
}

// Enqueue appends a message and persists the queue. When the size cap is
// exceeded the oldest low-priority message is evicted first, falling back to
// the oldest overall.
func (q *Queue) Enqueue(event string, payload json.RawMessage, priority Priority) (string, error) {
	msg := Message{
		ID:         uuid.NewString(),
		Event:      event,
		Payload:    payload,
		EnqueuedAt: q.now(),
		Priority:   priority,
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.pending = append(q.pending, msg)
	q.sortLocked()
	q.totalEnqueued++

	if len(q.pending) > q.cfg.MaxSize {
		q.evictLocked()
	}

	if err := q.persistLocked(); err != nil {
		return "", err
	}

	q.logger.Debug("message enqueued",
		"id", msg.ID,
		"event", event,
		"priority", priority.String(),
		"depth", len(q.pending),
	)

	return msg.ID, nil
}

// Drain delivers pending messages in priority-then-FIFO order while connected
// returns true. Re-entrant calls while a drain is active are no-ops. Delivery
// halts immediately when connectivity is lost, leaving the remainder intact.
func (q *Queue) Drain(ctx context.Context, send Sender, connected func() bool) (int, error) {
	q.mu.Lock()
	if q.draining {
		q.mu.Unlock()
		return 0, nil
	}
	q.draining = true
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.draining = false
		q.mu.Unlock()
	}()

	delivered := 0
	// IDs that failed during this pass are skipped so order never regresses
	// within a single drain.
	deferred := make(map[string]struct{})

	for {
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}
		if !connected() {
			return delivered, nil
		}

		msg, ok := q.next(deferred)
		if !ok {
			return delivered, nil
		}

		err := send(ctx, msg.Event, msg.Payload)
		if err == nil {
			q.ack(msg.ID)
			delivered++
			continue
		}

		// The link is gone, not the message: leave the remainder
		// untouched for the next connected window.
		if errors.Is(err, ErrHalt) {
			q.logger.Debug("drain halted by sender", "delivered", delivered, "error", err)
			return delivered, nil
		}

		deferred[msg.ID] = struct{}{}
		q.nack(msg.ID, err)
	}
}

// next returns the first eligible pending message.
func (q *Queue) next(skip map[string]struct{}) (Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	for _, msg := range q.pending {
		if _, skipped := skip[msg.ID]; skipped {
			continue
		}
		if msg.NotBefore.After(now) {
			continue
		}
		return msg, true
	}
	return Message{}, false
}

// ack removes a delivered message. Once acknowledged the message can never be
// delivered again.
func (q *Queue) ack(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, msg := range q.pending {
		if msg.ID == id {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			q.totalDelivered++
			break
		}
	}
	if err := q.persistLocked(); err != nil {
		q.logger.Warn("failed to persist queue after ack", "id", id, "error", err)
	}
}

// nack increments attempts and either re-arms the message with backoff or
// moves it to the failed set once retries are exhausted.
func (q *Queue) nack(id string, cause error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.pending {
		if q.pending[i].ID != id {
			continue
		}

		q.pending[i].Attempts++
		if q.pending[i].Attempts >= q.cfg.MaxRetries {
			failed := q.pending[i]
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			q.failed = append(q.failed, failed)
			q.logger.Warn("message moved to failed set",
				"id", failed.ID,
				"event", failed.Event,
				"attempts", failed.Attempts,
				"error", cause,
			)
		} else {
			delay := q.backoff.Delay(q.pending[i].Attempts)
			q.pending[i].NotBefore = q.now().Add(delay)
			q.logger.Debug("message delivery failed, backing off",
				"id", id,
				"attempts", q.pending[i].Attempts,
				"delay", delay,
				"error", cause,
			)
		}
		break
	}
	if err := q.persistLocked(); err != nil {
		q.logger.Warn("failed to persist queue after nack", "id", id, "error", err)
	}
}

// Failed returns a copy of the failed set.
func (q *Queue) Failed() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Message, len(q.failed))
	copy(out, q.failed)
	return out
}

// Pending returns a copy of the pending messages in drain order.
func (q *Queue) Pending() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Message, len(q.pending))
	copy(out, q.pending)
	return out
}

// Len returns the number of pending messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Stats returns current counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	return Stats{
		Pending:        len(q.pending),
		Failed:         len(q.failed),
		TotalEnqueued:  q.totalEnqueued,
		TotalDelivered: q.totalDelivered,
		TotalEvicted:   q.totalEvicted,
		TotalExpired:   q.totalExpired,
	}
}

// sortLocked orders pending by (priority desc, enqueue time asc). The sort is
// stable so equal keys keep insertion order.
func (q *Queue) sortLocked() {
	sort.SliceStable(q.pending, func(i, j int) bool {
		if q.pending[i].Priority != q.pending[j].Priority {
			return q.pending[i].Priority > q.pending[j].Priority
		}
		return q.pending[i].EnqueuedAt.Before(q.pending[j].EnqueuedAt)
	})
}

// evictLocked drops the oldest low-priority message, or the oldest overall
// when no low-priority message exists.
func (q *Queue) evictLocked() {
	victim := -1
	for i, msg := range q.pending {
		if msg.Priority != PriorityLow {
			continue
		}
		if victim == -1 || msg.EnqueuedAt.Before(q.pending[victim].EnqueuedAt) {
			victim = i
		}
	}
	if victim == -1 {
		for i, msg := range q.pending {
			if victim == -1 || msg.EnqueuedAt.Before(q.pending[victim].EnqueuedAt) {
				victim = i
			}
		}
	}
	if victim == -1 {
		return
	}

	evicted := q.pending[victim]
	q.pending = append(q.pending[:victim], q.pending[victim+1:]...)
	q.totalEvicted++
	q.logger.Warn("queue full, evicted message",
		"id", evicted.ID,
		"event", evicted.Event,
		"priority", evicted.Priority.String(),
	)
}

// persistLocked writes the full queue state after every mutation.
func (q *Queue) persistLocked() error {
	blob, err := json.Marshal(persisted{Pending: q.pending, Failed: q.failed})
	if err != nil {
		return fmt.Errorf("encode queue state: %w", err)
	}
	if err := q.store.Put(stateKey, blob); err != nil {
		return fmt.Errorf("persist queue state: %w", err)
	}
	return nil
}

// load replays persisted state and discards messages past retention.
func (q *Queue) load() {
	blob, err := q.store.Get(stateKey)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		q.logger.Warn("failed to load persisted queue", "error", err)
		return
	}

	var state persisted
	if err := json.Unmarshal(blob, &state); err != nil {
		q.logger.Warn("discarding corrupt queue blob", "error", err)
		q.store.Delete(stateKey)
		return
	}

	cutoff := q.now().Add(-q.cfg.Retention)
	for _, msg := range state.Pending {
		if msg.EnqueuedAt.Before(cutoff) {
			q.totalExpired++
			continue
		}
		q.pending = append(q.pending, msg)
	}
	for _, msg := range state.Failed {
		if msg.EnqueuedAt.Before(cutoff) {
			q.totalExpired++
			continue
		}
		q.failed = append(q.failed, msg)
	}
	q.sortLocked()

	if q.totalExpired > 0 {
		if err := q.persistLocked(); err != nil {
			q.logger.Warn("failed to persist queue after expiry", "error", err)
		}
	}

	q.logger.Info("queue restored",
		"pending", len(q.pending),
		"failed", len(q.failed),
		"expired", q.totalExpired,
	)
}
