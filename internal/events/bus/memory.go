package bus

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/kandev/agentfleet/internal/common/logger"
)

// ErrBusClosed is returned by Publish and Subscribe after Close.
var ErrBusClosed = errors.New("event bus is closed")

// MemoryEventBus delivers events in-process using NATS subject semantics.
// It backs single-process deployments where no NATS URL is configured.
type MemoryEventBus struct {
	mu     sync.RWMutex
	subs   map[uint64]*memorySubscription
	nextID uint64
	closed bool
	logger *logger.Logger
}

type memorySubscription struct {
	id      uint64
	bus     *MemoryEventBus
	tokens  []string
	handler EventHandler
	active  atomic.Bool
}

func (s *memorySubscription) Unsubscribe() error {
	if !s.active.Swap(false) {
		return nil
	}
	s.bus.mu.Lock()
	delete(s.bus.subs, s.id)
	s.bus.mu.Unlock()
	return nil
}

func (s *memorySubscription) IsValid() bool { return s.active.Load() }

// NewMemoryEventBus creates a new in-memory event bus.
func NewMemoryEventBus(log *logger.Logger) *MemoryEventBus {
	return &MemoryEventBus{
		subs:   make(map[uint64]*memorySubscription),
		logger: log.WithComponent("event-bus"),
	}
}

// Publish hands event to every matching subscriber on its own goroutine.
func (b *MemoryEventBus) Publish(ctx context.Context, subject string, event *Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}

	tokens := strings.Split(subject, ".")
	delivered := 0
	for _, sub := range b.subs {
		if !sub.IsValid() || !subjectMatches(sub.tokens, tokens) {
			continue
		}
		delivered++
		go b.deliver(ctx, sub, subject, event)
	}

	b.logger.Debug("event published",
		zap.String("subject", subject),
		zap.String("event_type", event.Type),
		zap.Int("subscribers", delivered))
	return nil
}

func (b *MemoryEventBus) deliver(ctx context.Context, sub *memorySubscription, subject string, event *Event) {
	if err := sub.handler(ctx, event); err != nil {
		b.logger.Warn("event subscriber failed",
			zap.String("subject", subject),
			zap.String("event_id", event.ID),
			zap.Error(err))
	}
}

// Subscribe registers handler for subject, which may contain * and >.
func (b *MemoryEventBus) Subscribe(subject string, handler EventHandler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBusClosed
	}

	b.nextID++
	sub := &memorySubscription{
		id:      b.nextID,
		bus:     b,
		tokens:  strings.Split(subject, "."),
		handler: handler,
	}
	sub.active.Store(true)
	b.subs[sub.id] = sub
	return sub, nil
}

// Close deactivates every subscription. Handlers already running finish.
func (b *MemoryEventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, sub := range b.subs {
		sub.active.Store(false)
		delete(b.subs, id)
	}
}

func (b *MemoryEventBus) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.closed
}

// subjectMatches applies NATS wildcard rules: * matches exactly one token and
// a trailing > matches one or more tokens.
func subjectMatches(pattern, subject []string) bool {
	for i, tok := range pattern {
		if tok == ">" {
			return i == len(pattern)-1 && len(subject) > i
		}
		if i >= len(subject) {
			return false
		}
		if tok != "*" && tok != subject[i] {
			return false
		}
	}
	return len(pattern) == len(subject)
}
