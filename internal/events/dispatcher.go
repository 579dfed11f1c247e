package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/community-services/internal/worker"
)

// Sink receives published events.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, event Event) error
}

// Dispatcher fans events out to registered sinks. Publish never reports
// sink failures to the caller.
type Dispatcher interface {
	Publish(ctx context.Context, event Event)
	Register(sink Sink)
}

type sinkSet struct {
	mu    sync.RWMutex
	sinks []Sink
}

func (s *sinkSet) Register(sink Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = append(s.sinks, sink)
}

func (s *sinkSet) snapshot() []Sink {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Sink(nil), s.sinks...)
}

// inMemoryDispatcher delivers synchronously on the publishing goroutine.
type inMemoryDispatcher struct {
	sinkSet
	logger *zap.Logger
}

// NewInMemoryDispatcher creates a synchronous dispatcher.
func NewInMemoryDispatcher(logger *zap.Logger) Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &inMemoryDispatcher{logger: logger}
}

func (d *inMemoryDispatcher) Publish(ctx context.Context, event Event) {
	for _, sink := range d.snapshot() {
		if err := sink.Deliver(ctx, event); err != nil {
			logDeliveryFailure(d.logger, sink, event, err)
		}
	}
}

// DropRecorder is notified when an event could not be queued.
type DropRecorder interface {
	RecordDroppedEvent(kind string)
}

// asyncDispatcher hands each sink delivery to a worker pool.
type asyncDispatcher struct {
	sinkSet
	pool    *worker.Pool
	timeout time.Duration
	logger  *zap.Logger
	drops   DropRecorder
}

// NewAsyncDispatcher delivers on pool. A full queue drops the delivery.
func NewAsyncDispatcher(pool *worker.Pool, timeout time.Duration, logger *zap.Logger, drops DropRecorder) Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &asyncDispatcher{pool: pool, timeout: timeout, logger: logger, drops: drops}
}

func (d *asyncDispatcher) Publish(_ context.Context, event Event) {
	for _, sink := range d.snapshot() {
		sink := sink
		_, err := d.pool.Submit(func(ctx context.Context) error {
			return sink.Deliver(ctx, event)
		}, worker.WithTimeout(d.timeout), worker.WithCompletion(func(err error) {
			if err != nil {
				logDeliveryFailure(d.logger, sink, event, err)
			}
		}))
		if err == nil {
			continue
		}
		if errors.Is(err, worker.ErrQueueFull) && d.drops != nil {
			d.drops.RecordDroppedEvent(string(event.Kind))
		}
		d.logger.Warn("notification dropped",
			zap.String("sink", sink.Name()),
			zap.String("event_id", event.ID),
			zap.String("ticket_id", event.TicketID),
			zap.String("kind", string(event.Kind)),
			zap.Error(err),
		)
	}
}

func logDeliveryFailure(logger *zap.Logger, sink Sink, event Event, err error) {
	logger.Warn("notification delivery failed",
		zap.String("sink", sink.Name()),
		zap.String("event_id", event.ID),
		zap.String("ticket_id", event.TicketID),
		zap.String("kind", string(event.Kind)),
		zap.Error(err),
	)
}

// MemorySink keeps delivered events in order.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

// NewMemorySink creates an empty recorder.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Name() string { return "memory" }

func (s *MemorySink) Deliver(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Events returns a copy of everything delivered so far.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// Kinds lists delivered event kinds in order.
func (s *MemorySink) Kinds() []Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]Kind, 0, len(s.events))
	for _, e := range s.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}
