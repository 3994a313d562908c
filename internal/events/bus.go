package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// drainTimeout bounds how long Run keeps delivering queued events after
// its context is cancelled.
const drainTimeout = 5 * time.Second

// sinkTimeout bounds a single Sink.Handle call.
const sinkTimeout = 5 * time.Second

// Sink consumes events. Handle is called from the bus worker only, one
// event at a time.
type Sink interface {
	Name() string
	Handle(ctx context.Context, e Event) error
}

// Logger is the logging surface the bus needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Stats is a snapshot of bus counters.
//
// Delivered counts events at least one sink accepted. Failed counts
// individual sink errors, so one event can fail more than once.
type Stats struct {
	Published uint64 `json:"published"`
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
	Failed    uint64 `json:"failed"`
	Queued    int    `json:"queued"`
}

// Bus is a bounded, drop-on-full event queue with one delivery worker.
type Bus struct {
	queue  chan Event
	sinks  []Sink
	logger Logger

	// closed guards sends against the queue after Run returns.
	mu     sync.RWMutex
	closed bool

	published atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

// NewBus creates a bus with room for size queued events.
func NewBus(size int, sinks ...Sink) *Bus {
	if size <= 0 {
		size = 1
	}
	return &Bus{
		queue:  make(chan Event, size),
		sinks:  sinks,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the bus.
func (b *Bus) SetLogger(logger Logger) {
	b.logger = logger
}

// AddSink registers another sink. It must be called before Run.
func (b *Bus) AddSink(s Sink) {
	b.sinks = append(b.sinks, s)
}

// Publish enqueues e without blocking. A full queue drops the event.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.dropped.Add(1)
		return
	}

	select {
	case b.queue <- e:
		b.published.Add(1)
	default:
		b.dropped.Add(1)
		b.logger.Warn("event queue full, dropping event",
			"kind", string(e.Kind),
			"serial", e.Serial,
		)
	}
}

// Run delivers events until ctx is cancelled, then drains what is already
// queued for up to drainTimeout. It must be called exactly once.
func (b *Bus) Run(ctx context.Context) {
	for {
		select {
		case e := <-b.queue:
			b.deliver(ctx, e)
		case <-ctx.Done():
			b.drain()
			return
		}
	}
}

func (b *Bus) drain() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	for {
		select {
		case e := <-b.queue:
			b.deliver(ctx, e)
		default:
			return
		}
		if ctx.Err() != nil {
			b.dropped.Add(uint64(len(b.queue)))
			return
		}
	}
}

// deliver hands e to every sink in order. A failing sink is counted and
// logged but does not stop the others. The event only counts as delivered
// when at least one sink accepted it.
func (b *Bus) deliver(ctx context.Context, e Event) {
	accepted := false
	for _, s := range b.sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, sinkTimeout)
		err := s.Handle(sinkCtx, e)
		cancel()
		if err != nil {
			b.failed.Add(1)
			b.logger.Warn("event sink failed",
				"sink", s.Name(),
				"kind", string(e.Kind),
				"serial", e.Serial,
				"error", err,
			)
			continue
		}
		accepted = true
	}
	if accepted {
		b.delivered.Add(1)
	}
}

// Stats returns the current counters.
func (b *Bus) Stats() Stats {
	return Stats{
		Published: b.published.Load(),
		Delivered: b.delivered.Load(),
		Dropped:   b.dropped.Load(),
		Failed:    b.failed.Load(),
		Queued:    len(b.queue),
	}
}
