package audit

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"
	"time"
)

// Config mirrors the engine's audit section.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull discards events when the buffer is full instead of blocking
	// the token operation that emitted them.
	DropIfFull bool
	// Now stamps events that arrive without a timestamp. Defaults to time.Now.
	Now func() time.Time
}

// redactedKeys are metadata keys that never reach a sink. Events describe
// tokens by jti and type only.
var redactedKeys = []string{"token", "access_token", "refresh_token", "one_time_token"}

// Dispatcher relays token lifecycle events to a sink from a single goroutine so
// that a slow sink never sits on the refresh or validate path.
type Dispatcher struct {
	cfg   Config
	sink  Sink
	queue chan Event
	stop  chan struct{}

	loop      sync.WaitGroup
	closing   atomic.Bool
	closeOnce sync.Once

	dropped    atomic.Uint64
	sinkPanics atomic.Uint64
	mu         sync.Mutex
	droppedBy  map[string]uint64
}

// NewDispatcher returns nil when auditing is disabled; a nil Dispatcher accepts
// and discards every call.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		cfg:       cfg,
		sink:      sink,
		queue:     make(chan Event, cfg.BufferSize),
		stop:      make(chan struct{}),
		droppedBy: make(map[string]uint64),
	}
	d.loop.Add(1)
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer d.loop.Done()
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		case <-d.stop:
			d.drain()
			return
		}
	}
}

// drain flushes whatever was queued before Close.
func (d *Dispatcher) drain() {
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ev Event) {
	defer func() {
		if recover() != nil {
			d.sinkPanics.Add(1)
		}
	}()
	d.sink.Emit(context.Background(), ev)
}

// Emit queues ev. With DropIfFull a full buffer drops the event; otherwise Emit
// waits for room until ctx is done, which also counts as a drop.
func (d *Dispatcher) Emit(ctx context.Context, ev Event) {
	if d == nil || d.closing.Load() {
		return
	}
	ev = d.prepare(ev)

	if d.cfg.DropIfFull {
		select {
		case d.queue <- ev:
		default:
			d.drop(ev.EventType)
		}
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.queue <- ev:
	case <-ctx.Done():
		d.drop(ev.EventType)
	case <-d.stop:
	}
}

func (d *Dispatcher) prepare(ev Event) Event {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = d.cfg.Now().UTC()
	}
	for _, key := range redactedKeys {
		if _, ok := ev.Metadata[key]; ok {
			clean := maps.Clone(ev.Metadata)
			for _, k := range redactedKeys {
				delete(clean, k)
			}
			ev.Metadata = clean
			break
		}
	}
	return ev
}

func (d *Dispatcher) drop(eventType string) {
	d.dropped.Add(1)
	d.mu.Lock()
	d.droppedBy[eventType]++
	d.mu.Unlock()
}

// Close stops accepting events, delivers the queued ones and waits for the
// relay goroutine. It is safe to call more than once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closing.Store(true)
		close(d.stop)
		d.loop.Wait()
	})
}

// Dropped returns the total number of events lost to backpressure.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// DroppedByType breaks Dropped down by event type.
func (d *Dispatcher) DroppedByType() map[string]uint64 {
	if d == nil {
		return map[string]uint64{}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return maps.Clone(d.droppedBy)
}

// SinkPanics counts events whose delivery panicked in the sink.
func (d *Dispatcher) SinkPanics() uint64 {
	if d == nil {
		return 0
	}
	return d.sinkPanics.Load()
}
