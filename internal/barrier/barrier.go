// Package barrier collects route data from any number of producers until a
// single End event releases the build that is waiting on it.
package barrier

import (
	"context"
	"sync"

	"github.com/toastdotdev/toast/internal/errors"
	"github.com/toastdotdev/toast/internal/routes"
)

// EventKind distinguishes barrier events.
type EventKind int

const (
	// EventRegisterRouteData carries one route record.
	EventRegisterRouteData EventKind = iota
	// EventEnd terminates data sourcing.
	EventEnd
)

// String returns the string representation of the EventKind
func (k EventKind) String() string {
	switch k {
	case EventRegisterRouteData:
		return "register_route_data"
	case EventEnd:
		return "end"
	default:
		return "unknown"
	}
}

// Event is one message from a producer.
type Event struct {
	Kind   EventKind
	Record *routes.Record
}

// State is the consumer-side progress of a barrier.
type State int

const (
	StateAwaitingFirstEvent State = iota
	StateCollecting
	StateDrained
)

// String returns the string representation of the State
func (s State) String() string {
	switch s {
	case StateAwaitingFirstEvent:
		return "awaiting_first_event"
	case StateCollecting:
		return "collecting"
	case StateDrained:
		return "drained"
	default:
		return "unknown"
	}
}

var (
	// ErrClosed rejects events sent after End.
	ErrClosed = errors.NewProtocolError(errors.ErrCodeBarrierClosed, "route data sent after data sourcing ended")
	// ErrAlreadyDrained rejects a second consumer.
	ErrAlreadyDrained = errors.NewProtocolError(errors.ErrCodeBarrierDrained, "barrier has already been drained")
)

// Barrier is an unbounded multi-producer, single-consumer queue of events.
type Barrier struct {
	mu       sync.Mutex
	queue    []Event
	notify   chan struct{}
	ended    bool
	draining bool
	state    State
}

// New creates an empty barrier.
func New() *Barrier {
	return &Barrier{notify: make(chan struct{}, 1)}
}

// Register queues route data for the build. The record is copied.
func (b *Barrier) Register(rec *routes.Record) error {
	return b.Send(Event{Kind: EventRegisterRouteData, Record: rec})
}

// End marks the end of data sourcing.
func (b *Barrier) End() error {
	return b.Send(Event{Kind: EventEnd})
}

// Send queues ev without blocking.
func (b *Barrier) Send(ev Event) error {
	if ev.Kind == EventRegisterRouteData {
		if ev.Record == nil {
			return errors.NewProtocolError(errors.ErrCodeInvalidRouteData, "route data event without a record")
		}
		if err := ev.Record.Validate(); err != nil {
			return err
		}
		ev.Record = ev.Record.Clone()
	}

	b.mu.Lock()
	if b.ended {
		b.mu.Unlock()
		return ErrClosed
	}
	if ev.Kind == EventEnd {
		b.ended = true
	}
	b.queue = append(b.queue, ev)
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
	return nil
}

// Drain consumes events in arrival order until End and returns the
// normalized records. It blocks until End arrives or ctx is done; a barrier
// can be drained once.
func (b *Barrier) Drain(ctx context.Context) ([]*routes.Record, error) {
	b.mu.Lock()
	if b.draining {
		b.mu.Unlock()
		return nil, ErrAlreadyDrained
	}
	b.draining = true
	b.mu.Unlock()

	var records []*routes.Record
	for {
		b.mu.Lock()
		for len(b.queue) > 0 {
			ev := b.queue[0]
			b.queue[0] = Event{}
			b.queue = b.queue[1:]
			if b.state == StateAwaitingFirstEvent {
				b.state = StateCollecting
			}
			if ev.Kind == EventEnd {
				b.state = StateDrained
				b.queue = nil
				b.mu.Unlock()
				return records, nil
			}
			ev.Record.Normalize()
			records = append(records, ev.Record)
		}
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-b.notify:
		}
	}
}

// State reports consumer progress.
func (b *Barrier) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Pending returns the number of queued, unconsumed events.
func (b *Barrier) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Ended reports whether End has been sent.
func (b *Barrier) Ended() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ended
}
