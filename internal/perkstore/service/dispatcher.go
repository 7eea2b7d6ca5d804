package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type auditEvent struct {
	name    string
	payload map[string]interface{}
}

// Dispatcher forwards emitted events to the audit sink from a background
// goroutine, so checkout never blocks on the sink. Events are dropped (and
// logged) when the buffer is full or the sink is down; there is no delivery
// guarantee by design of the notification contract.
type Dispatcher struct {
	client *AuditClient
	log    *zap.Logger
	events chan auditEvent
	stopCh chan struct{}
	wg     sync.WaitGroup
}

var _ Notifier = (*Dispatcher)(nil)

// NewDispatcher creates a new event dispatcher
func NewDispatcher(client *AuditClient, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		client: client,
		log:    log,
		events: make(chan auditEvent, 64),
		stopCh: make(chan struct{}),
	}
}

// Start starts the dispatch loop
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.dispatchLoop()
	}()
}

// Stop stops the dispatch loop; queued events are dropped.
func (d *Dispatcher) Stop() {
	close(d.stopCh)
	d.wg.Wait()
}

// Emit queues an event without blocking the caller.
func (d *Dispatcher) Emit(event string, payload map[string]interface{}) {
	select {
	case d.events <- auditEvent{name: event, payload: payload}:
	default:
		d.log.Warn("audit event dropped, buffer full", zap.String("event", event))
	}
}

func (d *Dispatcher) dispatchLoop() {
	for {
		select {
		case ev := <-d.events:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := d.client.Send(ctx, ev.name, ev.payload); err != nil {
				d.log.Warn("audit event delivery failed",
					zap.String("event", ev.name),
					zap.Error(err),
				)
			}
			cancel()
		case <-d.stopCh:
			return
		}
	}
}
