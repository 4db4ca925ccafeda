package gapfill

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// EventKind classifies a notification.
type EventKind string

const (
	EventProgress EventKind = "progress"
	EventInfo     EventKind = "info"
	EventWarning  EventKind = "warning"
)

// Event is one progress or status notification emitted during a run.
type Event struct {
	Kind     EventKind `json:"kind"`
	Station  string    `json:"station,omitempty"`
	Progress float64   `json:"progress,omitempty"`
	Message  string    `json:"message,omitempty"`
	Time     time.Time `json:"time"`
}

// Notifier receives run events. Implementations must return quickly; the engine
// does not wait on them.
type Notifier interface {
	Notify(Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Event)

func (f NotifierFunc) Notify(ev Event) { f(ev) }

type nopNotifier struct{}

func (nopNotifier) Notify(Event) {}

// MultiNotifier fans one event out to several notifiers in order.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ev Event) {
	for _, n := range m {
		n.Notify(ev)
	}
}

// Dispatcher delivers events to a handler on its own goroutine, in the order they
// were queued. Notify never blocks on the handler. A panicking handler is logged
// and the dispatcher keeps going.
type Dispatcher struct {
	handler Notifier
	logger  *zap.SugaredLogger

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Event
	closed bool
	done   chan struct{}
}

// NewDispatcher starts a dispatcher that forwards events to handler.
func NewDispatcher(handler Notifier, logger *zap.SugaredLogger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	d := &Dispatcher{
		handler: handler,
		logger:  logger,
		done:    make(chan struct{}),
	}
	d.cond = sync.NewCond(&d.mu)
	go d.loop()
	return d
}

// Notify queues an event. Events queued after Close are dropped.
func (d *Dispatcher) Notify(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.queue = append(d.queue, ev)
	d.cond.Signal()
}

// Close delivers every queued event and stops the dispatcher goroutine.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		d.cond.Signal()
	}
	d.mu.Unlock()
	<-d.done
}

func (d *Dispatcher) loop() {
	defer close(d.done)
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.queue) == 0 && d.closed {
			d.mu.Unlock()
			return
		}
		batch := d.queue
		d.queue = nil
		d.mu.Unlock()

		for _, ev := range batch {
			d.deliver(ev)
		}
	}
}

func (d *Dispatcher) deliver(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Errorf("event handler panicked on %s event: %v", ev.Kind, r)
		}
	}()
	d.handler.Notify(ev)
}

// LogNotifier writes events to a zap logger. Progress events are logged at debug level.
type LogNotifier struct {
	Logger *zap.SugaredLogger
}

func (l LogNotifier) Notify(ev Event) {
	switch ev.Kind {
	case EventProgress:
		l.Logger.Debugw("gap-fill progress", "station", ev.Station, "percent", fmt.Sprintf("%.0f", ev.Progress))
	case EventWarning:
		l.Logger.Warnw(ev.Message, "station", ev.Station)
	default:
		l.Logger.Infow(ev.Message, "station", ev.Station)
	}
}
