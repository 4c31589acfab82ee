package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
)

// Dispatcher is the C5 Unified Event Dispatcher. It classifies each
// submitted event and fans it out to the configured sinks, guaranteeing
// strict FIFO order per chat_id and independence across chat_ids — one
// worker goroutine per chat_id, each draining its own buffered mailbox
// channel, matching spec.md §5's "goroutines + a per-session channel"
// realization of the per-session-serialized-task model.
type Dispatcher struct {
	persistence PersistenceSink
	observe     ObservabilitySink
	transport   TransportSink
	coordinator CoordinatorSink

	mu      sync.Mutex
	workers map[string]*chatWorker
}

const mailboxSize = 256

type chatWorker struct {
	inbox chan dispatchItem
	done  chan struct{}

	// seq is the chat_id's wire/persisted sequence counter. It is the single
	// seq authority for the chat: the Orchestrator draws every runtime
	// event's seq from here (see NextSeq), and so does any other component
	// that needs to emit onto the same chat_id (the Coordinator's input_ack/
	// input_timeout events, the Hub's inbound schema-validation errors) --
	// there is exactly one counter per chat_id, not one per caller.
	seq uint64
}

type dispatchItem struct {
	ctx      context.Context
	event    Event
	isUITool bool
}

// New builds a Dispatcher. Any nil sink is treated as absent; events
// classified to a missing sink are simply dropped on that leg (not an
// error — e.g. a headless test harness may omit ObservabilitySink).
func New(persistence PersistenceSink, observe ObservabilitySink, transport TransportSink, coordinator CoordinatorSink) *Dispatcher {
	return &Dispatcher{
		persistence: persistence,
		observe:     observe,
		transport:   transport,
		coordinator: coordinator,
		workers:     make(map[string]*chatWorker),
	}
}

// Dispatch submits one event for classification and fan-out. Returns
// immediately once the event is enqueued on its chat_id's mailbox; never
// blocks on downstream sink processing. isUITool tells Dispatch whether
// this event originated from a UI tool invocation (C3's registry is the
// source of truth the caller consults before calling Dispatch).
func (d *Dispatcher) Dispatch(ctx context.Context, event Event, isUITool bool) {
	w := d.workerFor(event.ChatID)
	select {
	case w.inbox <- dispatchItem{ctx: ctx, event: event, isUITool: isUITool}:
	case <-ctx.Done():
	}
}

// NextSeq returns the next sequence number for chatID, creating its worker
// (and seq counter) if this is the first event seen for that chat_id.
func (d *Dispatcher) NextSeq(chatID string) uint64 {
	w := d.workerFor(chatID)
	return atomic.AddUint64(&w.seq, 1)
}

func (d *Dispatcher) workerFor(chatID string) *chatWorker {
	d.mu.Lock()
	defer d.mu.Unlock()

	if w, ok := d.workers[chatID]; ok {
		return w
	}
	w := &chatWorker{
		inbox: make(chan dispatchItem, mailboxSize),
		done:  make(chan struct{}),
	}
	d.workers[chatID] = w
	go d.run(w)
	return w
}

func (d *Dispatcher) run(w *chatWorker) {
	defer close(w.done)
	for item := range w.inbox {
		d.route(item)
	}
}

func (d *Dispatcher) route(item dispatchItem) {
	class := Classify(item.isUITool, item.event.Type)
	switch class {
	case ClassRuntime:
		if d.persistence != nil {
			d.persistence.Persist(item.ctx, item.event)
		}
		if d.transport != nil {
			d.transport.Transport(item.ctx, item.event)
		}
	case ClassBusiness:
		if d.observe != nil {
			d.observe.Observe(item.ctx, item.event)
		}
	case ClassUITool:
		if d.transport != nil {
			d.transport.Transport(item.ctx, item.event)
		}
		if d.coordinator != nil {
			d.coordinator.RegisterPending(item.ctx, item.event)
		}
	}
}

// CloseChat stops and removes the worker for chatID once its mailbox has
// drained. Callers should invoke this when a session ends to avoid
// leaking one goroutine per ever-seen chat_id.
func (d *Dispatcher) CloseChat(chatID string) {
	d.mu.Lock()
	w, ok := d.workers[chatID]
	if ok {
		delete(d.workers, chatID)
	}
	d.mu.Unlock()

	if !ok {
		return
	}
	close(w.inbox)
	<-w.done
}
