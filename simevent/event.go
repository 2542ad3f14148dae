// Package simevent implements the discrete-event scheduler that drives the
// simulated-time clock shared by every other component of the SSD simulator.
package simevent

import (
	"container/heap"
	"fmt"

	"github.com/ColtonHarris999/FTL-SIM/simlog"
)

// Kind identifies the handler that should process an Event's payload.
// Each Kind is dispatched by exactly one registered Handler.
type Kind int

const (
	// KindRequestArrival fires when a trace request becomes eligible to
	// enter the frontend's command queue. Payload: *request.Request
	// (passed as any to avoid an import cycle with the request package).
	KindRequestArrival Kind = iota
	// KindCacheReadComplete fires when a cache-hit read has finished
	// transferring data. Payload: *request.Request.
	KindCacheReadComplete
	// KindCacheWriteComplete fires when a write has finished landing in
	// the write-back cache. Payload: *request.Request.
	KindCacheWriteComplete
	// KindCacheFlushStart fires when a coalesced page's writeback delay
	// has elapsed and it should be issued to NAND. Payload: the write
	// cache's own flush record, pairing the page with this event.
	KindCacheFlushStart
	// KindCacheWritebackComplete fires once the NAND transaction(s) for a
	// page flush have completed. Payload: *nand.Transaction.
	KindCacheWritebackComplete
	// KindNANDReadDelayDone fires when a NAND page read's intrinsic
	// read_us latency has elapsed, before the DMA transfer starts.
	// Payload: *nand.Transaction.
	KindNANDReadDelayDone
	// KindNANDProgramDelayDone fires when a NAND page program's
	// program_us latency has elapsed, after the DMA transfer lands.
	// Payload: *nand.Transaction.
	KindNANDProgramDelayDone
	// KindDMAComplete fires when a channel DMA transfer finishes.
	// Payload: *nand.Transaction.
	KindDMAComplete
	// KindRequestComplete fires when a host request should be reported
	// completed. Payload: *request.Request.
	KindRequestComplete
	// KindSchedulerDispatch fires once a NAND scheduler's dispatch
	// decision latency (DispatchOverhead) has elapsed, at which point
	// the scheduler re-evaluates its queue and issues whatever is still
	// eligible. Payload: a func() supplied by the scheduler itself.
	KindSchedulerDispatch
)

func (k Kind) String() string {
	switch k {
	case KindRequestArrival:
		return "REQUEST_ARRIVAL"
	case KindCacheReadComplete:
		return "CACHE_READ_COMPLETE"
	case KindCacheWriteComplete:
		return "CACHE_WRITE_COMPLETE"
	case KindCacheFlushStart:
		return "CACHE_FLUSH_START"
	case KindCacheWritebackComplete:
		return "CACHE_WRITEBACK_COMPLETE"
	case KindNANDReadDelayDone:
		return "NAND_READ_DELAY_DONE"
	case KindNANDProgramDelayDone:
		return "NAND_PROGRAM_DELAY_DONE"
	case KindDMAComplete:
		return "DMA_COMPLETE"
	case KindRequestComplete:
		return "REQUEST_COMPLETE"
	case KindSchedulerDispatch:
		return "SCHEDULER_DISPATCH"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Handler processes the payload of a dispatched Event.
type Handler func(payload any)

// Event is a scheduled callback at a future simulated time. Events are
// owned by the EventLoop until dispatched or canceled; components that
// need to cancel a superseded event (e.g. the write cache re-dirtying a
// page) keep the *Event returned by Schedule.
type Event struct {
	TimeUs   uint64
	Seq      uint64
	Kind     Kind
	Payload  any
	Canceled bool
}

// eventHeap is a min-heap ordered by (TimeUs, Seq), giving FIFO order to
// events scheduled for the same simulated time.
type eventHeap []*Event

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].TimeUs != h[j].TimeUs {
		return h[i].TimeUs < h[j].TimeUs
	}
	return h[i].Seq < h[j].Seq
}
func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *eventHeap) Push(x any)   { *h = append(*h, x.(*Event)) }
func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return ev
}

// ErrHandlerCollision is returned by RegisterHandler when a Kind already
// has a registered handler.
type ErrHandlerCollision struct {
	Kind Kind
}

func (e *ErrHandlerCollision) Error() string {
	return fmt.Sprintf("simevent: handler already registered for kind %s", e.Kind)
}

// EventLoop is the min-priority event queue keyed by (TimeUs, Seq) that
// drives the simulator's single simulated-time clock.
type EventLoop struct {
	now      uint64
	seq      uint64
	heap     eventHeap
	handlers map[Kind]Handler

	// AfterDispatch, if set, runs after every non-canceled event is
	// handled. The simulator harness uses this to re-run the frontend
	// and NAND schedulers whenever resources may have freed up.
	AfterDispatch func()

	log *simlog.Logger
}

// New creates an empty EventLoop. A nil logger uses simlog.Default().
func New(log *simlog.Logger) *EventLoop {
	if log == nil {
		log = simlog.Default()
	}
	return &EventLoop{
		handlers: make(map[Kind]Handler),
		log:      log,
	}
}

// Now returns the current simulated time in microseconds.
func (l *EventLoop) Now() uint64 { return l.now }

// RegisterHandler associates kind with handler. Registering a second
// handler for the same kind is a precondition violation.
func (l *EventLoop) RegisterHandler(kind Kind, handler Handler) error {
	if _, exists := l.handlers[kind]; exists {
		return &ErrHandlerCollision{Kind: kind}
	}
	l.handlers[kind] = handler
	return nil
}

// Schedule stamps an event with the next sequence number, inserts it into
// the queue, and returns it so the caller can cancel it later.
func (l *EventLoop) Schedule(timeUs uint64, kind Kind, payload any) *Event {
	ev := &Event{
		TimeUs:  timeUs,
		Seq:     l.seq,
		Kind:    kind,
		Payload: payload,
	}
	l.seq++
	heap.Push(&l.heap, ev)
	l.log.Debugf("scheduled %s at t=%d seq=%d", kind, timeUs, ev.Seq)
	return ev
}

// Cancel marks ev as canceled. The event remains in the heap (a
// tombstone) and is simply skipped when it would otherwise dispatch.
func (l *EventLoop) Cancel(ev *Event) {
	if ev == nil {
		return
	}
	ev.Canceled = true
}

// Run repeatedly extracts the smallest event and, unless canceled or past
// until, advances the clock to the event's time and invokes its handler.
// A nil until runs the loop to exhaustion.
func (l *EventLoop) Run(until *uint64) error {
	for l.heap.Len() > 0 {
		ev := heap.Pop(&l.heap).(*Event)
		if until != nil && ev.TimeUs > *until {
			heap.Push(&l.heap, ev)
			return nil
		}
		if ev.Canceled {
			continue
		}

		l.now = ev.TimeUs
		handler, ok := l.handlers[ev.Kind]
		if !ok {
			return fmt.Errorf("simevent: no handler registered for kind %s", ev.Kind)
		}
		l.log.Debugf("dispatching %s at t=%d seq=%d", ev.Kind, ev.TimeUs, ev.Seq)
		handler(ev.Payload)

		if l.AfterDispatch != nil {
			l.AfterDispatch()
		}
	}
	return nil
}

// Pending reports whether any non-canceled event remains queued.
func (l *EventLoop) Pending() bool {
	for _, ev := range l.heap {
		if !ev.Canceled {
			return true
		}
	}
	return false
}
