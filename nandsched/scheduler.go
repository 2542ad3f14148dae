// Package nandsched dispatches queued NAND transactions onto the
// nand.NAND backend once their target die is ready and any dependency
// has completed.
package nandsched

import (
	"errors"

	"github.com/ColtonHarris999/FTL-SIM/nand"
	"github.com/ColtonHarris999/FTL-SIM/simevent"
	"github.com/ColtonHarris999/FTL-SIM/simlog"
)

// Scheduler submits transactions for later dispatch onto the NAND
// backend. Implementations may reorder within the constraints of the
// per-LBA ordering contract the frontend already establishes.
type Scheduler interface {
	// Submit appends txn to the scheduler's queue.
	Submit(txn *nand.Transaction)
	// TryDispatch inspects the queue and issues whatever transactions
	// are eligible to run. It is safe to call repeatedly; it is a
	// no-op when nothing can be dispatched.
	TryDispatch()
	// Empty reports whether the queue currently holds no transactions.
	Empty() bool
}

func dispatchable(txn *nand.Transaction, backend *nand.NAND) bool {
	if txn.DependsOn != nil && !txn.DependsOn.Done() {
		return false
	}
	return backend.IsReady(txn.PA)
}

func issue(txn *nand.Transaction, backend *nand.NAND) error {
	if txn.Type == nand.Read {
		return backend.ReadPage(txn)
	}
	return backend.WritePage(txn)
}

// registerDispatchTrampoline installs the generic KindSchedulerDispatch
// handler on loop the first time any scheduler is constructed against
// it. The handler just invokes the func() carried as its payload, so
// every scheduler instance on the same loop can share it; a second
// registration attempt collides harmlessly and is ignored.
func registerDispatchTrampoline(loop *simevent.EventLoop) {
	if loop == nil {
		return
	}
	err := loop.RegisterHandler(simevent.KindSchedulerDispatch, func(payload any) {
		payload.(func())()
	})
	var collision *simevent.ErrHandlerCollision
	if err != nil && !errors.As(err, &collision) {
		panic(err)
	}
}

// FIFOScheduler dispatches strictly in submission order: only the
// head of the queue is ever considered.
type FIFOScheduler struct {
	backend *nand.NAND
	loop    *simevent.EventLoop
	queue   []*nand.Transaction
	log     *simlog.Logger

	// timerRunning is set while a DispatchOverhead timer is in flight,
	// so TryDispatch doesn't race ahead of its own decision latency.
	timerRunning bool

	// DispatchOverhead, when non-zero, models the cost of making a
	// scheduling decision: TryDispatch waits this many simulated
	// microseconds before issuing the next eligible transaction.
	// Zero by default, leaving existing timings unaffected.
	DispatchOverhead uint64
}

// NewFIFOScheduler creates a scheduler that dispatches to backend. loop
// may be nil if DispatchOverhead will never be set above zero.
func NewFIFOScheduler(backend *nand.NAND, loop *simevent.EventLoop, log *simlog.Logger) *FIFOScheduler {
	if log == nil {
		log = simlog.Default()
	}
	registerDispatchTrampoline(loop)
	return &FIFOScheduler{backend: backend, loop: loop, log: log}
}

func (s *FIFOScheduler) Submit(txn *nand.Transaction) {
	s.queue = append(s.queue, txn)
}

func (s *FIFOScheduler) Empty() bool { return len(s.queue) == 0 }

func (s *FIFOScheduler) TryDispatch() {
	if s.timerRunning {
		return
	}
	for len(s.queue) > 0 {
		head := s.queue[0]
		if !dispatchable(head, s.backend) {
			return
		}
		if s.DispatchOverhead > 0 && s.loop != nil {
			s.timerRunning = true
			s.loop.Schedule(s.loop.Now()+s.DispatchOverhead, simevent.KindSchedulerDispatch, func() {
				s.timerRunning = false
				if len(s.queue) > 0 && dispatchable(s.queue[0], s.backend) && issue(s.queue[0], s.backend) == nil {
					s.queue = s.queue[1:]
				}
				s.TryDispatch()
			})
			return
		}
		if err := issue(head, s.backend); err != nil {
			// A policy bug revealed the die busy after all; leave the
			// transaction at the head and retry on the next tick.
			s.log.Debugf("fifo dispatch deferred: %v", err)
			return
		}
		s.queue = s.queue[1:]
	}
}

// ReadPriorityScheduler prefers the oldest dispatchable READ with no
// pending dependency over the oldest WRITE, falling back to the oldest
// WRITE when no READ is eligible. It never reorders transactions that
// share a die or a depends_on chain, so it cannot violate the
// frontend's per-LBA ordering guarantees.
type ReadPriorityScheduler struct {
	backend *nand.NAND
	loop    *simevent.EventLoop
	queue   []*nand.Transaction
	log     *simlog.Logger

	timerRunning bool

	// DispatchOverhead models the added cost of scanning the queue for
	// a read to prioritize, expressed in microseconds. Zero by
	// default, matching the FIFO baseline.
	DispatchOverhead uint64
}

// NewReadPriorityScheduler creates a scheduler that dispatches to
// backend. loop may be nil if DispatchOverhead will never be set above
// zero.
func NewReadPriorityScheduler(backend *nand.NAND, loop *simevent.EventLoop, log *simlog.Logger) *ReadPriorityScheduler {
	if log == nil {
		log = simlog.Default()
	}
	registerDispatchTrampoline(loop)
	return &ReadPriorityScheduler{backend: backend, loop: loop, log: log}
}

func (s *ReadPriorityScheduler) Submit(txn *nand.Transaction) {
	s.queue = append(s.queue, txn)
}

func (s *ReadPriorityScheduler) Empty() bool { return len(s.queue) == 0 }

func (s *ReadPriorityScheduler) TryDispatch() {
	if s.timerRunning {
		return
	}
	for {
		idx := s.pickNext()
		if idx < 0 {
			return
		}
		if s.DispatchOverhead > 0 && s.loop != nil {
			s.timerRunning = true
			s.loop.Schedule(s.loop.Now()+s.DispatchOverhead, simevent.KindSchedulerDispatch, func() {
				s.timerRunning = false
				if i := s.pickNext(); i >= 0 && issue(s.queue[i], s.backend) == nil {
					s.queue = append(s.queue[:i], s.queue[i+1:]...)
				}
				s.TryDispatch()
			})
			return
		}
		txn := s.queue[idx]
		if err := issue(txn, s.backend); err != nil {
			s.log.Debugf("read-priority dispatch deferred: %v", err)
			return
		}
		s.queue = append(s.queue[:idx], s.queue[idx+1:]...)
	}
}

// pickNext returns the index of the best eligible transaction, or -1
// if none is dispatchable right now.
func (s *ReadPriorityScheduler) pickNext() int {
	best := -1
	for i, txn := range s.queue {
		if !dispatchable(txn, s.backend) {
			continue
		}
		sharesDie := false
		for _, earlier := range s.queue[:i] {
			if earlier.PA.Channel == txn.PA.Channel && earlier.PA.Die == txn.PA.Die {
				sharesDie = true
				break
			}
		}
		if sharesDie {
			continue
		}
		if txn.Type == nand.Read {
			return i
		}
		if best < 0 {
			best = i
		}
	}
	return best
}
