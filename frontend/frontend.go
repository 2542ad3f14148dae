// Package frontend implements the native command queue: it walks
// queued requests, detects LBA-level hazards between them, and routes
// each to the write-back cache or directly to the NAND scheduler.
package frontend

import (
	"errors"
	"fmt"

	"github.com/ColtonHarris999/FTL-SIM/ftl"
	"github.com/ColtonHarris999/FTL-SIM/nand"
	"github.com/ColtonHarris999/FTL-SIM/nandsched"
	"github.com/ColtonHarris999/FTL-SIM/request"
	"github.com/ColtonHarris999/FTL-SIM/simevent"
	"github.com/ColtonHarris999/FTL-SIM/simlog"
	"github.com/ColtonHarris999/FTL-SIM/writecache"
)

// ErrUnimplemented is returned by Dispatch when it encounters a FLUSH
// request and the frontend is configured with StrictFlush.
var ErrUnimplemented = errors.New("frontend: FLUSH is not implemented in strict mode")

// Config holds the frontend's queue capacity and flush policy.
type Config struct {
	NCQSize int

	// StrictFlush, when true, makes Dispatch fail immediately with
	// ErrUnimplemented the moment its walk of the queue reaches a ready
	// FLUSH, rather than draining the pipeline to service it.
	StrictFlush bool
}

// Frontend owns the NCQ and the per-tick hazard-aware dispatch walk.
type Frontend struct {
	cfg   Config
	ncq   []*request.Request
	cache *writecache.Cache
	ftl   *ftl.FTL
	sched nandsched.Scheduler
	loop  *simevent.EventLoop
	log   *simlog.Logger

	// OnRequestComplete is invoked once a request has left the NCQ
	// after reaching COMPLETED status.
	OnRequestComplete func(*request.Request)
}

// New constructs a Frontend and wires itself as the cache's completion
// callback, so every cache-routed request returns through the NCQ.
func New(cfg Config, cache *writecache.Cache, f *ftl.FTL, sched nandsched.Scheduler, loop *simevent.EventLoop, log *simlog.Logger) *Frontend {
	if log == nil {
		log = simlog.Default()
	}
	fe := &Frontend{
		cfg:   cfg,
		cache: cache,
		ftl:   f,
		sched: sched,
		loop:  loop,
		log:   log,
	}
	cache.OnComplete = fe.completeRequest
	return fe
}

// HasSpace reports whether the NCQ has room for another request.
func (f *Frontend) HasSpace() bool {
	return len(f.ncq) < f.cfg.NCQSize
}

// Submit enqueues req. Precondition: HasSpace().
func (f *Frontend) Submit(req *request.Request) error {
	if !f.HasSpace() {
		return fmt.Errorf("frontend: Submit precondition violated: NCQ full (size %d)", f.cfg.NCQSize)
	}
	f.ncq = append(f.ncq, req)
	return nil
}

// Remove drops req from the NCQ. Precondition: req is present.
func (f *Frontend) Remove(req *request.Request) error {
	for i, r := range f.ncq {
		if r == req {
			f.ncq = append(f.ncq[:i], f.ncq[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("frontend: Remove precondition violated: request %d not in NCQ", req.ID)
}

// Len reports the current NCQ depth.
func (f *Frontend) Len() int { return len(f.ncq) }

func (f *Frontend) completeRequest(req *request.Request) {
	_ = f.Remove(req)
	f.log.Debugf("request %d completed at t=%d", req.ID, f.loop.Now())
	if f.OnRequestComplete != nil {
		f.OnRequestComplete(req)
	}
}

// Dispatch walks the NCQ head to tail once, tracking every LBA written
// by an earlier-in-queue write (dispatched or not) as dirty, and
// issues whatever is ready to the cache or the NAND scheduler. It
// returns an error only for a StrictFlush FLUSH or a precondition
// violation; ordinary contention is not an error and simply leaves
// the affected request queued for the next tick.
func (f *Frontend) Dispatch() error {
	dirtyLBAs := make(map[ftl.LBA]struct{})

	for _, req := range f.ncq {
		lba := ftl.LBA(req.LBA)

		switch req.Type {
		case request.Write:
			dirtyLBAs[lba] = struct{}{}
			if req.Status != request.Ready {
				continue
			}
			if f.cache.Busy() || !f.cache.CanHold(lba) {
				continue
			}
			req.Status = request.InProgress
			if err := f.cache.Put(req); err != nil {
				return err
			}

		case request.Read:
			if req.Status != request.Ready {
				continue
			}
			if _, hazard := dirtyLBAs[lba]; hazard {
				continue
			}
			if f.cache.Contains(lba) {
				if f.cache.Busy() {
					continue
				}
				req.Status = request.InProgress
				if err := f.cache.Get(req); err != nil {
					return err
				}
			} else {
				req.Status = request.InProgress
				lpa := f.ftl.LBAToLPA(lba)
				pa := f.ftl.LPAToPPA(lpa)
				txn := &nand.Transaction{
					Type:    nand.Read,
					PA:      pa,
					Payload: req,
				}
				txn.OnIssue = func(t *nand.Transaction) {
					req.Record(request.TraceNANDReadStart, f.loop.Now())
				}
				txn.OnComplete = func(t *nand.Transaction) {
					now := f.loop.Now()
					req.Record(request.TraceNANDReadComplete, now)
					req.Status = request.Completed
					req.Record(request.TraceCompletion, now)
					f.completeRequest(req)
				}
				f.sched.Submit(txn)
			}

		case request.Flush:
			if req.Status != request.Ready {
				continue
			}
			if f.cfg.StrictFlush {
				return ErrUnimplemented
			}
			if !f.sched.Empty() || f.cache.HasPendingFlush() {
				// Block: no later request may be issued until the
				// pipeline drains.
				return nil
			}
			req.Status = request.Completed
			req.Record(request.TraceCompletion, f.loop.Now())
			f.completeRequest(req)
			return nil
		}
	}
	return nil
}
