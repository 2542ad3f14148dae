// Package sim wires the event loop, NAND backend, scheduler, FTL,
// write-back cache, and frontend together into the runnable simulator
// harness, and owns the host-facing Config/Result surface.
package sim

import (
	"fmt"

	"github.com/ColtonHarris999/FTL-SIM/frontend"
	"github.com/ColtonHarris999/FTL-SIM/ftl"
	"github.com/ColtonHarris999/FTL-SIM/nand"
	"github.com/ColtonHarris999/FTL-SIM/nandsched"
	"github.com/ColtonHarris999/FTL-SIM/request"
	"github.com/ColtonHarris999/FTL-SIM/simevent"
	"github.com/ColtonHarris999/FTL-SIM/simlog"
	"github.com/ColtonHarris999/FTL-SIM/writecache"
)

// Simulator owns every collaborator and runs one simulation per call
// to Run. It must not be reused concurrently with itself.
type Simulator struct {
	cfg   *Config
	log   *simlog.Logger
	loop  *simevent.EventLoop
	nand  *nand.NAND
	sched nandsched.Scheduler
	ftl   *ftl.FTL
	cache *writecache.Cache
	fe    *frontend.Frontend

	pending           []*request.Request
	completed         []*request.Request
	scheduledArrivals int
}

// New constructs a Simulator from cfg, wiring every component together
// exactly as described by the package overview: the frontend routes to
// the cache or directly to the NAND scheduler, the cache issues
// writeback transactions to the same scheduler, and the scheduler
// drives the shared NAND backend. A nil logger uses simlog.Default().
func New(cfg *Config, log *simlog.Logger) (*Simulator, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("sim: invalid config: %w", err)
	}
	if log == nil {
		log = simlog.Default()
	}

	loop := simevent.New(log)

	backend, err := nand.New(nand.Config{
		NumChannels:    cfg.NANDChannels,
		DiesPerChannel: cfg.NANDDiesPerChannel,
		ReadUs:         cfg.NANDReadUs,
		ProgramUs:      cfg.NANDProgramUs,
		DMAUs:          cfg.NANDDMAUs,
	}, loop, log)
	if err != nil {
		return nil, err
	}

	var scheduler nandsched.Scheduler
	switch cfg.NANDSchedulerPolicy {
	case SchedulerReadPriority:
		rp := nandsched.NewReadPriorityScheduler(backend, loop, log)
		rp.DispatchOverhead = cfg.SchedulerDispatchOverhead
		scheduler = rp
	default:
		fifo := nandsched.NewFIFOScheduler(backend, loop, log)
		fifo.DispatchOverhead = cfg.SchedulerDispatchOverhead
		scheduler = fifo
	}

	translation := ftl.New(ftl.Config{
		LbasPerPage:    cfg.FTLLbasPerPage,
		NumChannels:    cfg.NANDChannels,
		DiesPerChannel: cfg.NANDDiesPerChannel,
	})

	cache, err := writecache.New(writecache.Config{
		NumPages:       cfg.CacheNumPages,
		WriteUs:        cfg.CacheWriteUs,
		ReadUs:         cfg.CacheReadUs,
		WritebackDelay: cfg.CacheWritebackDelay,
		LbasPerPage:    cfg.FTLLbasPerPage,
	}, translation, backend, scheduler, loop, log)
	if err != nil {
		return nil, err
	}

	fe := frontend.New(frontend.Config{
		NCQSize:     cfg.NCQSize,
		StrictFlush: cfg.StrictFlush,
	}, cache, translation, scheduler, loop, log)

	s := &Simulator{
		cfg:   cfg,
		log:   log,
		loop:  loop,
		nand:  backend,
		sched: scheduler,
		ftl:   translation,
		cache: cache,
		fe:    fe,
	}

	fe.OnRequestComplete = s.handleRequestComplete
	loop.AfterDispatch = s.tick

	if err := loop.RegisterHandler(simevent.KindRequestArrival, s.handleArrival); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Simulator) tick() {
	s.sched.TryDispatch()
	if err := s.fe.Dispatch(); err != nil {
		s.log.Errorf("dispatch error: %v", err)
	}
	// Issue any transactions the frontend just submitted, so a read miss
	// does not wait for some unrelated later event to reach the die.
	s.sched.TryDispatch()
}

func (s *Simulator) handleRequestComplete(req *request.Request) {
	s.completed = append(s.completed, req)
	s.admitNext()
}

// admitNext pulls the next buffered request into the NCQ, if there is
// space, scheduling its arrival no earlier than its own ready time nor
// before the current simulated time.
func (s *Simulator) admitNext() {
	for len(s.pending) > 0 && s.fe.Len()+s.scheduledArrivals < s.cfg.NCQSize {
		req := s.pending[0]
		s.pending = s.pending[1:]
		s.scheduledArrivals++
		arrivalTime := req.ReadyTime
		if now := s.loop.Now(); now > arrivalTime {
			arrivalTime = now
		}
		s.loop.Schedule(arrivalTime, simevent.KindRequestArrival, req)
	}
}

func (s *Simulator) handleArrival(payload any) {
	req := payload.(*request.Request)
	s.scheduledArrivals--
	now := s.loop.Now()
	req.Record(request.TraceArrival, now)
	if err := s.fe.Submit(req); err != nil {
		s.log.Errorf("arrival submit failed for request %d: %v", req.ID, err)
		return
	}
}

// Run admits the first NCQSize requests from trace, buffers the rest,
// and runs the event loop to exhaustion, returning every request's
// final trace plus aggregate NAND statistics.
func (s *Simulator) Run(trace []*request.Request) (*Result, error) {
	s.pending = append([]*request.Request(nil), trace...)
	s.completed = nil

	s.admitNext()

	if err := s.loop.Run(nil); err != nil {
		return nil, err
	}
	if len(s.pending) > 0 || s.fe.Len() > 0 {
		return nil, fmt.Errorf("sim: event loop exhausted with %d pending and %d in-flight requests", len(s.pending), s.fe.Len())
	}

	return computeResult(s.cfg, s.completed, s.nand.Stats()), nil
}
