// Package nand models the SSD back end: fixed read/program/DMA
// latencies arbitrated against per-die busy flags and per-channel DMA
// queues, driven by a simevent.EventLoop.
package nand

import (
	"fmt"

	"github.com/ColtonHarris999/FTL-SIM/simevent"
	"github.com/ColtonHarris999/FTL-SIM/simlog"
)

// PhysicalAddress identifies a single NAND page. The core only ever
// inspects Channel and Die; Plane, Block, and Page are opaque
// coordinates carried for the caller's bookkeeping.
type PhysicalAddress struct {
	Channel int
	Die     int
	Plane   int
	Block   int
	Page    int
}

func (pa PhysicalAddress) String() string {
	return fmt.Sprintf("pa(ch=%d die=%d plane=%d block=%d page=%d)", pa.Channel, pa.Die, pa.Plane, pa.Block, pa.Page)
}

// dieIndex returns a flat index for a (channel, die) pair.
func (pa PhysicalAddress) dieIndex(diesPerChannel int) int {
	return pa.Channel*diesPerChannel + pa.Die
}

// Type distinguishes a NAND transaction's direction.
type Type int

const (
	Read Type = iota
	Write
)

func (t Type) String() string {
	if t == Read {
		return "READ"
	}
	return "WRITE"
}

// Transaction is a single unit of work issued to the NAND backend.
// Payload is untyped, and the callbacks receive only the Transaction,
// to keep this package free of any import on request or writecache,
// which sit above it in the dependency graph.
type Transaction struct {
	Type      Type
	PA        PhysicalAddress
	DependsOn *Transaction
	Payload   any

	// OnIssue, if set, runs the instant the transaction is actually
	// issued to the die (ReadPage/WritePage accepting it), as distinct
	// from the moment it was merely submitted to a scheduler's queue.
	OnIssue func(*Transaction)

	// OnComplete runs once this transaction's full latency (read/
	// program plus DMA) has elapsed and the die has been released.
	OnComplete func(*Transaction)

	done bool
}

// Done reports whether this transaction has completed.
func (t *Transaction) Done() bool { return t.done }

// Config holds the fixed NAND geometry and latency parameters.
type Config struct {
	NumChannels    int
	DiesPerChannel int
	ReadUs         uint64
	ProgramUs      uint64
	DMAUs          uint64
}

// Stats accumulates NAND-level counters over a simulation run.
type Stats struct {
	NumReads          uint64
	NumWrites         uint64
	DMAQueueHighWater []int // indexed by channel
}

// NAND is the discrete-event back-end model: per-die busy flags and
// per-channel DMA queues, all driven through a shared EventLoop.
type NAND struct {
	cfg  Config
	loop *simevent.EventLoop
	log  *simlog.Logger

	dieBusy     []bool
	chanBusy    []bool
	chanQueue   [][]*Transaction
	inFlightDMA []*Transaction

	stats Stats
}

// New constructs a NAND backend and registers its event handlers on
// loop. loop must not already have handlers registered for the NAND
// event kinds.
func New(cfg Config, loop *simevent.EventLoop, log *simlog.Logger) (*NAND, error) {
	if log == nil {
		log = simlog.Default()
	}
	numDies := cfg.NumChannels * cfg.DiesPerChannel
	n := &NAND{
		cfg:         cfg,
		loop:        loop,
		log:         log,
		dieBusy:     make([]bool, numDies),
		chanBusy:    make([]bool, cfg.NumChannels),
		chanQueue:   make([][]*Transaction, cfg.NumChannels),
		inFlightDMA: make([]*Transaction, cfg.NumChannels),
		stats:       Stats{DMAQueueHighWater: make([]int, cfg.NumChannels)},
	}
	if err := loop.RegisterHandler(simevent.KindNANDReadDelayDone, n.handleReadDelayDone); err != nil {
		return nil, err
	}
	if err := loop.RegisterHandler(simevent.KindNANDProgramDelayDone, n.handleProgramDelayDone); err != nil {
		return nil, err
	}
	if err := loop.RegisterHandler(simevent.KindDMAComplete, n.handleDMAComplete); err != nil {
		return nil, err
	}
	return n, nil
}

// Stats returns a snapshot of accumulated counters.
func (n *NAND) Stats() Stats {
	s := n.stats
	s.DMAQueueHighWater = append([]int(nil), n.stats.DMAQueueHighWater...)
	return s
}

// IsReady reports whether pa's die is currently idle.
func (n *NAND) IsReady(pa PhysicalAddress) bool {
	return !n.dieBusy[pa.dieIndex(n.cfg.DiesPerChannel)]
}

// ReadPage issues txn as a NAND read. Precondition: IsReady(txn.PA).
func (n *NAND) ReadPage(txn *Transaction) error {
	if !n.IsReady(txn.PA) {
		return fmt.Errorf("nand: ReadPage precondition violated: die %s busy", txn.PA)
	}
	txn.Type = Read
	n.dieBusy[txn.PA.dieIndex(n.cfg.DiesPerChannel)] = true
	n.stats.NumReads++
	n.log.Debugf("nand read issued pa=%s", txn.PA)
	if txn.OnIssue != nil {
		txn.OnIssue(txn)
	}
	n.loop.Schedule(n.loop.Now()+n.cfg.ReadUs, simevent.KindNANDReadDelayDone, txn)
	return nil
}

// WritePage issues txn as a NAND write. Precondition: IsReady(txn.PA).
func (n *NAND) WritePage(txn *Transaction) error {
	if !n.IsReady(txn.PA) {
		return fmt.Errorf("nand: WritePage precondition violated: die %s busy", txn.PA)
	}
	txn.Type = Write
	n.dieBusy[txn.PA.dieIndex(n.cfg.DiesPerChannel)] = true
	n.stats.NumWrites++
	n.log.Debugf("nand write issued pa=%s", txn.PA)
	if txn.OnIssue != nil {
		txn.OnIssue(txn)
	}
	n.enqueueDMA(txn)
	return nil
}

func (n *NAND) handleReadDelayDone(payload any) {
	txn := payload.(*Transaction)
	n.enqueueDMA(txn)
}

func (n *NAND) handleProgramDelayDone(payload any) {
	txn := payload.(*Transaction)
	n.releaseDie(txn)
	n.finish(txn)
}

// enqueueDMA starts the channel transfer for txn, queuing it behind
// any in-flight DMA on the same channel.
func (n *NAND) enqueueDMA(txn *Transaction) {
	ch := txn.PA.Channel
	if n.chanBusy[ch] {
		n.chanQueue[ch] = append(n.chanQueue[ch], txn)
		if len(n.chanQueue[ch]) > n.stats.DMAQueueHighWater[ch] {
			n.stats.DMAQueueHighWater[ch] = len(n.chanQueue[ch])
		}
		return
	}
	n.startDMA(ch, txn)
}

func (n *NAND) startDMA(ch int, txn *Transaction) {
	n.chanBusy[ch] = true
	n.inFlightDMA[ch] = txn
	n.loop.Schedule(n.loop.Now()+n.cfg.DMAUs, simevent.KindDMAComplete, txn)
}

func (n *NAND) handleDMAComplete(payload any) {
	txn := payload.(*Transaction)
	ch := txn.PA.Channel
	n.chanBusy[ch] = false
	n.inFlightDMA[ch] = nil

	switch txn.Type {
	case Read:
		n.releaseDie(txn)
		n.finish(txn)
	case Write:
		n.loop.Schedule(n.loop.Now()+n.cfg.ProgramUs, simevent.KindNANDProgramDelayDone, txn)
	}

	if len(n.chanQueue[ch]) > 0 {
		next := n.chanQueue[ch][0]
		n.chanQueue[ch] = n.chanQueue[ch][1:]
		n.startDMA(ch, next)
	}
}

func (n *NAND) releaseDie(txn *Transaction) {
	n.dieBusy[txn.PA.dieIndex(n.cfg.DiesPerChannel)] = false
}

func (n *NAND) finish(txn *Transaction) {
	txn.done = true
	n.log.Debugf("nand %s complete pa=%s", txn.Type, txn.PA)
	if txn.OnComplete != nil {
		txn.OnComplete(txn)
	}
}
