// Package writecache implements the SSD's write-back cache: a bounded
// set of coalescing pages keyed by logical page address, backed by an
// Akita cache directory for admission tracking.
package writecache

import (
	"fmt"

	akitacache "github.com/sarchlab/akita/v4/mem/cache"

	"github.com/ColtonHarris999/FTL-SIM/ftl"
	"github.com/ColtonHarris999/FTL-SIM/nand"
	"github.com/ColtonHarris999/FTL-SIM/nandsched"
	"github.com/ColtonHarris999/FTL-SIM/request"
	"github.com/ColtonHarris999/FTL-SIM/simevent"
	"github.com/ColtonHarris999/FTL-SIM/simlog"
)

// State is a CachePage's position in the writeback lifecycle.
type State int

const (
	Dirty State = iota
	FlushScheduled
	Flushing
)

func (s State) String() string {
	switch s {
	case Dirty:
		return "DIRTY"
	case FlushScheduled:
		return "FLUSH_SCHEDULED"
	case Flushing:
		return "FLUSHING"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// CachePage is the coalescing buffer for a single logical page: every
// dirty LBA within the page is held here until the page is flushed to
// NAND as a unit.
type CachePage struct {
	LPA             ftl.LPA
	State           State
	LBAs            map[ftl.LBA]struct{}
	PendingRequests []*request.Request

	// LatestFlushEvent is the most recently scheduled CACHE_FLUSH_START
	// event for this page. A write that re-dirties a FLUSH_SCHEDULED
	// page cancels this event and schedules a new one.
	LatestFlushEvent *simevent.Event
}

// flushPayload pairs a page with the specific CACHE_FLUSH_START event
// being dispatched, so the handler can tell a superseded flush from
// the current one by pointer identity.
type flushPayload struct {
	Page  *CachePage
	Event *simevent.Event
}

// writebackPayload pairs a page with the flush event that triggered
// the NAND write carrying it, for the eviction check on completion.
type writebackPayload struct {
	Page            *CachePage
	TriggeringEvent *simevent.Event
}

// Config holds the cache's capacity and latency parameters.
type Config struct {
	NumPages       int
	WriteUs        uint64
	ReadUs         uint64
	WritebackDelay uint64
	LbasPerPage    uint64
}

// Cache is the write-back cache. It has a single port: at most one of
// {Get, Put} is in progress at any time, tracked by busy. Issuing a
// page's writeback to NAND does not check or set busy, so it can happen
// while a Get or Put is in progress.
type Cache struct {
	cfg       Config
	directory *akitacache.DirectoryImpl
	pages     []*CachePage
	busy      bool

	ftl   *ftl.FTL
	nand  *nand.NAND
	sched nandsched.Scheduler
	loop  *simevent.EventLoop
	log   *simlog.Logger

	// OnComplete is invoked when a request should be reported completed
	// to the host, i.e. after a cache-hit read, a non-FUA write landing
	// in the cache, or an FUA write's data reaching NAND.
	OnComplete func(*request.Request)
}

// New constructs a Cache with the given capacity and collaborators.
func New(cfg Config, f *ftl.FTL, n *nand.NAND, sched nandsched.Scheduler, loop *simevent.EventLoop, log *simlog.Logger) (*Cache, error) {
	if cfg.NumPages <= 0 {
		return nil, fmt.Errorf("writecache: num_pages must be positive, got %d", cfg.NumPages)
	}
	if log == nil {
		log = simlog.Default()
	}
	c := &Cache{
		cfg:       cfg,
		directory: akitacache.NewDirectory(1, cfg.NumPages, 1, akitacache.NewLRUVictimFinder()),
		pages:     make([]*CachePage, cfg.NumPages),
		ftl:       f,
		nand:      n,
		sched:     sched,
		loop:      loop,
		log:       log,
	}
	if err := loop.RegisterHandler(simevent.KindCacheReadComplete, c.handleCacheReadComplete); err != nil {
		return nil, err
	}
	if err := loop.RegisterHandler(simevent.KindCacheWriteComplete, c.handleCacheWriteComplete); err != nil {
		return nil, err
	}
	if err := loop.RegisterHandler(simevent.KindCacheFlushStart, c.handleCacheFlushStart); err != nil {
		return nil, err
	}
	if err := loop.RegisterHandler(simevent.KindCacheWritebackComplete, c.handleWritebackComplete); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Cache) blockIndex(block *akitacache.Block) int {
	return block.SetID*c.cfg.NumPages + block.WayID
}

func (c *Cache) lookupPage(lpa ftl.LPA) *CachePage {
	block := c.directory.Lookup(0, uint64(lpa))
	if block == nil || !block.IsValid {
		return nil
	}
	return c.pages[c.blockIndex(block)]
}

// Busy reports whether the cache's single port is occupied.
func (c *Cache) Busy() bool { return c.busy }

// HasPendingFlush reports whether any resident page is currently
// scheduled to flush or actively flushing.
func (c *Cache) HasPendingFlush() bool {
	for _, page := range c.pages {
		if page == nil {
			continue
		}
		if page.State == FlushScheduled || page.State == Flushing {
			return true
		}
	}
	return false
}

// CanHold reports whether lba's page is already resident, or a free
// slot remains for admitting a new page.
func (c *Cache) CanHold(lba ftl.LBA) bool {
	lpa := c.ftl.LBAToLPA(lba)
	if c.lookupPage(lpa) != nil {
		return true
	}
	return c.residentCount() < c.cfg.NumPages
}

func (c *Cache) residentCount() int {
	n := 0
	for _, set := range c.directory.GetSets() {
		for _, block := range set.Blocks {
			if block.IsValid {
				n++
			}
		}
	}
	return n
}

// Contains reports whether lba's page is resident and holds lba's data.
func (c *Cache) Contains(lba ftl.LBA) bool {
	lpa := c.ftl.LBAToLPA(lba)
	page := c.lookupPage(lpa)
	if page == nil {
		return false
	}
	_, ok := page.LBAs[lba]
	return ok
}

// Get services a cache-hit read. Precondition: !Busy() && Contains(req.LBA).
func (c *Cache) Get(req *request.Request) error {
	if c.busy {
		return fmt.Errorf("writecache: Get precondition violated: cache busy")
	}
	lba := ftl.LBA(req.LBA)
	if !c.Contains(lba) {
		return fmt.Errorf("writecache: Get precondition violated: lba %d not resident", req.LBA)
	}
	c.busy = true
	req.Record(request.TraceCacheReadStart, c.loop.Now())
	c.loop.Schedule(c.loop.Now()+c.cfg.ReadUs, simevent.KindCacheReadComplete, req)
	return nil
}

func (c *Cache) handleCacheReadComplete(payload any) {
	req := payload.(*request.Request)
	c.busy = false
	now := c.loop.Now()
	req.Record(request.TraceCacheReadComplete, now)
	req.Status = request.Completed
	req.Record(request.TraceCompletion, now)
	if c.OnComplete != nil {
		c.OnComplete(req)
	}
}

// Put admits req's write into its page, coalescing with any resident
// data. Precondition: !Busy() && CanHold(req.LBA).
func (c *Cache) Put(req *request.Request) error {
	lba := ftl.LBA(req.LBA)
	if c.busy {
		return fmt.Errorf("writecache: Put precondition violated: cache busy")
	}
	if !c.CanHold(lba) {
		return fmt.Errorf("writecache: Put precondition violated: cache full for lba %d", req.LBA)
	}
	c.busy = true

	lpa := c.ftl.LBAToLPA(lba)
	page := c.lookupPage(lpa)
	if page == nil {
		page = c.admit(lpa)
	}
	if page.State == FlushScheduled {
		c.loop.Cancel(page.LatestFlushEvent)
		page.State = Dirty
	}

	req.Record(request.TraceCacheWriteStart, c.loop.Now())
	c.loop.Schedule(c.loop.Now()+c.cfg.WriteUs, simevent.KindCacheWriteComplete, req)
	return nil
}

// admit finds a free slot for lpa and installs a fresh CachePage there.
func (c *Cache) admit(lpa ftl.LPA) *CachePage {
	block := c.directory.FindVictim(uint64(lpa))
	block.Tag = uint64(lpa)
	block.IsValid = true
	block.IsDirty = true
	c.directory.Visit(block)

	page := &CachePage{LPA: lpa, State: Dirty, LBAs: make(map[ftl.LBA]struct{})}
	c.pages[c.blockIndex(block)] = page
	return page
}

func (c *Cache) handleCacheWriteComplete(payload any) {
	req := payload.(*request.Request)
	c.busy = false
	now := c.loop.Now()
	req.Record(request.TraceCacheWriteComplete, now)

	lba := ftl.LBA(req.LBA)
	lpa := c.ftl.LBAToLPA(lba)
	page := c.lookupPage(lpa)

	if !req.FUA {
		req.Status = request.Completed
		req.Record(request.TraceCompletion, now)
		if c.OnComplete != nil {
			c.OnComplete(req)
		}
	}

	page.LBAs[lba] = struct{}{}
	page.PendingRequests = append(page.PendingRequests, req)
	page.State = FlushScheduled

	ev := c.loop.Schedule(now+c.cfg.WritebackDelay, simevent.KindCacheFlushStart, nil)
	ev.Payload = &flushPayload{Page: page, Event: ev}
	page.LatestFlushEvent = ev
}

func (c *Cache) handleCacheFlushStart(payload any) {
	fp := payload.(*flushPayload)
	page := fp.Page
	if page.LatestFlushEvent != fp.Event {
		return
	}
	page.State = Flushing

	var readTxn *nand.Transaction
	if uint64(len(page.LBAs)) < c.cfg.LbasPerPage {
		readTxn = &nand.Transaction{
			Type: nand.Read,
			PA:   c.ftl.LPAToPPA(page.LPA),
		}
	}

	writePA := c.ftl.Allocate(page.LPA)
	writeTxn := &nand.Transaction{
		Type:      nand.Write,
		PA:        writePA,
		DependsOn: readTxn,
	}
	writeTxn.Payload = &writebackPayload{Page: page, TriggeringEvent: fp.Event}
	writeTxn.OnComplete = func(t *nand.Transaction) {
		c.loop.Schedule(c.loop.Now(), simevent.KindCacheWritebackComplete, t)
	}

	if readTxn != nil {
		c.sched.Submit(readTxn)
	}
	c.sched.Submit(writeTxn)
}

func (c *Cache) handleWritebackComplete(payload any) {
	txn := payload.(*nand.Transaction)
	wp := txn.Payload.(*writebackPayload)
	page := wp.Page
	now := c.loop.Now()

	for _, req := range page.PendingRequests {
		if req.FUA {
			req.Status = request.Completed
			req.Record(request.TraceCompletion, now)
			if c.OnComplete != nil {
				c.OnComplete(req)
			}
		}
	}
	page.PendingRequests = nil

	if page.State == Flushing && page.LatestFlushEvent == wp.TriggeringEvent {
		c.evict(page)
	}
}

func (c *Cache) evict(page *CachePage) {
	block := c.directory.Lookup(0, uint64(page.LPA))
	if block == nil {
		return
	}
	block.IsValid = false
	block.IsDirty = false
	c.pages[c.blockIndex(block)] = nil
}
