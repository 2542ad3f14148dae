package writecache_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ColtonHarris999/FTL-SIM/ftl"
	"github.com/ColtonHarris999/FTL-SIM/nand"
	"github.com/ColtonHarris999/FTL-SIM/nandsched"
	"github.com/ColtonHarris999/FTL-SIM/request"
	"github.com/ColtonHarris999/FTL-SIM/simevent"
	"github.com/ColtonHarris999/FTL-SIM/writecache"
)

func TestWritecache(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Writecache Suite")
}

type harness struct {
	loop  *simevent.EventLoop
	nand  *nand.NAND
	sched nandsched.Scheduler
	ftl   *ftl.FTL
	cache *writecache.Cache
	done  []*request.Request
}

func newHarness(numPages int, lbasPerPage uint64) *harness {
	loop := simevent.New(nil)
	n, err := nand.New(nand.Config{NumChannels: 2, DiesPerChannel: 2, ReadUs: 50, ProgramUs: 200, DMAUs: 5}, loop, nil)
	Expect(err).NotTo(HaveOccurred())
	sched := nandsched.NewFIFOScheduler(n, loop, nil)
	f := ftl.New(ftl.Config{LbasPerPage: lbasPerPage, NumChannels: 2, DiesPerChannel: 2})

	c, err := writecache.New(writecache.Config{
		NumPages:       numPages,
		WriteUs:        10,
		ReadUs:         10,
		WritebackDelay: 500,
		LbasPerPage:    lbasPerPage,
	}, f, n, sched, loop, nil)
	Expect(err).NotTo(HaveOccurred())

	h := &harness{loop: loop, nand: n, sched: sched, ftl: f, cache: c}
	c.OnComplete = func(r *request.Request) { h.done = append(h.done, r) }
	loop.AfterDispatch = func() { sched.TryDispatch() }
	return h
}

var _ = Describe("Cache admission", func() {
	It("rejects a non-positive page count", func() {
		loop := simevent.New(nil)
		n, _ := nand.New(nand.Config{NumChannels: 1, DiesPerChannel: 1, ReadUs: 1, ProgramUs: 1, DMAUs: 1}, loop, nil)
		sched := nandsched.NewFIFOScheduler(n, loop, nil)
		f := ftl.New(ftl.Config{LbasPerPage: 2, NumChannels: 1, DiesPerChannel: 1})
		_, err := writecache.New(writecache.Config{NumPages: 0}, f, n, sched, loop, nil)
		Expect(err).To(HaveOccurred())
	})

	It("reports CanHold true once a page is resident, even if full", func() {
		h := newHarness(1, 2)
		w := request.New(1, request.Write, 10, 0, false)
		Expect(h.cache.CanHold(ftl.LBA(10))).To(BeTrue())
		Expect(h.cache.Put(w)).To(Succeed())
		Expect(h.cache.CanHold(ftl.LBA(10))).To(BeTrue())
		Expect(h.cache.CanHold(ftl.LBA(20))).To(BeFalse())
	})
})

var _ = Describe("pure cache hit", func() {
	It("completes a read entirely within the cache, with no NAND traffic", func() {
		h := newHarness(2, 2)
		w := request.New(1, request.Write, 4, 0, false)
		Expect(h.cache.Put(w)).To(Succeed())
		until := h.loop.Now() + 20
		Expect(h.loop.Run(&until)).To(Succeed())

		r := request.New(2, request.Read, 4, 0, false)
		Expect(h.cache.Contains(ftl.LBA(4))).To(BeTrue())
		Expect(h.cache.Get(r)).To(Succeed())
		Expect(h.loop.Run(nil)).To(Succeed())

		_, hasReadStart := r.Trace[request.TraceCacheReadStart]
		Expect(hasReadStart).To(BeTrue())
		Expect(r.Status).To(Equal(request.Completed))
	})
})

var _ = Describe("writeback with read-modify-write", func() {
	It("issues a NAND read then write when the page is partially dirty", func() {
		h := newHarness(2, 2)
		w := request.New(1, request.Write, 4, 0, false)
		Expect(h.cache.Put(w)).To(Succeed())
		Expect(h.loop.Run(nil)).To(Succeed())

		Expect(h.nand.Stats().NumReads).To(BeEquivalentTo(1))
		Expect(h.nand.Stats().NumWrites).To(BeEquivalentTo(1))
	})

	It("skips the read when the full page has been written", func() {
		h := newHarness(2, 2)
		w1 := request.New(1, request.Write, 4, 0, false)
		w2 := request.New(2, request.Write, 5, 0, false)
		Expect(h.cache.Put(w1)).To(Succeed())
		until := h.loop.Now() + 10
		Expect(h.loop.Run(&until)).To(Succeed())
		Expect(h.cache.Put(w2)).To(Succeed())
		Expect(h.loop.Run(nil)).To(Succeed())

		Expect(h.nand.Stats().NumReads).To(BeEquivalentTo(0))
		Expect(h.nand.Stats().NumWrites).To(BeEquivalentTo(1))
	})
})

var _ = Describe("writeback cancellation on re-dirty", func() {
	It("issues exactly one NAND write after a page is re-dirtied before flushing", func() {
		h := newHarness(2, 2)
		w1 := request.New(1, request.Write, 4, 0, false)
		Expect(h.cache.Put(w1)).To(Succeed())

		until := h.loop.Now() + 10
		Expect(h.loop.Run(&until)).To(Succeed())

		w2 := request.New(2, request.Write, 5, 0, false)
		Expect(h.cache.Put(w2)).To(Succeed())

		Expect(h.loop.Run(nil)).To(Succeed())
		Expect(h.nand.Stats().NumWrites).To(BeEquivalentTo(1))
	})
})

var _ = Describe("FUA writes", func() {
	It("only completes to the host once the write reaches NAND", func() {
		h := newHarness(2, 2)
		w := request.New(1, request.Write, 4, 0, true)
		Expect(h.cache.Put(w)).To(Succeed())

		until := h.loop.Now() + 10
		Expect(h.loop.Run(&until)).To(Succeed())
		Expect(w.Status).NotTo(Equal(request.Completed))

		Expect(h.loop.Run(nil)).To(Succeed())
		Expect(w.Status).To(Equal(request.Completed))
	})
})
