package simevent_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ColtonHarris999/FTL-SIM/simevent"
)

func TestSimevent(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Simevent Suite")
}

var _ = Describe("EventLoop", func() {
	var loop *simevent.EventLoop

	BeforeEach(func() {
		loop = simevent.New(nil)
	})

	It("dispatches events in (time, seq) order", func() {
		var order []string
		Expect(loop.RegisterHandler(simevent.KindRequestArrival, func(payload any) {
			order = append(order, payload.(string))
		})).To(Succeed())

		loop.Schedule(10, simevent.KindRequestArrival, "t10")
		loop.Schedule(5, simevent.KindRequestArrival, "t5-first")
		loop.Schedule(5, simevent.KindRequestArrival, "t5-second")

		Expect(loop.Run(nil)).To(Succeed())
		Expect(order).To(Equal([]string{"t5-first", "t5-second", "t10"}))
		Expect(loop.Now()).To(BeEquivalentTo(10))
	})

	It("preserves schedule order among equal-time events", func() {
		var seen []int
		Expect(loop.RegisterHandler(simevent.KindCacheReadComplete, func(payload any) {
			seen = append(seen, payload.(int))
		})).To(Succeed())

		loop.Schedule(100, simevent.KindCacheReadComplete, 1)
		loop.Schedule(100, simevent.KindCacheReadComplete, 2)
		loop.Schedule(100, simevent.KindCacheReadComplete, 3)

		Expect(loop.Run(nil)).To(Succeed())
		Expect(seen).To(Equal([]int{1, 2, 3}))
	})

	It("skips canceled events without invoking their handler", func() {
		fired := false
		Expect(loop.RegisterHandler(simevent.KindCacheFlushStart, func(payload any) {
			fired = true
		})).To(Succeed())

		ev := loop.Schedule(50, simevent.KindCacheFlushStart, nil)
		loop.Cancel(ev)

		Expect(loop.Run(nil)).To(Succeed())
		Expect(fired).To(BeFalse())
	})

	It("stops at the until bound without canceling later events", func() {
		var seen []uint64
		Expect(loop.RegisterHandler(simevent.KindDMAComplete, func(payload any) {
			seen = append(seen, payload.(uint64))
		})).To(Succeed())

		loop.Schedule(10, simevent.KindDMAComplete, uint64(10))
		loop.Schedule(20, simevent.KindDMAComplete, uint64(20))

		until := uint64(15)
		Expect(loop.Run(&until)).To(Succeed())
		Expect(seen).To(Equal([]uint64{10}))
		Expect(loop.Pending()).To(BeTrue())

		Expect(loop.Run(nil)).To(Succeed())
		Expect(seen).To(Equal([]uint64{10, 20}))
	})

	It("rejects a second handler registration for the same kind", func() {
		noop := func(payload any) {}
		Expect(loop.RegisterHandler(simevent.KindRequestArrival, noop)).To(Succeed())

		err := loop.RegisterHandler(simevent.KindRequestArrival, noop)
		Expect(err).To(HaveOccurred())
		var collision *simevent.ErrHandlerCollision
		Expect(err).To(BeAssignableToTypeOf(collision))
	})

	It("runs AfterDispatch once per dispatched event", func() {
		count := 0
		loop.AfterDispatch = func() { count++ }
		Expect(loop.RegisterHandler(simevent.KindRequestArrival, func(payload any) {})).To(Succeed())

		loop.Schedule(1, simevent.KindRequestArrival, nil)
		loop.Schedule(2, simevent.KindRequestArrival, nil)

		Expect(loop.Run(nil)).To(Succeed())
		Expect(count).To(Equal(2))
	})
})
