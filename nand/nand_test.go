package nand_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ColtonHarris999/FTL-SIM/nand"
	"github.com/ColtonHarris999/FTL-SIM/simevent"
)

func TestNand(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Nand Suite")
}

func newBackend() (*nand.NAND, *simevent.EventLoop) {
	loop := simevent.New(nil)
	n, err := nand.New(nand.Config{
		NumChannels:    2,
		DiesPerChannel: 2,
		ReadUs:         50,
		ProgramUs:      200,
		DMAUs:          5,
	}, loop, nil)
	Expect(err).NotTo(HaveOccurred())
	return n, loop
}

var _ = Describe("NAND", func() {
	It("completes a read after read_us + dma_us and releases the die", func() {
		n, loop := newBackend()
		pa := nand.PhysicalAddress{Channel: 0, Die: 0}
		var completedAt uint64
		txn := &nand.Transaction{PA: pa, OnComplete: func(t *nand.Transaction) { completedAt = loop.Now() }}

		Expect(n.IsReady(pa)).To(BeTrue())
		Expect(n.ReadPage(txn)).To(Succeed())
		Expect(n.IsReady(pa)).To(BeFalse())

		Expect(loop.Run(nil)).To(Succeed())
		Expect(completedAt).To(BeEquivalentTo(55))
		Expect(n.IsReady(pa)).To(BeTrue())
		Expect(n.Stats().NumReads).To(BeEquivalentTo(1))
	})

	It("completes a write after dma_us + program_us", func() {
		n, loop := newBackend()
		pa := nand.PhysicalAddress{Channel: 0, Die: 1}
		var completedAt uint64
		txn := &nand.Transaction{PA: pa, OnComplete: func(t *nand.Transaction) { completedAt = loop.Now() }}

		Expect(n.WritePage(txn)).To(Succeed())
		Expect(loop.Run(nil)).To(Succeed())
		Expect(completedAt).To(BeEquivalentTo(205))
		Expect(n.Stats().NumWrites).To(BeEquivalentTo(1))
	})

	It("rejects issuing to a busy die", func() {
		n, _ := newBackend()
		pa := nand.PhysicalAddress{Channel: 0, Die: 0}
		txn1 := &nand.Transaction{PA: pa}
		txn2 := &nand.Transaction{PA: pa}
		Expect(n.ReadPage(txn1)).To(Succeed())
		Expect(n.ReadPage(txn2)).To(HaveOccurred())
	})

	It("serializes DMAs on the same channel FIFO, one at a time", func() {
		n, loop := newBackend()
		pa0 := nand.PhysicalAddress{Channel: 0, Die: 0}
		pa1 := nand.PhysicalAddress{Channel: 0, Die: 1}

		var order []int
		txn0 := &nand.Transaction{PA: pa0, OnComplete: func(t *nand.Transaction) { order = append(order, 0) }}
		txn1 := &nand.Transaction{PA: pa1, OnComplete: func(t *nand.Transaction) { order = append(order, 1) }}

		Expect(n.WritePage(txn0)).To(Succeed())
		Expect(n.WritePage(txn1)).To(Succeed())

		Expect(loop.Run(nil)).To(Succeed())
		Expect(order).To(Equal([]int{0, 1}))
	})

	It("allows concurrent operations on distinct dies", func() {
		n, loop := newBackend()
		pa0 := nand.PhysicalAddress{Channel: 0, Die: 0}
		pa1 := nand.PhysicalAddress{Channel: 1, Die: 0}

		txn0 := &nand.Transaction{PA: pa0}
		txn1 := &nand.Transaction{PA: pa1}
		Expect(n.ReadPage(txn0)).To(Succeed())
		Expect(n.ReadPage(txn1)).To(Succeed())
		Expect(loop.Run(nil)).To(Succeed())
		Expect(txn0.Done()).To(BeTrue())
		Expect(txn1.Done()).To(BeTrue())
	})
})
