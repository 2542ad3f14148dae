package sim_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ColtonHarris999/FTL-SIM/request"
	"github.com/ColtonHarris999/FTL-SIM/sim"
	"github.com/ColtonHarris999/FTL-SIM/trace"
)

func buildTrace() []*request.Request {
	src := trace.NewSynthetic(trace.SyntheticConfig{
		NumRequests:    60,
		NumLBAs:        16,
		WriteFraction:  0.5,
		FUAFraction:    0.1,
		InterarrivalUs: 3,
		Seed:           7,
	})
	reqs, err := src.Requests()
	Expect(err).NotTo(HaveOccurred())
	return reqs
}

var _ = Describe("replay determinism", func() {
	It("produces identical completion timestamps across runs of the same trace", func() {
		s1, err := sim.New(sim.DefaultConfig(), nil)
		Expect(err).NotTo(HaveOccurred())
		r1, err := s1.Run(buildTrace())
		Expect(err).NotTo(HaveOccurred())

		s2, err := sim.New(sim.DefaultConfig(), nil)
		Expect(err).NotTo(HaveOccurred())
		r2, err := s2.Run(buildTrace())
		Expect(err).NotTo(HaveOccurred())

		Expect(r1.Completed).To(HaveLen(len(r2.Completed)))
		byID := make(map[uint64]*request.Request, len(r2.Completed))
		for _, req := range r2.Completed {
			byID[req.ID] = req
		}
		for _, req := range r1.Completed {
			other, ok := byID[req.ID]
			Expect(ok).To(BeTrue())
			c1, ok1 := req.Trace[request.TraceCompletion]
			c2, ok2 := other.Trace[request.TraceCompletion]
			Expect(ok1).To(Equal(ok2))
			Expect(c1).To(Equal(c2))
		}
		Expect(r1.NumReads).To(Equal(r2.NumReads))
		Expect(r1.NumWrites).To(Equal(r2.NumWrites))
	})
})
