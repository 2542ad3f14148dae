package sim

import (
	"github.com/ColtonHarris999/FTL-SIM/nand"
	"github.com/ColtonHarris999/FTL-SIM/request"
)

// Result summarizes a completed simulation run.
type Result struct {
	Completed []*request.Request

	NumReads  uint64
	NumWrites uint64

	CacheHitCount int

	// WriteAmplification is NumWrites * lbas_per_page / logical_writes,
	// where logical_writes is the count of completed host WRITE
	// requests. Zero if no writes occurred.
	WriteAmplification float64

	NANDStats nand.Stats
}

func computeResult(cfg *Config, completed []*request.Request, nandStats nand.Stats) *Result {
	r := &Result{
		Completed: completed,
		NumReads:  nandStats.NumReads,
		NumWrites: nandStats.NumWrites,
		NANDStats: nandStats,
	}

	var logicalWrites int
	for _, req := range completed {
		if req.Type == request.Read {
			if _, ok := req.Trace[request.TraceCacheReadStart]; ok {
				r.CacheHitCount++
			}
		}
		if req.Type == request.Write {
			logicalWrites++
		}
	}
	if logicalWrites > 0 {
		r.WriteAmplification = float64(nandStats.NumWrites) * float64(cfg.FTLLbasPerPage) / float64(logicalWrites)
	}
	return r
}
