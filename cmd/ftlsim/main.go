// Package main provides the entry point for ftlsim.
// ftlsim is a discrete-event simulator of an SSD's request lifecycle:
// NCQ admission, write-back caching, FTL translation, and NAND timing.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/ColtonHarris999/FTL-SIM/request"
	"github.com/ColtonHarris999/FTL-SIM/sim"
	"github.com/ColtonHarris999/FTL-SIM/trace"
)

var (
	configPath = flag.String("config", "", "Path to a simulation configuration JSON file")
	tracePath  = flag.String("trace", "", "Path to a line-oriented trace file (READ/WRITE/FLUSH lba ready_time_us [fua])")
	genTrace   = flag.Bool("gen", false, "Generate a synthetic trace instead of reading -trace")
	numReqs    = flag.Int("n", 1000, "Number of requests for a generated trace")
	numLBAs    = flag.Uint64("lbas", 256, "Number of distinct LBAs for a generated trace")
	writeFrac  = flag.Float64("write-frac", 0.3, "Fraction of generated requests that are writes")
	fuaFrac    = flag.Float64("fua-frac", 0.1, "Fraction of generated writes that are FUA")
	interarr   = flag.Uint64("interarrival-us", 2, "Microseconds between generated requests")
	seed       = flag.Int64("seed", 1, "RNG seed for a generated trace")
	verbose    = flag.Bool("v", false, "Print a per-request latency breakdown")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	reqs, err := loadTrace()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading trace: %v\n", err)
		os.Exit(1)
	}

	s, err := sim.New(cfg, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error constructing simulator: %v\n", err)
		os.Exit(1)
	}

	result, err := s.Run(reqs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error running simulation: %v\n", err)
		os.Exit(1)
	}

	if *verbose {
		printBreakdown(result.Completed)
	}
	printSummary(result)
}

func loadConfig() (*sim.Config, error) {
	if *configPath == "" {
		return sim.DefaultConfig(), nil
	}
	return sim.LoadConfig(*configPath)
}

func loadTrace() ([]*request.Request, error) {
	if *genTrace || *tracePath == "" {
		src := trace.NewSynthetic(trace.SyntheticConfig{
			NumRequests:    *numReqs,
			NumLBAs:        *numLBAs,
			WriteFraction:  *writeFrac,
			FUAFraction:    *fuaFrac,
			InterarrivalUs: *interarr,
			Seed:           *seed,
		})
		return src.Requests()
	}
	return trace.NewFileSource(*tracePath).Requests()
}

func printBreakdown(completed []*request.Request) {
	fmt.Println("id\ttype\tlba\tresponse_us\twait_us\tservice_us")
	for _, req := range completed {
		b, ok := req.LatencyBreakdown()
		if !ok {
			continue
		}
		fmt.Printf("%d\t%s\t%d\t%d\t%d\t%d\n", req.ID, req.Type, req.LBA, b.ResponseTime, b.QueueWaitTime, b.ServiceTime)
	}
}

func printSummary(result *sim.Result) {
	fmt.Printf("\ncompleted: %d\n", len(result.Completed))
	fmt.Printf("nand reads: %d\n", result.NumReads)
	fmt.Printf("nand writes: %d\n", result.NumWrites)
	fmt.Printf("cache hits: %d\n", result.CacheHitCount)
	fmt.Printf("write amplification: %.3f\n", result.WriteAmplification)
}
