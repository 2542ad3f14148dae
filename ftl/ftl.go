// Package ftl provides the minimal logical-to-physical translation the
// core relies on: LBA -> LPA grouping and LPA -> PPA allocation. It does
// not implement garbage collection, wear leveling, or persistence.
package ftl

import "github.com/ColtonHarris999/FTL-SIM/nand"

// LBA is a logical block address as addressed by the host.
type LBA uint64

// LPA is a logical page address: a group of LbasPerPage consecutive LBAs.
type LPA uint64

// Config holds the geometry the FTL needs to compute LBA grouping and
// to spread allocations across channels and dies.
type Config struct {
	LbasPerPage    uint64
	NumChannels    int
	DiesPerChannel int
}

// FTL is a stub flash translation layer: it tracks a single current
// mapping per LPA and hands out fresh physical addresses round-robin
// across dies. There is no garbage collection; a page that is
// reallocated simply abandons its previous PPA.
type FTL struct {
	cfg     Config
	mapping map[LPA]nand.PhysicalAddress
	next    int
}

// New constructs an FTL over the given geometry.
func New(cfg Config) *FTL {
	return &FTL{
		cfg:     cfg,
		mapping: make(map[LPA]nand.PhysicalAddress),
	}
}

// LBAToLPA groups lba into its containing logical page.
func (f *FTL) LBAToLPA(lba LBA) LPA {
	return LPA(uint64(lba) / f.cfg.LbasPerPage)
}

// LPAToPPA returns lpa's current physical address, allocating one if
// this is the first time lpa has been seen.
func (f *FTL) LPAToPPA(lpa LPA) nand.PhysicalAddress {
	if pa, ok := f.mapping[lpa]; ok {
		return pa
	}
	return f.Allocate(lpa)
}

// Allocate reserves a fresh physical address for lpa, overwriting any
// previous mapping, and returns it. Physical addresses are assigned by
// cycling through every die in channel-major order so that a trace
// hitting many distinct LPAs spreads load across the available dies.
func (f *FTL) Allocate(lpa LPA) nand.PhysicalAddress {
	numDies := f.cfg.NumChannels * f.cfg.DiesPerChannel
	slot := f.next
	f.next++

	pa := nand.PhysicalAddress{
		Channel: (slot % numDies) / f.cfg.DiesPerChannel,
		Die:     (slot % numDies) % f.cfg.DiesPerChannel,
		Page:    slot / numDies,
	}
	f.mapping[lpa] = pa
	return pa
}

// Clear discards every mapping.
func (f *FTL) Clear() {
	f.mapping = make(map[LPA]nand.PhysicalAddress)
	f.next = 0
}
