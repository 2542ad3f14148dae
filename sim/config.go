package sim

import (
	"encoding/json"
	"fmt"
	"os"
)

// SchedulerPolicy selects which nandsched.Scheduler implementation the
// simulator wires up.
type SchedulerPolicy string

const (
	SchedulerFIFO         SchedulerPolicy = "fifo"
	SchedulerReadPriority SchedulerPolicy = "read_priority"
)

// Config holds every tunable parameter of a simulation run. Field
// names and defaults follow the configuration section of the request-
// lifecycle design this package implements.
type Config struct {
	NCQSize int `json:"ncq_size"`

	CacheNumPages       int    `json:"cache_num_pages"`
	CacheWriteUs        uint64 `json:"cache_write_us"`
	CacheReadUs         uint64 `json:"cache_read_us"`
	CacheWritebackDelay uint64 `json:"cache_writeback_delay"`

	NANDChannels       int    `json:"nand_channels"`
	NANDDiesPerChannel int    `json:"nand_dies_per_channel"`
	NANDPagesPerBlock  int    `json:"nand_pages_per_block"`
	NANDReadUs         uint64 `json:"nand_read_us"`
	NANDProgramUs      uint64 `json:"nand_program_us"`
	NANDDMAUs          uint64 `json:"nand_dma_us"`

	FTLLbasPerPage uint64 `json:"ftl_lbas_per_page"`

	NANDSchedulerPolicy       SchedulerPolicy `json:"nand_scheduler_policy"`
	SchedulerDispatchOverhead uint64          `json:"scheduler_dispatch_overhead_us"`
	StrictFlush               bool            `json:"strict_flush"`
}

// DefaultConfig returns the reference parameter set.
func DefaultConfig() *Config {
	return &Config{
		NCQSize: 32,

		CacheNumPages:       2,
		CacheWriteUs:        10,
		CacheReadUs:         10,
		CacheWritebackDelay: 500,

		NANDChannels:       2,
		NANDDiesPerChannel: 2,
		NANDPagesPerBlock:  64,
		NANDReadUs:         50,
		NANDProgramUs:      200,
		NANDDMAUs:          5,

		FTLLbasPerPage: 2,

		NANDSchedulerPolicy:       SchedulerFIFO,
		SchedulerDispatchOverhead: 0,
		StrictFlush:               false,
	}
}

// LoadConfig reads a JSON config file, starting from DefaultConfig and
// overlaying whatever fields the file sets.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sim: failed to read config file: %w", err)
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("sim: failed to parse config: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes c to path as indented JSON.
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("sim: failed to serialize config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("sim: failed to write config file: %w", err)
	}
	return nil
}

// Validate rejects configurations the core cannot run with. In
// particular num_pages = 0 is treated as illegal rather than "no
// cache" — the write path always needs at least one page to land a
// write before it can be flushed.
func (c *Config) Validate() error {
	if c.NCQSize <= 0 {
		return fmt.Errorf("ncq_size must be > 0")
	}
	if c.CacheNumPages <= 0 {
		return fmt.Errorf("cache_num_pages must be > 0")
	}
	if c.NANDChannels <= 0 {
		return fmt.Errorf("nand_channels must be > 0")
	}
	if c.NANDDiesPerChannel <= 0 {
		return fmt.Errorf("nand_dies_per_channel must be > 0")
	}
	if c.FTLLbasPerPage == 0 {
		return fmt.Errorf("ftl_lbas_per_page must be > 0")
	}
	switch c.NANDSchedulerPolicy {
	case SchedulerFIFO, SchedulerReadPriority:
	default:
		return fmt.Errorf("unknown nand_scheduler_policy %q", c.NANDSchedulerPolicy)
	}
	return nil
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
