// Package config defines the fixed CpuConfig record the (external)
// YAML-like configuration reader produces and the core consumes (spec.md
// §6), grounded on the teacher's timing/latency/config.go shape: a
// JSON-tagged struct with a Default constructor, a file loader, and a
// Validate pass.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// TraceFlags gates the per-stage debug log (spec.md §6).
type TraceFlags struct {
	Decode        bool `json:"decode"`
	Issue         bool `json:"issue"`
	AllocateRS    bool `json:"allocate_rs"`
	Dispatch      bool `json:"dispatch"`
	Execute       bool `json:"execute"`
	Retire        bool `json:"retire"`
	PipelineFlush bool `json:"pipeline_flush"`
}

// CpuConfig is the fixed configuration record spec.md §6 names.
type CpuConfig struct {
	PhysRegCount        int `json:"phys_reg_count"`
	FrontendNWide       int `json:"frontend_n_wide"`
	InstrQueueCapacity  int `json:"instr_queue_capacity"`
	FrequencyHz         int `json:"frequency_hz"`
	RSCount             int `json:"rs_count"`
	MemorySize          int `json:"memory_size"`
	SBCapacity          int `json:"sb_capacity"`
	LFBCount            int `json:"lfb_count"`
	ROBCapacity         int `json:"rob_capacity"`
	EUCount             int `json:"eu_count"`
	RetireNWide         int `json:"retire_n_wide"`
	DispatchNWide       int `json:"dispatch_n_wide"`
	IssueNWide          int `json:"issue_n_wide"`
	StatsSeconds        float64 `json:"stats_seconds"`

	Trace TraceFlags `json:"trace"`
}

// Default returns the baseline configuration used when no config file is
// given, sized the way the teacher's DefaultTimingConfig sizes latency
// fields: generous enough that resource pressure rarely shows up.
func Default() *CpuConfig {
	return &CpuConfig{
		PhysRegCount:       64,
		FrontendNWide:      4,
		InstrQueueCapacity: 64,
		FrequencyHz:        1_000_000,
		RSCount:            16,
		MemorySize:         128,
		SBCapacity:         8,
		LFBCount:           2,
		ROBCapacity:        32,
		EUCount:            4,
		RetireNWide:        4,
		DispatchNWide:      4,
		IssueNWide:         4,
		StatsSeconds:       1.0,
	}
}

// TinyConfig returns a deliberately resource-starved configuration, used to
// exercise spec.md §8 scenario 6 (rs_count=2, rob_capacity=4): throughput
// degrades but correctness must not.
func TinyConfig() *CpuConfig {
	c := Default()
	c.RSCount = 2
	c.ROBCapacity = 4
	c.SBCapacity = 2
	c.PhysRegCount = 8
	return c
}

// Load reads a CpuConfig from a JSON file, starting from Default() so an
// incomplete file still produces a valid configuration.
func Load(path string) (*CpuConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cpu config file: %w", err)
	}
	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse cpu config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes a CpuConfig to a JSON file.
func (c *CpuConfig) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize cpu config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write cpu config file: %w", err)
	}
	return nil
}

// InvalidConfigError reports a bad limit or zero width, spec.md §7's
// ConfigInvalid kind.
type InvalidConfigError struct {
	Field string
	Msg   string
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config field %s: %s", e.Field, e.Msg)
}

// Validate checks every width and capacity is positive, spec.md §7.
func (c *CpuConfig) Validate() error {
	positive := map[string]int{
		"phys_reg_count":       c.PhysRegCount,
		"frontend_n_wide":      c.FrontendNWide,
		"instr_queue_capacity": c.InstrQueueCapacity,
		"frequency_hz":         c.FrequencyHz,
		"rs_count":             c.RSCount,
		"memory_size":          c.MemorySize,
		"sb_capacity":          c.SBCapacity,
		"lfb_count":            c.LFBCount,
		"rob_capacity":         c.ROBCapacity,
		"eu_count":             c.EUCount,
		"retire_n_wide":        c.RetireNWide,
		"dispatch_n_wide":      c.DispatchNWide,
		"issue_n_wide":         c.IssueNWide,
	}
	for field, v := range positive {
		if v <= 0 {
			return &InvalidConfigError{Field: field, Msg: "must be > 0"}
		}
	}
	if c.StatsSeconds <= 0 {
		return &InvalidConfigError{Field: "stats_seconds", Msg: "must be > 0"}
	}
	if c.LFBCount > c.SBCapacity {
		return &InvalidConfigError{Field: "lfb_count", Msg: "must be <= sb_capacity"}
	}
	return nil
}

// Clone returns a deep copy of the configuration.
func (c *CpuConfig) Clone() *CpuConfig {
	cp := *c
	return &cp
}
