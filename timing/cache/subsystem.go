package cache

import (
	"fmt"

	"github.com/sarchlab/cachesim/memsys"
)

// Subsystem wires both caches to their memory channels and steps them
// together. Each cache owns its own channel; the backing storage is
// shared, as in a real hierarchy.
type Subsystem struct {
	ICache *InstructionCache
	DCache *DataCache
	Memory *memsys.Hierarchy

	ichan *memsys.Channel
	dchan *memsys.Channel
	cycle uint64
}

// NewSubsystem builds the full cache subsystem from a configuration.
func NewSubsystem(cfg SubsystemConfig) (*Subsystem, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid subsystem config: %w", err)
	}

	hierarchy, err := memsys.New(cfg.Memory)
	if err != nil {
		return nil, err
	}

	ichan := hierarchy.Channel(cfg.ICache.LineBytes)
	dchan := hierarchy.Channel(cfg.DCache.LineBytes)

	icache, err := NewInstructionCache(cfg.ICache, ichan)
	if err != nil {
		return nil, err
	}
	dcache, err := NewDataCache(cfg.DCache, dchan)
	if err != nil {
		return nil, err
	}

	return &Subsystem{
		ICache: icache,
		DCache: dcache,
		Memory: hierarchy,
		ichan:  ichan,
		dchan:  dchan,
	}, nil
}

// Step advances the whole subsystem by one cycle: both caches observe
// their inputs, then the memory channels tick.
func (s *Subsystem) Step(fetch *FetchRequest, data *Request) (FetchResponse, Response) {
	fetchRsp := s.ICache.Step(fetch)
	dataRsp := s.DCache.Step(data)

	s.ichan.Tick()
	s.dchan.Tick()
	s.cycle++

	return fetchRsp, dataRsp
}

// Cycle returns the number of cycles stepped so far.
func (s *Subsystem) Cycle() uint64 {
	return s.cycle
}

// Flush commits all buffered stores and writes every dirty line back into
// the backing storage, then invalidates both caches. The data cache
// controller must be idle; run pending sequences to completion first.
func (s *Subsystem) Flush() error {
	if !s.ICache.Ready() {
		return fmt.Errorf("icache: flush while a fill is in flight")
	}
	if err := s.DCache.Flush(s.Memory); err != nil {
		return err
	}
	s.ICache.Reset()
	return nil
}
