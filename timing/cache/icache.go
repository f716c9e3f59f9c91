package cache

import (
	"fmt"

	"github.com/sarchlab/cachesim/memsys"
)

// An iLine is one instruction cache slot. Instruction lines are never
// dirty; they are read-only copies of memory.
type iLine struct {
	tag   uint32
	data  []byte
	valid bool
}

// InstructionCache is a read-only cache with a single outstanding miss.
// On a hit it answers in the same cycle; on a miss it deasserts readiness,
// fetches the line from the memory hierarchy, installs it over the LRU
// victim, and answers in the fill cycle.
type InstructionCache struct {
	cfg    Config
	lines  [][]iLine
	policy *Policy
	mem    MemoryPort

	missPending bool
	pendingAddr Address

	stats Statistics
}

// NewInstructionCache creates an instruction cache with the given geometry,
// fetching lines through port.
func NewInstructionCache(cfg Config, port MemoryPort) (*InstructionCache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid icache config: %w", err)
	}
	if cfg.LineBytes < int(SizeWord) {
		return nil, fmt.Errorf(
			"invalid icache config: line_bytes must be >= %d to hold an instruction word, got %d",
			int(SizeWord), cfg.LineBytes)
	}

	lines := make([][]iLine, cfg.NumSets)
	for s := range lines {
		lines[s] = make([]iLine, cfg.NumWays)
		for w := range lines[s] {
			lines[s][w].data = make([]byte, cfg.LineBytes)
		}
	}

	return &InstructionCache{
		cfg:    cfg,
		lines:  lines,
		policy: NewPolicy(cfg.NumSets, cfg.NumWays),
		mem:    port,
	}, nil
}

// Config returns the cache geometry.
func (c *InstructionCache) Config() Config {
	return c.cfg
}

// Ready reports whether a new fetch request may be presented this cycle.
func (c *InstructionCache) Ready() bool {
	return !c.missPending
}

// Step advances the cache by one cycle. While a miss is pending, req is
// ignored and the caller must hold its request; the stalled fetch is
// answered in the cycle the fill arrives.
func (c *InstructionCache) Step(req *FetchRequest) FetchResponse {
	if c.missPending {
		rsp, ok := c.mem.TakeResponse()
		if !ok {
			return FetchResponse{}
		}
		return c.install(rsp.Data)
	}

	if req == nil {
		return FetchResponse{}
	}

	c.stats.Reads++
	addr := c.cfg.Decompose(req.Address)

	if way, hit := c.lookup(addr); hit {
		c.stats.Hits++
		c.policy.RecordAccess(addr.Set, way)
		return FetchResponse{Data: c.word(addr, way), Valid: true}
	}

	c.stats.Misses++
	c.pendingAddr = addr
	c.missPending = true
	c.mem.Issue(memsys.Request{Address: c.cfg.LineAddress(addr.Tag, addr.Set)})

	return FetchResponse{}
}

// install places the fetched line over the LRU victim and answers the
// stalled fetch.
func (c *InstructionCache) install(data []byte) FetchResponse {
	set := c.pendingAddr.Set
	way := c.policy.SelectVictim(set)

	line := &c.lines[set][way]
	if line.valid {
		c.stats.Evictions++
	}
	line.tag = c.pendingAddr.Tag
	copy(line.data, data)
	line.valid = true

	c.policy.RecordAccess(set, way)
	c.stats.Fills++
	c.missPending = false

	return FetchResponse{Data: c.word(c.pendingAddr, way), Valid: true}
}

func (c *InstructionCache) lookup(addr Address) (way int, hit bool) {
	for w, line := range c.lines[addr.Set] {
		if line.valid && line.tag == addr.Tag {
			return w, true
		}
	}
	return 0, false
}

// word reads the word-aligned instruction containing the request offset.
func (c *InstructionCache) word(addr Address, way int) uint32 {
	offset := addr.Offset &^ (int(SizeWord) - 1)
	return extractValue(c.lines[addr.Set][way].data, offset, SizeWord)
}

// Reset invalidates all lines and clears any pending miss. Statistics are
// preserved.
func (c *InstructionCache) Reset() {
	for s := range c.lines {
		for w := range c.lines[s] {
			c.lines[s][w].valid = false
		}
	}
	c.policy = NewPolicy(c.cfg.NumSets, c.cfg.NumWays)
	c.missPending = false
}

// Stats returns the cache statistics.
func (c *InstructionCache) Stats() Statistics {
	return c.stats
}

// ResetStats clears the cache statistics.
func (c *InstructionCache) ResetStats() {
	c.stats = Statistics{}
}

// CheckInvariants verifies structural invariants of the tag array. Tests
// call this after every step.
func (c *InstructionCache) CheckInvariants() error {
	for s, set := range c.lines {
		seen := map[uint32]int{}
		for w, line := range set {
			if !line.valid {
				continue
			}
			if prev, dup := seen[line.tag]; dup {
				return fmt.Errorf(
					"icache set %d: ways %d and %d both hold tag 0x%x",
					s, prev, w, line.tag)
			}
			seen[line.tag] = w
		}
	}
	return nil
}
