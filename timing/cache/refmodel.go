package cache

import (
	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

// Backing is the reference model's view of the next memory level.
type Backing interface {
	ReadLine(addr uint32, n int) []byte
	WriteLine(addr uint32, data []byte)
}

// RefAccessResult is the outcome of one reference-model access.
type RefAccessResult struct {
	Hit   bool
	Data  uint32
	Fault bool
}

// RefCache is a flat, latency-free reference model of a write-back,
// write-allocate cache, built on the Akita cache directory. It has the
// same architectural data semantics as the cycle-stepped DataCache, so
// after both are flushed their backing stores must be byte-identical for
// the same access sequence. It also serves as the CLI's fast mode.
type RefCache struct {
	cfg       Config
	directory *akitacache.DirectoryImpl
	dataStore [][]byte
	backing   Backing
	stats     Statistics
}

// NewRefCache creates a reference cache with the given geometry over a
// backing store.
func NewRefCache(cfg Config, backing Backing) *RefCache {
	dataStore := make([][]byte, cfg.NumSets*cfg.NumWays)
	for i := range dataStore {
		dataStore[i] = make([]byte, cfg.LineBytes)
	}

	return &RefCache{
		cfg: cfg,
		directory: akitacache.NewDirectory(
			cfg.NumSets,
			cfg.NumWays,
			cfg.LineBytes,
			akitacache.NewLRUVictimFinder(),
		),
		dataStore: dataStore,
		backing:   backing,
	}
}

// blockIndex computes the index into dataStore for a directory block.
func (c *RefCache) blockIndex(block *akitacache.Block) int {
	return block.SetID*c.cfg.NumWays + block.WayID
}

func (c *RefCache) lineAddr(addr uint32) uint64 {
	return uint64(addr) / uint64(c.cfg.LineBytes) * uint64(c.cfg.LineBytes)
}

func (c *RefCache) faults(addr uint32, size AccessSize) bool {
	if !size.Valid() || int(size) > c.cfg.MaxAccessBytes {
		return true
	}
	offset := int(addr) & (c.cfg.LineBytes - 1)
	return offset+int(size) > c.cfg.LineBytes
}

// Read performs a load. The returned data is zero-extended to the maximum
// access width.
func (c *RefCache) Read(addr uint32, size AccessSize) RefAccessResult {
	if c.faults(addr, size) {
		c.stats.AddressFaults++
		return RefAccessResult{Fault: true}
	}

	c.stats.Reads++
	offset := int(addr) & (c.cfg.LineBytes - 1)

	block := c.directory.Lookup(0, c.lineAddr(addr))
	if block != nil && block.IsValid {
		c.stats.Hits++
		c.directory.Visit(block)
		return RefAccessResult{
			Hit:  true,
			Data: extractValue(c.dataStore[c.blockIndex(block)], offset, size),
		}
	}

	c.stats.Misses++
	_, blockData := c.fill(addr)
	return RefAccessResult{Data: extractValue(blockData, offset, size)}
}

// Write performs a store with write-allocate semantics: on a miss the line
// is fetched first, then written.
func (c *RefCache) Write(addr uint32, size AccessSize, value uint32) RefAccessResult {
	if c.faults(addr, size) {
		c.stats.AddressFaults++
		return RefAccessResult{Fault: true}
	}

	c.stats.Writes++
	offset := int(addr) & (c.cfg.LineBytes - 1)

	block := c.directory.Lookup(0, c.lineAddr(addr))
	if block != nil && block.IsValid {
		c.stats.Hits++
		c.directory.Visit(block)
		mergeValue(c.dataStore[c.blockIndex(block)], offset, size, value)
		block.IsDirty = true
		return RefAccessResult{Hit: true}
	}

	c.stats.Misses++
	block, blockData := c.fill(addr)
	mergeValue(blockData, offset, size, value)
	block.IsDirty = true
	return RefAccessResult{}
}

// fill evicts the victim (writing it back if dirty) and installs the line
// containing addr. Returns the installed block and its data.
func (c *RefCache) fill(addr uint32) (*akitacache.Block, []byte) {
	lineAddr := c.lineAddr(addr)

	victim := c.directory.FindVictim(lineAddr)
	victimData := c.dataStore[c.blockIndex(victim)]

	if victim.IsValid {
		c.stats.Evictions++
		if victim.IsDirty {
			c.stats.Writebacks++
			c.backing.WriteLine(uint32(victim.Tag), victimData)
		}
	}

	copy(victimData, c.backing.ReadLine(uint32(lineAddr), c.cfg.LineBytes))

	// The directory stores the line-aligned address as the tag.
	victim.Tag = lineAddr
	victim.IsValid = true
	victim.IsDirty = false
	c.directory.Visit(victim)
	c.stats.Fills++

	return victim, victimData
}

// Flush writes back all dirty lines and invalidates the cache.
func (c *RefCache) Flush() {
	for _, set := range c.directory.GetSets() {
		for _, block := range set.Blocks {
			if block.IsValid && block.IsDirty {
				c.backing.WriteLine(uint32(block.Tag), c.dataStore[c.blockIndex(block)])
				c.stats.Writebacks++
			}
			block.IsValid = false
			block.IsDirty = false
		}
	}
}

// Stats returns the reference model statistics.
func (c *RefCache) Stats() Statistics {
	return c.stats
}

// ResetStats clears the reference model statistics.
func (c *RefCache) ResetStats() {
	c.stats = Statistics{}
}
