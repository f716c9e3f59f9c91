// Package cache models the cache subsystem of a pipelined core: a read-only
// instruction cache and a write-back data cache with a store buffer, both
// set-associative with LRU replacement, driven one cycle at a time.
package cache

import (
	"encoding/json"
	"fmt"
	"math/bits"
	"os"

	"github.com/sarchlab/cachesim/memsys"
)

// AccessSize is the width of a single data-cache access, in bytes.
type AccessSize int

// Supported access widths.
const (
	SizeByte     AccessSize = 1
	SizeHalfWord AccessSize = 2
	SizeWord     AccessSize = 4
)

// Valid reports whether s is one of the supported access widths.
func (s AccessSize) Valid() bool {
	return s == SizeByte || s == SizeHalfWord || s == SizeWord
}

// Config holds the geometry of one cache instance. Field widths for
// tag/set/offset decomposition derive from these values.
type Config struct {
	// NumSets is the number of sets. Must be a power of two.
	NumSets int `json:"num_sets"`

	// NumWays is the associativity (ways per set).
	NumWays int `json:"num_ways"`

	// LineBytes is the cache line size in bytes. Must be a power of two.
	LineBytes int `json:"line_bytes"`

	// MaxAccessBytes is the widest single access the cache accepts.
	// Responses are zero-extended to this width.
	MaxAccessBytes int `json:"max_access_bytes"`

	// AddressBits is the width of the address space. Default: 32.
	AddressBits int `json:"address_bits"`

	// StoreBufferDepth is the number of pending-store entries. Only
	// meaningful for the data cache.
	StoreBufferDepth int `json:"store_buffer_depth,omitempty"`
}

// DefaultICacheConfig returns the default instruction cache geometry:
// 4KB, 2-way, 32B lines.
func DefaultICacheConfig() Config {
	return Config{
		NumSets:        64,
		NumWays:        2,
		LineBytes:      32,
		MaxAccessBytes: 4,
		AddressBits:    32,
	}
}

// DefaultDCacheConfig returns the default data cache geometry:
// 8KB, 4-way, 32B lines, 8-entry store buffer.
func DefaultDCacheConfig() Config {
	return Config{
		NumSets:          64,
		NumWays:          4,
		LineBytes:        32,
		MaxAccessBytes:   4,
		AddressBits:      32,
		StoreBufferDepth: 8,
	}
}

// Validate checks the geometry for consistency.
func (c Config) Validate() error {
	if c.NumSets <= 0 || bits.OnesCount(uint(c.NumSets)) != 1 {
		return fmt.Errorf("num_sets must be a positive power of two, got %d", c.NumSets)
	}
	if c.NumWays <= 0 {
		return fmt.Errorf("num_ways must be > 0, got %d", c.NumWays)
	}
	if c.LineBytes <= 0 || bits.OnesCount(uint(c.LineBytes)) != 1 {
		return fmt.Errorf("line_bytes must be a positive power of two, got %d", c.LineBytes)
	}
	if !AccessSize(c.MaxAccessBytes).Valid() {
		return fmt.Errorf("max_access_bytes must be 1, 2, or 4, got %d", c.MaxAccessBytes)
	}
	if c.MaxAccessBytes > c.LineBytes {
		return fmt.Errorf("max_access_bytes (%d) must not exceed line_bytes (%d)",
			c.MaxAccessBytes, c.LineBytes)
	}
	if c.AddressBits < c.offsetBits()+c.setBits()+1 || c.AddressBits > 32 {
		return fmt.Errorf("address_bits must be in [%d, 32], got %d",
			c.offsetBits()+c.setBits()+1, c.AddressBits)
	}
	if c.StoreBufferDepth < 0 {
		return fmt.Errorf("store_buffer_depth must be >= 0, got %d", c.StoreBufferDepth)
	}
	return nil
}

// Clone returns a copy of the Config.
func (c Config) Clone() Config {
	return c
}

func (c Config) offsetBits() int {
	return bits.TrailingZeros(uint(c.LineBytes))
}

func (c Config) setBits() int {
	return bits.TrailingZeros(uint(c.NumSets))
}

// TagBits returns the number of tag bits implied by the geometry.
func (c Config) TagBits() int {
	return c.AddressBits - c.offsetBits() - c.setBits()
}

// Address is the decomposed form of a request address.
type Address struct {
	Raw    uint32
	Tag    uint32
	Set    int
	Offset int
}

// Decompose splits addr into tag, set index, and byte offset. Pure and
// stateless; bits above AddressBits are ignored.
func (c Config) Decompose(addr uint32) Address {
	if c.AddressBits < 32 {
		addr &= (1 << c.AddressBits) - 1
	}

	offset := int(addr) & (c.LineBytes - 1)
	set := int(addr>>c.offsetBits()) & (c.NumSets - 1)
	tag := addr >> (c.offsetBits() + c.setBits())

	return Address{Raw: addr, Tag: tag, Set: set, Offset: offset}
}

// LineAddress reassembles the line-aligned address for a (tag, set) pair.
func (c Config) LineAddress(tag uint32, set int) uint32 {
	return tag<<(c.offsetBits()+c.setBits()) | uint32(set)<<c.offsetBits()
}

// SubsystemConfig aggregates the configuration of both caches and the
// memory hierarchy behind them.
type SubsystemConfig struct {
	ICache Config        `json:"icache"`
	DCache Config        `json:"dcache"`
	Memory memsys.Config `json:"memory"`
}

// DefaultSubsystemConfig returns the default configuration for the whole
// cache subsystem.
func DefaultSubsystemConfig() SubsystemConfig {
	return SubsystemConfig{
		ICache: DefaultICacheConfig(),
		DCache: DefaultDCacheConfig(),
		Memory: memsys.DefaultConfig(),
	}
}

// Validate checks all sections of the configuration.
func (c SubsystemConfig) Validate() error {
	if err := c.ICache.Validate(); err != nil {
		return fmt.Errorf("icache: %w", err)
	}
	if err := c.DCache.Validate(); err != nil {
		return fmt.Errorf("dcache: %w", err)
	}
	if c.DCache.StoreBufferDepth == 0 {
		return fmt.Errorf("dcache: store_buffer_depth must be > 0")
	}
	if err := c.Memory.Validate(); err != nil {
		return fmt.Errorf("memory: %w", err)
	}

	// Every line address a cache can issue must be backed, or a mid-run
	// access would run past the storage.
	addressBits := c.ICache.AddressBits
	if c.DCache.AddressBits > addressBits {
		addressBits = c.DCache.AddressBits
	}
	if c.Memory.CapacityBytes < uint64(1)<<addressBits {
		return fmt.Errorf(
			"memory: capacity_bytes (%d) does not cover the %d-bit address space",
			c.Memory.CapacityBytes, addressBits)
	}

	return nil
}

// LoadSubsystemConfig loads a SubsystemConfig from a JSON file. Fields not
// present in the file keep their default values.
func LoadSubsystemConfig(path string) (SubsystemConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SubsystemConfig{}, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultSubsystemConfig()
	if err := json.Unmarshal(data, &config); err != nil {
		return SubsystemConfig{}, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return SubsystemConfig{}, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return config, nil
}

// SaveConfig writes the SubsystemConfig to a JSON file.
func (c SubsystemConfig) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
