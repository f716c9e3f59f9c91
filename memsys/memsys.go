// Package memsys models the memory hierarchy behind the caches as a
// request/response handshake with bounded but unspecified latency.
package memsys

import (
	"fmt"
	"math/rand"

	mem "github.com/sarchlab/akita/v4/mem/mem"
)

// Config holds the memory hierarchy parameters.
type Config struct {
	// CapacityBytes is the size of the backing storage.
	CapacityBytes uint64 `json:"capacity_bytes"`

	// MinLatency is the minimum request-to-response latency in cycles.
	MinLatency int `json:"min_latency"`

	// MaxLatency is the maximum request-to-response latency in cycles.
	// Latency is drawn uniformly from [MinLatency, MaxLatency], so callers
	// must not assume a fixed round-trip time.
	MaxLatency int `json:"max_latency"`

	// Seed seeds the latency generator. Runs are reproducible for a fixed
	// seed and request order.
	Seed int64 `json:"seed"`
}

// DefaultConfig returns the default memory hierarchy configuration.
func DefaultConfig() Config {
	return Config{
		CapacityBytes: 4 * mem.GB,
		MinLatency:    8,
		MaxLatency:    24,
		Seed:          1,
	}
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	if c.CapacityBytes == 0 {
		return fmt.Errorf("capacity_bytes must be > 0")
	}
	if c.MinLatency < 1 {
		return fmt.Errorf("min_latency must be >= 1, got %d", c.MinLatency)
	}
	if c.MaxLatency < c.MinLatency {
		return fmt.Errorf("max_latency (%d) must be >= min_latency (%d)",
			c.MaxLatency, c.MinLatency)
	}
	return nil
}

// A Request asks the hierarchy for one full cache line. Reads carry no
// payload; writes carry the line to be written back.
type Request struct {
	Address uint32
	IsStore bool
	Data    []byte
}

// A Response completes a Request. Read responses carry the line data; write
// acknowledgments carry none.
type Response struct {
	Data []byte
}

// Hierarchy owns the backing storage shared by all channels.
type Hierarchy struct {
	cfg     Config
	backing *mem.Storage
	rng     *rand.Rand
}

// New creates a memory hierarchy with the given configuration.
func New(cfg Config) (*Hierarchy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid memory config: %w", err)
	}

	return &Hierarchy{
		cfg:     cfg,
		backing: mem.NewStorage(cfg.CapacityBytes),
		rng:     rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Backing exposes the underlying storage, mainly for test setup and
// end-of-run inspection.
func (h *Hierarchy) Backing() *mem.Storage {
	return h.backing
}

// ReadLine reads n bytes starting at addr directly from the backing
// storage, bypassing the timing model.
func (h *Hierarchy) ReadLine(addr uint32, n int) []byte {
	data, err := h.backing.Read(uint64(addr), uint64(n))
	if err != nil {
		panic(fmt.Sprintf("memsys: read at 0x%08x: %v", addr, err))
	}
	return data
}

// WriteLine writes data at addr directly into the backing storage,
// bypassing the timing model. Used for program loading and flushes.
func (h *Hierarchy) WriteLine(addr uint32, data []byte) {
	if err := h.backing.Write(uint64(addr), data); err != nil {
		panic(fmt.Sprintf("memsys: write at 0x%08x: %v", addr, err))
	}
}

// Channel mints a request/response channel with the given line size. Each
// cache instance owns one channel; a channel serves a single outstanding
// request at a time.
func (h *Hierarchy) Channel(lineBytes int) *Channel {
	return &Channel{h: h, lineBytes: lineBytes}
}

// A Channel is the per-cache port into the hierarchy. Issue a request,
// tick until the latency expires, then take the one-cycle response strobe.
type Channel struct {
	h         *Hierarchy
	lineBytes int

	busy      bool
	req       Request
	remaining int
	rsp       *Response
}

// Busy reports whether a request is in flight.
func (ch *Channel) Busy() bool {
	return ch.busy
}

// Issue starts a new request. The channel is single-outstanding; issuing
// while busy is a protocol violation.
func (ch *Channel) Issue(req Request) {
	if ch.busy {
		panic("memsys: issue on busy channel")
	}

	ch.busy = true
	ch.req = req
	ch.remaining = ch.h.cfg.MinLatency
	if ch.h.cfg.MaxLatency > ch.h.cfg.MinLatency {
		ch.remaining += ch.h.rng.Intn(ch.h.cfg.MaxLatency - ch.h.cfg.MinLatency + 1)
	}
}

// Tick advances the channel by one cycle. When the latency expires, the
// storage access is performed and the response becomes visible.
func (ch *Channel) Tick() {
	if !ch.busy || ch.rsp != nil {
		return
	}

	ch.remaining--
	if ch.remaining > 0 {
		return
	}

	if ch.req.IsStore {
		ch.h.WriteLine(ch.req.Address, ch.req.Data)
		ch.rsp = &Response{}
		return
	}

	ch.rsp = &Response{Data: ch.h.ReadLine(ch.req.Address, ch.lineBytes)}
}

// TakeResponse consumes the pending response, if any. The response is
// visible for exactly one take; afterwards the channel is free again.
func (ch *Channel) TakeResponse() (Response, bool) {
	if ch.rsp == nil {
		return Response{}, false
	}

	rsp := *ch.rsp
	ch.rsp = nil
	ch.busy = false
	return rsp, true
}
