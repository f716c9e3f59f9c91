package cache

import (
	"fmt"

	"github.com/sarchlab/cachesim/memsys"
)

// ctrlState is the data cache controller state. The controller is cyclic:
// every miss or drain sequence ends back in ctrlIdle.
type ctrlState int

const (
	// ctrlIdle admits at most one request per cycle, or performs a
	// background store-buffer drain when no request is present.
	ctrlIdle ctrlState = iota

	// ctrlEvictLine waits for the write-back acknowledgment of a dirty
	// victim, then issues the fill for the pending request.
	ctrlEvictLine

	// ctrlBringLine waits for the fill response and completes the pending
	// request.
	ctrlBringLine

	// ctrlWriteCacheLine commits buffered writes that hazard against the
	// pending request, one per cycle, before the request may proceed.
	ctrlWriteCacheLine
)

func (s ctrlState) String() string {
	switch s {
	case ctrlIdle:
		return "Idle"
	case ctrlEvictLine:
		return "EvictLine"
	case ctrlBringLine:
		return "BringLine"
	case ctrlWriteCacheLine:
		return "WriteCacheLine"
	}
	return fmt.Sprintf("ctrlState(%d)", int(s))
}

// A line is one data cache slot. Invariant: dirty implies valid.
type line struct {
	tag   uint32
	data  []byte
	valid bool
	dirty bool
}

// DataCache is the read/write controller. It owns the tag/data arrays, the
// store buffer, and the replacement policy, and drives the four-state
// miss/eviction/fill protocol against the memory hierarchy.
type DataCache struct {
	cfg    Config
	lines  [][]line
	policy *Policy
	buffer *StoreBuffer
	mem    MemoryPort

	state ctrlState

	// Snapshot of the in-flight request, held across the multi-cycle
	// sequence so the original access completes once memory responds.
	pending     Request
	pendingAddr Address

	// Victim metadata latched for the duration of a miss sequence. For a
	// load-hit hazard drain, victimWay is the hit way instead.
	victimSet int
	victimWay int

	// Hazard flags latched on the transition into WriteCacheLine. Both are
	// observable independently; the drain-completion continuation is chosen
	// by hazardTag alone (respond on a load-hit hazard, proceed to evict
	// otherwise).
	hazardTag  bool
	hazardLine bool

	stats Statistics
}

// NewDataCache creates a data cache with the given geometry, talking to
// the memory hierarchy through port.
func NewDataCache(cfg Config, port MemoryPort) (*DataCache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dcache config: %w", err)
	}
	if cfg.StoreBufferDepth < 1 {
		return nil, fmt.Errorf("invalid dcache config: store_buffer_depth must be >= 1")
	}

	lines := make([][]line, cfg.NumSets)
	for s := range lines {
		lines[s] = make([]line, cfg.NumWays)
		for w := range lines[s] {
			lines[s][w].data = make([]byte, cfg.LineBytes)
		}
	}

	return &DataCache{
		cfg:    cfg,
		lines:  lines,
		policy: NewPolicy(cfg.NumSets, cfg.NumWays),
		buffer: NewStoreBuffer(cfg.StoreBufferDepth),
		mem:    port,
	}, nil
}

// Config returns the cache geometry.
func (c *DataCache) Config() Config {
	return c.cfg
}

// Ready reports whether a new request may be presented this cycle. It is
// low while a miss or drain sequence is in flight, and while the store
// buffer is full: a full buffer stalls the pipeline rather than dropping
// or rejecting a write.
func (c *DataCache) Ready() bool {
	return c.state == ctrlIdle && !c.buffer.Full()
}

// Idle reports whether no multi-cycle sequence is in flight. Unlike Ready
// it stays true when only the store buffer is full.
func (c *DataCache) Idle() bool {
	return c.state == ctrlIdle
}

// Step advances the controller by one cycle. At most one request is
// admitted per step, and only while Ready; a request presented while not
// ready is ignored and the caller must hold it. Requests are served
// strictly in arrival order.
func (c *DataCache) Step(req *Request) Response {
	switch c.state {
	case ctrlIdle:
		if req != nil && c.Ready() {
			return c.admit(*req)
		}
		c.backgroundDrain()
		return Response{}

	case ctrlEvictLine:
		if _, ok := c.mem.TakeResponse(); ok {
			c.issueFill()
			c.state = ctrlBringLine
		}
		return Response{}

	case ctrlBringLine:
		if rsp, ok := c.mem.TakeResponse(); ok {
			return c.completeFill(rsp.Data)
		}
		return Response{}

	case ctrlWriteCacheLine:
		return c.drainHazard()
	}

	panic(fmt.Sprintf("dcache: unhandled controller state %v", c.state))
}

// admit decodes and dispatches one request in the Idle state.
func (c *DataCache) admit(req Request) Response {
	addr := c.cfg.Decompose(req.Address)

	if !req.Size.Valid() || int(req.Size) > c.cfg.MaxAccessBytes ||
		addr.Offset+int(req.Size) > c.cfg.LineBytes {
		c.stats.AddressFaults++
		return Response{Fault: true}
	}

	if req.IsStore {
		c.stats.Writes++
	} else {
		c.stats.Reads++
	}

	if way, hit := c.lookup(addr); hit {
		return c.admitHit(req, addr, way)
	}
	return c.admitMiss(req, addr)
}

func (c *DataCache) admitHit(req Request, addr Address, way int) Response {
	c.stats.Hits++

	if req.IsStore {
		// Write-coalescing path: the store is buffered, not yet resident
		// in the array, and the pipeline is not blocked.
		entry := StoreBufferEntry{Addr: addr, Way: way, Size: req.Size, Data: req.Data}
		if !c.buffer.Push(entry) {
			panic("dcache: store admitted with full store buffer")
		}
		c.stats.StoreBufferPushes++
		c.policy.RecordAccess(addr.Set, way)
		return Response{}
	}

	search := c.buffer.Search(addr, -1)
	if search.HitTag {
		// A buffered write to this line must be committed before the
		// stale array data may be returned.
		c.enterWriteCacheLine(req, addr, way, search)
		return Response{}
	}

	c.policy.RecordAccess(addr.Set, way)
	return Response{
		Data:  extractValue(c.lines[addr.Set][way].data, addr.Offset, req.Size),
		Valid: true,
	}
}

func (c *DataCache) admitMiss(req Request, addr Address) Response {
	c.stats.Misses++

	victim := c.policy.SelectVictim(addr.Set)
	search := c.buffer.Search(addr, victim)
	if search.HitLine {
		// The slot chosen for eviction is still targeted by a buffered
		// write; drain it before the slot may be invalidated.
		c.enterWriteCacheLine(req, addr, victim, search)
		return Response{}
	}

	c.pending = req
	c.pendingAddr = addr
	c.victimSet = addr.Set
	c.victimWay = victim
	c.hazardTag = false
	c.hazardLine = false

	victimLine := &c.lines[addr.Set][victim]
	if victimLine.valid && victimLine.dirty {
		c.issueWriteback(victimLine)
		c.state = ctrlEvictLine
		return Response{}
	}

	if victimLine.valid {
		c.stats.Evictions++
	}
	c.issueFill()
	c.state = ctrlBringLine
	return Response{}
}

func (c *DataCache) enterWriteCacheLine(req Request, addr Address, way int, search SearchResult) {
	c.pending = req
	c.pendingAddr = addr
	c.victimSet = addr.Set
	c.victimWay = way
	c.hazardTag = search.HitTag
	c.hazardLine = search.HitLine
	c.state = ctrlWriteCacheLine
}

// drainHazard commits one hazarding store-buffer entry per cycle, then
// either answers the stalled load or proceeds to the eviction write-back.
func (c *DataCache) drainHazard() Response {
	var entry StoreBufferEntry
	var ok bool
	if c.hazardTag {
		entry, ok = c.buffer.DrainTagMatch(c.pendingAddr)
	} else {
		entry, ok = c.buffer.DrainSlotMatch(c.victimSet, c.victimWay)
	}
	if ok {
		c.commitEntry(entry)
	}

	// There may be several buffered writes to the same line; entries are
	// never coalesced at push time, so loop until none remain.
	search := c.buffer.Search(c.pendingAddr, c.victimWay)
	if c.hazardTag {
		if search.HitTag {
			return Response{}
		}
		// Load-hit hazard served: the line now holds the buffered data.
		c.policy.RecordAccess(c.victimSet, c.victimWay)
		c.state = ctrlIdle
		return Response{
			Data: extractValue(
				c.lines[c.victimSet][c.victimWay].data,
				c.pendingAddr.Offset, c.pending.Size),
			Valid: true,
		}
	}

	if search.HitLine {
		return Response{}
	}

	// Pre-eviction drain served: the victim now carries the buffered data
	// and is necessarily dirty, so the write-back proceeds exactly as in
	// the Idle-miss dirty-victim path.
	c.issueWriteback(&c.lines[c.victimSet][c.victimWay])
	c.state = ctrlEvictLine
	return Response{}
}

// issueWriteback sends the victim line to the memory hierarchy and clears
// its valid/dirty bits. The payload is the line's data prior to
// invalidation.
func (c *DataCache) issueWriteback(victim *line) {
	data := make([]byte, c.cfg.LineBytes)
	copy(data, victim.data)

	c.mem.Issue(memsys.Request{
		Address: c.cfg.LineAddress(victim.tag, c.victimSet),
		IsStore: true,
		Data:    data,
	})

	victim.valid = false
	victim.dirty = false
	c.stats.Evictions++
	c.stats.Writebacks++
}

// issueFill requests the missing line for the pending request.
func (c *DataCache) issueFill() {
	c.mem.Issue(memsys.Request{
		Address: c.cfg.LineAddress(c.pendingAddr.Tag, c.pendingAddr.Set),
	})
}

// completeFill installs the fetched line over the latched victim slot and
// answers the pending request. A pending store merges its data into the
// line before installation.
func (c *DataCache) completeFill(data []byte) Response {
	target := &c.lines[c.victimSet][c.victimWay]
	target.tag = c.pendingAddr.Tag
	copy(target.data, data)
	target.valid = true
	target.dirty = false

	if c.pending.IsStore {
		mergeValue(target.data, c.pendingAddr.Offset, c.pending.Size, c.pending.Data)
		target.dirty = true
	}

	c.policy.RecordAccess(c.victimSet, c.victimWay)
	c.stats.Fills++
	c.state = ctrlIdle

	return Response{
		Data:  extractValue(target.data, c.pendingAddr.Offset, c.pending.Size),
		Valid: true,
	}
}

// backgroundDrain commits the oldest buffered store in a cycle where no
// request was admitted. This is how buffered stores become resident
// without consuming a pipeline cycle.
func (c *DataCache) backgroundDrain() {
	if entry, ok := c.buffer.DrainOldest(); ok {
		c.commitEntry(entry)
	}
}

// commitEntry merges a drained entry into the array at its recorded way.
func (c *DataCache) commitEntry(e StoreBufferEntry) {
	target := &c.lines[e.Addr.Set][e.Way]
	target.tag = e.Addr.Tag
	target.valid = true
	mergeValue(target.data, e.Addr.Offset, e.Size, e.Data)
	target.dirty = true
	c.stats.StoreBufferDrains++
}

func (c *DataCache) lookup(addr Address) (way int, hit bool) {
	for w, ln := range c.lines[addr.Set] {
		if ln.valid && ln.tag == addr.Tag {
			return w, true
		}
	}
	return 0, false
}

// StoreBufferLen returns the number of pending buffered stores.
func (c *DataCache) StoreBufferLen() int {
	return c.buffer.Len()
}

// LineWriter receives full lines written back outside the timing model.
type LineWriter interface {
	WriteLine(addr uint32, data []byte)
}

// Flush drains the store buffer into the array, writes every dirty line
// back through w, and invalidates all lines. The controller must be idle.
func (c *DataCache) Flush(w LineWriter) error {
	if c.state != ctrlIdle {
		return fmt.Errorf("dcache: flush while controller is in %v", c.state)
	}

	for {
		entry, ok := c.buffer.DrainOldest()
		if !ok {
			break
		}
		c.commitEntry(entry)
	}

	for s := range c.lines {
		for wy := range c.lines[s] {
			ln := &c.lines[s][wy]
			if ln.valid && ln.dirty {
				w.WriteLine(c.cfg.LineAddress(ln.tag, s), ln.data)
				c.stats.Writebacks++
			}
			ln.valid = false
			ln.dirty = false
		}
	}

	return nil
}

// Stats returns the cache statistics.
func (c *DataCache) Stats() Statistics {
	return c.stats
}

// ResetStats clears the cache statistics.
func (c *DataCache) ResetStats() {
	c.stats = Statistics{}
}

// CheckInvariants verifies the structural invariants of the arrays and the
// store buffer. Tests call this after every step.
func (c *DataCache) CheckInvariants() error {
	for s, set := range c.lines {
		seen := map[uint32]int{}
		for w, ln := range set {
			if ln.dirty && !ln.valid {
				return fmt.Errorf("dcache set %d way %d: dirty line is not valid", s, w)
			}
			if !ln.valid {
				continue
			}
			if prev, dup := seen[ln.tag]; dup {
				return fmt.Errorf(
					"dcache set %d: ways %d and %d both hold tag 0x%x",
					s, prev, w, ln.tag)
			}
			seen[ln.tag] = w
		}
	}

	for _, e := range c.buffer.Entries() {
		ln := c.lines[e.Addr.Set][e.Way]
		if !ln.valid || ln.tag != e.Addr.Tag {
			return fmt.Errorf(
				"store buffer entry for 0x%08x targets non-resident slot (set %d, way %d)",
				e.Addr.Raw, e.Addr.Set, e.Way)
		}
	}

	return nil
}
