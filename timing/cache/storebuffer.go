package cache

// A StoreBufferEntry is a write that the data cache has accepted but not
// yet merged into the data array. The way is resolved at push time against
// the line that was hit, so an entry always names a slot that is resident
// when it is enqueued. The controller must drain an entry before the slot
// it targets is evicted.
type StoreBufferEntry struct {
	Addr Address
	Way  int
	Size AccessSize
	Data uint32
}

// SearchResult reports pending-write hazards for an address. HitTag and
// HitLine are independent conditions and may both be asserted; callers
// resolve each at their own call site.
type SearchResult struct {
	// HitTag is true if a pending entry targets the exact (set, tag) of
	// the searched address.
	HitTag bool

	// HitLine is true if a pending entry targets the same physical
	// (set, way) slot as the given victim way, regardless of tag.
	HitLine bool

	// Entry is the oldest tag-matching entry when HitTag is set.
	Entry StoreBufferEntry
}

// StoreBuffer holds pending writes in arrival order. It decouples write
// commitment from cache occupancy: the data cache accepts a store in one
// cycle and commits it to the array in a later, idle cycle.
type StoreBuffer struct {
	entries []StoreBufferEntry
	depth   int
}

// NewStoreBuffer creates a store buffer with the given capacity.
func NewStoreBuffer(depth int) *StoreBuffer {
	return &StoreBuffer{depth: depth}
}

// Len returns the number of pending entries.
func (b *StoreBuffer) Len() int {
	return len(b.entries)
}

// Empty reports whether no entries are pending.
func (b *StoreBuffer) Empty() bool {
	return len(b.entries) == 0
}

// Full reports whether the buffer cannot accept another push. The data
// cache honors this by deasserting readiness, never by dropping a write.
func (b *StoreBuffer) Full() bool {
	return len(b.entries) >= b.depth
}

// Push enqueues an entry. It returns false, leaving existing entries
// untouched, if the buffer is full.
func (b *StoreBuffer) Push(e StoreBufferEntry) bool {
	if b.Full() {
		return false
	}

	b.entries = append(b.entries, e)
	return true
}

// DrainOldest removes and returns the oldest entry.
func (b *StoreBuffer) DrainOldest() (StoreBufferEntry, bool) {
	if len(b.entries) == 0 {
		return StoreBufferEntry{}, false
	}

	e := b.entries[0]
	b.entries = b.entries[1:]
	return e, true
}

// DrainTagMatch removes and returns the oldest entry targeting the exact
// (set, tag) of addr.
func (b *StoreBuffer) DrainTagMatch(addr Address) (StoreBufferEntry, bool) {
	for i, e := range b.entries {
		if e.Addr.Set == addr.Set && e.Addr.Tag == addr.Tag {
			b.entries = append(b.entries[:i], b.entries[i+1:]...)
			return e, true
		}
	}

	return StoreBufferEntry{}, false
}

// DrainSlotMatch removes and returns the oldest entry targeting the
// physical (set, way) slot.
func (b *StoreBuffer) DrainSlotMatch(set, way int) (StoreBufferEntry, bool) {
	for i, e := range b.entries {
		if e.Addr.Set == set && e.Way == way {
			b.entries = append(b.entries[:i], b.entries[i+1:]...)
			return e, true
		}
	}

	return StoreBufferEntry{}, false
}

// Search scans for pending-write hazards against addr. victimWay is the
// way currently selected for eviction in addr's set; pass a negative way
// when no victim is selected and only the tag condition is of interest.
func (b *StoreBuffer) Search(addr Address, victimWay int) SearchResult {
	var result SearchResult

	for _, e := range b.entries {
		if e.Addr.Set != addr.Set {
			continue
		}
		if e.Addr.Tag == addr.Tag && !result.HitTag {
			result.HitTag = true
			result.Entry = e
		}
		if victimWay >= 0 && e.Way == victimWay {
			result.HitLine = true
		}
	}

	return result
}

// Entries returns a copy of the pending entries, oldest first. Used by
// invariant auditing and tests.
func (b *StoreBuffer) Entries() []StoreBufferEntry {
	out := make([]StoreBufferEntry, len(b.entries))
	copy(out, b.entries)
	return out
}
