package cache_test

import (
	"encoding/binary"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/cachesim/timing/cache"
)

// mapBacking is an in-memory line store for reference-model tests.
type mapBacking struct {
	lineBytes int
	lines     map[uint32][]byte
	writes    int
}

func newMapBacking(lineBytes int) *mapBacking {
	return &mapBacking{lineBytes: lineBytes, lines: map[uint32][]byte{}}
}

func (b *mapBacking) ReadLine(addr uint32, n int) []byte {
	out := make([]byte, n)
	if ln, ok := b.lines[addr]; ok {
		copy(out, ln)
	}
	return out
}

func (b *mapBacking) WriteLine(addr uint32, data []byte) {
	ln := make([]byte, len(data))
	copy(ln, data)
	b.lines[addr] = ln
	b.writes++
}

func (b *mapBacking) setWord(addr uint32, value uint32) {
	lineAddr := addr &^ uint32(b.lineBytes-1)
	ln, ok := b.lines[lineAddr]
	if !ok {
		ln = make([]byte, b.lineBytes)
		b.lines[lineAddr] = ln
	}
	binary.LittleEndian.PutUint32(ln[addr-lineAddr:], value)
}

func (b *mapBacking) word(addr uint32) uint32 {
	lineAddr := addr &^ uint32(b.lineBytes-1)
	ln, ok := b.lines[lineAddr]
	if !ok {
		return 0
	}
	return binary.LittleEndian.Uint32(ln[addr-lineAddr:])
}

var _ = Describe("RefCache", func() {
	var (
		cfg     cache.Config
		backing *mapBacking
		c       *cache.RefCache
	)

	BeforeEach(func() {
		cfg = cache.Config{
			NumSets:          4,
			NumWays:          2,
			LineBytes:        16,
			MaxAccessBytes:   4,
			AddressBits:      32,
			StoreBufferDepth: 4,
		}
		backing = newMapBacking(cfg.LineBytes)
		c = cache.NewRefCache(cfg, backing)
	})

	It("should miss cold and hit warm", func() {
		backing.setWord(0x1004, 0xCAFE)

		rsp := c.Read(0x1004, cache.SizeWord)
		Expect(rsp.Hit).To(BeFalse())
		Expect(rsp.Data).To(Equal(uint32(0xCAFE)))

		rsp = c.Read(0x1004, cache.SizeWord)
		Expect(rsp.Hit).To(BeTrue())
		Expect(rsp.Data).To(Equal(uint32(0xCAFE)))

		stats := c.Stats()
		Expect(stats.Misses).To(Equal(uint64(1)))
		Expect(stats.Hits).To(Equal(uint64(1)))
	})

	It("should zero-extend narrow reads", func() {
		backing.setWord(0x000, 0xDEADBEEF)

		rsp := c.Read(0x003, cache.SizeByte)
		Expect(rsp.Data).To(Equal(uint32(0xDE)))

		rsp = c.Read(0x002, cache.SizeHalfWord)
		Expect(rsp.Data).To(Equal(uint32(0xDEAD)))
	})

	It("should write-allocate and keep the write local until flush", func() {
		rsp := c.Write(0x2000, cache.SizeWord, 0x1234)
		Expect(rsp.Hit).To(BeFalse())
		Expect(backing.word(0x2000)).To(BeZero())

		rsp = c.Read(0x2000, cache.SizeWord)
		Expect(rsp.Hit).To(BeTrue())
		Expect(rsp.Data).To(Equal(uint32(0x1234)))

		c.Flush()
		Expect(backing.word(0x2000)).To(Equal(uint32(0x1234)))
	})

	It("should write back a dirty victim on eviction", func() {
		c.Write(0x000, cache.SizeWord, 0xAA)
		c.Read(0x040, cache.SizeWord)
		Expect(backing.writes).To(BeZero())

		// A third tag in set 0 evicts the dirty line at 0x000.
		c.Read(0x080, cache.SizeWord)
		Expect(backing.word(0x000)).To(Equal(uint32(0xAA)))
		Expect(c.Stats().Writebacks).To(Equal(uint64(1)))
	})

	It("should not write back clean victims", func() {
		c.Read(0x000, cache.SizeWord)
		c.Read(0x040, cache.SizeWord)
		c.Read(0x080, cache.SizeWord)

		Expect(backing.writes).To(BeZero())
		Expect(c.Stats().Evictions).To(Equal(uint64(1)))
	})

	It("should fault on line-crossing accesses without side effects", func() {
		rsp := c.Read(0x00E, cache.SizeWord)
		Expect(rsp.Fault).To(BeTrue())

		rsp = c.Write(0x00F, cache.SizeHalfWord, 1)
		Expect(rsp.Fault).To(BeTrue())

		stats := c.Stats()
		Expect(stats.Reads).To(BeZero())
		Expect(stats.Writes).To(BeZero())
		Expect(stats.AddressFaults).To(Equal(uint64(2)))
	})

	It("should fault on unsupported access sizes", func() {
		Expect(c.Read(0x000, 8).Fault).To(BeTrue())
		Expect(c.Write(0x000, 3, 1).Fault).To(BeTrue())
		Expect(c.Stats().AddressFaults).To(Equal(uint64(2)))
	})

	It("should invalidate everything on flush", func() {
		c.Read(0x000, cache.SizeWord)
		c.Flush()

		rsp := c.Read(0x000, cache.SizeWord)
		Expect(rsp.Hit).To(BeFalse())
	})
})
