package cache_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/cachesim/timing/cache"
)

var _ = Describe("Config", func() {
	var cfg cache.Config

	BeforeEach(func() {
		cfg = cache.Config{
			NumSets:        4,
			NumWays:        2,
			LineBytes:      16,
			MaxAccessBytes: 4,
			AddressBits:    32,
		}
	})

	Describe("Validate", func() {
		It("should accept the defaults", func() {
			Expect(cache.DefaultICacheConfig().Validate()).To(Succeed())
			Expect(cache.DefaultDCacheConfig().Validate()).To(Succeed())
		})

		It("should reject a non-power-of-two set count", func() {
			cfg.NumSets = 3
			Expect(cfg.Validate()).To(HaveOccurred())
		})

		It("should reject a non-power-of-two line size", func() {
			cfg.LineBytes = 24
			Expect(cfg.Validate()).To(HaveOccurred())
		})

		It("should reject an access width above the line size", func() {
			cfg.LineBytes = 2
			cfg.MaxAccessBytes = 4
			Expect(cfg.Validate()).To(HaveOccurred())
		})

		It("should reject an address space with no tag bits", func() {
			cfg.AddressBits = 6 // 4 offset bits + 2 set bits
			Expect(cfg.Validate()).To(HaveOccurred())
		})
	})

	Describe("Decompose", func() {
		It("should split an address into tag, set, and offset", func() {
			addr := cfg.Decompose(0x1234)
			Expect(addr.Offset).To(Equal(0x4))
			Expect(addr.Set).To(Equal(3))
			Expect(addr.Tag).To(Equal(uint32(0x48)))
		})

		It("should round-trip through LineAddress", func() {
			for _, raw := range []uint32{0x0, 0x40, 0x1230, 0xFFFF_FFF0} {
				addr := cfg.Decompose(raw)
				Expect(cfg.LineAddress(addr.Tag, addr.Set)).
					To(Equal(raw &^ uint32(cfg.LineBytes-1)))
			}
		})

		It("should ignore bits above the address width", func() {
			cfg.AddressBits = 16
			Expect(cfg.Validate()).To(Succeed())
			Expect(cfg.Decompose(0xABCD_1234).Raw).To(Equal(uint32(0x1234)))
		})
	})

	Describe("SubsystemConfig", func() {
		It("should require a store buffer on the data cache", func() {
			config := cache.DefaultSubsystemConfig()
			config.DCache.StoreBufferDepth = 0
			Expect(config.Validate()).To(HaveOccurred())
		})

		It("should require backing capacity to cover the address space", func() {
			config := cache.DefaultSubsystemConfig()
			config.Memory.CapacityBytes = 1 << 20
			Expect(config.Validate()).To(MatchError(
				ContainSubstring("does not cover")))

			// Shrinking the address space to match the capacity is fine.
			config.ICache.AddressBits = 20
			config.DCache.AddressBits = 20
			Expect(config.Validate()).To(Succeed())
		})

		It("should round-trip through a JSON file", func() {
			config := cache.DefaultSubsystemConfig()
			config.DCache.NumSets = 128
			config.Memory.Seed = 42

			dir, err := os.MkdirTemp("", "cachesim-config")
			Expect(err).NotTo(HaveOccurred())
			defer os.RemoveAll(dir)

			path := filepath.Join(dir, "config.json")
			Expect(config.SaveConfig(path)).To(Succeed())

			loaded, err := cache.LoadSubsystemConfig(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(Equal(config))
		})

		It("should fail to load an invalid file", func() {
			dir, err := os.MkdirTemp("", "cachesim-config")
			Expect(err).NotTo(HaveOccurred())
			defer os.RemoveAll(dir)

			path := filepath.Join(dir, "config.json")
			Expect(os.WriteFile(path, []byte(`{"dcache":{"num_sets":3}}`), 0644)).
				To(Succeed())

			_, err = cache.LoadSubsystemConfig(path)
			Expect(err).To(HaveOccurred())
		})
	})
})
