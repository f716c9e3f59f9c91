package cache_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/cachesim/timing/cache"
)

var _ = Describe("Policy", func() {
	var p *cache.Policy

	BeforeEach(func() {
		p = cache.NewPolicy(4, 4)
	})

	It("should victimize never-touched ways first, in way order", func() {
		Expect(p.SelectVictim(0)).To(Equal(0))

		p.RecordAccess(0, 0)
		Expect(p.SelectVictim(0)).To(Equal(1))

		p.RecordAccess(0, 1)
		Expect(p.SelectVictim(0)).To(Equal(2))
	})

	It("should select the least recently accessed way", func() {
		p.RecordAccess(0, 2)
		p.RecordAccess(0, 0)
		p.RecordAccess(0, 3)
		p.RecordAccess(0, 1)

		Expect(p.SelectVictim(0)).To(Equal(2))

		p.RecordAccess(0, 2)
		Expect(p.SelectVictim(0)).To(Equal(0))
	})

	It("should return the first-touched way after W distinct touches", func() {
		for w := 0; w < 4; w++ {
			p.RecordAccess(1, w)
		}
		Expect(p.SelectVictim(1)).To(Equal(0))
	})

	It("should cover every way exactly once under uniform misses", func() {
		// Simulate a uniform-miss workload: each selected victim is
		// filled, which records an access.
		seen := map[int]bool{}
		for i := 0; i < 4; i++ {
			victim := p.SelectVictim(2)
			Expect(seen[victim]).To(BeFalse())
			seen[victim] = true
			p.RecordAccess(2, victim)
		}
		Expect(seen).To(HaveLen(4))

		// The next round repeats the same cyclic order.
		Expect(p.SelectVictim(2)).To(Equal(0))
	})

	It("should keep per-set state independent", func() {
		p.RecordAccess(0, 0)
		p.RecordAccess(0, 1)
		Expect(p.SelectVictim(0)).To(Equal(2))
		Expect(p.SelectVictim(3)).To(Equal(0))
	})
})
