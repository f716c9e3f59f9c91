package cache

// Policy tracks per-set access recency and selects least-recently-used
// victims. Both caches instantiate their own Policy; state is never shared
// across cache instances.
//
// Each set keeps its ways ordered from least to most recently accessed.
// The initial order is way 0..W-1, so ways that have never been touched
// are victimized first, in way order. This is why victim selection can
// always go through the policy: invalid lines sort first under "never
// accessed".
type Policy struct {
	queues [][]int
}

// NewPolicy creates a replacement policy for numSets sets of numWays ways.
func NewPolicy(numSets, numWays int) *Policy {
	queues := make([][]int, numSets)
	for s := range queues {
		queues[s] = make([]int, numWays)
		for w := range queues[s] {
			queues[s][w] = w
		}
	}

	return &Policy{queues: queues}
}

// SelectVictim returns the way in set that was least recently accessed.
func (p *Policy) SelectVictim(set int) int {
	return p.queues[set][0]
}

// RecordAccess marks way in set as most recently accessed. Must be called
// on every hit and every fill so recency stays current.
func (p *Policy) RecordAccess(set, way int) {
	queue := p.queues[set]
	pos := -1
	for i, w := range queue {
		if w == way {
			pos = i
			break
		}
	}

	copy(queue[pos:], queue[pos+1:])
	queue[len(queue)-1] = way
}
