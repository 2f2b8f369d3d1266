package conjecture

import "math/rand"

// PoolSize bounds the TargetSelector's combined fresh+used partitions.
const PoolSize = MutationPoolSize

// TargetSelector is a bounded pool of recent best-status examples (C3),
// partitioned into fresh (never yet returned from Select) and used
// (returned at least once). Only examples whose status equals the best
// status seen so far are retained; a status upgrade clears both
// partitions.
type TargetSelector struct {
	fresh      []*Data
	used       []*Data
	bestStatus Status
	haveBest   bool
	rnd        *rand.Rand
}

// NewTargetSelector constructs an empty selector driven by rnd, the
// engine's single shared PRNG.
func NewTargetSelector(rnd *rand.Rand) *TargetSelector {
	return &TargetSelector{rnd: rnd}
}

// Add offers data to the pool. INTERESTING examples are ignored (they
// belong to the interesting-examples table, not the mutation pool); an
// example worse than the current best status is discarded; one strictly
// better upgrades bestStatus and empties both partitions first.
func (s *TargetSelector) Add(data *Data) {
	if data.Status() == Interesting {
		return
	}
	if s.haveBest {
		if data.Status() < s.bestStatus {
			return
		}
		if data.Status() > s.bestStatus {
			s.bestStatus = data.Status()
			s.fresh = nil
			s.used = nil
		}
	} else {
		s.bestStatus = data.Status()
		s.haveBest = true
	}

	s.fresh = append(s.fresh, data)
	if len(s.fresh)+len(s.used) > PoolSize {
		if len(s.used) > 0 {
			s.evictFrom(&s.used)
		} else {
			s.evictFrom(&s.fresh)
		}
	}
}

// evictFrom removes one uniformly random element from *list via
// swap-with-last-then-pop: order is not an invariant callers may rely on.
func (s *TargetSelector) evictFrom(list *[]*Data) {
	l := *list
	if len(l) == 0 {
		return
	}
	i := s.rnd.Intn(len(l))
	l[i] = l[len(l)-1]
	*list = l[:len(l)-1]
}

// Select returns an origin example for mutation: a random fresh example,
// which is then moved to used, or (if fresh is empty) a random used
// example without removing it. Select must not be called when both
// partitions are empty.
func (s *TargetSelector) Select() *Data {
	if len(s.fresh) > 0 {
		i := s.rnd.Intn(len(s.fresh))
		data := s.fresh[i]
		s.fresh[i] = s.fresh[len(s.fresh)-1]
		s.fresh = s.fresh[:len(s.fresh)-1]
		s.used = append(s.used, data)
		return data
	}
	return s.used[s.rnd.Intn(len(s.used))]
}

// Empty reports whether both partitions are empty, i.e. Select must not be
// called.
func (s *TargetSelector) Empty() bool {
	return len(s.fresh) == 0 && len(s.used) == 0
}
