package conjecture

// Predicate decides whether a replayed Data still counts as interesting
// for a particular target origin: status has reached INTERESTING and its
// InterestingOrigin matches target.
type Predicate func(data *Data) bool

// TargetPredicate builds the standard predicate: status >= INTERESTING and
// InterestingOrigin == target.
func TargetPredicate(target InterestingOrigin) Predicate {
	return func(data *Data) bool {
		return data.Status() >= Interesting && data.InterestingOrigin() == target
	}
}

// Shrinker is the external minimization collaborator: given a starting
// example and a predicate, it searches for a locally minimal buffer still
// satisfying the predicate. The actual minimizing transforms (boundary
// search, delta-debugging passes, block-aware shrinks, ...) are outside
// this core's scope; the core only specifies this handshake and the
// replay-and-confirm step below.
type Shrinker interface {
	Shrink(example *Data, predicate Predicate) *Data
}

// ReplayAndConfirm replays buf through a genuine re-execution of the user
// test function — never the trie's memoized leaf — and reports whether
// the fresh result still satisfies predicate. This is the "replay a
// stored buffer and confirm it still fails" handshake the core owes the
// external shrinker, and the mechanism by which flaky examples are
// detected: consulting the cache here would just return the original,
// possibly stale, recorded status and could never disagree with itself.
func (e *Engine) ReplayAndConfirm(buf []byte, predicate Predicate) (*Data, bool) {
	data := NewData(bufferReplayDraw(buf), e.cap, e.nextTestCounter(), e.events)
	e.runTestFunction(data)
	data.Freeze()
	e.afterExecute(data)
	return data, predicate(data)
}
