package conjecture

import (
	"bytes"
	"math/rand"
)

// bitStrategy produces n bytes given the origin buffer being mutated from
// and the in-progress data object being built.
type bitStrategy func(rnd *rand.Rand, origin *Data, data *Data, n int) []byte

type bitStrategyEntry struct {
	name   string
	weight int
	fn     bitStrategy
}

// bitStrategyTable holds the ten bit strategies with the multiplicities
// spec.md prescribes for weighted sampling with replacement.
var bitStrategyTable = []bitStrategyEntry{
	{"draw_new", 1, strategyDrawNew},
	{"redraw_last", 2, strategyRedrawLast},
	{"reuse_existing", 2, strategyReuseExisting},
	{"draw_existing", 1, strategyDrawExisting},
	{"draw_smaller", 1, strategyDrawSmaller},
	{"draw_larger", 1, strategyDrawLarger},
	{"flip_bit", 1, strategyFlipBit},
	{"draw_zero", 2, strategyDrawZero},
	{"draw_max", 2, strategyDrawMax},
	{"draw_constant", 1, strategyDrawConstant},
}

func sampleBitStrategy(rnd *rand.Rand) bitStrategy {
	total := 0
	for _, e := range bitStrategyTable {
		total += e.weight
	}
	r := rnd.Intn(total)
	for _, e := range bitStrategyTable {
		if r < e.weight {
			return e.fn
		}
		r -= e.weight
	}
	return bitStrategyTable[len(bitStrategyTable)-1].fn
}

func randomBytes(rnd *rand.Rand, n int) []byte {
	out := make([]byte, n)
	rnd.Read(out)
	return out
}

func strategyDrawNew(rnd *rand.Rand, _ *Data, _ *Data, n int) []byte {
	return randomBytes(rnd, n)
}

func strategyRedrawLast(rnd *rand.Rand, origin *Data, data *Data, n int) []byte {
	last := origin.lastBlockStart()
	if last < 0 || data.Index()+n > last {
		return randomBytes(rnd, n)
	}
	out := make([]byte, n)
	copy(out, origin.Buffer()[data.Index():data.Index()+n])
	return out
}

func strategyReuseExisting(rnd *rand.Rand, origin *Data, _ *Data, n int) []byte {
	starts := origin.blockStarts(n)
	if len(starts) == 0 {
		return randomBytes(rnd, n)
	}
	s := starts[rnd.Intn(len(starts))]
	out := make([]byte, n)
	copy(out, origin.Buffer()[s:s+n])
	return out
}

func strategyDrawExisting(_ *rand.Rand, origin *Data, data *Data, n int) []byte {
	out := make([]byte, n)
	copy(out, origin.Buffer()[data.Index():data.Index()+n])
	return out
}

func strategyDrawSmaller(rnd *rand.Rand, origin *Data, data *Data, n int) []byte {
	existing := origin.Buffer()[data.Index() : data.Index()+n]
	r := randomBytes(rnd, n)
	if bytes.Compare(r, existing) <= 0 {
		return r
	}
	return drawPredecessor(rnd, existing)
}

func strategyDrawLarger(rnd *rand.Rand, origin *Data, data *Data, n int) []byte {
	existing := origin.Buffer()[data.Index() : data.Index()+n]
	r := randomBytes(rnd, n)
	if bytes.Compare(r, existing) >= 0 {
		return r
	}
	return drawSuccessor(rnd, existing)
}

func strategyFlipBit(rnd *rand.Rand, origin *Data, data *Data, n int) []byte {
	out := make([]byte, n)
	copy(out, origin.Buffer()[data.Index():data.Index()+n])
	if n == 0 {
		return out
	}
	bit := rnd.Intn(n * 8)
	out[bit/8] ^= 1 << uint(bit%8)
	return out
}

func strategyDrawZero(_ *rand.Rand, _ *Data, _ *Data, n int) []byte {
	return make([]byte, n)
}

func strategyDrawMax(_ *rand.Rand, _ *Data, _ *Data, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = 0xFF
	}
	return out
}

func strategyDrawConstant(rnd *rand.Rand, _ *Data, _ *Data, n int) []byte {
	b := byte(rnd.Intn(256))
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}

// drawPredecessor returns a byte sequence lexicographically <= x, of the
// same length, by sampling each byte in [0, x[i]] left to right until the
// first strictly-smaller choice, then sampling freely thereafter. If no
// position ever goes strictly smaller, the result equals x.
func drawPredecessor(rnd *rand.Rand, x []byte) []byte {
	out := make([]byte, len(x))
	strict := false
	for i, xi := range x {
		if !strict {
			c := byte(rnd.Intn(int(xi) + 1))
			if c < xi {
				strict = true
			}
			out[i] = c
		} else {
			out[i] = byte(rnd.Intn(256))
		}
	}
	return out
}

// drawSuccessor is the symmetric counterpart of drawPredecessor, producing
// a sequence lexicographically >= x.
func drawSuccessor(rnd *rand.Rand, x []byte) []byte {
	out := make([]byte, len(x))
	strict := false
	for i, xi := range x {
		if !strict {
			c := xi + byte(rnd.Intn(256-int(xi)))
			if c > xi {
				strict = true
			}
			out[i] = c
		} else {
			out[i] = byte(rnd.Intn(256))
		}
	}
	return out
}

// Mutator is a stateful byte drawer that derives new buffers from an
// origin: three bit strategies sampled once at construction, plus a novel
// prefix that is overlaid onto every draw so mutation never loses the
// chance to explore genuinely new trie territory. The origin is retargeted
// with SetOrigin before each test case, which also refreshes the prefix
// (a prefix stops being novel the moment the buffer carrying it runs);
// the three-strategy sample stays fixed for the mutator's lifetime.
type Mutator struct {
	origin     *Data
	prefix     []byte
	strategies [3]bitStrategy
	trie       *Trie
	rnd        *rand.Rand
}

// NewMutator builds a fresh mutator: a new novel prefix from trie, and
// three bit strategies sampled independently with replacement. Call
// SetOrigin before drawing.
func NewMutator(trie *Trie, rnd *rand.Rand) (*Mutator, error) {
	prefix, err := trie.GenerateNovelPrefix(rnd)
	if err != nil {
		return nil, err
	}
	m := &Mutator{prefix: prefix, trie: trie, rnd: rnd}
	for i := range m.strategies {
		m.strategies[i] = sampleBitStrategy(rnd)
	}
	return m, nil
}

// SetOrigin points the mutator's copy-and-edit strategies at a new origin
// buffer and synthesizes a fresh novel prefix for the next run.
func (m *Mutator) SetOrigin(origin *Data) error {
	prefix, err := m.trie.GenerateNovelPrefix(m.rnd)
	if err != nil {
		return err
	}
	m.origin = origin
	m.prefix = prefix
	return nil
}

func (m *Mutator) rawDraw(data *Data, n int) []byte {
	var result []byte
	if data.Index()+n > len(m.origin.Buffer()) {
		result = randomBytes(m.rnd, n)
	} else {
		strategy := m.strategies[m.rnd.Intn(len(m.strategies))]
		result = strategy(m.rnd, m.origin, data, n)
	}

	start := data.Index()
	for i := 0; i < n && start+i < len(m.prefix); i++ {
		result[i] = m.prefix[start+i]
	}
	return result
}

// DrawFunc returns the zero-bound-wrapped byte drawer for this mutator, cap
// being the run's zero-bound boundary.
func (m *Mutator) DrawFunc(cap int) DrawFunc {
	return zeroBound(m.rawDraw, cap)
}
