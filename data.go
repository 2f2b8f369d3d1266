package conjecture

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// InterestingOrigin is an opaque key distinguishing one bug from another.
// Test functions mint these however they like (a panic message, a stack
// hash, a tuple of assertion names); the engine only ever compares them
// for equality and stores them as map keys.
type InterestingOrigin any

// BlockBound is a logical draw unit: a half-open [Start, End) range within
// a buffer, as recorded by the strategy that drove the test.
type BlockBound struct {
	Start, End int
}

// DrawFunc supplies n bytes to satisfy one Draw call on data. Implementations
// are the "byte drawer" functions built by the generation loop (C4) and the
// mutator factory (C2).
type DrawFunc func(data *Data, n int) []byte

// eventCache is the bounded, identity-keyed event-tag cache (C9): a weak
// mapping from event to string that the engine is free to evict on reset.
// Keys combine the owning data's test counter with a per-data sequence
// number, so ids never collide across test cases sharing the cache.
type eventCache = *lru.Cache[uint64, string]

// Data is the concrete TestData: a byte-stream reader/recorder that a test
// function consumes one Draw call at a time. It owns the buffer it has
// produced so far, not a pre-supplied one — bytes are pulled lazily from
// drawFn, which lets the engine control every choice without the test
// function knowing whether it is talking to a fresh random stream, a
// corpus replay, or a mutation.
type Data struct {
	buffer []byte
	index  int
	depth  int

	forcedIndices map[int]bool
	maskedIndices map[int]byte
	blockBounds   []BlockBound

	status            Status
	interestingOrigin InterestingOrigin

	frozen bool

	drawStart  time.Time
	drawEnd    time.Time
	drawTimeNS int64

	hitZeroBound bool

	testCounter int

	drawFn DrawFunc
	cap    int

	events     eventCache
	eventSeq   uint64
	eventOrder []uint64
}

// NewData constructs a Data object reading from drawFn, tagged with
// testCounter for stop-test-signal matching. cap is the zero-bound boundary
// (BufferSize/2); the data overruns once more than 2*cap bytes are drawn.
func NewData(drawFn DrawFunc, cap int, testCounter int, events eventCache) *Data {
	return &Data{
		forcedIndices: make(map[int]bool),
		maskedIndices: make(map[int]byte),
		drawFn:        drawFn,
		cap:           cap,
		testCounter:   testCounter,
		events:        events,
	}
}

// Draw pulls n bytes, records them in the buffer, and returns them. mask,
// if non-zero, restricts every returned byte to [0, mask] and is recorded
// in MaskedIndices; forced marks the drawn bytes as written directly by the
// strategy rather than sampled.
//
// Drawing past the buffer budget, or after Freeze, panics with a
// StopTestSignal carrying this data's test counter. The driver consumes
// the signal at the test-function boundary, so a strategy built from
// nested Draw calls unwinds immediately on overrun without checking
// anything at each call site.
func (d *Data) Draw(n int, mask byte, forced bool) []byte {
	out := d.pull(n)
	if mask != 0 {
		for i := range out {
			out[i] &= mask
		}
	}

	begin := d.index
	for i := range out {
		if mask != 0 {
			d.maskedIndices[begin+i] = mask
		}
		if forced {
			d.forcedIndices[begin+i] = true
		}
	}
	d.commit(out)
	return out
}

// DrawBits draws an n-bit unsigned integer, big-endian, reading the
// smallest whole number of bytes that holds n bits. When n is not a
// multiple of eight the leading byte is masked down to the spare bits and
// that mask is recorded against the leading position, so the trie knows
// only the masked range of values was ever reachable there.
func (d *Data) DrawBits(n int) uint64 {
	if n == 0 {
		return 0
	}
	if n > 64 {
		panic("conjecture: DrawBits width exceeds 64")
	}
	nBytes := (n + 7) / 8
	out := d.pull(nBytes)
	if rem := n % 8; rem != 0 {
		mask := byte(1<<rem) - 1
		out[0] &= mask
		d.maskedIndices[d.index] = mask
	}
	d.commit(out)

	var v uint64
	for _, b := range out {
		v = v<<8 | uint64(b)
	}
	return v
}

// pull fetches n bytes from drawFn, zero-padding a short return, and
// accounts the time spent in the drawer.
func (d *Data) pull(n int) []byte {
	if d.frozen {
		panic(&StopTestSignal{Counter: d.testCounter})
	}
	if d.drawStart.IsZero() {
		d.drawStart = time.Now()
	}
	start := time.Now()

	out := d.drawFn(d, n)
	if len(out) != n {
		padded := make([]byte, n)
		copy(padded, out)
		out = padded
	}
	d.drawTimeNS += time.Since(start).Nanoseconds()
	return out
}

// commit appends drawn bytes to the buffer, records the block, and bails
// out of the test on overrun.
func (d *Data) commit(out []byte) {
	begin := d.index
	d.buffer = append(d.buffer, out...)
	d.index += len(out)
	d.blockBounds = append(d.blockBounds, BlockBound{Start: begin, End: d.index})

	if d.index > d.cap*2 {
		d.status = Overrun
		d.Freeze()
		panic(&StopTestSignal{Counter: d.testCounter})
	}
}

// Freeze finalizes the data object: no further draws are permitted, and
// drawEnd/drawTimeNS become stable for health-monitor consumption.
func (d *Data) Freeze() {
	if d.frozen {
		return
	}
	d.frozen = true
	d.drawEnd = time.Now()
}

// NoteEvent records an opaque event tag, keyed by identity, in the bounded
// LRU so the engine never holds a strong reference to whatever produced it
// for longer than the cache's capacity allows.
func (d *Data) NoteEvent(tag string) {
	if d.events == nil {
		return
	}
	d.eventSeq++
	id := uint64(d.testCounter)<<32 | d.eventSeq
	d.events.Add(id, tag)
	d.eventOrder = append(d.eventOrder, id)
}

// Events returns the event tags noted on this data object, in note order,
// skipping any already evicted from the shared LRU.
func (d *Data) Events() []string {
	if d.events == nil {
		return nil
	}
	out := make([]string, 0, len(d.eventOrder))
	for _, id := range d.eventOrder {
		if tag, ok := d.events.Get(id); ok {
			out = append(out, tag)
		}
	}
	return out
}

func (d *Data) Buffer() []byte                           { return d.buffer }
func (d *Data) Status() Status { return d.status }

// SetStatus records the test function's verdict. It is a no-op once the
// data is frozen, so a test function that keeps going after an overrun
// cannot upgrade the OVERRUN status the overrunning draw already fixed.
func (d *Data) SetStatus(s Status) {
	if d.frozen {
		return
	}
	d.status = s
}
func (d *Data) ForcedIndices() map[int]bool              { return d.forcedIndices }
func (d *Data) MaskedIndices() map[int]byte              { return d.maskedIndices }
func (d *Data) BlockBounds() []BlockBound                { return d.blockBounds }
func (d *Data) InterestingOrigin() InterestingOrigin     { return d.interestingOrigin }
func (d *Data) SetInterestingOrigin(o InterestingOrigin) { d.interestingOrigin = o }
func (d *Data) Index() int                               { return d.index }
func (d *Data) Depth() int                               { return d.depth }
func (d *Data) TestCounter() int                         { return d.testCounter }
func (d *Data) DrawTimeNanos() int64                     { return d.drawTimeNS }
func (d *Data) HitZeroBound() bool                       { return d.hitZeroBound }

// Recurse runs fn with depth incremented by one, for strategies that nest
// sub-draws (e.g. a recursive "list of lists" generator). The zero-bound
// rewriter consults Depth to force termination of runaway recursion.
func (d *Data) Recurse(fn func()) {
	d.depth++
	defer func() { d.depth-- }()
	fn()
}

// blockStarts returns, among recorded block bounds, the start offsets of
// every block of exactly the given length n. Used by the mutator's
// reuse_existing bit strategy.
func (d *Data) blockStarts(n int) []int {
	var out []int
	for _, b := range d.blockBounds {
		if b.End-b.Start == n {
			out = append(out, b.Start)
		}
	}
	return out
}

// lastBlockStart returns the start of the last recorded block, or -1 if
// none were drawn. Per the open question in the design notes, a mutator
// reading from an origin with zero blocks must fall through to uniform
// drawing rather than index into an empty slice.
func (d *Data) lastBlockStart() int {
	if len(d.blockBounds) == 0 {
		return -1
	}
	return d.blockBounds[len(d.blockBounds)-1].Start
}
